package rbac

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/accessplane/pkg/audit"
	"github.com/platinummonkey/accessplane/pkg/observability"
)

// Requirement declares what an operation needs from its caller. A public
// requirement admits anyone; otherwise the caller must be authenticated and
// pass the role check and the permission check that are declared.
type Requirement struct {
	Public     bool
	Permission string
	Level      AccessLevel
	RoleTypes  []RoleType
}

// Public admits every caller, authenticated or not
func Public() Requirement {
	return Requirement{Public: true}
}

// Authenticated admits any authenticated caller
func Authenticated() Requirement {
	return Requirement{}
}

// RequirePermission requires at least level on permission
func RequirePermission(permission string, level AccessLevel) Requirement {
	return Requirement{Permission: permission, Level: level}
}

// RequireRoleTypes requires the caller to hold one of roleTypes
func RequireRoleTypes(roleTypes ...RoleType) Requirement {
	return Requirement{RoleTypes: roleTypes}
}

// AndPermission adds a permission check to a role requirement
func (r Requirement) AndPermission(permission string, level AccessLevel) Requirement {
	r.Permission = permission
	r.Level = level
	return r
}

// Validate rejects permission names missing from registry, invalid levels and
// invalid role types
func (r Requirement) Validate(registry *PermissionRegistry) error {
	if r.Public {
		if r.Permission != "" || len(r.RoleTypes) > 0 {
			return Validationf("a public requirement cannot declare checks")
		}
		return nil
	}
	if r.Permission != "" {
		if err := registry.Validate(r.Permission); err != nil {
			return err
		}
		if !r.Level.Valid() {
			return Validationf("invalid access level %q for permission %s", r.Level, r.Permission)
		}
	}
	for _, t := range r.RoleTypes {
		if !t.Valid() {
			return Validationf("invalid role type %q", t)
		}
	}
	return nil
}

func (r Requirement) String() string {
	if r.Public {
		return "public"
	}
	var parts []string
	if len(r.RoleTypes) > 0 {
		types := make([]string, len(r.RoleTypes))
		for i, t := range r.RoleTypes {
			types[i] = string(t)
		}
		parts = append(parts, "role in ["+strings.Join(types, ",")+"]")
	}
	if r.Permission != "" {
		parts = append(parts, fmt.Sprintf("%s>=%s", r.Permission, r.Level))
	}
	if len(parts) == 0 {
		return "authenticated"
	}
	return strings.Join(parts, " and ")
}

// Gate decisions
const (
	DecisionApproved     = "approved"
	DecisionUnauthorized = "unauthorized"
	DecisionForbidden    = "forbidden"
	DecisionInvalid      = "invalid"
	DecisionError        = "error"
)

// Gate authorizes operations against their Requirement. It has no side
// effects besides logging, metrics and the audit record of a denial.
type Gate struct {
	evaluator   *Evaluator
	permissions *PermissionRegistry
	audit       audit.Logger
	logger      *observability.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer
}

// NewGate creates a gate that checks permissions through evaluator
func NewGate(evaluator *Evaluator, opts ...Option) *Gate {
	o := buildOptions(opts)
	return &Gate{
		evaluator:   evaluator,
		permissions: o.permissions,
		audit:       o.audit,
		logger:      o.logger,
		metrics:     o.metrics,
		tracer:      o.tracer,
	}
}

// Permissions returns the registry requirements are validated against
func (g *Gate) Permissions() *PermissionRegistry {
	return g.permissions
}

// Authorize runs req for userID in applicationID. An empty userID means the
// caller is unauthenticated. It returns nil when approved, an unauthorized
// error for a missing identity and a forbidden error when a declared check
// fails.
func (g *Gate) Authorize(ctx context.Context, userID, applicationID string, req Requirement) error {
	if err := req.Validate(g.permissions); err != nil {
		g.count(DecisionInvalid)
		return err
	}
	if req.Public {
		g.count(DecisionApproved)
		return nil
	}
	if userID == "" {
		g.count(DecisionUnauthorized)
		return Unauthorizedf("authentication required")
	}
	if (req.Permission != "" || len(req.RoleTypes) > 0) && applicationID == "" {
		g.count(DecisionInvalid)
		return Validationf("application id is required")
	}

	ctx, span := g.tracer.Start(ctx, "rbac.Authorize", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("application.id", applicationID),
		attribute.String("requirement", req.String()),
	))
	defer span.End()

	if len(req.RoleTypes) > 0 {
		held, err := g.evaluator.GetUserRoleTypes(ctx, userID, applicationID)
		if err != nil {
			span.RecordError(err)
			g.count(DecisionError)
			return err
		}
		if !intersects(held, req.RoleTypes) {
			span.SetAttributes(attribute.String("decision", DecisionForbidden))
			return g.deny(ctx, userID, applicationID, req, "role type not allowed")
		}
	}

	if req.Permission != "" {
		allowed, err := g.evaluator.CheckPermission(ctx, userID, applicationID, req.Permission, req.Level)
		if err != nil {
			span.RecordError(err)
			g.count(DecisionError)
			return err
		}
		if !allowed {
			span.SetAttributes(attribute.String("decision", DecisionForbidden))
			return g.deny(ctx, userID, applicationID, req, "insufficient permission")
		}
	}

	span.SetAttributes(attribute.String("decision", DecisionApproved))
	g.count(DecisionApproved)
	return nil
}

func (g *Gate) deny(ctx context.Context, userID, applicationID string, req Requirement, reason string) error {
	g.count(DecisionForbidden)

	g.logger.WithFields(map[string]interface{}{
		"user_id":        userID,
		"application_id": applicationID,
		"permission":     req.Permission,
		"level":          string(req.Level),
		"reason":         reason,
	}).Info("Access denied")

	event := &audit.Event{
		EventType:     audit.EventTypeAccessDenied,
		Status:        audit.StatusDenied,
		ActorID:       userID,
		TargetUserID:  userID,
		ApplicationID: applicationID,
		ResourceType:  audit.ResourceTypePermission,
		ResourceID:    req.Permission,
		Message:       reason,
		Metadata: map[string]interface{}{
			"requirement": req.String(),
		},
	}
	if err := g.audit.Log(ctx, event); err != nil {
		g.logger.WithError(err).Warn("Failed to record audit event")
	}

	return Forbiddenf("%s: requires %s", reason, req)
}

func (g *Gate) count(decision string) {
	if g.metrics != nil {
		g.metrics.GateDecisionsTotal.WithLabelValues(decision).Inc()
	}
}

func intersects(held, allowed []RoleType) bool {
	for _, h := range held {
		for _, a := range allowed {
			if h == a {
				return true
			}
		}
	}
	return false
}
