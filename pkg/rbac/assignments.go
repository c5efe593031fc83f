package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/accessplane/pkg/audit"
	"github.com/platinummonkey/accessplane/pkg/observability"
)

// AssignmentService manages user-role assignments. At most one live
// assignment exists per (user, application); the repository enforces this
// atomically, so concurrent Assign calls for one pair leave exactly one
// winner and the rest fail with a conflict error.
type AssignmentService struct {
	repo      Repository
	roles     *RoleRegistry
	evaluator *Evaluator
	audit     audit.Logger
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewAssignmentService creates an assignment service. Every change is
// followed by an invalidation of the pair's cached permission set in evaluator.
func NewAssignmentService(repo Repository, roles *RoleRegistry, evaluator *Evaluator, opts ...Option) *AssignmentService {
	o := buildOptions(opts)
	return &AssignmentService{
		repo:      repo,
		roles:     roles,
		evaluator: evaluator,
		audit:     o.audit,
		logger:    o.logger,
		metrics:   o.metrics,
		now:       o.now,
	}
}

// Assign gives req.UserID the role req.RoleID in req.ApplicationID. It fails
// with a not-found error for unknown or inactive roles and with a conflict
// error if the user already holds a live role in the application.
func (s *AssignmentService) Assign(ctx context.Context, req AssignRequest) (*UserRoleAssignment, error) {
	now := s.now().UTC()

	if err := s.validate(req.UserID, req.ApplicationID, req.RoleID, req.Options(), now); err != nil {
		return nil, err
	}

	role, err := s.roles.GetRoleByID(ctx, req.RoleID)
	if err != nil {
		return nil, err
	}

	a := newAssignment(req.UserID, role.ID, req.ApplicationID, req.Options(), now)
	if err := s.repo.InsertActive(ctx, a, now); err != nil {
		s.count("assign", err)
		return nil, err
	}
	s.count("assign", nil)

	s.evaluator.Invalidate(ctx, a.UserID, a.ApplicationID)

	s.logger.WithFields(map[string]interface{}{
		"user_id":        a.UserID,
		"application_id": a.ApplicationID,
		"role_id":        a.RoleID,
		"assignment_id":  a.ID,
	}).Info("Role assigned")
	s.record(ctx, audit.EventTypeAssignmentGranted, a, map[string]interface{}{
		"role_id":   role.ID,
		"role_type": string(role.RoleType),
	})

	return a, nil
}

// AssignUserRole is Assign with positional arguments
func (s *AssignmentService) AssignUserRole(ctx context.Context, userID, roleID, applicationID string, opts AssignOptions) (*UserRoleAssignment, error) {
	return s.Assign(ctx, AssignRequest{
		UserID:            userID,
		RoleID:            roleID,
		ApplicationID:     applicationID,
		WorkspaceID:       opts.WorkspaceID,
		ExpiresAt:         opts.ExpiresAt,
		CustomPermissions: opts.CustomPermissions,
		AssignedBy:        opts.AssignedBy,
	})
}

// GetUserRoles returns the live assignments of userID, each with its role,
// newest first. An empty applicationID returns assignments in every
// application. Assignments whose role is gone or inactive are omitted.
func (s *AssignmentService) GetUserRoles(ctx context.Context, userID, applicationID string) ([]*ResolvedAssignment, error) {
	if userID == "" {
		return nil, Validationf("user id is required")
	}

	assignments, err := s.repo.ListActive(ctx, userID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	sortNewestFirst(assignments)

	now := s.now()
	roles := make(map[string]*RoleDefinition)
	resolved := make([]*ResolvedAssignment, 0, len(assignments))

	for _, a := range assignments {
		if !a.ActiveAt(now) {
			continue
		}

		role, ok := roles[a.RoleID]
		if !ok {
			role, err = s.repo.GetRole(ctx, a.RoleID)
			if errors.Is(err, ErrNotFound) {
				role = nil
			} else if err != nil {
				return nil, fmt.Errorf("failed to load role %s: %w", a.RoleID, err)
			}
			roles[a.RoleID] = role
		}
		if role == nil || !role.IsActive {
			continue
		}

		resolved = append(resolved, &ResolvedAssignment{UserRoleAssignment: *a, Role: role})
	}
	return resolved, nil
}

// Revoke deactivates the live assignment of userID in applicationID. It
// fails with a not-found error if there was none.
func (s *AssignmentService) Revoke(ctx context.Context, userID, applicationID string) error {
	if userID == "" || applicationID == "" {
		return Validationf("user id and application id are required")
	}

	live, err := s.repo.DeactivateActive(ctx, userID, applicationID, s.now().UTC())
	if err != nil {
		s.count("revoke", err)
		return err
	}

	// expired rows may have been deactivated even when nothing live was
	s.evaluator.Invalidate(ctx, userID, applicationID)

	if live == 0 {
		err := NotFoundf("no active role for user %s in application %s", userID, applicationID)
		s.count("revoke", err)
		return err
	}
	s.count("revoke", nil)

	s.logger.WithFields(map[string]interface{}{
		"user_id":        userID,
		"application_id": applicationID,
	}).Info("Role revoked")
	s.record(ctx, audit.EventTypeAssignmentRevoked, &UserRoleAssignment{
		UserID:        userID,
		ApplicationID: applicationID,
	}, nil)

	return nil
}

// Update replaces the live assignment of userID in applicationID with one to
// newRoleID in a single atomic step; readers never observe zero or two live
// assignments. It fails with a not-found error if the user had no live
// assignment or the role does not exist. Custom permissions of the replaced
// assignment are not carried over.
func (s *AssignmentService) Update(ctx context.Context, userID, applicationID, newRoleID string, opts AssignOptions) (*UserRoleAssignment, error) {
	now := s.now().UTC()

	if err := s.validate(userID, applicationID, newRoleID, opts, now); err != nil {
		return nil, err
	}

	role, err := s.roles.GetRoleByID(ctx, newRoleID)
	if err != nil {
		return nil, err
	}

	a := newAssignment(userID, role.ID, applicationID, opts, now)
	if err := s.repo.ReplaceActive(ctx, a, now); err != nil {
		s.count("update", err)
		return nil, err
	}
	s.count("update", nil)

	s.evaluator.Invalidate(ctx, userID, applicationID)

	s.logger.WithFields(map[string]interface{}{
		"user_id":        userID,
		"application_id": applicationID,
		"role_id":        role.ID,
		"assignment_id":  a.ID,
	}).Info("Role replaced")
	s.record(ctx, audit.EventTypeAssignmentReplaced, a, map[string]interface{}{
		"role_id":   role.ID,
		"role_type": string(role.RoleType),
	})

	return a, nil
}

func (s *AssignmentService) validate(userID, applicationID, roleID string, opts AssignOptions, now time.Time) error {
	if userID == "" {
		return Validationf("user id is required")
	}
	if applicationID == "" {
		return Validationf("application id is required")
	}
	if roleID == "" {
		return Validationf("role id is required")
	}
	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(now) {
		return Validationf("expiry %s is not in the future", opts.ExpiresAt.UTC().Format(time.RFC3339))
	}
	for name, level := range opts.CustomPermissions {
		if name == "" {
			return Validationf("permission name must not be empty")
		}
		if !level.Valid() {
			return Validationf("invalid access level %q for permission %s", level, name)
		}
	}
	return nil
}

func newAssignment(userID, roleID, applicationID string, opts AssignOptions, now time.Time) *UserRoleAssignment {
	a := &UserRoleAssignment{
		ID:            uuid.NewString(),
		UserID:        userID,
		RoleID:        roleID,
		ApplicationID: applicationID,
		WorkspaceID:   opts.WorkspaceID,
		IsActive:      true,
		AssignedAt:    now,
		AssignedBy:    opts.AssignedBy,
	}
	if opts.ExpiresAt != nil {
		expires := opts.ExpiresAt.UTC()
		a.ExpiresAt = &expires
	}
	if len(opts.CustomPermissions) > 0 {
		a.CustomPermissions = opts.CustomPermissions.Clone()
	}
	return a
}

func (s *AssignmentService) count(operation string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = string(KindOf(err))
		if status == "" {
			status = "error"
		}
	}
	s.metrics.AssignmentOpsTotal.WithLabelValues(operation, status).Inc()
}

func (s *AssignmentService) record(ctx context.Context, eventType audit.EventType, a *UserRoleAssignment, metadata map[string]interface{}) {
	event := &audit.Event{
		EventType:     eventType,
		Status:        audit.StatusSuccess,
		TargetUserID:  a.UserID,
		ApplicationID: a.ApplicationID,
		ResourceType:  audit.ResourceTypeAssignment,
		ResourceID:    a.ID,
		Metadata:      metadata,
	}
	if a.AssignedBy != nil {
		event.ActorID = *a.AssignedBy
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).Warn("Failed to record audit event")
	}
}
