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

// RoleRegistry holds role definitions. Roles are never hard-deleted; inactive
// roles are invisible to every lookup.
type RoleRegistry struct {
	repo   RoleRepository
	audit  audit.Logger
	logger *observability.Logger
	now    func() time.Time

	// called after a role's permissions or status change
	onChange func(ctx context.Context)
}

// NewRoleRegistry creates a role registry over repo
func NewRoleRegistry(repo RoleRepository, opts ...Option) *RoleRegistry {
	o := buildOptions(opts)
	return &RoleRegistry{
		repo:   repo,
		audit:  o.audit,
		logger: o.logger,
		now:    o.now,
	}
}

// CreateRole persists a new role. It fails with a conflict error if an active
// role of the same role type already exists.
func (r *RoleRegistry) CreateRole(ctx context.Context, def RoleDefinition) (*RoleDefinition, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	existing, err := r.activeByType(ctx, def.RoleType)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, Conflictf("a role of type %s already exists", def.RoleType)
	}

	return r.insert(ctx, def)
}

// CreateCustomRole persists an administrator-defined role. Several roles may
// share a role type; only the name must be unique among active roles.
func (r *RoleRegistry) CreateCustomRole(ctx context.Context, def RoleDefinition) (*RoleDefinition, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	if _, err := r.GetRoleByName(ctx, def.Name); err == nil {
		return nil, Conflictf("a role named %q already exists", def.Name)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	def.IsBuiltIn = false
	return r.insert(ctx, def)
}

func (r *RoleRegistry) insert(ctx context.Context, def RoleDefinition) (*RoleDefinition, error) {
	now := r.now().UTC()
	role := def
	role.ID = uuid.NewString()
	role.IsActive = true
	role.CreatedAt = now
	role.UpdatedAt = now
	if role.Permissions == nil {
		role.Permissions = PermissionSet{}
	}

	if err := r.repo.InsertRole(ctx, &role); err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"role_id":   role.ID,
		"role_type": role.RoleType,
		"name":      role.Name,
	}).Info("Role created")
	r.record(ctx, audit.EventTypeRoleCreated, role.ID, map[string]interface{}{
		"role_type": string(role.RoleType),
		"name":      role.Name,
	})

	return &role, nil
}

// GetRoleByID returns an active role
func (r *RoleRegistry) GetRoleByID(ctx context.Context, id string) (*RoleDefinition, error) {
	if id == "" {
		return nil, Validationf("role id is required")
	}

	role, err := r.repo.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if !role.IsActive {
		return nil, NotFoundf("role not found: %s", id)
	}
	return role, nil
}

// GetRoleByType returns the canonical active role of a type: the built-in one
// if present, otherwise the oldest
func (r *RoleRegistry) GetRoleByType(ctx context.Context, roleType RoleType) (*RoleDefinition, error) {
	if !roleType.Valid() {
		return nil, Validationf("invalid role type %q", roleType)
	}

	roles, err := r.activeByType(ctx, roleType)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, NotFoundf("no active role of type %s", roleType)
	}

	for _, role := range roles {
		if role.IsBuiltIn {
			return role, nil
		}
	}
	return roles[0], nil
}

// GetRoleByName returns the active role with the given name
func (r *RoleRegistry) GetRoleByName(ctx context.Context, name string) (*RoleDefinition, error) {
	roles, err := r.GetAllRoles(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if role.Name == name {
			return role, nil
		}
	}
	return nil, NotFoundf("role not found: %s", name)
}

// GetAllRoles returns every active role, oldest first
func (r *RoleRegistry) GetAllRoles(ctx context.Context) ([]*RoleDefinition, error) {
	roles, err := r.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*RoleDefinition, 0, len(roles))
	for _, role := range roles {
		if role.IsActive {
			active = append(active, role)
		}
	}
	return active, nil
}

// UpdateRole merges update into an active role and bumps UpdatedAt
func (r *RoleRegistry) UpdateRole(ctx context.Context, id string, update RoleUpdate) (*RoleDefinition, error) {
	role, err := r.GetRoleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	update.apply(role)
	if err := role.Validate(); err != nil {
		return nil, err
	}
	role.UpdatedAt = r.now().UTC()

	if err := r.repo.UpdateRole(ctx, role); err != nil {
		return nil, err
	}

	r.changed(ctx)
	r.logger.WithField("role_id", role.ID).Info("Role updated")
	r.record(ctx, audit.EventTypeRoleUpdated, role.ID, map[string]interface{}{
		"name": role.Name,
	})
	return role, nil
}

// DeactivateRole soft-deletes a role. Assignments pointing at it evaluate to
// an empty permission set from then on.
func (r *RoleRegistry) DeactivateRole(ctx context.Context, id string) (*RoleDefinition, error) {
	role, err := r.GetRoleByID(ctx, id)
	if err != nil {
		return nil, err
	}

	role.IsActive = false
	role.UpdatedAt = r.now().UTC()
	if err := r.repo.UpdateRole(ctx, role); err != nil {
		return nil, err
	}

	r.changed(ctx)
	r.logger.WithField("role_id", role.ID).Info("Role deactivated")
	r.record(ctx, audit.EventTypeRoleDeactivated, role.ID, nil)
	return role, nil
}

// SeedResult reports what EnsureDefaultRoles did
type SeedResult struct {
	Created []RoleType
	Skipped []RoleType
}

// EnsureDefaultRoles creates the built-in role of every role type that has no
// role at all yet. A deactivated role still counts, so a deactivation outlives
// restarts. Running it again changes nothing.
func (r *RoleRegistry) EnsureDefaultRoles(ctx context.Context) (*SeedResult, error) {
	result := &SeedResult{}

	for _, def := range BuiltInRoles() {
		existing, err := r.repo.ListRolesByType(ctx, def.RoleType)
		if err != nil {
			return nil, fmt.Errorf("failed to check built-in role %s: %w", def.RoleType, err)
		}
		if len(existing) > 0 {
			result.Skipped = append(result.Skipped, def.RoleType)
			continue
		}

		def.IsBuiltIn = true
		if _, err := r.insert(ctx, def); err != nil {
			// another instance seeded the same type concurrently
			if errors.Is(err, ErrConflict) {
				result.Skipped = append(result.Skipped, def.RoleType)
				continue
			}
			return nil, fmt.Errorf("failed to create built-in role %s: %w", def.RoleType, err)
		}
		result.Created = append(result.Created, def.RoleType)
	}

	r.logger.WithFields(map[string]interface{}{
		"created": len(result.Created),
		"skipped": len(result.Skipped),
	}).Info("Default roles ensured")
	return result, nil
}

func (r *RoleRegistry) changed(ctx context.Context) {
	if r.onChange != nil {
		r.onChange(ctx)
	}
}

func (r *RoleRegistry) activeByType(ctx context.Context, roleType RoleType) ([]*RoleDefinition, error) {
	roles, err := r.repo.ListRolesByType(ctx, roleType)
	if err != nil {
		return nil, err
	}

	active := roles[:0]
	for _, role := range roles {
		if role.IsActive {
			active = append(active, role)
		}
	}
	return active, nil
}

func (r *RoleRegistry) record(ctx context.Context, eventType audit.EventType, roleID string, metadata map[string]interface{}) {
	event := &audit.Event{
		EventType:    eventType,
		Status:       audit.StatusSuccess,
		ResourceType: audit.ResourceTypeRole,
		ResourceID:   roleID,
		Metadata:     metadata,
	}
	if err := r.audit.Log(ctx, event); err != nil {
		r.logger.WithError(err).Warn("Failed to record audit event")
	}
}
