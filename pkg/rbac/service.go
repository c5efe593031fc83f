package rbac

import (
	"context"
	"sort"
	"strings"
)

// Service bundles the authorization core over one repository. The
// composition root builds it once and calls EnsureDefaultRoles before
// serving.
type Service struct {
	Roles       *RoleRegistry
	Assignments *AssignmentService
	Evaluator   *Evaluator
	Gate        *Gate
}

// NewService wires the registry, assignment service, evaluator and gate.
// All of them share opts, so they share one cache, logger and audit trail.
func NewService(repo Repository, opts ...Option) *Service {
	roles := NewRoleRegistry(repo, opts...)
	evaluator := NewEvaluator(repo, opts...)
	roles.onChange = evaluator.InvalidateAll
	return &Service{
		Roles:       roles,
		Assignments: NewAssignmentService(repo, roles, evaluator, opts...),
		Evaluator:   evaluator,
		Gate:        NewGate(evaluator, opts...),
	}
}

// EnsureDefaultRoles seeds the built-in roles
func (s *Service) EnsureDefaultRoles(ctx context.Context) (*SeedResult, error) {
	return s.Roles.EnsureDefaultRoles(ctx)
}

// AssignUserRole creates the live assignment described by req
func (s *Service) AssignUserRole(ctx context.Context, req AssignRequest) (*UserRoleAssignment, error) {
	return s.Assignments.Assign(ctx, req)
}

// UpdateUserRole atomically moves userID to roleID in applicationID
func (s *Service) UpdateUserRole(ctx context.Context, userID, applicationID, roleID string) (*UserRoleAssignment, error) {
	return s.Assignments.Update(ctx, userID, applicationID, roleID, AssignOptions{})
}

// RevokeUserRole removes the live assignment of userID in applicationID
func (s *Service) RevokeUserRole(ctx context.Context, userID, applicationID string) error {
	return s.Assignments.Revoke(ctx, userID, applicationID)
}

// GetUserPermissions returns the effective permission set
func (s *Service) GetUserPermissions(ctx context.Context, userID, applicationID string) (PermissionSet, error) {
	return s.Evaluator.GetUserPermissions(ctx, userID, applicationID)
}

// CheckUserPermission reports whether userID holds level on permission
func (s *Service) CheckUserPermission(ctx context.Context, userID, applicationID, permission string, level AccessLevel) (bool, error) {
	return s.Evaluator.CheckPermission(ctx, userID, applicationID, permission, level)
}

// GetAllRoles returns every active role
func (s *Service) GetAllRoles(ctx context.Context) ([]*RoleDefinition, error) {
	return s.Roles.GetAllRoles(ctx)
}

// AuthorizeGrant fails with a forbidden error when grantorID may not hand out
// roleID with the custom overrides in applicationID. The role's type must not
// rank above the highest role type the grantor holds there, and no override
// may exceed the grantor's own level on that permission.
func (s *Service) AuthorizeGrant(ctx context.Context, grantorID, applicationID, roleID string, custom PermissionSet) error {
	if grantorID == "" {
		return Unauthorizedf("authentication required")
	}
	role, err := s.Roles.GetRoleByID(ctx, roleID)
	if err != nil {
		return err
	}

	held, err := s.Evaluator.GetUserRoleTypes(ctx, grantorID, applicationID)
	if err != nil {
		return err
	}
	top := 0
	for _, t := range held {
		if t.Tier() > top {
			top = t.Tier()
		}
	}
	if role.RoleType.Tier() > top {
		return Forbiddenf("role type %s ranks above the caller's role in application %s", role.RoleType, applicationID)
	}

	if len(custom) == 0 {
		return nil
	}
	perms, err := s.Evaluator.GetUserPermissions(ctx, grantorID, applicationID)
	if err != nil {
		return err
	}
	var exceeded []string
	for name, level := range custom {
		if !perms.Allows(name, level) {
			exceeded = append(exceeded, name+"="+string(level))
		}
	}
	if len(exceeded) > 0 {
		sort.Strings(exceeded)
		return Forbiddenf("custom permissions exceed the caller's own: %s", strings.Join(exceeded, ", "))
	}
	return nil
}
