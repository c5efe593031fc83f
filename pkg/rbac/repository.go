package rbac

import (
	"context"
	"sort"
	"time"
)

// RoleRepository persists role definitions. Implementations return every row,
// active or not; filtering on IsActive is left to the RoleRegistry.
type RoleRepository interface {
	InsertRole(ctx context.Context, role *RoleDefinition) error
	GetRole(ctx context.Context, id string) (*RoleDefinition, error)
	ListRolesByType(ctx context.Context, roleType RoleType) ([]*RoleDefinition, error)
	ListRoles(ctx context.Context) ([]*RoleDefinition, error)
	UpdateRole(ctx context.Context, role *RoleDefinition) error
}

// AssignmentRepository persists user-role assignments and enforces at most
// one live assignment per (user, application) atomically.
type AssignmentRepository interface {
	// InsertActive deactivates expired rows for the pair and inserts a. It
	// fails with a conflict error if an unexpired active row already exists.
	InsertActive(ctx context.Context, a *UserRoleAssignment, now time.Time) error

	// ListActive returns rows with is_active set for userID, optionally limited
	// to applicationID, newest first. Expired rows are included.
	ListActive(ctx context.Context, userID, applicationID string) ([]*UserRoleAssignment, error)

	// DeactivateActive clears is_active on every active row for the pair and
	// reports how many of them were unexpired at now.
	DeactivateActive(ctx context.Context, userID, applicationID string, now time.Time) (int, error)

	// ReplaceActive deactivates the pair's active rows and inserts a in one
	// atomic step. It fails with a not-found error, changing nothing, if no
	// unexpired active row existed.
	ReplaceActive(ctx context.Context, a *UserRoleAssignment, now time.Time) error
}

// Repository is the full persistence contract of the authorization core
type Repository interface {
	RoleRepository
	AssignmentRepository
}

// sortNewestFirst orders assignments by AssignedAt DESC, ID DESC
func sortNewestFirst(assignments []*UserRoleAssignment) {
	sort.SliceStable(assignments, func(i, j int) bool {
		a, b := assignments[i], assignments[j]
		if !a.AssignedAt.Equal(b.AssignedAt) {
			return a.AssignedAt.After(b.AssignedAt)
		}
		return a.ID > b.ID
	})
}

// sortRoles orders roles by CreatedAt ASC, ID ASC
func sortRoles(roles []*RoleDefinition) {
	sort.SliceStable(roles, func(i, j int) bool {
		a, b := roles[i], roles[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
