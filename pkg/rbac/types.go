package rbac

import (
	"time"
)

// RoleType describes where an actor sits in the provider/customer hierarchy
type RoleType string

const (
	// Provider-side roles
	RoleTypePlatformAdmin   RoleType = "PLATFORM_ADMIN"
	RoleTypePlatformManager RoleType = "PLATFORM_MANAGER"

	// Customer-side roles
	RoleTypeCustomerAdmin     RoleType = "CUSTOMER_ADMIN"
	RoleTypeCustomerManager   RoleType = "CUSTOMER_MANAGER"
	RoleTypeCustomerDeveloper RoleType = "CUSTOMER_DEVELOPER"
)

// RoleTypes returns every role type in hierarchy order
func RoleTypes() []RoleType {
	return []RoleType{
		RoleTypePlatformAdmin,
		RoleTypePlatformManager,
		RoleTypeCustomerAdmin,
		RoleTypeCustomerManager,
		RoleTypeCustomerDeveloper,
	}
}

// Valid reports whether t is one of the known role types
func (t RoleType) Valid() bool {
	for _, known := range RoleTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// IsProvider reports whether t is a provider-side role type
func (t RoleType) IsProvider() bool {
	return t == RoleTypePlatformAdmin || t == RoleTypePlatformManager
}

// Tier ranks the role type in the hierarchy. Customer managers and
// developers share the lowest tier. Unknown types rank 0.
func (t RoleType) Tier() int {
	switch t {
	case RoleTypePlatformAdmin:
		return 4
	case RoleTypePlatformManager:
		return 3
	case RoleTypeCustomerAdmin:
		return 2
	case RoleTypeCustomerManager, RoleTypeCustomerDeveloper:
		return 1
	}
	return 0
}

// ParseRoleType validates a role type string
func ParseRoleType(s string) (RoleType, error) {
	t := RoleType(s)
	if !t.Valid() {
		return "", Validationf("invalid role type %q", s)
	}
	return t, nil
}

// PermissionSet maps permission names to the access level granted on them
type PermissionSet map[string]AccessLevel

// Clone returns a shallow copy of the set
func (ps PermissionSet) Clone() PermissionSet {
	out := make(PermissionSet, len(ps))
	for name, level := range ps {
		out[name] = level
	}
	return out
}

// Overlay returns a new set with overrides shallow-merged on top of ps.
// Override values win.
func (ps PermissionSet) Overlay(overrides PermissionSet) PermissionSet {
	out := ps.Clone()
	for name, level := range overrides {
		out[name] = level
	}
	return out
}

// Allows reports whether the set grants at least the required level on name
func (ps PermissionSet) Allows(name string, required AccessLevel) bool {
	granted, ok := ps[name]
	if !ok {
		return false
	}
	return granted.AtLeast(required)
}

// RoleDefinition is a named role with its permission map.
// Built-in and custom roles share this one record type.
type RoleDefinition struct {
	ID               string                 `json:"id" yaml:"id,omitempty"`
	RoleType         RoleType               `json:"role_type" yaml:"role_type"`
	Name             string                 `json:"name" yaml:"name"`
	Description      string                 `json:"description" yaml:"description"`
	Responsibilities []string               `json:"responsibilities" yaml:"responsibilities"`
	Permissions      PermissionSet          `json:"permissions" yaml:"permissions"`
	Restrictions     map[string]interface{} `json:"restrictions,omitempty" yaml:"restrictions,omitempty"`
	IsBuiltIn        bool                   `json:"is_built_in" yaml:"-"`
	IsActive         bool                   `json:"is_active" yaml:"-"`
	CreatedAt        time.Time              `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time              `json:"updated_at" yaml:"-"`
}

// Validate checks the fields required to persist a role
func (r *RoleDefinition) Validate() error {
	if r.Name == "" {
		return Validationf("role name is required")
	}
	if !r.RoleType.Valid() {
		return Validationf("invalid role type %q", r.RoleType)
	}
	for name, level := range r.Permissions {
		if name == "" {
			return Validationf("permission name must not be empty")
		}
		if !level.Valid() {
			return Validationf("invalid access level %q for permission %s", level, name)
		}
	}
	return nil
}

// RoleUpdate carries the fields of a partial role update. Nil fields are left untouched.
type RoleUpdate struct {
	Name             *string                `json:"name,omitempty"`
	Description      *string                `json:"description,omitempty"`
	Responsibilities []string               `json:"responsibilities,omitempty"`
	Permissions      PermissionSet          `json:"permissions,omitempty"`
	Restrictions     map[string]interface{} `json:"restrictions,omitempty"`
}

// apply merges the update into role
func (u RoleUpdate) apply(role *RoleDefinition) {
	if u.Name != nil {
		role.Name = *u.Name
	}
	if u.Description != nil {
		role.Description = *u.Description
	}
	if u.Responsibilities != nil {
		role.Responsibilities = append([]string(nil), u.Responsibilities...)
	}
	if u.Permissions != nil {
		role.Permissions = u.Permissions.Clone()
	}
	if u.Restrictions != nil {
		role.Restrictions = u.Restrictions
	}
}

// UserRoleAssignment binds a user to a role within one application
type UserRoleAssignment struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	RoleID            string        `json:"role_id"`
	ApplicationID     string        `json:"application_id"`
	WorkspaceID       *string       `json:"workspace_id,omitempty"`
	IsActive          bool          `json:"is_active"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	CustomPermissions PermissionSet `json:"custom_permissions,omitempty"`
	AssignedAt        time.Time     `json:"assigned_at"`
	AssignedBy        *string       `json:"assigned_by,omitempty"`
}

// ActiveAt reports whether the assignment is active and unexpired at now
func (a *UserRoleAssignment) ActiveAt(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// ResolvedAssignment is an assignment together with its role definition
type ResolvedAssignment struct {
	UserRoleAssignment
	Role *RoleDefinition `json:"role"`
}

// AssignOptions holds the optional fields of an assignment
type AssignOptions struct {
	WorkspaceID       *string
	ExpiresAt         *time.Time
	CustomPermissions PermissionSet
	AssignedBy        *string
}

// AssignRequest is the full input of AssignUserRole
type AssignRequest struct {
	UserID            string        `json:"user_id"`
	RoleID            string        `json:"role_id"`
	ApplicationID     string        `json:"application_id"`
	WorkspaceID       *string       `json:"workspace_id,omitempty"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	CustomPermissions PermissionSet `json:"custom_permissions,omitempty"`
	AssignedBy        *string       `json:"assigned_by,omitempty"`
}

// Options extracts the optional fields of the request
func (r AssignRequest) Options() AssignOptions {
	return AssignOptions{
		WorkspaceID:       r.WorkspaceID,
		ExpiresAt:         r.ExpiresAt,
		CustomPermissions: r.CustomPermissions,
		AssignedBy:        r.AssignedBy,
	}
}

// PermissionCheck is a single authorization question
type PermissionCheck struct {
	UserID        string      `json:"user_id"`
	ApplicationID string      `json:"application_id"`
	Permission    string      `json:"permission"`
	Level         AccessLevel `json:"level"`
}

// PermissionCheckResult is the answer to a PermissionCheck
type PermissionCheckResult struct {
	Allowed   bool        `json:"allowed"`
	Granted   AccessLevel `json:"granted,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}
