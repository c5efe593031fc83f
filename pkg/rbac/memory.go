package rbac

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Repository. A single mutex serializes every
// check-then-write, which gives the same guarantees as the SQL partial index.
type MemoryStore struct {
	mu          sync.RWMutex
	roles       map[string]*RoleDefinition
	assignments map[string]*UserRoleAssignment
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:       make(map[string]*RoleDefinition),
		assignments: make(map[string]*UserRoleAssignment),
	}
}

func (m *MemoryStore) InsertRole(ctx context.Context, role *RoleDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.roles[role.ID]; exists {
		return Conflictf("role %s conflicts with an existing role", role.Name)
	}
	if role.IsBuiltIn && role.IsActive {
		for _, existing := range m.roles {
			if existing.IsBuiltIn && existing.IsActive && existing.RoleType == role.RoleType {
				return Conflictf("role %s conflicts with an existing role", role.Name)
			}
		}
	}
	m.roles[role.ID] = copyRole(role)
	return nil
}

func (m *MemoryStore) GetRole(ctx context.Context, id string) (*RoleDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	role, ok := m.roles[id]
	if !ok {
		return nil, NotFoundf("role not found: %s", id)
	}
	return copyRole(role), nil
}

func (m *MemoryStore) ListRolesByType(ctx context.Context, roleType RoleType) ([]*RoleDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var roles []*RoleDefinition
	for _, role := range m.roles {
		if role.RoleType == roleType {
			roles = append(roles, copyRole(role))
		}
	}
	sortRoles(roles)
	return roles, nil
}

func (m *MemoryStore) ListRoles(ctx context.Context) ([]*RoleDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	roles := make([]*RoleDefinition, 0, len(m.roles))
	for _, role := range m.roles {
		roles = append(roles, copyRole(role))
	}
	sortRoles(roles)
	return roles, nil
}

func (m *MemoryStore) UpdateRole(ctx context.Context, role *RoleDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roles[role.ID]; !ok {
		return NotFoundf("role not found: %s", role.ID)
	}
	m.roles[role.ID] = copyRole(role)
	return nil
}

func (m *MemoryStore) InsertActive(ctx context.Context, a *UserRoleAssignment, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.activeFor(a.UserID, a.ApplicationID) {
		if existing.ActiveAt(now) {
			return Conflictf("user %s already has an active role in application %s", a.UserID, a.ApplicationID)
		}
		existing.IsActive = false
	}
	m.assignments[a.ID] = copyAssignment(a)
	return nil
}

func (m *MemoryStore) ListActive(ctx context.Context, userID, applicationID string) ([]*UserRoleAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*UserRoleAssignment
	for _, a := range m.assignments {
		if !a.IsActive || a.UserID != userID {
			continue
		}
		if applicationID != "" && a.ApplicationID != applicationID {
			continue
		}
		out = append(out, copyAssignment(a))
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) DeactivateActive(ctx context.Context, userID, applicationID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := 0
	for _, a := range m.activeFor(userID, applicationID) {
		if a.ActiveAt(now) {
			live++
		}
		a.IsActive = false
	}
	return live, nil
}

func (m *MemoryStore) ReplaceActive(ctx context.Context, a *UserRoleAssignment, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.activeFor(a.UserID, a.ApplicationID)
	live := 0
	for _, existing := range current {
		if existing.ActiveAt(now) {
			live++
		}
	}
	if live == 0 {
		return NotFoundf("no active role for user %s in application %s", a.UserID, a.ApplicationID)
	}
	for _, existing := range current {
		existing.IsActive = false
	}
	m.assignments[a.ID] = copyAssignment(a)
	return nil
}

// activeFor returns the stored (not copied) active rows for the pair; callers hold mu
func (m *MemoryStore) activeFor(userID, applicationID string) []*UserRoleAssignment {
	var out []*UserRoleAssignment
	for _, a := range m.assignments {
		if a.IsActive && a.UserID == userID && a.ApplicationID == applicationID {
			out = append(out, a)
		}
	}
	return out
}

func copyRole(role *RoleDefinition) *RoleDefinition {
	c := *role
	c.Permissions = role.Permissions.Clone()
	c.Responsibilities = append([]string(nil), role.Responsibilities...)
	if role.Restrictions != nil {
		c.Restrictions = make(map[string]interface{}, len(role.Restrictions))
		for k, v := range role.Restrictions {
			c.Restrictions[k] = v
		}
	}
	return &c
}

func copyAssignment(a *UserRoleAssignment) *UserRoleAssignment {
	c := *a
	if a.CustomPermissions != nil {
		c.CustomPermissions = a.CustomPermissions.Clone()
	}
	return &c
}
