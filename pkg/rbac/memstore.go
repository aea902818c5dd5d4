package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used as a test double and as a reference
// implementation of the contract. Every method counts as one query so tests
// can assert the batch checker's fixed round-trip plan.
type MemStore struct {
	mu          sync.RWMutex
	roles       map[int64]Role
	permissions map[int64]Permission
	rolePerms   map[int64][]int64 // role id -> permission ids
	assignments map[int64]Assignment
	nextRole    int64
	nextPerm    int64
	nextAssign  int64
	queries     int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		roles:       make(map[int64]Role),
		permissions: make(map[int64]Permission),
		rolePerms:   make(map[int64][]int64),
		assignments: make(map[int64]Assignment),
	}
}

// QueryCount returns the number of store operations performed so far.
func (m *MemStore) QueryCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queries
}

// ResetQueryCount zeroes the operation counter.
func (m *MemStore) ResetQueryCount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = 0
}

func (m *MemStore) count() {
	m.queries++
}

// WithTx implements Store. The in-memory store snapshots its state and
// restores it when fn fails, mirroring the relational rollback semantics the
// manager relies on.
func (m *MemStore) WithTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restoreLocked(snapshot)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	roles       map[int64]Role
	permissions map[int64]Permission
	rolePerms   map[int64][]int64
	assignments map[int64]Assignment
	nextRole    int64
	nextPerm    int64
	nextAssign  int64
}

func (m *MemStore) snapshotLocked() memSnapshot {
	s := memSnapshot{
		roles:       make(map[int64]Role, len(m.roles)),
		permissions: make(map[int64]Permission, len(m.permissions)),
		rolePerms:   make(map[int64][]int64, len(m.rolePerms)),
		assignments: make(map[int64]Assignment, len(m.assignments)),
		nextRole:    m.nextRole,
		nextPerm:    m.nextPerm,
		nextAssign:  m.nextAssign,
	}
	for k, v := range m.roles {
		s.roles[k] = v
	}
	for k, v := range m.permissions {
		s.permissions[k] = v
	}
	for k, v := range m.rolePerms {
		ids := make([]int64, len(v))
		copy(ids, v)
		s.rolePerms[k] = ids
	}
	for k, v := range m.assignments {
		s.assignments[k] = v
	}
	return s
}

func (m *MemStore) restoreLocked(s memSnapshot) {
	m.roles = s.roles
	m.permissions = s.permissions
	m.rolePerms = s.rolePerms
	m.assignments = s.assignments
	m.nextRole = s.nextRole
	m.nextPerm = s.nextPerm
	m.nextAssign = s.nextAssign
}

// CreateRole implements Store.
func (m *MemStore) CreateRole(ctx context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	m.nextRole++
	role.ID = m.nextRole
	role.CreatedAt = time.Now().UTC()
	m.roles[role.ID] = *role
	return nil
}

// GetRoleByID implements Store.
func (m *MemStore) GetRoleByID(ctx context.Context, id int64) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	if r, ok := m.roles[id]; ok {
		role := r
		return &role, nil
	}
	return nil, nil
}

// GetRoleByName implements Store.
func (m *MemStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	for _, r := range m.roles {
		if r.Name == name {
			role := r
			return &role, nil
		}
	}
	return nil, nil
}

// ListRoles implements Store.
func (m *MemStore) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	roles := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

// CreatePermission implements Store.
func (m *MemStore) CreatePermission(ctx context.Context, perm *Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	m.nextPerm++
	perm.ID = m.nextPerm
	m.permissions[perm.ID] = *perm
	return nil
}

// GetPermission implements Store.
func (m *MemStore) GetPermission(ctx context.Context, name string, scope ScopeType) (*Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	for _, p := range m.permissions {
		if p.Name == name && p.Scope == scope {
			perm := p
			return &perm, nil
		}
	}
	return nil, nil
}

// AddRolePermission implements Store.
func (m *MemStore) AddRolePermission(ctx context.Context, roleID, permissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	m.rolePerms[roleID] = append(m.rolePerms[roleID], permissionID)
	return nil
}

// ListRolePermissions implements Store.
func (m *MemStore) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	var perms []Permission
	for _, pid := range m.rolePerms[roleID] {
		if p, ok := m.permissions[pid]; ok {
			perms = append(perms, p)
		}
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Scope != perms[j].Scope {
			return perms[i].Scope < perms[j].Scope
		}
		return perms[i].Name < perms[j].Name
	})
	return perms, nil
}

// RoleHasPermission implements Store.
func (m *MemStore) RoleHasPermission(ctx context.Context, roleID int64, name string, scope ScopeType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	for _, pid := range m.rolePerms[roleID] {
		p, ok := m.permissions[pid]
		if ok && p.Name == name && p.Scope == scope {
			return true, nil
		}
	}
	return false, nil
}

// CreateAssignment implements Store.
func (m *MemStore) CreateAssignment(ctx context.Context, a *Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	for _, existing := range m.assignments {
		if existing.UserID == a.UserID &&
			existing.RoleID == a.RoleID &&
			existing.ScopeType == a.ScopeType &&
			sameScopeID(existing.ScopeID, a.ScopeID) {
			return &DuplicateAssignmentError{
				UserID:    a.UserID,
				RoleID:    a.RoleID,
				ScopeType: a.ScopeType,
				ScopeID:   a.ScopeID,
			}
		}
	}
	m.nextAssign++
	a.ID = m.nextAssign
	a.CreatedAt = time.Now().UTC()
	m.assignments[a.ID] = *a
	return nil
}

// GetAssignmentByID implements Store.
func (m *MemStore) GetAssignmentByID(ctx context.Context, id int64) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	if a, ok := m.assignments[id]; ok {
		out := a
		return &out, nil
	}
	return nil, nil
}

// GetAssignment implements Store.
func (m *MemStore) GetAssignment(ctx context.Context, userID uuid.UUID, scope ScopeType, scopeID *uuid.UUID) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	for _, a := range m.assignments {
		if a.UserID == userID && a.ScopeType == scope && sameScopeID(a.ScopeID, scopeID) {
			out := a
			return &out, nil
		}
	}
	return nil, nil
}

// ListAssignments implements Store.
func (m *MemStore) ListAssignments(ctx context.Context, userID *uuid.UUID) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	var out []Assignment
	for _, a := range m.assignments {
		if userID == nil || a.UserID == *userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateAssignmentRole implements Store.
func (m *MemStore) UpdateAssignmentRole(ctx context.Context, id, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	if a, ok := m.assignments[id]; ok {
		a.RoleID = roleID
		m.assignments[id] = a
	}
	return nil
}

// DeleteAssignment implements Store.
func (m *MemStore) DeleteAssignment(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	delete(m.assignments, id)
	return nil
}

// DeleteAssignmentsForScope implements Store.
func (m *MemStore) DeleteAssignmentsForScope(ctx context.Context, scope ScopeType, scopeID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	var removed int64
	for id, a := range m.assignments {
		if a.ScopeType == scope && a.ScopeID != nil && *a.ScopeID == scopeID {
			delete(m.assignments, id)
			removed++
		}
	}
	return removed, nil
}

// HasGlobalRole implements Store.
func (m *MemStore) HasGlobalRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	for _, a := range m.assignments {
		if a.UserID != userID || a.ScopeType != ScopeGlobal {
			continue
		}
		if r, ok := m.roles[a.RoleID]; ok && r.Name == roleName {
			return true, nil
		}
	}
	return false, nil
}

// ListAssignmentsForScopes implements Store.
func (m *MemStore) ListAssignmentsForScopes(ctx context.Context, userID uuid.UUID, refs []ScopeRef) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	wanted := make(map[ScopeRef]struct{}, len(refs))
	for _, ref := range refs {
		wanted[ref] = struct{}{}
	}
	var out []Assignment
	for _, a := range m.assignments {
		if a.UserID != userID {
			continue
		}
		if _, ok := wanted[a.Ref()]; ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GrantsForRoles implements Store.
func (m *MemStore) GrantsForRoles(ctx context.Context, roleIDs []int64) ([]Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count()
	var grants []Grant
	for _, roleID := range roleIDs {
		for _, pid := range m.rolePerms[roleID] {
			if p, ok := m.permissions[pid]; ok {
				grants = append(grants, Grant{RoleID: roleID, Permission: p.Name, Scope: p.Scope})
			}
		}
	}
	return grants, nil
}

func sameScopeID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
