package rbac

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memUserDirectory is a UserDirectory backed by a map.
type memUserDirectory struct {
	users map[uuid.UUID]User
}

func newMemUserDirectory() *memUserDirectory {
	return &memUserDirectory{users: make(map[uuid.UUID]User)}
}

func (d *memUserDirectory) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	if u, ok := d.users[id]; ok {
		return &u, nil
	}
	return nil, &UserNotFoundError{ID: id}
}

// memCatalog is a ResourceCatalog backed by maps. flows maps a flow id to its
// parent project id, nil for flows outside any project.
type memCatalog struct {
	projects map[uuid.UUID]struct{}
	flows    map[uuid.UUID]*uuid.UUID
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		projects: make(map[uuid.UUID]struct{}),
		flows:    make(map[uuid.UUID]*uuid.UUID),
	}
}

func (c *memCatalog) ProjectExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := c.projects[id]
	return ok, nil
}

func (c *memCatalog) FlowExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok := c.flows[id]
	return ok, nil
}

func (c *memCatalog) FlowParentProjectID(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
	parent, ok := c.flows[id]
	if !ok {
		return nil, &ResourceNotFoundError{Kind: ScopeFlow, ID: id}
	}
	return parent, nil
}

func (c *memCatalog) FlowParentProjectIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	parents := make(map[uuid.UUID]uuid.UUID, len(ids))
	for _, id := range ids {
		if parent, ok := c.flows[id]; ok && parent != nil {
			parents[id] = *parent
		}
	}
	return parents, nil
}

// testEnv wires a seeded MemStore with map-backed collaborators.
type testEnv struct {
	store   *MemStore
	users   *memUserDirectory
	catalog *memCatalog
	checker *Checker
	manager *Manager
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()

	store := NewMemStore()
	require.NoError(t, SeedDefaults(context.Background(), store))

	users := newMemUserDirectory()
	catalog := newMemCatalog()
	return &testEnv{
		store:   store,
		users:   users,
		catalog: catalog,
		checker: NewChecker(store, users, catalog),
		manager: NewManager(store, users, catalog),
	}
}

func (e *testEnv) addUser(t testing.TB, superuser bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	e.users.users[id] = User{ID: id, IsSuperuser: superuser}
	return id
}

func (e *testEnv) addProject(t testing.TB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	e.catalog.projects[id] = struct{}{}
	return id
}

func (e *testEnv) addFlow(t testing.TB, parent *uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	e.catalog.flows[id] = parent
	return id
}

// assign creates an assignment directly through the store, bypassing the
// manager's validation, for tests that need a fixture rather than the
// mutation path under test.
func (e *testEnv) assign(t testing.TB, userID uuid.UUID, roleName string, scope ScopeType, scopeID *uuid.UUID) *Assignment {
	t.Helper()

	role, err := e.store.GetRoleByName(context.Background(), roleName)
	require.NoError(t, err)
	require.NotNil(t, role, "role %s not seeded", roleName)

	a := &Assignment{
		UserID:    userID,
		RoleID:    role.ID,
		ScopeType: scope,
		ScopeID:   scopeID,
	}
	require.NoError(t, e.store.CreateAssignment(context.Background(), a))
	return a
}

func ptr(id uuid.UUID) *uuid.UUID {
	return &id
}
