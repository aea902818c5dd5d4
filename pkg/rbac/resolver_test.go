package rbac

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDirectAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.addUser(t, false)
	project := env.addProject(t)
	env.assign(t, user, RoleEditor, ScopeProject, ptr(project))

	resolver := NewResolver(env.store, env.catalog)
	role, err := resolver.Resolve(ctx, user, ScopeProject, ptr(project))
	require.NoError(t, err)
	require.NotNil(t, role)
	assert.Equal(t, RoleEditor, role.Name)
}

func TestResolveFlowInheritsFromProject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.addUser(t, false)
	project := env.addProject(t)
	flow := env.addFlow(t, ptr(project))
	env.assign(t, user, RoleViewer, ScopeProject, ptr(project))

	resolver := NewResolver(env.store, env.catalog)
	role, err := resolver.Resolve(ctx, user, ScopeFlow, ptr(flow))
	require.NoError(t, err)
	require.NotNil(t, role)
	assert.Equal(t, RoleViewer, role.Name)
}

func TestResolveDirectFlowAssignmentWinsOverInherited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.addUser(t, false)
	project := env.addProject(t)
	flow := env.addFlow(t, ptr(project))
	env.assign(t, user, RoleOwner, ScopeProject, ptr(project))
	env.assign(t, user, RoleViewer, ScopeFlow, ptr(flow))

	resolver := NewResolver(env.store, env.catalog)
	role, err := resolver.Resolve(ctx, user, ScopeFlow, ptr(flow))
	require.NoError(t, err)
	require.NotNil(t, role)
	assert.Equal(t, RoleViewer, role.Name, "direct flow assignment must win over the inherited project role")
}

func TestResolveOrphanFlowHasNoInheritance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.addUser(t, false)
	project := env.addProject(t)
	orphan := env.addFlow(t, nil)
	env.assign(t, user, RoleOwner, ScopeProject, ptr(project))

	resolver := NewResolver(env.store, env.catalog)
	role, err := resolver.Resolve(ctx, user, ScopeFlow, ptr(orphan))
	require.NoError(t, err)
	assert.Nil(t, role)
}

// A flow id the catalog has never seen resolves to no role, exactly like a
// parentless flow; resolution must not disclose whether the flow exists.
func TestResolveUnknownFlowYieldsNoRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.addUser(t, false)
	project := env.addProject(t)
	env.assign(t, user, RoleOwner, ScopeProject, ptr(project))

	resolver := NewResolver(env.store, env.catalog)
	role, err := resolver.Resolve(ctx, user, ScopeFlow, ptr(uuid.New()))
	require.NoError(t, err)
	assert.Nil(t, role)
}

func TestResolveProjectDoesNotInherit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A global assignment does not make the user's project resolution
	// succeed; Global is a bypass checked by the checker, not an ancestor
	// scope.
	user := env.addUser(t, false)
	project := env.addProject(t)
	env.assign(t, user, RoleViewer, ScopeGlobal, nil)

	resolver := NewResolver(env.store, env.catalog)
	role, err := resolver.Resolve(ctx, user, ScopeProject, ptr(project))
	require.NoError(t, err)
	assert.Nil(t, role)
}

func TestResolveNoAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.addUser(t, false)
	project := env.addProject(t)

	resolver := NewResolver(env.store, env.catalog)
	role, err := resolver.Resolve(ctx, user, ScopeProject, ptr(project))
	require.NoError(t, err)
	assert.Nil(t, role)
}

func TestResolveValidatesScopeShape(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, false)
	resolver := NewResolver(env.store, env.catalog)

	_, err := resolver.Resolve(ctx, user, ScopeGlobal, ptr(uuid.New()))
	var invalidScope *InvalidScopeError
	require.ErrorAs(t, err, &invalidScope)

	_, err = resolver.Resolve(ctx, user, ScopeFlow, nil)
	require.ErrorAs(t, err, &invalidScope)
}
