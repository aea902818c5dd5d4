package rbac

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/floworks/flowgate/pkg/audit"
)

// Manager owns the lifecycle of user-role assignments: creation with the
// full validation ladder, role swaps, removal, and the cascade hook invoked
// by resource-deletion workflows.
//
// Audit logging is an observer invoked after a successful mutation; a sink
// failure never rolls back the write.
type Manager struct {
	store   Store
	users   UserDirectory
	catalog ResourceCatalog
	audit   audit.Logger
	cache   Cache
	metrics *Metrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAuditLogger sets the audit sink. The default discards events.
func WithAuditLogger(l audit.Logger) ManagerOption {
	return func(m *Manager) { m.audit = l }
}

// WithManagerCache wires the decision cache so mutations invalidate the
// affected user's cached decisions.
func WithManagerCache(c Cache) ManagerOption {
	return func(m *Manager) { m.cache = c }
}

// WithManagerMetrics injects engine metrics.
func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates an assignment manager.
func NewManager(store Store, users UserDirectory, catalog ResourceCatalog, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		users:   users,
		catalog: catalog,
		audit:   audit.NopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithTx returns the manager bound to a transactional store, so an
// assignment can commit atomically with the write that created its resource
// (a new flow and its owner assignment either both land or neither does).
func (m *Manager) WithTx(ctx context.Context, fn func(*Manager) error) error {
	return m.store.WithTx(ctx, func(txStore Store) error {
		tm := *m
		tm.store = txStore
		return fn(&tm)
	})
}

// AssignRole creates an assignment binding the user to the named role at the
// scope instance. createdBy is nil for system-generated assignments.
//
// Validation order: user exists, role exists, scope shape and resource
// existence, then uniqueness. A race between two identical AssignRole calls
// is settled by the store's unique constraint; the loser receives
// *DuplicateAssignmentError.
func (m *Manager) AssignRole(ctx context.Context, userID uuid.UUID, roleName string, scope ScopeType, scopeID *uuid.UUID, createdBy *uuid.UUID, immutable bool) (a *Assignment, err error) {
	defer func() { m.metrics.observeMutation("assign", err) }()

	if _, err = m.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	role, err := m.store.GetRoleByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, &RoleNotFoundError{Name: roleName}
	}

	if err = m.validateScopeTarget(ctx, scope, scopeID); err != nil {
		return nil, err
	}

	assignment := &Assignment{
		UserID:      userID,
		RoleID:      role.ID,
		ScopeType:   scope,
		ScopeID:     scopeID,
		IsImmutable: immutable,
		CreatedBy:   createdBy,
	}
	if err = m.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}

	m.invalidate(ctx, userID)
	m.logEvent(ctx, &audit.Event{
		EventType:     audit.EventTypeRoleGrant,
		Status:        audit.StatusSuccess,
		ActorID:       createdBy,
		SubjectUserID: &userID,
		Role:          role.Name,
		ScopeType:     string(scope),
		ScopeID:       scopeIDString(scopeID),
		Immutable:     immutable,
	})
	return assignment, nil
}

// RemoveRole deletes an assignment. Immutable assignments are protected:
// the call fails with *ImmutableAssignmentError and the row is untouched.
func (m *Manager) RemoveRole(ctx context.Context, assignmentID int64, actor *uuid.UUID) (err error) {
	defer func() { m.metrics.observeMutation("remove", err) }()

	assignment, err := m.store.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return err
	}
	if assignment == nil {
		return &AssignmentNotFoundError{ID: assignmentID}
	}
	if assignment.IsImmutable {
		return &ImmutableAssignmentError{ID: assignmentID, Operation: OperationRemove}
	}

	if err = m.store.DeleteAssignment(ctx, assignmentID); err != nil {
		return err
	}

	m.invalidate(ctx, assignment.UserID)
	m.logEvent(ctx, &audit.Event{
		EventType:     audit.EventTypeRoleRevoke,
		Status:        audit.StatusSuccess,
		ActorID:       actor,
		SubjectUserID: &assignment.UserID,
		ScopeType:     string(assignment.ScopeType),
		ScopeID:       scopeIDString(assignment.ScopeID),
		Metadata:      map[string]interface{}{"role_id": assignment.RoleID},
	})
	return nil
}

// UpdateRole swaps the assignment's role in place, keeping the scope. The
// same immutability protection as RemoveRole applies, with operation
// "modify".
func (m *Manager) UpdateRole(ctx context.Context, assignmentID int64, newRoleName string, actor *uuid.UUID) (a *Assignment, err error) {
	defer func() { m.metrics.observeMutation("update", err) }()

	assignment, err := m.store.GetAssignmentByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, &AssignmentNotFoundError{ID: assignmentID}
	}
	if assignment.IsImmutable {
		return nil, &ImmutableAssignmentError{ID: assignmentID, Operation: OperationModify}
	}

	role, err := m.store.GetRoleByName(ctx, newRoleName)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, &RoleNotFoundError{Name: newRoleName}
	}

	oldRoleID := assignment.RoleID
	if err = m.store.UpdateAssignmentRole(ctx, assignmentID, role.ID); err != nil {
		return nil, err
	}
	assignment.RoleID = role.ID

	m.invalidate(ctx, assignment.UserID)
	m.logEvent(ctx, &audit.Event{
		EventType:     audit.EventTypeRoleChange,
		Status:        audit.StatusSuccess,
		ActorID:       actor,
		SubjectUserID: &assignment.UserID,
		Role:          role.Name,
		ScopeType:     string(assignment.ScopeType),
		ScopeID:       scopeIDString(assignment.ScopeID),
		Metadata:      map[string]interface{}{"old_role_id": oldRoleID, "new_role_id": role.ID},
	})
	return assignment, nil
}

// ListUserAssignments returns the user's assignments, or every assignment
// when userID is nil.
func (m *Manager) ListUserAssignments(ctx context.Context, userID *uuid.UUID) ([]Assignment, error) {
	return m.store.ListAssignments(ctx, userID)
}

// GetUserPermissionsForScope resolves the user's effective role at the scope
// instance and returns the permissions it grants — the "what can I do here"
// read used by UI affordances. Bypassed principals (superusers, global
// admins) receive the full permission set for the scope kind.
func (m *Manager) GetUserPermissionsForScope(ctx context.Context, userID uuid.UUID, scope ScopeType, scopeID *uuid.UUID) ([]Permission, error) {
	if err := validateScopeShape(scope, scopeID); err != nil {
		return nil, err
	}

	user, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	bypass := user.IsSuperuser
	if !bypass {
		bypass, err = m.store.HasGlobalRole(ctx, userID, RoleAdmin)
		if err != nil {
			return nil, err
		}
	}
	if bypass {
		return m.allPermissionsForScope(ctx, scope)
	}

	resolver := NewResolver(m.store, m.catalog)
	role, err := resolver.Resolve(ctx, userID, scope, scopeID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, nil
	}

	perms, err := m.store.ListRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	scoped := perms[:0]
	for _, p := range perms {
		if p.Scope == scope {
			scoped = append(scoped, p)
		}
	}
	return scoped, nil
}

// CascadeDeleteScope removes every assignment scoped to a deleted resource.
// Resource-deletion workflows call this inside the same transaction that
// removes the resource.
func (m *Manager) CascadeDeleteScope(ctx context.Context, scope ScopeType, scopeID uuid.UUID) error {
	if scope != ScopeProject && scope != ScopeFlow {
		return &InvalidScopeError{Reason: fmt.Sprintf("cascade delete applies to project/flow scopes, got %q", scope)}
	}
	removed, err := m.store.DeleteAssignmentsForScope(ctx, scope, scopeID)
	if err != nil {
		return err
	}
	if removed > 0 {
		m.logEvent(ctx, &audit.Event{
			EventType: audit.EventTypeCascadeDelete,
			Status:    audit.StatusSuccess,
			ScopeType: string(scope),
			ScopeID:   scopeID.String(),
			Metadata:  map[string]interface{}{"removed": removed},
		})
	}
	return nil
}

func (m *Manager) validateScopeTarget(ctx context.Context, scope ScopeType, scopeID *uuid.UUID) error {
	if err := validateScopeShape(scope, scopeID); err != nil {
		return err
	}
	if scope == ScopeGlobal {
		return nil
	}

	var exists bool
	var err error
	switch scope {
	case ScopeProject:
		exists, err = m.catalog.ProjectExists(ctx, *scopeID)
	case ScopeFlow:
		exists, err = m.catalog.FlowExists(ctx, *scopeID)
	}
	if err != nil {
		return err
	}
	if !exists {
		return &ResourceNotFoundError{Kind: scope, ID: *scopeID}
	}
	return nil
}

func (m *Manager) allPermissionsForScope(ctx context.Context, scope ScopeType) ([]Permission, error) {
	roles, err := m.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []Permission
	for _, role := range roles {
		perms, err := m.store.ListRolePermissions(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			if p.Scope != scope {
				continue
			}
			if _, dup := seen[p.Name]; dup {
				continue
			}
			seen[p.Name] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Manager) invalidate(ctx context.Context, userID uuid.UUID) {
	if m.cache != nil {
		m.cache.InvalidateUser(ctx, userID)
	}
}

func (m *Manager) logEvent(ctx context.Context, event *audit.Event) {
	_ = m.audit.Log(ctx, event)
}

func scopeIDString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
