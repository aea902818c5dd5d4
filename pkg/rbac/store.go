package rbac

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence contract for the authorization engine. It exposes
// plain value-typed results so any backend — relational, in-memory test
// double, cache-backed — can implement it without leaking connection or
// session lifetime into the resolution logic.
//
// Lookup methods return (nil, nil) when the row does not exist; the business
// layers turn empty results into the typed errors callers see. The only
// store-native condition translated here is a uniqueness violation on
// assignment creation, which surfaces as *DuplicateAssignmentError.
type Store interface {
	// Roles and permissions are effectively static configuration, seeded at
	// startup and rarely mutated afterwards.
	CreateRole(ctx context.Context, role *Role) error
	GetRoleByID(ctx context.Context, id int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)

	CreatePermission(ctx context.Context, perm *Permission) error
	GetPermission(ctx context.Context, name string, scope ScopeType) (*Permission, error)
	AddRolePermission(ctx context.Context, roleID, permissionID int64) error
	ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error)

	// RoleHasPermission answers the single-check join: does the role carry a
	// permission with this (name, scope kind) pair.
	RoleHasPermission(ctx context.Context, roleID int64, name string, scope ScopeType) (bool, error)

	// Assignments.
	CreateAssignment(ctx context.Context, a *Assignment) error
	GetAssignmentByID(ctx context.Context, id int64) (*Assignment, error)
	GetAssignment(ctx context.Context, userID uuid.UUID, scope ScopeType, scopeID *uuid.UUID) (*Assignment, error)
	ListAssignments(ctx context.Context, userID *uuid.UUID) ([]Assignment, error)
	UpdateAssignmentRole(ctx context.Context, id, roleID int64) error
	DeleteAssignment(ctx context.Context, id int64) error

	// DeleteAssignmentsForScope removes every assignment scoped to a concrete
	// resource; resource-deletion workflows call this so no orphaned grants
	// survive the resource. Returns the number of rows removed.
	DeleteAssignmentsForScope(ctx context.Context, scope ScopeType, scopeID uuid.UUID) (int64, error)

	// HasGlobalRole answers the Global-Admin bypass in one query.
	HasGlobalRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error)

	// Aggregate queries for the batch checker. Each is a single round trip
	// regardless of input size.
	ListAssignmentsForScopes(ctx context.Context, userID uuid.UUID, refs []ScopeRef) ([]Assignment, error)
	GrantsForRoles(ctx context.Context, roleIDs []int64) ([]Grant, error)

	// WithTx runs fn against a transaction-bound Store. Writes that span
	// multiple entities (resource creation plus its owner assignment) commit
	// or roll back together.
	WithTx(ctx context.Context, fn func(Store) error) error
}
