// Package rbac provides role-based access control for the Floworks platform.
//
// # Overview
//
// This package implements the authorization engine guarding projects and
// flows. It answers "may user U perform action A on scope S" and manages the
// role assignments those answers derive from. Authentication is out of
// scope: callers arrive already identified, and the engine only decides what
// they may do.
//
// The engine consists of five components:
//
//  1. Store: persistence for roles, permissions and assignments
//     (SQLStore over PostgreSQL, MemStore for tests)
//  2. Resolver: maps (user, scope instance) to an effective role
//  3. Checker: single permission decisions, including the batch path
//  4. Manager: assignment lifecycle (grant, change, revoke, cascade)
//  5. Error taxonomy: typed errors callers branch on with errors.As
//
// # Scopes
//
// Authorization statements apply at three scope kinds:
//
//	ScopeGlobal   - the whole platform; assignments carry no scope id
//	ScopeProject  - one project
//	ScopeFlow     - one flow
//
// Flows inherit access from their containing project: a user with a role on
// a project holds that role on every flow inside it, unless a direct flow
// assignment overrides it. The inheritance is a single hop; nothing chains
// beyond flow to project.
//
// # Decision order
//
// Checker.CanAccess evaluates, in order:
//
//  1. Superuser flag on the user record: always allowed
//  2. Global Admin role assignment: always allowed
//  3. Direct assignment at the requested scope instance
//  4. For flows, the assignment on the parent project
//
// Absence of any assignment denies. Deny is the zero value; nothing in the
// engine grants by default.
//
// # Roles
//
// Four system roles are seeded at startup:
//
//	Admin   - every action at every scope kind; global Admin bypasses
//	          resolution entirely
//	Owner   - Create/Read/Update/Delete on a project or flow
//	Editor  - Read/Update on a project or flow
//	Viewer  - Read on a project or flow
//
// Seeding is idempotent and never overwrites operator changes to existing
// roles.
//
// # Usage
//
//	store := rbac.NewSQLStore(db)
//	checker := rbac.NewChecker(store, users, catalog, rbac.WithCache(cache))
//
//	allowed, err := checker.CanAccess(ctx, userID, rbac.ActionRead, rbac.ScopeFlow, &flowID)
//
// Batch checks answer many questions about one user with a fixed number of
// queries regardless of batch size:
//
//	results, err := checker.BatchCanAccess(ctx, userID, checks)
//
// Assignment management goes through the Manager, which validates the user,
// role and scope target before writing, and emits audit events after:
//
//	manager := rbac.NewManager(store, users, catalog, rbac.WithAuditLogger(sink))
//	assignment, err := manager.AssignRole(ctx, userID, rbac.RoleEditor, rbac.ScopeProject, &projectID, &actorID, false)
//
// Assignments created with immutable=true are protected from modification
// and removal through the API; resource deletion still cascades over them.
package rbac
