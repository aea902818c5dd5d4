package rbac

import (
	"context"
	"fmt"
)

// systemRole describes one seeded role and the (action, scope) pairs it
// grants.
type systemRole struct {
	Name        string
	Description string
	Actions     []string
	Scopes      []ScopeType
}

var systemRoles = []systemRole{
	{
		Name:        RoleAdmin,
		Description: "Full administrative access; a global Admin assignment bypasses resolution entirely",
		Actions:     []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete},
		Scopes:      []ScopeType{ScopeGlobal, ScopeProject, ScopeFlow},
	},
	{
		Name:        RoleOwner,
		Description: "Full control of a project or flow",
		Actions:     []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete},
		Scopes:      []ScopeType{ScopeProject, ScopeFlow},
	},
	{
		Name:        RoleEditor,
		Description: "Read and modify a project or flow",
		Actions:     []string{ActionRead, ActionUpdate},
		Scopes:      []ScopeType{ScopeProject, ScopeFlow},
	},
	{
		Name:        RoleViewer,
		Description: "Read-only access to a project or flow",
		Actions:     []string{ActionRead},
		Scopes:      []ScopeType{ScopeProject, ScopeFlow},
	},
}

// SeedDefaults creates the permission catalog and the system roles if they
// do not already exist. It is idempotent and safe to run on every startup;
// roles that already exist are left untouched, including any operator
// adjustments to their grants.
func SeedDefaults(ctx context.Context, store Store) error {
	permIDs := make(map[grantKey]int64)
	for _, scope := range []ScopeType{ScopeGlobal, ScopeProject, ScopeFlow} {
		for _, action := range []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
			perm, err := store.GetPermission(ctx, action, scope)
			if err != nil {
				return fmt.Errorf("seed: lookup permission %s/%s: %w", action, scope, err)
			}
			if perm == nil {
				perm = &Permission{Name: action, Scope: scope}
				if err := store.CreatePermission(ctx, perm); err != nil {
					return fmt.Errorf("seed: create permission %s/%s: %w", action, scope, err)
				}
			}
			permIDs[grantKey{Permission: action, Scope: scope}] = perm.ID
		}
	}

	for _, sr := range systemRoles {
		existing, err := store.GetRoleByName(ctx, sr.Name)
		if err != nil {
			return fmt.Errorf("seed: lookup role %s: %w", sr.Name, err)
		}
		if existing != nil {
			continue
		}

		role := &Role{Name: sr.Name, Description: sr.Description, IsSystemRole: true}
		if err := store.CreateRole(ctx, role); err != nil {
			return fmt.Errorf("seed: create role %s: %w", sr.Name, err)
		}
		for _, scope := range sr.Scopes {
			for _, action := range sr.Actions {
				permID := permIDs[grantKey{Permission: action, Scope: scope}]
				if err := store.AddRolePermission(ctx, role.ID, permID); err != nil {
					return fmt.Errorf("seed: grant %s/%s to %s: %w", action, scope, sr.Name, err)
				}
			}
		}
	}
	return nil
}
