package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// inheritanceHop is one edge of the scope hierarchy: requests at Scope with
// no direct assignment fall back to the scope instance returned by Parent.
// The hierarchy is a fixed, finite table rather than recursive code so the
// single-level Flow→Project assumption stays visible and auditable. Global
// is independent, not an ancestor of Project.
type inheritanceHop struct {
	Scope       ScopeType
	ParentScope ScopeType
	Parent      func(ctx context.Context, catalog ResourceCatalog, id uuid.UUID) (*uuid.UUID, error)
}

var inheritanceChain = []inheritanceHop{
	{
		Scope:       ScopeFlow,
		ParentScope: ScopeProject,
		Parent: func(ctx context.Context, catalog ResourceCatalog, id uuid.UUID) (*uuid.UUID, error) {
			return catalog.FlowParentProjectID(ctx, id)
		},
	},
	// Project and Global terminate resolution; they have no parent hop.
}

// Resolver computes the single effective role for a user at a scope
// instance, honoring the precedence rule (a direct assignment at the
// requested scope always wins) and Flow→Project inheritance.
type Resolver struct {
	store   Store
	catalog ResourceCatalog
}

// NewResolver creates a resolver over the given store and resource catalog.
func NewResolver(store Store, catalog ResourceCatalog) *Resolver {
	return &Resolver{store: store, catalog: catalog}
}

// Resolve returns the effective role, or nil when no assignment governs the
// scope. At most two lookups are performed: the direct scope and, for flows
// without a direct assignment, the parent project.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, scope ScopeType, scopeID *uuid.UUID) (*Role, error) {
	if err := validateScopeShape(scope, scopeID); err != nil {
		return nil, err
	}

	curScope, curID := scope, scopeID
	for {
		assignment, err := r.store.GetAssignment(ctx, userID, curScope, curID)
		if err != nil {
			return nil, err
		}
		if assignment != nil {
			role, err := r.store.GetRoleByID(ctx, assignment.RoleID)
			if err != nil {
				return nil, err
			}
			if role == nil {
				return nil, fmt.Errorf("assignment %d references missing role %d", assignment.ID, assignment.RoleID)
			}
			return role, nil
		}

		hop, ok := hopFor(curScope)
		if !ok {
			return nil, nil
		}
		parentID, err := hop.Parent(ctx, r.catalog, *curID)
		if err != nil {
			// A scope id the catalog doesn't know resolves like a parentless
			// instance: no role, not an error. Callers must be able to answer
			// permission-denied without revealing whether the target exists.
			var notFound *ResourceNotFoundError
			if errors.As(err, &notFound) {
				return nil, nil
			}
			return nil, err
		}
		if parentID == nil {
			return nil, nil
		}
		curScope, curID = hop.ParentScope, parentID
	}
}

func hopFor(scope ScopeType) (inheritanceHop, bool) {
	for _, hop := range inheritanceChain {
		if hop.Scope == scope {
			return hop, true
		}
	}
	return inheritanceHop{}, false
}
