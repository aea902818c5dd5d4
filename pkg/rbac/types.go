package rbac

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScopeType is the kind of resource an authorization statement applies to.
type ScopeType string

const (
	ScopeGlobal  ScopeType = "global"
	ScopeProject ScopeType = "project"
	ScopeFlow    ScopeType = "flow"
)

// Valid reports whether the scope type is one of the three known kinds.
func (s ScopeType) Valid() bool {
	switch s {
	case ScopeGlobal, ScopeProject, ScopeFlow:
		return true
	}
	return false
}

// ParseScopeType parses a scope type from its wire representation.
func ParseScopeType(s string) (ScopeType, error) {
	st := ScopeType(s)
	if !st.Valid() {
		return "", &InvalidScopeError{Reason: fmt.Sprintf("unknown scope type %q", s)}
	}
	return st, nil
}

// Action names for the seeded permission set.
const (
	ActionCreate = "Create"
	ActionRead   = "Read"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
)

// System role names. These are seeded at startup and cannot be deleted
// through the management API.
const (
	RoleAdmin  = "Admin"
	RoleOwner  = "Owner"
	RoleEditor = "Editor"
	RoleViewer = "Viewer"
)

// Role is a named, reusable bundle of permissions.
type Role struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	IsSystemRole bool      `json:"is_system_role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Permission is one grantable capability: an action name bound to a scope
// kind (not a scope instance).
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Scope       ScopeType `json:"scope"`
	Description string    `json:"description,omitempty"`
}

// Assignment binds a user to a role at a scope instance (or globally).
// ScopeID is nil exactly when ScopeType is ScopeGlobal. CreatedBy is nil for
// system-generated rows (e.g. migration backfill). Immutable rows cannot be
// updated or removed through the management API.
type Assignment struct {
	ID          int64      `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	RoleID      int64      `json:"role_id"`
	ScopeType   ScopeType  `json:"scope_type"`
	ScopeID     *uuid.UUID `json:"scope_id,omitempty"`
	IsImmutable bool       `json:"is_immutable"`
	CreatedAt   time.Time  `json:"created_at"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
}

// ScopeRef identifies a concrete scope instance. For the global scope the ID
// is uuid.Nil, so ScopeRef is usable as a map key across all three kinds.
type ScopeRef struct {
	Type ScopeType
	ID   uuid.UUID
}

// Ref returns the assignment's scope as a ScopeRef.
func (a Assignment) Ref() ScopeRef {
	ref := ScopeRef{Type: a.ScopeType}
	if a.ScopeID != nil {
		ref.ID = *a.ScopeID
	}
	return ref
}

// Check is one entry in a batch permission request.
type Check struct {
	Permission string     `json:"permission"`
	ScopeType  ScopeType  `json:"scope_type"`
	ScopeID    *uuid.UUID `json:"scope_id,omitempty"`
}

// Ref returns the check's scope as a ScopeRef.
func (c Check) Ref() ScopeRef {
	ref := ScopeRef{Type: c.ScopeType}
	if c.ScopeID != nil {
		ref.ID = *c.ScopeID
	}
	return ref
}

// Grant is a single (role, permission, scope kind) row from the
// role-permission join, used by the batch checker's in-memory grant set.
type Grant struct {
	RoleID     int64
	Permission string
	Scope      ScopeType
}

// User is the minimal principal record the engine needs from the platform's
// user directory.
type User struct {
	ID          uuid.UUID `json:"id"`
	IsSuperuser bool      `json:"is_superuser"`
}

// validateScopeShape enforces the global-vs-scoped rule: global forbids a
// scope id, project/flow require one.
func validateScopeShape(scope ScopeType, scopeID *uuid.UUID) error {
	if !scope.Valid() {
		return &InvalidScopeError{Reason: fmt.Sprintf("unknown scope type %q", scope)}
	}
	if scope == ScopeGlobal {
		if scopeID != nil {
			return &InvalidScopeError{Reason: "global scope must not carry a scope id"}
		}
		return nil
	}
	if scopeID == nil || *scopeID == uuid.Nil {
		return &InvalidScopeError{Reason: fmt.Sprintf("%s scope requires a scope id", scope)}
	}
	return nil
}
