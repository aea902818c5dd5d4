package rbac

import (
	"fmt"

	"github.com/google/uuid"
)

// The errors in this file are the expected, recoverable outcomes of the
// management and check APIs. They map to 4xx responses at the HTTP boundary.
// Anything else coming out of the engine (store outages, query failures) is
// fatal and propagates as a plain wrapped error.

// UserNotFoundError indicates the referenced user id has no user record.
type UserNotFoundError struct {
	ID uuid.UUID
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %s not found", e.ID)
}

// RoleNotFoundError indicates the referenced role name does not exist.
type RoleNotFoundError struct {
	Name string
}

func (e *RoleNotFoundError) Error() string {
	return fmt.Sprintf("role %q not found", e.Name)
}

// ResourceNotFoundError indicates the project or flow referenced by a scoped
// assignment does not exist.
type ResourceNotFoundError struct {
	Kind ScopeType
	ID   uuid.UUID
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvalidScopeError indicates a scope type outside the three known kinds, or
// a scope id whose presence/absence violates the global-vs-scoped rule.
type InvalidScopeError struct {
	Reason string
}

func (e *InvalidScopeError) Error() string {
	return "invalid scope: " + e.Reason
}

// DuplicateAssignmentError indicates an identical
// (user, role, scope type, scope id) assignment already exists.
type DuplicateAssignmentError struct {
	UserID    uuid.UUID
	RoleID    int64
	ScopeType ScopeType
	ScopeID   *uuid.UUID
}

func (e *DuplicateAssignmentError) Error() string {
	if e.ScopeID != nil {
		return fmt.Sprintf("user %s already has role %d on %s %s", e.UserID, e.RoleID, e.ScopeType, e.ScopeID)
	}
	return fmt.Sprintf("user %s already has role %d at %s scope", e.UserID, e.RoleID, e.ScopeType)
}

// AssignmentNotFoundError indicates the referenced assignment id does not
// exist.
type AssignmentNotFoundError struct {
	ID int64
}

func (e *AssignmentNotFoundError) Error() string {
	return fmt.Sprintf("assignment %d not found", e.ID)
}

// Operations reported by ImmutableAssignmentError.
const (
	OperationRemove = "remove"
	OperationModify = "modify"
)

// ImmutableAssignmentError indicates an attempt to mutate a protected
// assignment. Operation is "remove" or "modify".
type ImmutableAssignmentError struct {
	ID        int64
	Operation string
}

func (e *ImmutableAssignmentError) Error() string {
	return fmt.Sprintf("assignment %d is immutable and cannot be %sd", e.ID, e.Operation)
}

// BatchSizeError indicates a batch check request outside the allowed
// 1..MaxBatchChecks range. It is rejected before any resolution work.
type BatchSizeError struct {
	Count int
}

func (e *BatchSizeError) Error() string {
	return fmt.Sprintf("batch size %d outside allowed range 1..%d", e.Count, MaxBatchChecks)
}
