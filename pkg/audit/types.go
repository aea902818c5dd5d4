package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType categorizes an audit event.
type EventType string

const (
	EventTypeRoleGrant     EventType = "authz.role_grant"
	EventTypeRoleRevoke    EventType = "authz.role_revoke"
	EventTypeRoleChange    EventType = "authz.role_change"
	EventTypeCascadeDelete EventType = "authz.cascade_delete"
	EventTypeAccessDenied  EventType = "authz.access_denied"
)

// EventStatus is the outcome recorded with an event.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusDenied  EventStatus = "denied"
)

// Event is a single audit record. ActorID is nil for system-generated
// mutations (seeding, migration backfill).
type Event struct {
	ID            int64                  `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	EventType     EventType              `json:"event_type"`
	Status        EventStatus            `json:"status"`
	ActorID       *uuid.UUID             `json:"actor_id,omitempty"`
	SubjectUserID *uuid.UUID             `json:"subject_user_id,omitempty"`
	Role          string                 `json:"role,omitempty"`
	ScopeType     string                 `json:"scope_type,omitempty"`
	ScopeID       string                 `json:"scope_id,omitempty"`
	Immutable     bool                   `json:"immutable,omitempty"`
	Message       string                 `json:"message,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}
