package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DBLogger writes audit events to the audit_logs table.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures the
// audit_logs table exists.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	l := &DBLogger{db: db}
	if err := l.ensureTable(); err != nil {
		return nil, fmt.Errorf("ensure audit_logs table: %w", err)
	}
	return l, nil
}

func (l *DBLogger) ensureTable() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		actor_id UUID,
		subject_user_id UUID,
		role VARCHAR(255),
		scope_type VARCHAR(20),
		scope_id VARCHAR(64),
		immutable BOOLEAN NOT NULL DEFAULT FALSE,
		message TEXT,
		metadata JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_subject ON audit_logs(subject_user_id);
	`)
	return err
}

// Log implements Logger.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	var actorID, subjectID uuid.NullUUID
	if event.ActorID != nil {
		actorID = uuid.NullUUID{UUID: *event.ActorID, Valid: true}
	}
	if event.SubjectUserID != nil {
		subjectID = uuid.NullUUID{UUID: *event.SubjectUserID, Valid: true}
	}

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs
		  (timestamp, event_type, status, actor_id, subject_user_id, role,
		   scope_type, scope_id, immutable, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		event.Timestamp, string(event.EventType), string(event.Status),
		actorID, subjectID, event.Role,
		event.ScopeType, event.ScopeID, event.Immutable, event.Message, nullableBytes(metadata),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events, newest first.
func (l *DBLogger) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, status, actor_id, subject_user_id,
		       role, scope_type, scope_id, immutable, message, metadata
		FROM audit_logs ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var eventType, status string
		var actorID, subjectID uuid.NullUUID
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &status, &actorID, &subjectID,
			&e.Role, &e.ScopeType, &e.ScopeID, &e.Immutable, &e.Message, &metadata); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.EventType = EventType(eventType)
		e.Status = EventStatus(status)
		if actorID.Valid {
			id := actorID.UUID
			e.ActorID = &id
		}
		if subjectID.Valid {
			id := subjectID.UUID
			e.SubjectUserID = &id
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PurgeOlderThan deletes events older than the cutoff and returns the count
// removed. The retention sweeper calls this on a schedule.
func (l *DBLogger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge audit events: %w", err)
	}
	return n, nil
}

// Close implements Logger. The underlying handle is owned by the caller.
func (l *DBLogger) Close() error { return nil }

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
