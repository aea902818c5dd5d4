package audit

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floworks/flowgate/pkg/observability"
)

// sqliteAuditSchema pre-creates audit_logs with SQLite column types so the
// logger's CREATE TABLE IF NOT EXISTS is a no-op. The insert, query, and
// purge statements are engine-neutral.
const sqliteAuditSchema = `
CREATE TABLE audit_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TIMESTAMP NOT NULL,
	event_type TEXT NOT NULL,
	status TEXT NOT NULL,
	actor_id TEXT,
	subject_user_id TEXT,
	role TEXT,
	scope_type TEXT,
	scope_id TEXT,
	immutable BOOLEAN NOT NULL DEFAULT 0,
	message TEXT,
	metadata BLOB
);
CREATE INDEX idx_audit_logs_timestamp ON audit_logs(timestamp);
`

func newTestDBLogger(t *testing.T) *DBLogger {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	_, err = db.Exec(sqliteAuditSchema)
	require.NoError(t, err)

	logger, err := NewDBLogger(db)
	require.NoError(t, err)
	return logger
}

func TestDBLoggerLogAndRecent(t *testing.T) {
	logger := newTestDBLogger(t)
	ctx := context.Background()

	actor := uuid.New()
	subject := uuid.New()
	scopeID := uuid.NewString()

	event := &Event{
		EventType:     EventTypeRoleGrant,
		Status:        StatusSuccess,
		ActorID:       &actor,
		SubjectUserID: &subject,
		Role:          "Editor",
		ScopeType:     "project",
		ScopeID:       scopeID,
		Message:       "role granted",
		Metadata:      map[string]interface{}{"assignment_id": float64(7)},
	}
	require.NoError(t, logger.Log(ctx, event))
	assert.NotZero(t, event.ID)
	assert.False(t, event.Timestamp.IsZero(), "a zero timestamp is stamped at log time")

	events, err := logger.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, EventTypeRoleGrant, got.EventType)
	assert.Equal(t, StatusSuccess, got.Status)
	require.NotNil(t, got.ActorID)
	assert.Equal(t, actor, *got.ActorID)
	require.NotNil(t, got.SubjectUserID)
	assert.Equal(t, subject, *got.SubjectUserID)
	assert.Equal(t, "Editor", got.Role)
	assert.Equal(t, scopeID, got.ScopeID)
	assert.Equal(t, map[string]interface{}{"assignment_id": float64(7)}, got.Metadata)
}

func TestDBLoggerSystemEventHasNoActor(t *testing.T) {
	logger := newTestDBLogger(t)
	ctx := context.Background()

	require.NoError(t, logger.Log(ctx, &Event{
		EventType: EventTypeCascadeDelete,
		Status:    StatusSuccess,
		ScopeType: "project",
		ScopeID:   uuid.NewString(),
	}))

	events, err := logger.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].ActorID)
	assert.Nil(t, events[0].SubjectUserID)
	assert.Nil(t, events[0].Metadata)
}

func TestDBLoggerRecentOrdersNewestFirst(t *testing.T) {
	logger := newTestDBLogger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(ctx, &Event{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			EventType: EventTypeRoleGrant,
			Status:    StatusSuccess,
		}))
	}

	events, err := logger.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].Timestamp.After(events[1].Timestamp))
	assert.True(t, events[1].Timestamp.After(events[2].Timestamp))
}

func TestDBLoggerPurgeOlderThan(t *testing.T) {
	logger := newTestDBLogger(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := now.Add(-100 * 24 * time.Hour)
	require.NoError(t, logger.Log(ctx, &Event{Timestamp: old, EventType: EventTypeRoleGrant, Status: StatusSuccess}))
	require.NoError(t, logger.Log(ctx, &Event{Timestamp: old, EventType: EventTypeRoleRevoke, Status: StatusSuccess}))
	require.NoError(t, logger.Log(ctx, &Event{Timestamp: now, EventType: EventTypeRoleGrant, Status: StatusSuccess}))

	removed, err := logger.PurgeOlderThan(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	events, err := logger.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPurgeOlderThanSurfacesRowsAffectedError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM audit_logs").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected unavailable")))

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	_, err = logger.PurgeOlderThan(context.Background(), time.Now().UTC())
	require.Error(t, err, "a purge whose count cannot be read must not report success")
	assert.Contains(t, err.Error(), "rows affected unavailable")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetentionSweeper(t *testing.T) {
	logger := newTestDBLogger(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, logger.Log(ctx, &Event{
		Timestamp: now.Add(-100 * 24 * time.Hour), EventType: EventTypeRoleGrant, Status: StatusSuccess,
	}))
	require.NoError(t, logger.Log(ctx, &Event{
		Timestamp: now, EventType: EventTypeRoleGrant, Status: StatusSuccess,
	}))

	obs := observability.NewLogger(observability.ErrorLevel, io.Discard)
	sweeper := NewRetentionSweeper(logger, 90*24*time.Hour, "0 3 * * *", obs)
	require.NoError(t, sweeper.Start())
	defer sweeper.Stop()

	// Run a sweep directly rather than waiting for the schedule.
	sweeper.sweep()

	events, err := logger.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.WithinDuration(t, now, events[0].Timestamp, time.Minute)
}

func TestRetentionSweeperRejectsBadSchedule(t *testing.T) {
	logger := newTestDBLogger(t)
	obs := observability.NewLogger(observability.ErrorLevel, io.Discard)

	sweeper := NewRetentionSweeper(logger, time.Hour, "not a cron spec", obs)
	assert.Error(t, sweeper.Start())
}
