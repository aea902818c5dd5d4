// Package audit records who changed authorization state, when, and how.
//
// The logger is an observer: the assignment manager invokes it after a
// mutation commits, so the transactional boundary of the write is never
// coupled to the sink's availability or format.
package audit

import (
	"context"
)

// Logger is an audit sink.
type Logger interface {
	// Log records one event. A Logger must tolerate partially-populated
	// events; only EventType and Status are guaranteed.
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the sink.
	Close() error
}

// NopLogger discards every event. It is the default sink when auditing is
// not configured.
type NopLogger struct{}

// Log implements Logger.
func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }

// Close implements Logger.
func (NopLogger) Close() error { return nil }
