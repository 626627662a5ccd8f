package audit

import (
	"context"
	"time"

	"github.com/campusiq/gatehouse/pkg/contextkeys"
)

// Logger is the interface for audit trail writers.
type Logger interface {
	// Log appends one record to the trail.
	Log(ctx context.Context, record *Record) error

	// Close flushes and releases the writer.
	Close() error
}

// WithLogger adds an audit logger to the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextkeys.AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context, falling back to a
// no-op writer so call sites never nil-check.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return &noOpLogger{}
}

// NewNoOpLogger returns a logger that discards everything.
func NewNoOpLogger() Logger {
	return &noOpLogger{}
}

type noOpLogger struct{}

func (n *noOpLogger) Log(ctx context.Context, record *Record) error { return nil }
func (n *noOpLogger) Close() error                                  { return nil }

// stamp fills the record timestamp and request correlation id when the caller
// left them zero, so every writer carries the same request linkage.
func stamp(ctx context.Context, record *Record) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.RequestID == "" {
		record.RequestID = contextkeys.RequestID(ctx)
	}
}
