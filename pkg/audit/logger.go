package audit

import (
	"context"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// NopLogger discards every event
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(context.Context, *AuditEvent) error { return nil }

// Close implements Logger
func (NopLogger) Close() error { return nil }
