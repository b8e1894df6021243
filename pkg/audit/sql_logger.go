package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLLogger stores audit events next to the assignments in the same database.
// Works with PostgreSQL and SQLite.
type SQLLogger struct {
	db *sql.DB
}

// NewSQLLogger creates a database-backed audit logger, creating its table if needed
func NewSQLLogger(ctx context.Context, db *sql.DB) (*SQLLogger, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}

	l := &SQLLogger{db: db}
	if err := l.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure rbac_audit_events table: %w", err)
	}
	return l, nil
}

func (l *SQLLogger) ensureTable(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_audit_events (
			id VARCHAR(36) PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			event_type VARCHAR(100) NOT NULL,
			status VARCHAR(20) NOT NULL,
			actor_id VARCHAR(255),
			user_id VARCHAR(255),
			role_id VARCHAR(255),
			message TEXT,
			error_message TEXT,
			metadata TEXT
		)
	`); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_rbac_audit_events_user_id ON rbac_audit_events(user_id)")
	return err
}

// Log implements Logger
func (l *SQLLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO rbac_audit_events
			(id, timestamp, event_type, status, actor_id, user_id, role_id, message, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		event.ID, event.Timestamp.UTC(), string(event.EventType), string(event.Status),
		event.ActorID, event.UserID, event.RoleID,
		event.Message, event.ErrorMessage, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ForUser returns the most recent events about a user, newest first
func (l *SQLLogger) ForUser(ctx context.Context, userID string, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, status, actor_id, user_id, role_id, message, error_message, metadata
		FROM rbac_audit_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		var (
			e                                       AuditEvent
			actorID, user, role, msg, errMsg, metaJ sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.Status,
			&actorID, &user, &role, &msg, &errMsg, &metaJ); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		e.ActorID, e.UserID, e.RoleID = actorID.String, user.String, role.String
		e.Message, e.ErrorMessage = msg.String, errMsg.String
		if metaJ.String != "" {
			if err := json.Unmarshal([]byte(metaJ.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close implements Logger. The database handle is owned by the caller.
func (l *SQLLogger) Close() error {
	return nil
}
