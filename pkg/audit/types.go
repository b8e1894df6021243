package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	// Assignment events
	EventTypeRoleAssigned EventType = "authz.role_assigned"
	EventTypeRoleRevoked  EventType = "authz.role_revoked"

	// Maintenance events
	EventTypeCatalogReloaded   EventType = "authz.catalog_reloaded"
	EventTypeAssignmentsPurged EventType = "authz.assignments_purged"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	// EventStatusUnchanged marks an accepted request that changed nothing,
	// such as re-assigning a role the user already holds
	EventStatusUnchanged EventStatus = "unchanged"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// ActorID is the user who made the change, when known
	ActorID string `json:"actor_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	RoleID  string `json:"role_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent creates an event stamped with a fresh id and the current UTC time
func NewEvent(eventType EventType, status EventStatus) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
}

// WithError records err as the failure reason and marks the event failed
func (e *AuditEvent) WithError(err error) *AuditEvent {
	if err != nil {
		e.Status = EventStatusFailure
		e.ErrorMessage = err.Error()
	}
	return e
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}
