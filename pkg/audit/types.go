package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Role definition events
	EventTypeRoleCreated     EventType = "role.created"
	EventTypeRoleUpdated     EventType = "role.updated"
	EventTypeRoleDeactivated EventType = "role.deactivated"

	// Assignment events
	EventTypeAssignmentGranted  EventType = "assignment.granted"
	EventTypeAssignmentRevoked  EventType = "assignment.revoked"
	EventTypeAssignmentReplaced EventType = "assignment.replaced"

	// Gate events
	EventTypeAccessDenied EventType = "access.denied"
)

// Status represents the outcome of an event
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// ResourceType represents the type of resource the event is about
type ResourceType string

const (
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeAssignment ResourceType = "assignment"
	ResourceTypePermission ResourceType = "permission"
)

// Event represents a single audit log entry
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Status    Status    `json:"status"`

	// Who acted, and on whom
	ActorID       string `json:"actor_id,omitempty"`
	TargetUserID  string `json:"target_user_id,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Filter represents filters for searching audit events
type Filter struct {
	StartTime *time.Time
	EndTime   *time.Time

	ActorID       string
	TargetUserID  string
	ApplicationID string

	EventTypes []EventType
	Status     Status

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}

// DefaultSearchLimit caps searches that do not set Limit
const DefaultSearchLimit = 100
