package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/accessplane/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger
	Close() error
}

// NoopLogger discards every event
type NoopLogger struct{}

func (NoopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NoopLogger) Close() error                                { return nil }

// prepare fills the id, timestamp and request-derived fields left empty
func prepare(ctx context.Context, event *Event, now time.Time) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now.UTC()
	}
	if event.Status == "" {
		event.Status = StatusSuccess
	}
	if event.ActorID == "" {
		event.ActorID = observability.GetUserID(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = observability.GetRequestID(ctx)
	}
	if event.ApplicationID == "" {
		event.ApplicationID = observability.GetApplicationID(ctx)
	}
}

// LogLogger writes audit events as structured log lines
type LogLogger struct {
	logger *observability.Logger
	now    func() time.Time
}

// NewLogLogger creates an audit logger that writes to logger
func NewLogLogger(logger *observability.Logger) *LogLogger {
	return &LogLogger{logger: logger, now: time.Now}
}

func (l *LogLogger) Log(ctx context.Context, event *Event) error {
	prepare(ctx, event, l.now())

	fields := map[string]interface{}{
		"audit_id":   event.ID,
		"event_type": string(event.EventType),
		"status":     string(event.Status),
	}
	if event.ActorID != "" {
		fields["actor_id"] = event.ActorID
	}
	if event.TargetUserID != "" {
		fields["target_user_id"] = event.TargetUserID
	}
	if event.ApplicationID != "" {
		fields["application_id"] = event.ApplicationID
	}
	if event.ResourceID != "" {
		fields["resource"] = string(event.ResourceType) + "/" + event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	message := event.Message
	if message == "" {
		message = "audit event"
	}
	l.logger.WithFields(fields).Info(message)
	return nil
}

func (l *LogLogger) Close() error { return nil }
