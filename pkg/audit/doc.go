// Package audit records an append-only trail of authorization changes and
// denials.
//
// # Event Types
//
// Roles: role.created, role.updated, role.deactivated
// Assignments: assignment.granted, assignment.revoked, assignment.replaced
// Gate: access.denied
//
// # Usage Example
//
//	logger, err := audit.NewDBLogger(db)
//	...
//	logger.Log(ctx, &audit.Event{
//		EventType:     audit.EventTypeAssignmentGranted,
//		Status:        audit.StatusSuccess,
//		ResourceType:  audit.ResourceTypeAssignment,
//		ResourceID:    assignment.ID,
//		ApplicationID: assignment.ApplicationID,
//		TargetUserID:  assignment.UserID,
//	})
//
// The actor and request id are filled in from the context (see
// observability.WithUserID and observability.WithRequestID) when the event
// leaves them empty.
//
// Search audit events:
//
//	events, err := logger.Search(ctx, audit.Filter{
//		ApplicationID: "app-1",
//		EventTypes:    []audit.EventType{audit.EventTypeAccessDenied},
//		Limit:         50,
//	})
package audit
