package auditlog

import (
	"context"
	"strings"

	"github.com/pipetrace-labs/pipetrace-go/internal/platform/auth"
)

// InsertRunDeletion records a cascading run deletion: the run and everything
// hanging off it (steps, side effects) is gone after this action.
func InsertRunDeletion(ctx context.Context, q QueryRower, service, runID, actor, requestID string) error {
	if strings.TrimSpace(actor) == "" {
		actor = "anonymous"
	}
	_, err := Insert(ctx, q, Event{
		Actor:        actor,
		Action:       "run.delete",
		ResourceType: "pipeline_run",
		ResourceID:   runID,
		RequestID:    requestID,
		Payload: map[string]any{
			"service": service,
			"cascade": true,
		},
	})
	return err
}

func InsertAuthDeny(ctx context.Context, q QueryRower, service string, event auth.DenyEvent) error {
	actor := "anonymous"
	if strings.TrimSpace(event.Subject) != "" {
		actor = strings.TrimSpace(event.Subject)
	}

	_, err := Insert(ctx, q, Event{
		OccurredAt:   event.Time,
		Actor:        actor,
		Action:       "auth." + strings.TrimSpace(event.Reason),
		ResourceType: "http",
		ResourceID:   event.Method + " " + event.Path,
		RequestID:    event.RequestID,
		RemoteAddr:   event.RemoteAddr,
		UserAgent:    event.UserAgent,
		Payload: map[string]any{
			"service": service,
			"status":  event.Status,
			"reason":  event.Reason,
			"error":   event.Error,
			"subject": event.Subject,
			"email":   event.Email,
			"roles":   event.Roles,
		},
	})
	return err
}
