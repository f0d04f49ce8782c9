package service

import (
	"context"
	"log/slog"
	"time"

	"go-file-tree/internal/model"
)

// AuditSink persists audit events. Implementations live in the repository
// package.
type AuditSink interface {
	Write(ctx context.Context, event model.AuditEvent) error
}

// AuditService stamps and forwards audit events. Delivery failures are
// logged and never returned, so auditing cannot fail a file operation.
type AuditService struct {
	sink AuditSink
	now  func() time.Time
}

func NewAuditService(sink AuditSink) *AuditService {
	return &AuditService{sink: sink, now: time.Now}
}

func (s *AuditService) Log(ctx context.Context, event model.AuditEvent) {
	if s == nil || s.sink == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = model.SeverityInfo
	}

	// Audit records outlive request cancellation.
	if err := s.sink.Write(context.WithoutCancel(ctx), event); err != nil {
		slog.Warn("audit sink write failed",
			"action", event.Action,
			"resource", event.Resource,
			"user_id", event.UserID,
			"error", err,
		)
	}
}

func (s *AuditService) record(ctx context.Context, principal model.Principal, action string, resource string, details map[string]any) {
	s.Log(ctx, model.AuditEvent{
		UserID:   principal.ID,
		Action:   action,
		Resource: resource,
		Details:  details,
		Severity: model.SeverityInfo,
	})
}
