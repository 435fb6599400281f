package audit

import (
	"context"
	"log/slog"
)

// LogPublisher writes events as structured log lines.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(ctx context.Context, e Event) error {
	l := p.Logger
	if l == nil {
		l = slog.Default()
	}

	level := slog.LevelInfo
	if e.Type == SessionReuseDetected {
		level = slog.LevelWarn
	}
	l.LogAttrs(ctx, level, "audit_event",
		slog.String("event_id", e.ID),
		slog.String("event_type", string(e.Type)),
		slog.String("shop_id", e.ShopID),
		slog.String("session_id", e.SessionID),
		slog.Time("occurred_at", e.OccurredAt),
	)
	return nil
}

func (LogPublisher) Close() error { return nil }
