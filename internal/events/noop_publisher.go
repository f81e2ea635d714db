package events

import (
	"context"
	"log/slog"
)

// NoopEventPublisher logs events instead of publishing them. Used when no
// broker is configured, for local development.
type NoopEventPublisher struct {
	logger *slog.Logger
}

func NewNoopEventPublisher(logger *slog.Logger) *NoopEventPublisher {
	return &NoopEventPublisher{logger: logger}
}

func (p *NoopEventPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.Debug("Event dropped, no broker configured", "event_type", event.Type, "event_id", event.ID)
	return nil
}

func (p *NoopEventPublisher) Close() error {
	return nil
}
