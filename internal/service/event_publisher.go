package service

import (
	"context"

	"devmemory-be/internal/pkg/logger"
	"devmemory-be/pkg/events"
)

// IEventPublisher forwards domain events to the bus. Events are auxiliary:
// a failed publish never fails the operation that produced it.
type IEventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type noopEventPublisher struct{}

func NewNoopEventPublisher() IEventPublisher {
	return noopEventPublisher{}
}

func (noopEventPublisher) Publish(context.Context, events.Event) error { return nil }

func publishEvent(ctx context.Context, publisher IEventPublisher, log logger.ILogger, module string, event events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		log.Warn(module, "Failed to publish event", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}
