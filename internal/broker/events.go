package broker

import (
	"context"

	"batch-service/internal/models"
)

// EventPublisher publishes allocation domain events.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderProcessed publishes an OrderProcessed event, keyed by the
// external order identifier so all events of one order land on one partition.
func (ep *EventPublisher) PublishOrderProcessed(ctx context.Context, event *models.OrderProcessedEvent) error {
	return ep.producer.PublishEvent(ctx, event.ExternalOrderID, event)
}

// PublishAllocationShortfall publishes an AllocationShortfall event.
func (ep *EventPublisher) PublishAllocationShortfall(ctx context.Context, event *models.AllocationShortfallEvent) error {
	return ep.producer.PublishEvent(ctx, event.ExternalOrderID, event)
}
