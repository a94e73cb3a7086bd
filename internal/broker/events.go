package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing order events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderSubmitted publishes an ORDER_SUBMITTED event for order
func (ep *EventPublisher) PublishOrderSubmitted(ctx context.Context, order models.Order, strategy, message string) error {
	event := &models.OrderSubmittedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderSubmitted),
		Order:     order,
		Strategy:  strategy,
		Message:   message,
	}
	return ep.producer.PublishEvent(ctx, orderKey(order.ID), event)
}

// PublishSubmissionFailed publishes an ORDER_SUBMISSION_FAILED event
func (ep *EventPublisher) PublishSubmissionFailed(ctx context.Context, orderID, seller, kind, reason string) error {
	event := &models.OrderSubmissionFailedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderSubmissionFailed),
		OrderID:   orderID,
		Seller:    seller,
		Kind:      kind,
		Reason:    reason,
	}
	return ep.producer.PublishEvent(ctx, orderKey(orderID), event)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onOrderSubmitted   func(context.Context, *models.OrderSubmittedEvent) error
	onSubmissionFailed func(context.Context, *models.OrderSubmissionFailedEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderSubmitted registers a handler for ORDER_SUBMITTED events
func (eh *EventHandler) OnOrderSubmitted(handler func(context.Context, *models.OrderSubmittedEvent) error) {
	eh.onOrderSubmitted = handler
}

// OnSubmissionFailed registers a handler for ORDER_SUBMISSION_FAILED events
func (eh *EventHandler) OnSubmissionFailed(handler func(context.Context, *models.OrderSubmissionFailedEvent) error) {
	eh.onSubmissionFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderSubmitted:
		if eh.onOrderSubmitted != nil {
			var event models.OrderSubmittedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderSubmitted event: %w", err)
			}
			return eh.onOrderSubmitted(ctx, &event)
		}

	case models.EventTypeOrderSubmissionFailed:
		if eh.onSubmissionFailed != nil {
			var event models.OrderSubmissionFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderSubmissionFailed event: %w", err)
			}
			return eh.onSubmissionFailed(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
