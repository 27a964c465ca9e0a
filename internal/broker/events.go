package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"rental-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing rental lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func rentalKey(rentalID int64) string {
	return fmt.Sprintf("rental-%d", rentalID)
}

// PublishRentalBooked publishes a RentalBooked event
func (ep *EventPublisher) PublishRentalBooked(ctx context.Context, event *models.RentalBookedEvent) error {
	return ep.producer.PublishEvent(ctx, rentalKey(event.RentalID), event)
}

// PublishRentalActivated publishes a RentalActivated event
func (ep *EventPublisher) PublishRentalActivated(ctx context.Context, event *models.RentalActivatedEvent) error {
	return ep.producer.PublishEvent(ctx, rentalKey(event.RentalID), event)
}

// PublishRentalCompleted publishes a RentalCompleted event
func (ep *EventPublisher) PublishRentalCompleted(ctx context.Context, event *models.RentalCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, rentalKey(event.RentalID), event)
}

// PublishRentalCancelled publishes a RentalCancelled event
func (ep *EventPublisher) PublishRentalCancelled(ctx context.Context, event *models.RentalCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, rentalKey(event.RentalID), event)
}

// PublishDepositRefunded publishes a DepositRefunded event
func (ep *EventPublisher) PublishDepositRefunded(ctx context.Context, event *models.DepositRefundedEvent) error {
	return ep.producer.PublishEvent(ctx, rentalKey(event.RentalID), event)
}

// PublishRefundNeedsReview publishes a RefundNeedsReview event for the manual
// follow-up queue
func (ep *EventPublisher) PublishRefundNeedsReview(ctx context.Context, event *models.RefundNeedsReviewEvent) error {
	return ep.producer.PublishEvent(ctx, rentalKey(event.RentalID), event)
}

// PublishSweepCompleted publishes a SweepCompleted event
func (ep *EventPublisher) PublishSweepCompleted(ctx context.Context, event *models.SweepCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, "sweep", event)
}

// EventHandler routes incoming ledger events to registered callbacks
type EventHandler struct {
	onPaymentRecorded func(context.Context, *models.PaymentRecordedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentRecorded registers a handler for PaymentRecorded events
func (eh *EventHandler) OnPaymentRecorded(handler func(context.Context, *models.PaymentRecordedEvent) error) {
	eh.onPaymentRecorded = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentRecorded:
		if eh.onPaymentRecorded != nil {
			var event models.PaymentRecordedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentRecorded event: %w", err)
			}
			return eh.onPaymentRecorded(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
