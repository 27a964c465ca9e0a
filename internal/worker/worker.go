package worker

import (
	"context"
	"log"

	"rental-service/internal/broker"
	"rental-service/internal/models"
	"rental-service/internal/service"
)

// SettlementWorker keeps derived settlement fields in step with the external
// payment ledger: whenever the ledger records a payment against an order,
// the worker re-runs the settlement refresh for that order.
type SettlementWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(consumer *broker.Consumer, rentals *service.RentalService) *SettlementWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentRecorded(func(ctx context.Context, event *models.PaymentRecordedEvent) error {
		if err := rentals.RefreshSettlement(ctx, event.RentalID); err != nil {
			if models.IsNotFound(err) {
				log.Printf("Payment event for unknown rental %d, skipping", event.RentalID)
				return nil
			}
			return err
		}
		return nil
	})

	return &SettlementWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *SettlementWorker) Start(ctx context.Context) error {
	log.Println("Starting settlement worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SettlementWorker) Stop() error {
	log.Println("Stopping settlement worker...")
	return w.consumer.Close()
}
