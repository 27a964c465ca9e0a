package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeRentalBooked      = "RENTAL_BOOKED"
	EventTypeRentalActivated   = "RENTAL_ACTIVATED"
	EventTypeRentalCompleted   = "RENTAL_COMPLETED"
	EventTypeRentalCancelled   = "RENTAL_CANCELLED"
	EventTypeDepositRefunded   = "DEPOSIT_REFUNDED"
	EventTypeRefundNeedsReview = "REFUND_NEEDS_REVIEW"
	EventTypePaymentRecorded   = "PAYMENT_RECORDED"
	EventTypeSweepCompleted    = "SWEEP_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RentalBookedEvent published when a rental order is created
type RentalBookedEvent struct {
	BaseEvent
	RentalID   int64           `json:"rental_id"`
	CustomerID int64           `json:"customer_id"`
	VehicleID  int64           `json:"vehicle_id"`
	StartDate  string          `json:"start_date"`
	EndDate    string          `json:"end_date"`
	OrderTotal decimal.Decimal `json:"order_total"`
}

// RentalActivatedEvent published when a rental moves to ACTIVE
type RentalActivatedEvent struct {
	BaseEvent
	RentalID  int64 `json:"rental_id"`
	VehicleID int64 `json:"vehicle_id"`
}

// RentalCompletedEvent published when a rental moves to COMPLETED
type RentalCompletedEvent struct {
	BaseEvent
	RentalID         int64           `json:"rental_id"`
	VehicleID        int64           `json:"vehicle_id"`
	ActualReturnDate string          `json:"actual_return_date"`
	OrderTotal       decimal.Decimal `json:"order_total"`
	SettlementStatus string          `json:"settlement_status"`
	VehicleReleased  bool            `json:"vehicle_released"`
}

// RentalCancelledEvent published when a rental is cancelled
type RentalCancelledEvent struct {
	BaseEvent
	RentalID int64  `json:"rental_id"`
	Reason   string `json:"reason"`
}

// DepositRefundedEvent published when the deposit is auto-refunded on completion
type DepositRefundedEvent struct {
	BaseEvent
	RentalID       int64           `json:"rental_id"`
	PaymentID      int64           `json:"payment_id"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionRef string          `json:"transaction_ref"`
}

// RefundNeedsReviewEvent published when no account could be attributed for an
// automatic deposit refund; the order completed but needs manual follow-up
type RefundNeedsReviewEvent struct {
	BaseEvent
	RentalID   int64           `json:"rental_id"`
	Refundable decimal.Decimal `json:"refundable"`
}

// PaymentRecordedEvent is consumed from the external payment ledger's topic;
// it triggers a settlement refresh for the affected rental
type PaymentRecordedEvent struct {
	BaseEvent
	RentalID        int64           `json:"rental_id"`
	PaymentID       int64           `json:"payment_id"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionType string          `json:"transaction_type"`
	Status          string          `json:"status"`
}

// SweepCompletedEvent published after a batch sweep finishes
type SweepCompletedEvent struct {
	BaseEvent
	OrdersActivated  int `json:"orders_activated"`
	VehiclesRented   int `json:"vehicles_rented"`
	OrdersCompleted  int `json:"orders_completed"`
	VehiclesReleased int `json:"vehicles_released"`
	Errors           int `json:"errors"`
}
