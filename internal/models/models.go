package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vehicle is the fleet-registry view of a car relevant to rentals
type Vehicle struct {
	ID           int64           `db:"id" json:"id"`
	LicensePlate string          `db:"license_plate" json:"license_plate"`
	Brand        string          `db:"brand" json:"brand"`
	Model        string          `db:"model" json:"model"`
	DailyRate    decimal.Decimal `db:"daily_rate" json:"daily_rate"`
	Status       string          `db:"status" json:"status"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Customer is the registry view of a customer
type Customer struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Phone       string    `db:"phone" json:"phone"`
	MemberLevel string    `db:"member_level" json:"member_level"`
	AccountID   *int64    `db:"account_id" json:"account_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Rental is a rental order, the central entity of the lifecycle engine
type Rental struct {
	ID                    int64           `db:"id" json:"id"`
	CustomerID            int64           `db:"customer_id" json:"customer_id"`
	VehicleID             int64           `db:"vehicle_id" json:"vehicle_id"`
	StartDate             time.Time       `db:"start_date" json:"start_date"`
	EndDate               time.Time       `db:"end_date" json:"end_date"`
	ActualReturnDate      *time.Time      `db:"actual_return_date" json:"actual_return_date,omitempty"`
	TotalAmount           decimal.Decimal `db:"total_amount" json:"total_amount"`
	Deposit               decimal.Decimal `db:"deposit" json:"deposit"`
	PickupLocation        string          `db:"pickup_location" json:"pickup_location"`
	ReturnLocation        *string         `db:"return_location" json:"return_location,omitempty"`
	IsCrossLocationReturn bool            `db:"is_cross_location_return" json:"is_cross_location_return"`
	CrossLocationFee      decimal.Decimal `db:"cross_location_fee" json:"cross_location_fee"`
	Status                string          `db:"status" json:"status"`
	SettlementStatus      string          `db:"settlement_status" json:"settlement_status"`
	AmountPaid            decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	AmountRefunded        decimal.Decimal `db:"amount_refunded" json:"amount_refunded"`
	SettledAt             *time.Time      `db:"settled_at" json:"settled_at,omitempty"`
	Notes                 string          `db:"notes" json:"notes,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderTotal is the full amount owed for the rental: base rent plus deposit
// plus the cross-location fee when the flag is set. The fee is excluded
// whenever the flag is off, even if a non-zero value is stored.
func (r *Rental) OrderTotal() decimal.Decimal {
	total := r.TotalAmount.Add(r.Deposit)
	if r.IsCrossLocationReturn {
		total = total.Add(r.CrossLocationFee)
	}
	return total
}

// OutstandingAmount is what the customer still owes, never negative.
func (r *Rental) OutstandingAmount() decimal.Decimal {
	remaining := r.OrderTotal().Sub(r.AmountPaid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Payment is one immutable ledger record against a rental. Corrections are
// new offsetting records, never edits.
type Payment struct {
	ID              int64           `db:"id" json:"id"`
	RentalID        int64           `db:"rental_id" json:"rental_id"`
	AccountID       *int64          `db:"account_id" json:"account_id,omitempty"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	TransactionType string          `db:"transaction_type" json:"transaction_type"`
	Status          string          `db:"status" json:"status"`
	Method          string          `db:"method" json:"method"`
	Description     string          `db:"description" json:"description,omitempty"`
	TransactionRef  string          `db:"transaction_ref" json:"transaction_ref,omitempty"`
	PaidAt          *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Rental lifecycle statuses
const (
	RentalStatusBooked    = "BOOKED"
	RentalStatusActive    = "ACTIVE"
	RentalStatusCompleted = "COMPLETED"
	RentalStatusCancelled = "CANCELLED"
)

// Settlement statuses
const (
	SettlementUnsettled = "UNSETTLED"
	SettlementPartial   = "PARTIAL"
	SettlementSettled   = "SETTLED"
)

// Vehicle statuses written by the state machine
const (
	VehicleStatusAvailable = "AVAILABLE"
	VehicleStatusRented    = "RENTED"
)

// Customer membership levels
const (
	MemberLevelNormal = "NORMAL"
	MemberLevelVIP    = "VIP"
)

// Payment transaction types
const (
	TransactionTypeCharge = "CHARGE"
	TransactionTypeRefund = "REFUND"
)

// Payment statuses
const (
	PaymentStatusPaid     = "PAID"
	PaymentStatusRefunded = "REFUNDED"
	PaymentStatusPending  = "PENDING"
	PaymentStatusFailed   = "FAILED"
)
