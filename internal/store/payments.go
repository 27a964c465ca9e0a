package store

import (
	"context"
	"database/sql"
	"errors"

	"rental-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ListPaymentsByRental returns the full payment history for one order,
// oldest first
func (s *Store) ListPaymentsByRental(ctx context.Context, rentalID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := sqlx.SelectContext(ctx, s.q, &payments,
		"SELECT * FROM payments WHERE rental_id = $1 ORDER BY created_at, id", rentalID)
	return payments, err
}

// SumPayments totals payment amounts for one order filtered by transaction
// type and status
func (s *Store) SumPayments(ctx context.Context, rentalID int64, transactionType, status string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := sqlx.GetContext(ctx, s.q, &total,
		"SELECT COALESCE(SUM(amount), 0) FROM payments WHERE rental_id = $1 AND transaction_type = $2 AND status = $3",
		rentalID, transactionType, status)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// FirstChargePayment returns the earliest charge record on an order, or nil
// if the order has never been charged. Used for refund attribution.
func (s *Store) FirstChargePayment(ctx context.Context, rentalID int64) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, s.q, &payment,
		"SELECT * FROM payments WHERE rental_id = $1 AND transaction_type = $2 ORDER BY created_at, id LIMIT 1",
		rentalID, models.TransactionTypeCharge)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// CreatePayment inserts a new ledger record. The lifecycle engine only ever
// writes REFUND records; charges come from the external payment processor.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (
			rental_id, account_id, amount, transaction_type, status, method,
			description, transaction_ref, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	return sqlx.GetContext(ctx, s.q, payment, query,
		payment.RentalID, payment.AccountID, payment.Amount,
		payment.TransactionType, payment.Status, payment.Method,
		payment.Description, payment.TransactionRef, payment.PaidAt)
}
