package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rental-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateRental inserts a new rental order and fills generated fields
func (s *Store) CreateRental(ctx context.Context, rental *models.Rental) error {
	query := `
		INSERT INTO rentals (
			customer_id, vehicle_id, start_date, end_date, total_amount,
			deposit, pickup_location, return_location, is_cross_location_return,
			cross_location_fee, status, settlement_status, amount_paid,
			amount_refunded, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`

	return sqlx.GetContext(ctx, s.q, rental, query,
		rental.CustomerID, rental.VehicleID, rental.StartDate, rental.EndDate,
		rental.TotalAmount, rental.Deposit, rental.PickupLocation,
		rental.ReturnLocation, rental.IsCrossLocationReturn,
		rental.CrossLocationFee, rental.Status, rental.SettlementStatus,
		rental.AmountPaid, rental.AmountRefunded, rental.Notes)
}

// GetRentalByID retrieves a rental order by ID
func (s *Store) GetRentalByID(ctx context.Context, id int64) (*models.Rental, error) {
	var rental models.Rental
	err := sqlx.GetContext(ctx, s.q, &rental, "SELECT * FROM rentals WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "rental", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

// GetRentalForUpdate locks the rental row for the rest of the transaction
func (s *Store) GetRentalForUpdate(ctx context.Context, id int64) (*models.Rental, error) {
	var rental models.Rental
	err := sqlx.GetContext(ctx, s.q, &rental, "SELECT * FROM rentals WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "rental", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

// UpdateRental writes the mutable order fields back
func (s *Store) UpdateRental(ctx context.Context, rental *models.Rental) error {
	query := `
		UPDATE rentals SET
			customer_id = $1, vehicle_id = $2, start_date = $3, end_date = $4,
			actual_return_date = $5, total_amount = $6, deposit = $7,
			pickup_location = $8, return_location = $9,
			is_cross_location_return = $10, cross_location_fee = $11,
			status = $12, notes = $13, updated_at = NOW()
		WHERE id = $14`

	res, err := s.q.ExecContext(ctx, query,
		rental.CustomerID, rental.VehicleID, rental.StartDate, rental.EndDate,
		rental.ActualReturnDate, rental.TotalAmount, rental.Deposit,
		rental.PickupLocation, rental.ReturnLocation,
		rental.IsCrossLocationReturn, rental.CrossLocationFee,
		rental.Status, rental.Notes, rental.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &models.NotFoundError{Entity: "rental", ID: rental.ID}
	}
	return nil
}

// UpdateRentalFinancials writes the derived settlement fields in one statement
func (s *Store) UpdateRentalFinancials(ctx context.Context, rental *models.Rental) error {
	query := `
		UPDATE rentals SET
			amount_paid = $1, amount_refunded = $2, settlement_status = $3,
			settled_at = $4, updated_at = NOW()
		WHERE id = $5`

	_, err := s.q.ExecContext(ctx, query,
		rental.AmountPaid, rental.AmountRefunded, rental.SettlementStatus,
		rental.SettledAt, rental.ID)
	return err
}

// ListRentalsByCustomer retrieves rentals for one customer, newest first
func (s *Store) ListRentalsByCustomer(ctx context.Context, customerID int64) ([]models.Rental, error) {
	var rentals []models.Rental
	err := sqlx.SelectContext(ctx, s.q, &rentals,
		"SELECT * FROM rentals WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return rentals, err
}

// ListRentalsDueForActivation finds BOOKED orders whose start date has arrived
func (s *Store) ListRentalsDueForActivation(ctx context.Context, today time.Time) ([]models.Rental, error) {
	var rentals []models.Rental
	err := sqlx.SelectContext(ctx, s.q, &rentals,
		"SELECT * FROM rentals WHERE status = $1 AND start_date <= $2 ORDER BY id",
		models.RentalStatusBooked, today)
	return rentals, err
}

// ListRentalsDueForCompletion finds ACTIVE orders whose end date has passed
func (s *Store) ListRentalsDueForCompletion(ctx context.Context, today time.Time) ([]models.Rental, error) {
	var rentals []models.Rental
	err := sqlx.SelectContext(ctx, s.q, &rentals,
		"SELECT * FROM rentals WHERE status = $1 AND end_date < $2 ORDER BY id",
		models.RentalStatusActive, today)
	return rentals, err
}

// CountActiveRentalsForVehicle counts ACTIVE orders on a vehicle, excluding
// the order currently being completed. Callers must hold the vehicle row lock.
func (s *Store) CountActiveRentalsForVehicle(ctx context.Context, vehicleID, excludeRentalID int64) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, s.q, &count,
		"SELECT COUNT(*) FROM rentals WHERE vehicle_id = $1 AND status = $2 AND id <> $3",
		vehicleID, models.RentalStatusActive, excludeRentalID)
	return count, err
}
