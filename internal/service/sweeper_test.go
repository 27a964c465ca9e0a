package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweeper(t *testing.T) (*Sweeper, sqlmock.Sqlmock) {
	st, mock := newMockStore(t)
	registry := NewRegistryClient(st, nil, time.Minute)
	publisher := broker.NewEventPublisher(nil)
	rentals := NewRentalService(st, registry, NewSettlementLedger(), publisher)
	return NewSweeper(st, nil, rentals, publisher, time.Minute), mock
}

func expectEmptyPhase(mock sqlmock.Sqlmock, status string) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM rentals WHERE status = \\$1").
		WithArgs(status, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()
}

func TestSweepNothingDue(t *testing.T) {
	sw, mock := newTestSweeper(t)

	expectEmptyPhase(mock, models.RentalStatusBooked)
	expectEmptyPhase(mock, models.RentalStatusActive)

	summary, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &SweepSummary{}, summary)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepActivatesDueRentals(t *testing.T) {
	sw, mock := newTestSweeper(t)

	due := sqlmock.NewRows(rentalColumns).AddRow(
		7, 1, 10,
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		"1200", "2000", "Downtown", false, "0",
		models.RentalStatusBooked, models.SettlementUnsettled, "0", "0", "")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM rentals WHERE status = \\$1 AND start_date <= \\$2").
		WithArgs(models.RentalStatusBooked, sqlmock.AnyArg()).
		WillReturnRows(due)
	mock.ExpectExec("^SAVEPOINT sweep_order$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE rentals SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM vehicles WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(vehicleRow(models.VehicleStatusAvailable))
	mock.ExpectExec("UPDATE vehicles SET").
		WithArgs(models.VehicleStatusRented, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("^RELEASE SAVEPOINT sweep_order$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	expectEmptyPhase(mock, models.RentalStatusActive)

	summary, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OrdersActivated)
	assert.Equal(t, 1, summary.VehiclesRented)
	assert.Equal(t, 0, summary.OrdersCompleted)
	assert.Equal(t, 0, summary.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepCompletesExpiredRentals(t *testing.T) {
	sw, mock := newTestSweeper(t)

	expectEmptyPhase(mock, models.RentalStatusBooked)

	expired := sqlmock.NewRows(rentalColumns).AddRow(
		7, 1, 10,
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		"1200", "0", "Downtown", false, "0",
		models.RentalStatusActive, models.SettlementUnsettled, "0", "0", "")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM rentals WHERE status = \\$1 AND end_date < \\$2").
		WithArgs(models.RentalStatusActive, sqlmock.AnyArg()).
		WillReturnRows(expired)
	mock.ExpectExec("^SAVEPOINT sweep_order$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM vehicles WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(vehicleRow(models.VehicleStatusRented))
	mock.ExpectExec("UPDATE rentals SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectSumPayments(mock, 7, models.TransactionTypeCharge, models.PaymentStatusPaid, "0")
	expectSumPayments(mock, 7, models.TransactionTypeRefund, models.PaymentStatusRefunded, "0")
	mock.ExpectExec("UPDATE rentals SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM rentals").
		WithArgs(int64(10), models.RentalStatusActive, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE vehicles SET").
		WithArgs(models.VehicleStatusAvailable, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("^RELEASE SAVEPOINT sweep_order$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	summary, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OrdersCompleted)
	assert.Equal(t, 1, summary.VehiclesReleased)
	assert.Equal(t, 0, summary.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepContinuesPastFailingOrder(t *testing.T) {
	sw, mock := newTestSweeper(t)

	due := sqlmock.NewRows(rentalColumns).
		AddRow(7, 1, 10,
			time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			"1200", "0", "Downtown", false, "0",
			models.RentalStatusBooked, models.SettlementUnsettled, "0", "0", "").
		AddRow(8, 2, 11,
			time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			"1200", "0", "Uptown", false, "0",
			models.RentalStatusBooked, models.SettlementUnsettled, "0", "0", "")

	// the first order fails mid-write and is rolled back to its savepoint;
	// the second order still activates inside the same phase transaction
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM rentals WHERE status = \\$1 AND start_date <= \\$2").
		WithArgs(models.RentalStatusBooked, sqlmock.AnyArg()).
		WillReturnRows(due)
	mock.ExpectExec("^SAVEPOINT sweep_order$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE rentals SET").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectExec("^ROLLBACK TO SAVEPOINT sweep_order$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("^SAVEPOINT sweep_order$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE rentals SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM vehicles WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "license_plate", "daily_rate", "status"}).
			AddRow(11, "B-67890", "150.00", models.VehicleStatusAvailable))
	mock.ExpectExec("UPDATE vehicles SET").
		WithArgs(models.VehicleStatusRented, int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("^RELEASE SAVEPOINT sweep_order$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	expectEmptyPhase(mock, models.RentalStatusActive)

	summary, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OrdersActivated)
	assert.Equal(t, 1, summary.VehiclesRented)
	assert.Equal(t, 1, summary.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepFailedVehicleWriteRollsBackWholeOrder(t *testing.T) {
	sw, mock := newTestSweeper(t)

	due := sqlmock.NewRows(rentalColumns).AddRow(
		7, 1, 10,
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		"1200", "0", "Downtown", false, "0",
		models.RentalStatusBooked, models.SettlementUnsettled, "0", "0", "")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM rentals WHERE status = \\$1 AND start_date <= \\$2").
		WithArgs(models.RentalStatusBooked, sqlmock.AnyArg()).
		WillReturnRows(due)
	mock.ExpectExec("^SAVEPOINT sweep_order$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE rentals SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM vehicles WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(vehicleRow(models.VehicleStatusAvailable))
	mock.ExpectExec("UPDATE vehicles SET").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectExec("^ROLLBACK TO SAVEPOINT sweep_order$").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	expectEmptyPhase(mock, models.RentalStatusActive)

	summary, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.OrdersActivated, "an order with a failed vehicle write does not count as activated")
	assert.Equal(t, 0, summary.VehiclesRented)
	assert.Equal(t, 1, summary.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}
