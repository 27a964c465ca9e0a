package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"rental-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewStoreWithDB(sqlx.NewDb(db, "sqlmock")), mock
}

func TestGetRentalByID(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "customer_id", "vehicle_id", "status", "total_amount", "deposit"}).
			AddRow(7, 1, 2, models.RentalStatusBooked, "600.00", "2000.00")

		mock.ExpectQuery("SELECT \\* FROM rentals WHERE id = \\$1").
			WithArgs(int64(7)).
			WillReturnRows(rows)

		rental, err := st.GetRentalByID(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), rental.ID)
		assert.Equal(t, models.RentalStatusBooked, rental.Status)
		assert.True(t, rental.TotalAmount.Equal(decimal.NewFromInt(600)))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT \\* FROM rentals WHERE id = \\$1").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := st.GetRentalByID(ctx, 99)
		assert.True(t, models.IsNotFound(err))

		var nf *models.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "rental", nf.Entity)
		assert.Equal(t, int64(99), nf.ID)
	})
}

func TestCreateRental(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO rentals").
		WithArgs(int64(1), int64(2), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), "Downtown", nil, false, sqlmock.AnyArg(),
			models.RentalStatusBooked, models.SettlementUnsettled,
			sqlmock.AnyArg(), sqlmock.AnyArg(), "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(42, now, now))

	rental := &models.Rental{
		CustomerID:       1,
		VehicleID:        2,
		StartDate:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		TotalAmount:      decimal.NewFromInt(600),
		Deposit:          decimal.NewFromInt(2000),
		PickupLocation:   "Downtown",
		Status:           models.RentalStatusBooked,
		SettlementStatus: models.SettlementUnsettled,
	}

	err := st.CreateRental(ctx, rental)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rental.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRentalNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE rentals SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateRental(ctx, &models.Rental{ID: 404})
	assert.True(t, models.IsNotFound(err))
}

func TestListRentalsDueForActivation(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "vehicle_id", "status"}).
		AddRow(1, 10, models.RentalStatusBooked).
		AddRow(2, 11, models.RentalStatusBooked)

	mock.ExpectQuery("SELECT \\* FROM rentals WHERE status = \\$1 AND start_date <= \\$2 ORDER BY id").
		WithArgs(models.RentalStatusBooked, today).
		WillReturnRows(rows)

	due, err := st.ListRentalsDueForActivation(ctx, today)
	require.NoError(t, err)
	assert.Len(t, due, 2)
	assert.Equal(t, int64(10), due[0].VehicleID)
}

func TestCountActiveRentalsForVehicle(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM rentals WHERE vehicle_id = \\$1 AND status = \\$2 AND id <> \\$3").
		WithArgs(int64(10), models.RentalStatusActive, int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := st.CountActiveRentalsForVehicle(ctx, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSumPayments(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	t.Run("WithRecords", func(t *testing.T) {
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payments").
			WithArgs(int64(7), models.TransactionTypeCharge, models.PaymentStatusPaid).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("2600.00"))

		total, err := st.SumPayments(ctx, 7, models.TransactionTypeCharge, models.PaymentStatusPaid)
		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.NewFromInt(2600)))
	})

	t.Run("Empty", func(t *testing.T) {
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payments").
			WithArgs(int64(8), models.TransactionTypeRefund, models.PaymentStatusRefunded).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("0"))

		total, err := st.SumPayments(ctx, 8, models.TransactionTypeRefund, models.PaymentStatusRefunded)
		require.NoError(t, err)
		assert.True(t, total.IsZero())
	})
}

func TestFirstChargePayment(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	t.Run("Found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "rental_id", "account_id", "amount", "transaction_type", "status"}).
			AddRow(3, 7, 55, "2600.00", models.TransactionTypeCharge, models.PaymentStatusPaid)

		mock.ExpectQuery("SELECT \\* FROM payments WHERE rental_id = \\$1 AND transaction_type = \\$2 ORDER BY created_at, id LIMIT 1").
			WithArgs(int64(7), models.TransactionTypeCharge).
			WillReturnRows(rows)

		payment, err := st.FirstChargePayment(ctx, 7)
		require.NoError(t, err)
		require.NotNil(t, payment)
		require.NotNil(t, payment.AccountID)
		assert.Equal(t, int64(55), *payment.AccountID)
	})

	t.Run("NoCharges", func(t *testing.T) {
		mock.ExpectQuery("SELECT \\* FROM payments WHERE rental_id = \\$1 AND transaction_type = \\$2").
			WithArgs(int64(8), models.TransactionTypeCharge).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		payment, err := st.FirstChargePayment(ctx, 8)
		require.NoError(t, err)
		assert.Nil(t, payment)
	})
}

func TestUpdateVehicleStatus(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE vehicles SET status = \\$1, updated_at = NOW\\(\\) WHERE id = \\$2").
			WithArgs(models.VehicleStatusRented, int64(10)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := st.UpdateVehicleStatus(ctx, 10, models.VehicleStatusRented)
		assert.NoError(t, err)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE vehicles SET").
			WithArgs(models.VehicleStatusAvailable, int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := st.UpdateVehicleStatus(ctx, 99, models.VehicleStatusAvailable)
		assert.True(t, models.IsNotFound(err))
	})
}

func TestTransact(t *testing.T) {
	ctx := context.Background()

	t.Run("CommitsOnSuccess", func(t *testing.T) {
		st, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE vehicles SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := st.Transact(ctx, func(tx *Store) error {
			return tx.UpdateVehicleStatus(ctx, 10, models.VehicleStatusRented)
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollsBackOnError", func(t *testing.T) {
		st, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		wantErr := errors.New("boom")
		err := st.Transact(ctx, func(tx *Store) error {
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SavepointIsolatesFailedWork", func(t *testing.T) {
		st, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("^SAVEPOINT order_7$").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE vehicles SET").
			WillReturnError(errors.New("deadlock detected"))
		mock.ExpectExec("^ROLLBACK TO SAVEPOINT order_7$").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE vehicles SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := st.Transact(ctx, func(tx *Store) error {
			spErr := tx.Savepoint(ctx, "order_7", func() error {
				return tx.UpdateVehicleStatus(ctx, 10, models.VehicleStatusRented)
			})
			assert.Error(t, spErr)

			// the transaction is still usable after the rollback
			return tx.UpdateVehicleStatus(ctx, 11, models.VehicleStatusRented)
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SavepointReleasedOnSuccess", func(t *testing.T) {
		st, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("^SAVEPOINT order_7$").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE vehicles SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("^RELEASE SAVEPOINT order_7$").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := st.Transact(ctx, func(tx *Store) error {
			return tx.Savepoint(ctx, "order_7", func() error {
				return tx.UpdateVehicleStatus(ctx, 10, models.VehicleStatusRented)
			})
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SavepointOutsideTransactionRunsDirect", func(t *testing.T) {
		st, mock := newMockStore(t)

		mock.ExpectExec("UPDATE vehicles SET").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := st.Savepoint(ctx, "order_7", func() error {
			return st.UpdateVehicleStatus(ctx, 10, models.VehicleStatusRented)
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NestedReusesTransaction", func(t *testing.T) {
		st, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE vehicles SET").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := st.Transact(ctx, func(tx *Store) error {
			return tx.Transact(ctx, func(inner *Store) error {
				return inner.UpdateVehicleStatus(ctx, 10, models.VehicleStatusRented)
			})
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
