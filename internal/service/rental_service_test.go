package service

import (
	"context"
	"testing"
	"time"

	"rental-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCustomerRentals(t *testing.T) {
	ctx := context.Background()

	t.Run("NewestFirst", func(t *testing.T) {
		rentals, mock := newTestRentals(t)

		mock.ExpectQuery("SELECT \\* FROM customers WHERE id = \\$1").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "member_level"}).
				AddRow(1, "Wang Wei", models.MemberLevelVIP))

		rows := sqlmock.NewRows(rentalColumns).
			AddRow(8, 1, 11,
				time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
				"540", "1500", "Uptown", false, "0",
				models.RentalStatusActive, models.SettlementPartial, "540", "0", "").
			AddRow(7, 1, 10,
				time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
				"1200", "2000", "Downtown", false, "0",
				models.RentalStatusCompleted, models.SettlementSettled, "3200", "2000", "")

		mock.ExpectQuery("SELECT \\* FROM rentals WHERE customer_id = \\$1 ORDER BY created_at DESC").
			WithArgs(int64(1)).
			WillReturnRows(rows)

		history, err := rentals.ListCustomerRentals(ctx, 1)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, int64(8), history[0].ID)
		assert.Equal(t, int64(7), history[1].ID)
	})

	t.Run("UnknownCustomer", func(t *testing.T) {
		rentals, mock := newTestRentals(t)

		mock.ExpectQuery("SELECT \\* FROM customers WHERE id = \\$1").
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := rentals.ListCustomerRentals(ctx, 99)
		assert.True(t, models.IsNotFound(err))
	})
}
