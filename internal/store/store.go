package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rental-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store wraps the database. Methods run against q, which is either the pool
// or an open transaction, so the same method set works inside Transact.
type Store struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// NewStoreWithDB wraps an existing connection, used by tests with sqlmock
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db, q: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Transact runs fn inside a single database transaction. The Store handed to
// fn issues every query through that transaction; returning an error rolls
// everything back. Nested calls reuse the open transaction.
func (s *Store) Transact(ctx context.Context, fn func(*Store) error) error {
	if _, ok := s.q.(*sqlx.Tx); ok {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

// Savepoint runs fn under a savepoint inside the open transaction. When fn
// fails the transaction is rolled back to the savepoint, so earlier work in
// the transaction survives and later statements still run; Postgres would
// otherwise treat the whole transaction as aborted after the first failed
// statement. Outside a transaction fn runs as-is.
func (s *Store) Savepoint(ctx context.Context, name string, fn func() error) error {
	if _, ok := s.q.(*sqlx.Tx); !ok {
		return fn()
	}

	if _, err := s.q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := s.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to roll back to savepoint %s: %w", name, rbErr)
		}
		return err
	}

	if _, err := s.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// GetVehicleByID retrieves a vehicle by ID
func (s *Store) GetVehicleByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := sqlx.GetContext(ctx, s.q, &vehicle, "SELECT * FROM vehicles WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "vehicle", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}

// GetVehicleForUpdate locks the vehicle row for the rest of the transaction.
// Release-by-active-count decisions for the same vehicle serialize on this.
func (s *Store) GetVehicleForUpdate(ctx context.Context, id int64) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := sqlx.GetContext(ctx, s.q, &vehicle, "SELECT * FROM vehicles WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "vehicle", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock vehicle %d: %w", id, err)
	}
	return &vehicle, nil
}

// UpdateVehicleStatus writes the availability flag back to the fleet registry
func (s *Store) UpdateVehicleStatus(ctx context.Context, id int64, status string) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE vehicles SET status = $1, updated_at = NOW() WHERE id = $2",
		status, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &models.NotFoundError{Entity: "vehicle", ID: id}
	}
	return nil
}

// GetCustomerByID retrieves a customer by ID
func (s *Store) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	err := sqlx.GetContext(ctx, s.q, &customer, "SELECT * FROM customers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "customer", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
