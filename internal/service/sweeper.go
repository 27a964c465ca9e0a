package service

import (
	"context"
	"fmt"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/models"
	"rental-service/internal/redisclient"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"go.uber.org/zap"
)

const (
	sweepLockKey   = "lifecycle-sweep"
	sweepSavepoint = "sweep_order"
)

// SweepSummary reports what one sweep did
type SweepSummary struct {
	OrdersActivated  int `json:"orders_activated"`
	VehiclesRented   int `json:"vehicles_rented"`
	OrdersCompleted  int `json:"orders_completed"`
	VehiclesReleased int `json:"vehicles_released"`
	Errors           int `json:"errors"`
}

// Sweeper advances time-driven lifecycle transitions across all orders in
// two phases, each its own transaction: activate due BOOKED orders, then
// complete expired ACTIVE orders with settlement and vehicle release.
type Sweeper struct {
	store          *store.Store
	redis          *redisclient.Client
	rentals        *RentalService
	eventPublisher *broker.EventPublisher
	lockTTL        time.Duration
	logger         *zap.Logger
}

// NewSweeper creates a new sweeper. redis may be nil; the overlap lock is
// then skipped.
func NewSweeper(
	store *store.Store,
	redis *redisclient.Client,
	rentals *RentalService,
	eventPublisher *broker.EventPublisher,
	lockTTL time.Duration,
) *Sweeper {
	return &Sweeper{
		store:          store,
		redis:          redis,
		rentals:        rentals,
		eventPublisher: eventPublisher,
		lockTTL:        lockTTL,
		logger:         util.GetLogger(),
	}
}

// Sweep runs both phases and returns the summary. A second sweep with no new
// orders due reports all-zero counts.
func (sw *Sweeper) Sweep(ctx context.Context) (*SweepSummary, error) {
	ctx, span := util.StartSpan(ctx, "Sweeper.Sweep")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	if sw.redis != nil {
		acquired, err := sw.redis.AcquireLock(ctx, sweepLockKey, sw.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sweep lock: %w", err)
		}
		if !acquired {
			return nil, fmt.Errorf("another sweep is already running")
		}
		defer func() {
			if err := sw.redis.ReleaseLock(context.Background(), sweepLockKey); err != nil {
				sw.logger.Error("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	util.SweepRunsTotal.Inc()
	summary := &SweepSummary{}
	sweepDay := today()

	activated, err := sw.activateDueRentals(ctx, sweepDay, summary)
	if err != nil {
		return nil, fmt.Errorf("activation phase failed: %w", err)
	}

	completed, err := sw.completeExpiredRentals(ctx, sweepDay, summary)
	if err != nil {
		return nil, fmt.Errorf("completion phase failed: %w", err)
	}

	sw.publishOutcomes(ctx, activated, completed, summary)

	sw.logger.Info("Sweep finished",
		zap.Int("orders_activated", summary.OrdersActivated),
		zap.Int("vehicles_rented", summary.VehiclesRented),
		zap.Int("orders_completed", summary.OrdersCompleted),
		zap.Int("vehicles_released", summary.VehiclesReleased),
		zap.Int("errors", summary.Errors))

	return summary, nil
}

// activateDueRentals is phase 1: BOOKED orders whose start date has arrived
// become ACTIVE, flipping their vehicles to rented when available. One
// transaction for the whole phase; each order runs under a savepoint so a
// failed order rolls back alone and the rest of the phase continues.
func (sw *Sweeper) activateDueRentals(ctx context.Context, sweepDay time.Time, summary *SweepSummary) ([]*models.Rental, error) {
	var activated []*models.Rental

	err := sw.store.Transact(ctx, func(st *store.Store) error {
		due, err := st.ListRentalsDueForActivation(ctx, sweepDay)
		if err != nil {
			return err
		}

		for i := range due {
			rental := &due[i]

			rented := false
			err := st.Savepoint(ctx, sweepSavepoint, func() error {
				rental.Status = models.RentalStatusActive
				if err := st.UpdateRental(ctx, rental); err != nil {
					return err
				}

				vehicle, err := st.GetVehicleForUpdate(ctx, rental.VehicleID)
				if err != nil {
					return err
				}
				if vehicle.Status == models.VehicleStatusAvailable {
					if err := st.UpdateVehicleStatus(ctx, vehicle.ID, models.VehicleStatusRented); err != nil {
						return err
					}
					rented = true
				}
				return nil
			})
			if err != nil {
				sw.logger.Error("Failed to activate rental",
					zap.Int64("rental_id", rental.ID),
					zap.Int64("vehicle_id", rental.VehicleID), zap.Error(err))
				summary.Errors++
				continue
			}

			if rented {
				summary.VehiclesRented++
			}
			summary.OrdersActivated++
			activated = append(activated, rental)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.SweepOrdersActivated.Add(float64(summary.OrdersActivated))
	return activated, nil
}

// completeExpiredRentals is phase 2: ACTIVE orders past their end date are
// completed with the return date defaulted to the booked end date (no
// surcharge on this automatic path), settlement runs per order, and after
// all completions each touched vehicle is released unless it still carries
// another active order. One transaction for the whole phase, one savepoint
// per order.
func (sw *Sweeper) completeExpiredRentals(ctx context.Context, sweepDay time.Time, summary *SweepSummary) ([]*CompletionOutcome, error) {
	var outcomes []*CompletionOutcome

	err := sw.store.Transact(ctx, func(st *store.Store) error {
		expired, err := st.ListRentalsDueForCompletion(ctx, sweepDay)
		if err != nil {
			return err
		}

		touched := make(map[int64]bool)
		for i := range expired {
			rental := &expired[i]

			var outcome *CompletionOutcome
			err := st.Savepoint(ctx, sweepSavepoint, func() error {
				var err error
				outcome, err = sw.rentals.completeLocked(ctx, st, rental, nil, false)
				return err
			})
			if err != nil {
				sw.logger.Error("Failed to complete expired rental",
					zap.Int64("rental_id", rental.ID), zap.Error(err))
				summary.Errors++
				continue
			}

			summary.OrdersCompleted++
			if outcome.VehicleReleased {
				touched[rental.VehicleID] = true
			}
			outcomes = append(outcomes, outcome)
		}

		summary.VehiclesReleased = len(touched)
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.SweepOrdersCompleted.Add(float64(summary.OrdersCompleted))
	return outcomes, nil
}

// publishOutcomes emits the per-order and sweep-level events after both
// phases have committed
func (sw *Sweeper) publishOutcomes(ctx context.Context, activated []*models.Rental, completed []*CompletionOutcome, summary *SweepSummary) {
	for _, rental := range activated {
		event := &models.RentalActivatedEvent{
			BaseEvent: newBaseEvent(models.EventTypeRentalActivated),
			RentalID:  rental.ID,
			VehicleID: rental.VehicleID,
		}
		if err := sw.eventPublisher.PublishRentalActivated(ctx, event); err != nil {
			sw.logger.Error("Failed to publish RentalActivated event", zap.Error(err))
		}
		sw.rentals.registry.InvalidateVehicle(ctx, rental.VehicleID)
	}

	for _, outcome := range completed {
		sw.rentals.publishCompletion(ctx, outcome)
		sw.rentals.registry.InvalidateVehicle(ctx, outcome.Rental.VehicleID)
	}

	if summary.Errors > 0 {
		util.SweepErrorsTotal.Add(float64(summary.Errors))
	}

	event := &models.SweepCompletedEvent{
		BaseEvent:        newBaseEvent(models.EventTypeSweepCompleted),
		OrdersActivated:  summary.OrdersActivated,
		VehiclesRented:   summary.VehiclesRented,
		OrdersCompleted:  summary.OrdersCompleted,
		VehiclesReleased: summary.VehiclesReleased,
		Errors:           summary.Errors,
	}
	if err := sw.eventPublisher.PublishSweepCompleted(ctx, event); err != nil {
		sw.logger.Error("Failed to publish SweepCompleted event", zap.Error(err))
	}
}
