package service

import (
	"context"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/pricing"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// allowedTransitions is the lifecycle table. COMPLETED and CANCELLED are
// terminal; nothing transitions into BOOKED.
var allowedTransitions = map[string]map[string]bool{
	models.RentalStatusBooked: {
		models.RentalStatusActive:    true,
		models.RentalStatusCompleted: true,
		models.RentalStatusCancelled: true,
	},
	models.RentalStatusActive: {
		models.RentalStatusCompleted: true,
		models.RentalStatusCancelled: true,
	},
}

// CanTransition reports whether the lifecycle table permits from -> to
func CanTransition(from, to string) bool {
	return allowedTransitions[from][to]
}

// TransitionContext carries the optional inputs of a lifecycle transition
type TransitionContext struct {
	Reason           string `json:"reason,omitempty"`
	ActualReturnDate string `json:"actual_return_date,omitempty"`
}

// CompletionOutcome reports what a completion did besides the status change
type CompletionOutcome struct {
	Rental            *models.Rental  `json:"rental"`
	VehicleReleased   bool            `json:"vehicle_released"`
	Refund            *models.Payment `json:"refund,omitempty"`
	NeedsManualRefund bool            `json:"needs_manual_refund"`
}

// Transition moves an order to a new lifecycle status, enforcing the table.
// Completing through here without a return date behaves like the automatic
// sweep: the return date defaults to the booked end date, capped at today,
// and no overdue surcharge is computed.
func (s *RentalService) Transition(ctx context.Context, rentalID int64, newStatus string, tctx TransitionContext) (*models.Rental, error) {
	ctx, span := util.StartSpan(ctx, "RentalService.Transition")
	defer span.End()

	switch newStatus {
	case models.RentalStatusActive:
		return s.Activate(ctx, rentalID)
	case models.RentalStatusCompleted:
		if tctx.ActualReturnDate != "" {
			outcome, err := s.RecordReturn(ctx, rentalID, tctx.ActualReturnDate)
			if err != nil {
				return nil, err
			}
			return outcome.Rental, nil
		}
		outcome, err := s.completeWithEvents(ctx, rentalID, nil, false)
		if err != nil {
			return nil, err
		}
		return outcome.Rental, nil
	case models.RentalStatusCancelled:
		return s.Cancel(ctx, rentalID, tctx.Reason)
	default:
		rental, err := s.store.GetRentalByID(ctx, rentalID)
		if err != nil {
			return nil, err
		}
		return nil, &models.IllegalTransitionError{From: rental.Status, To: newStatus}
	}
}

// Activate moves a BOOKED order to ACTIVE and marks the vehicle rented if it
// is currently available
func (s *RentalService) Activate(ctx context.Context, rentalID int64) (*models.Rental, error) {
	ctx, span := util.StartSpan(ctx, "RentalService.Activate")
	defer span.End()

	var rental *models.Rental
	err := s.store.Transact(ctx, func(st *store.Store) error {
		var err error
		rental, err = st.GetRentalForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if rental.Status != models.RentalStatusBooked {
			return &models.IllegalTransitionError{From: rental.Status, To: models.RentalStatusActive}
		}

		rental.Status = models.RentalStatusActive
		if err := st.UpdateRental(ctx, rental); err != nil {
			return err
		}

		vehicle, err := st.GetVehicleForUpdate(ctx, rental.VehicleID)
		if err != nil {
			return err
		}
		if vehicle.Status == models.VehicleStatusAvailable {
			return st.UpdateVehicleStatus(ctx, vehicle.ID, models.VehicleStatusRented)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.RentalsActivatedTotal.Inc()
	s.registry.InvalidateVehicle(ctx, rental.VehicleID)
	s.logger.Info("Rental activated", zap.Int64("rental_id", rental.ID))

	event := &models.RentalActivatedEvent{
		BaseEvent: newBaseEvent(models.EventTypeRentalActivated),
		RentalID:  rental.ID,
		VehicleID: rental.VehicleID,
	}
	if err := s.eventPublisher.PublishRentalActivated(ctx, event); err != nil {
		s.logger.Error("Failed to publish RentalActivated event", zap.Error(err))
	}

	return rental, nil
}

// RecordReturn completes an order against an actual return date. A return
// past the booked end date adds the overdue surcharge to the order total
// before the order is marked completed.
func (s *RentalService) RecordReturn(ctx context.Context, rentalID int64, actualReturnDate string) (*CompletionOutcome, error) {
	ctx, span := util.StartSpan(ctx, "RentalService.RecordReturn")
	defer span.End()

	returnDate, err := parseDate("actual_return_date", actualReturnDate)
	if err != nil {
		return nil, err
	}
	if returnDate.After(today()) {
		return nil, models.NewValidationError("actual_return_date", "return date must not be in the future")
	}

	return s.completeWithEvents(ctx, rentalID, &returnDate, true)
}

// Cancel moves an order to CANCELLED, recording the reason in its notes. The
// vehicle is released only if it is currently rented; cancelling against an
// already-available vehicle is not an error.
func (s *RentalService) Cancel(ctx context.Context, rentalID int64, reason string) (*models.Rental, error) {
	ctx, span := util.StartSpan(ctx, "RentalService.Cancel")
	defer span.End()

	if reason == "" {
		return nil, models.NewValidationError("reason", "a cancellation reason is required")
	}

	var rental *models.Rental
	vehicleReleased := false
	err := s.store.Transact(ctx, func(st *store.Store) error {
		var err error
		rental, err = st.GetRentalForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		if !CanTransition(rental.Status, models.RentalStatusCancelled) {
			return &models.IllegalTransitionError{From: rental.Status, To: models.RentalStatusCancelled}
		}

		rental.Status = models.RentalStatusCancelled
		if rental.Notes != "" {
			rental.Notes += "\n"
		}
		rental.Notes += "cancel reason: " + reason
		if err := st.UpdateRental(ctx, rental); err != nil {
			return err
		}

		vehicle, err := st.GetVehicleForUpdate(ctx, rental.VehicleID)
		if err != nil {
			return err
		}
		if vehicle.Status == models.VehicleStatusRented {
			if err := st.UpdateVehicleStatus(ctx, vehicle.ID, models.VehicleStatusAvailable); err != nil {
				return err
			}
			vehicleReleased = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.RentalsCancelledTotal.Inc()
	if vehicleReleased {
		s.registry.InvalidateVehicle(ctx, rental.VehicleID)
	}
	s.logger.Info("Rental cancelled",
		zap.Int64("rental_id", rental.ID),
		zap.String("reason", reason))

	event := &models.RentalCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeRentalCancelled),
		RentalID:  rental.ID,
		Reason:    reason,
	}
	if err := s.eventPublisher.PublishRentalCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish RentalCancelled event", zap.Error(err))
	}

	return rental, nil
}

// completeLocked performs a completion inside the caller's transaction:
// status write, settlement refresh, automatic deposit refund and the
// conditional vehicle release, all committing together. The vehicle row is
// locked before the release decision so concurrent completions on the same
// vehicle serialize.
func (s *RentalService) completeLocked(ctx context.Context, st *store.Store, rental *models.Rental, actualReturn *time.Time, applySurcharge bool) (*CompletionOutcome, error) {
	if !CanTransition(rental.Status, models.RentalStatusCompleted) {
		return nil, &models.IllegalTransitionError{From: rental.Status, To: models.RentalStatusCompleted}
	}

	returnDate := rental.EndDate
	if actualReturn != nil {
		returnDate = *actualReturn
	} else if rental.ActualReturnDate != nil {
		returnDate = *rental.ActualReturnDate
	} else if t := today(); returnDate.After(t) {
		// a recorded return date never lies in the future, so the default
		// is capped at today when the booked end date has not arrived
		returnDate = t
	}
	if returnDate.Before(rental.StartDate) {
		return nil, models.NewValidationError("actual_return_date", "return date must not be before the rental start date")
	}

	vehicle, err := st.GetVehicleForUpdate(ctx, rental.VehicleID)
	if err != nil {
		return nil, err
	}

	if applySurcharge && returnDate.After(rental.EndDate) {
		extraDays := pricing.ExtraDays(rental.EndDate, returnDate)
		extra := vehicle.DailyRate.Mul(decimal.NewFromInt(int64(extraDays))).Round(2)
		rental.TotalAmount = rental.TotalAmount.Add(extra)
		util.RentalsOverdueTotal.Inc()
		s.logger.Info("Overdue return, surcharge added",
			zap.Int64("rental_id", rental.ID),
			zap.Int("extra_days", extraDays),
			zap.String("extra_amount", extra.String()))
	}

	rental.ActualReturnDate = &returnDate
	rental.Status = models.RentalStatusCompleted
	if err := st.UpdateRental(ctx, rental); err != nil {
		return nil, err
	}

	refund, needsManual, err := s.settlement.AutoRefundDeposit(ctx, st, rental)
	if err != nil {
		return nil, err
	}
	if err := s.settlement.Refresh(ctx, st, rental); err != nil {
		return nil, err
	}

	released := false
	activeOthers, err := st.CountActiveRentalsForVehicle(ctx, rental.VehicleID, rental.ID)
	if err != nil {
		return nil, err
	}
	if activeOthers == 0 && vehicle.Status == models.VehicleStatusRented {
		if err := st.UpdateVehicleStatus(ctx, vehicle.ID, models.VehicleStatusAvailable); err != nil {
			return nil, err
		}
		released = true
	}

	return &CompletionOutcome{
		Rental:            rental,
		VehicleReleased:   released,
		Refund:            refund,
		NeedsManualRefund: needsManual,
	}, nil
}

// completeWithEvents wraps a single-order completion in its own transaction
// and publishes the outcome events after commit
func (s *RentalService) completeWithEvents(ctx context.Context, rentalID int64, actualReturn *time.Time, applySurcharge bool) (*CompletionOutcome, error) {
	var outcome *CompletionOutcome
	err := s.store.Transact(ctx, func(st *store.Store) error {
		rental, err := st.GetRentalForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		outcome, err = s.completeLocked(ctx, st, rental, actualReturn, applySurcharge)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.RentalsCompletedTotal.Inc()
	if outcome.VehicleReleased {
		s.registry.InvalidateVehicle(ctx, outcome.Rental.VehicleID)
	}
	s.logger.Info("Rental completed",
		zap.Int64("rental_id", outcome.Rental.ID),
		zap.Bool("vehicle_released", outcome.VehicleReleased),
		zap.String("settlement_status", outcome.Rental.SettlementStatus))

	s.publishCompletion(ctx, outcome)
	return outcome, nil
}

func (s *RentalService) publishCompletion(ctx context.Context, outcome *CompletionOutcome) {
	rental := outcome.Rental

	event := &models.RentalCompletedEvent{
		BaseEvent:        newBaseEvent(models.EventTypeRentalCompleted),
		RentalID:         rental.ID,
		VehicleID:        rental.VehicleID,
		OrderTotal:       rental.OrderTotal(),
		SettlementStatus: rental.SettlementStatus,
		VehicleReleased:  outcome.VehicleReleased,
	}
	if rental.ActualReturnDate != nil {
		event.ActualReturnDate = rental.ActualReturnDate.Format(dateLayout)
	}
	if err := s.eventPublisher.PublishRentalCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish RentalCompleted event", zap.Error(err))
	}

	if outcome.Refund != nil {
		refundEvent := &models.DepositRefundedEvent{
			BaseEvent:      newBaseEvent(models.EventTypeDepositRefunded),
			RentalID:       rental.ID,
			PaymentID:      outcome.Refund.ID,
			Amount:         outcome.Refund.Amount,
			TransactionRef: outcome.Refund.TransactionRef,
		}
		if err := s.eventPublisher.PublishDepositRefunded(ctx, refundEvent); err != nil {
			s.logger.Error("Failed to publish DepositRefunded event", zap.Error(err))
		}
	}

	if outcome.NeedsManualRefund {
		reviewEvent := &models.RefundNeedsReviewEvent{
			BaseEvent:  newBaseEvent(models.EventTypeRefundNeedsReview),
			RentalID:   rental.ID,
			Refundable: rental.Deposit.Sub(rental.AmountRefunded),
		}
		if err := s.eventPublisher.PublishRefundNeedsReview(ctx, reviewEvent); err != nil {
			s.logger.Error("Failed to publish RefundNeedsReview event", zap.Error(err))
		}
	}
}
