package service

import (
	"context"
	"fmt"
	"time"

	"rental-service/internal/broker"
	"rental-service/internal/models"
	"rental-service/internal/pricing"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// RentalService owns the rental order lifecycle and billing operations
type RentalService struct {
	store          *store.Store
	registry       *RegistryClient
	settlement     *SettlementLedger
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewRentalService creates a new rental service
func NewRentalService(
	store *store.Store,
	registry *RegistryClient,
	settlement *SettlementLedger,
	eventPublisher *broker.EventPublisher,
) *RentalService {
	return &RentalService{
		store:          store,
		registry:       registry,
		settlement:     settlement,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateRentalRequest represents a request to book a rental order
type CreateRentalRequest struct {
	CustomerID          int64            `json:"customer_id" binding:"required"`
	VehicleID           int64            `json:"vehicle_id" binding:"required"`
	StartDate           string           `json:"start_date" binding:"required"`
	EndDate             string           `json:"end_date" binding:"required"`
	PickupLocation      string           `json:"pickup_location" binding:"required"`
	CrossLocationReturn bool             `json:"cross_location_return"`
	ReturnLocation      string           `json:"return_location,omitempty"`
	Deposit             *decimal.Decimal `json:"deposit,omitempty"`
	CrossLocationFee    *decimal.Decimal `json:"cross_location_fee,omitempty"`
	Notes               string           `json:"notes,omitempty"`
}

// CreateRental books a new rental order. The total comes from the pricing
// calculator; the vehicle is marked rented right away when the rental starts
// today or earlier.
func (s *RentalService) CreateRental(ctx context.Context, req *CreateRentalRequest) (*models.Rental, error) {
	ctx, span := util.StartSpan(ctx, "RentalService.CreateRental")
	defer span.End()

	startDate, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	if startDate.After(endDate) {
		return nil, models.NewValidationError("end_date", "end date must not be before start date")
	}

	customer, err := s.registry.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		util.RentalsFailedTotal.WithLabelValues("unknown_customer").Inc()
		return nil, err
	}
	vehicle, err := s.registry.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		util.RentalsFailedTotal.WithLabelValues("unknown_vehicle").Inc()
		return nil, err
	}
	if !vehicle.DailyRate.IsPositive() {
		return nil, models.NewValidationError("vehicle_id", "vehicle has no positive daily rate")
	}

	deposit := pricing.DefaultDeposit(vehicle.DailyRate)
	if req.Deposit != nil && !req.Deposit.IsZero() {
		if req.Deposit.IsNegative() {
			return nil, models.NewValidationError("deposit", "deposit must not be negative")
		}
		deposit = req.Deposit.Round(2)
	}

	crossFee := decimal.Zero
	returnLocation := req.ReturnLocation
	if req.CrossLocationReturn {
		if returnLocation == "" {
			returnLocation = req.PickupLocation
		}
		crossFee = pricing.DefaultCrossLocationFee(vehicle.DailyRate)
		if req.CrossLocationFee != nil && !req.CrossLocationFee.IsZero() {
			if req.CrossLocationFee.IsNegative() {
				return nil, models.NewValidationError("cross_location_fee", "fee must not be negative")
			}
			crossFee = req.CrossLocationFee.Round(2)
		}
	}

	breakdown := pricing.Calculate(pricing.Input{
		DailyRate:        vehicle.DailyRate,
		MemberLevel:      customer.MemberLevel,
		StartDate:        startDate,
		EndDate:          endDate,
		Deposit:          deposit,
		CrossLocation:    req.CrossLocationReturn,
		CrossLocationFee: crossFee,
	})

	rental := &models.Rental{
		CustomerID:            req.CustomerID,
		VehicleID:             req.VehicleID,
		StartDate:             startDate,
		EndDate:               endDate,
		TotalAmount:           breakdown.Subtotal,
		Deposit:               deposit,
		PickupLocation:        req.PickupLocation,
		IsCrossLocationReturn: req.CrossLocationReturn,
		CrossLocationFee:      crossFee,
		Status:                models.RentalStatusBooked,
		SettlementStatus:      models.SettlementUnsettled,
		AmountPaid:            decimal.Zero,
		AmountRefunded:        decimal.Zero,
		Notes:                 req.Notes,
	}
	if returnLocation != "" {
		rental.ReturnLocation = &returnLocation
	}

	vehicleRented := false
	err = s.store.Transact(ctx, func(st *store.Store) error {
		if err := st.CreateRental(ctx, rental); err != nil {
			return fmt.Errorf("failed to create rental: %w", err)
		}

		if startDate.After(today()) {
			return nil
		}
		locked, err := st.GetVehicleForUpdate(ctx, rental.VehicleID)
		if err != nil {
			return err
		}
		if locked.Status == models.VehicleStatusAvailable {
			if err := st.UpdateVehicleStatus(ctx, locked.ID, models.VehicleStatusRented); err != nil {
				return err
			}
			vehicleRented = true
		}
		return nil
	})
	if err != nil {
		util.RentalsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.RentalsCreatedTotal.Inc()
	if vehicleRented {
		s.registry.InvalidateVehicle(ctx, rental.VehicleID)
	}

	s.logger.Info("Rental booked",
		zap.Int64("rental_id", rental.ID),
		zap.Int64("customer_id", rental.CustomerID),
		zap.Int64("vehicle_id", rental.VehicleID),
		zap.String("order_total", rental.OrderTotal().String()))

	event := &models.RentalBookedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeRentalBooked),
		RentalID:   rental.ID,
		CustomerID: rental.CustomerID,
		VehicleID:  rental.VehicleID,
		StartDate:  rental.StartDate.Format(dateLayout),
		EndDate:    rental.EndDate.Format(dateLayout),
		OrderTotal: rental.OrderTotal(),
	}
	if err := s.eventPublisher.PublishRentalBooked(ctx, event); err != nil {
		s.logger.Error("Failed to publish RentalBooked event", zap.Error(err))
	}

	return rental, nil
}

// UpdateRentalRequest carries the optional field updates for an order
type UpdateRentalRequest struct {
	CustomerID       *int64           `json:"customer_id,omitempty"`
	VehicleID        *int64           `json:"vehicle_id,omitempty"`
	StartDate        *string          `json:"start_date,omitempty"`
	EndDate          *string          `json:"end_date,omitempty"`
	PickupLocation   *string          `json:"pickup_location,omitempty"`
	ReturnLocation   *string          `json:"return_location,omitempty"`
	CrossLocation    *bool            `json:"cross_location_return,omitempty"`
	CrossLocationFee *decimal.Decimal `json:"cross_location_fee,omitempty"`
	Deposit          *decimal.Decimal `json:"deposit,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
}

// UpdateRental edits an order and reprices it. Customer and vehicle can only
// change while the order is still BOOKED; nothing can change once the order
// is COMPLETED or CANCELLED.
func (s *RentalService) UpdateRental(ctx context.Context, rentalID int64, req *UpdateRentalRequest) (*models.Rental, error) {
	ctx, span := util.StartSpan(ctx, "RentalService.UpdateRental")
	defer span.End()

	var updated *models.Rental
	err := s.store.Transact(ctx, func(st *store.Store) error {
		rental, err := st.GetRentalForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}

		if rental.Status == models.RentalStatusCompleted || rental.Status == models.RentalStatusCancelled {
			return models.NewValidationError("status", "order can no longer be modified")
		}
		if (req.CustomerID != nil || req.VehicleID != nil) && rental.Status != models.RentalStatusBooked {
			return models.NewValidationError("status", "customer and vehicle are fixed once the rental is active")
		}

		if req.CustomerID != nil {
			rental.CustomerID = *req.CustomerID
		}
		if req.VehicleID != nil {
			rental.VehicleID = *req.VehicleID
		}
		if req.StartDate != nil {
			start, err := parseDate("start_date", *req.StartDate)
			if err != nil {
				return err
			}
			rental.StartDate = start
		}
		if req.EndDate != nil {
			end, err := parseDate("end_date", *req.EndDate)
			if err != nil {
				return err
			}
			rental.EndDate = end
		}
		if rental.StartDate.After(rental.EndDate) {
			return models.NewValidationError("end_date", "end date must not be before start date")
		}
		if req.PickupLocation != nil {
			rental.PickupLocation = *req.PickupLocation
		}
		if req.ReturnLocation != nil {
			rental.ReturnLocation = req.ReturnLocation
		}
		if req.CrossLocation != nil {
			rental.IsCrossLocationReturn = *req.CrossLocation
		}
		if req.Deposit != nil {
			if req.Deposit.IsNegative() {
				return models.NewValidationError("deposit", "deposit must not be negative")
			}
			rental.Deposit = req.Deposit.Round(2)
		}
		if req.CrossLocationFee != nil {
			if req.CrossLocationFee.IsNegative() {
				return models.NewValidationError("cross_location_fee", "fee must not be negative")
			}
			rental.CrossLocationFee = req.CrossLocationFee.Round(2)
		}
		if req.Notes != nil {
			rental.Notes = *req.Notes
		}

		customer, err := st.GetCustomerByID(ctx, rental.CustomerID)
		if err != nil {
			return err
		}
		vehicle, err := st.GetVehicleByID(ctx, rental.VehicleID)
		if err != nil {
			return err
		}

		if rental.IsCrossLocationReturn {
			if rental.ReturnLocation == nil || *rental.ReturnLocation == "" {
				loc := rental.PickupLocation
				rental.ReturnLocation = &loc
			}
			if rental.CrossLocationFee.IsZero() {
				rental.CrossLocationFee = pricing.DefaultCrossLocationFee(vehicle.DailyRate)
			}
		}
		if rental.Deposit.IsZero() {
			rental.Deposit = pricing.DefaultDeposit(vehicle.DailyRate)
		}

		breakdown := pricing.Calculate(pricing.Input{
			DailyRate:        vehicle.DailyRate,
			MemberLevel:      customer.MemberLevel,
			StartDate:        rental.StartDate,
			EndDate:          rental.EndDate,
			ActualReturnDate: rental.ActualReturnDate,
			Deposit:          rental.Deposit,
			CrossLocation:    rental.IsCrossLocationReturn,
			CrossLocationFee: rental.CrossLocationFee,
		})
		rental.TotalAmount = breakdown.Subtotal.Add(breakdown.ExtraAmount)

		if err := st.UpdateRental(ctx, rental); err != nil {
			return err
		}
		updated = rental
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Rental updated", zap.Int64("rental_id", updated.ID))
	return updated, nil
}

// GetRental retrieves an order together with its payment history
func (s *RentalService) GetRental(ctx context.Context, rentalID int64) (*models.Rental, []models.Payment, error) {
	rental, err := s.store.GetRentalByID(ctx, rentalID)
	if err != nil {
		return nil, nil, err
	}

	payments, err := s.store.ListPaymentsByRental(ctx, rentalID)
	if err != nil {
		return nil, nil, err
	}

	return rental, payments, nil
}

// ListCustomerRentals returns one customer's rental history, newest first
func (s *RentalService) ListCustomerRentals(ctx context.Context, customerID int64) ([]models.Rental, error) {
	if _, err := s.registry.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.store.ListRentalsByCustomer(ctx, customerID)
}

// GetCostBreakdown returns the itemized bill for an order
func (s *RentalService) GetCostBreakdown(ctx context.Context, rentalID int64) (*pricing.CostBreakdown, error) {
	ctx, span := util.StartSpan(ctx, "RentalService.GetCostBreakdown")
	defer span.End()

	rental, err := s.store.GetRentalByID(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	customer, err := s.registry.GetCustomer(ctx, rental.CustomerID)
	if err != nil {
		return nil, err
	}
	vehicle, err := s.registry.GetVehicle(ctx, rental.VehicleID)
	if err != nil {
		return nil, err
	}

	breakdown := pricing.Calculate(pricing.Input{
		DailyRate:        vehicle.DailyRate,
		MemberLevel:      customer.MemberLevel,
		StartDate:        rental.StartDate,
		EndDate:          rental.EndDate,
		ActualReturnDate: rental.ActualReturnDate,
		Deposit:          rental.Deposit,
		CrossLocation:    rental.IsCrossLocationReturn,
		CrossLocationFee: rental.CrossLocationFee,
	})
	return &breakdown, nil
}

// RefreshSettlement re-derives the settlement fields for one order from the
// payment ledger, used when the external ledger records a payment.
func (s *RentalService) RefreshSettlement(ctx context.Context, rentalID int64) error {
	ctx, span := util.StartSpan(ctx, "RentalService.RefreshSettlement")
	defer span.End()

	return s.store.Transact(ctx, func(st *store.Store) error {
		rental, err := st.GetRentalForUpdate(ctx, rentalID)
		if err != nil {
			return err
		}
		return s.settlement.Refresh(ctx, st, rental)
	})
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, models.NewValidationError(field, "must be a date in YYYY-MM-DD form")
	}
	return t, nil
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
