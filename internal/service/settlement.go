package service

import (
	"context"
	"fmt"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementLedger recomputes an order's derived financial fields from its
// payment history and handles the automatic deposit refund on completion.
// Its methods take the caller's store so they join the caller's transaction.
type SettlementLedger struct {
	logger *zap.Logger
}

// NewSettlementLedger creates a new settlement ledger
func NewSettlementLedger() *SettlementLedger {
	return &SettlementLedger{logger: util.GetLogger()}
}

// ApplySettlement derives the settlement fields from the ledger sums. Pure:
// mutates only the passed rental. settled_at is stamped once, on the first
// refresh that finds the order settled, and cleared when it goes unsettled.
func ApplySettlement(rental *models.Rental, paid, refunded decimal.Decimal, now time.Time) {
	rental.AmountPaid = paid
	rental.AmountRefunded = refunded

	switch {
	case rental.Status == models.RentalStatusCompleted && rental.OrderTotal().LessThanOrEqual(paid):
		rental.SettlementStatus = models.SettlementSettled
		if rental.SettledAt == nil {
			t := now
			rental.SettledAt = &t
		}
	case paid.IsPositive():
		rental.SettlementStatus = models.SettlementPartial
	default:
		rental.SettlementStatus = models.SettlementUnsettled
		rental.SettledAt = nil
	}
}

// Refresh recomputes amount_paid and amount_refunded from the payment ledger
// and persists the derived settlement status. Must run inside the same
// transaction as any status write it follows.
func (sl *SettlementLedger) Refresh(ctx context.Context, st *store.Store, rental *models.Rental) error {
	start := time.Now()
	defer func() {
		util.SettlementRefreshLatency.Observe(time.Since(start).Seconds())
	}()

	paid, err := st.SumPayments(ctx, rental.ID, models.TransactionTypeCharge, models.PaymentStatusPaid)
	if err != nil {
		return fmt.Errorf("failed to sum charges: %w", err)
	}

	refunded, err := st.SumPayments(ctx, rental.ID, models.TransactionTypeRefund, models.PaymentStatusRefunded)
	if err != nil {
		return fmt.Errorf("failed to sum refunds: %w", err)
	}

	ApplySettlement(rental, paid, refunded, time.Now())

	if err := st.UpdateRentalFinancials(ctx, rental); err != nil {
		return fmt.Errorf("failed to persist settlement fields: %w", err)
	}

	return nil
}

// AutoRefundDeposit creates the deposit refund record when an order completes.
// The refund goes to the account behind the first charge payment, falling back
// to the customer's linked account. When neither exists no record is created
// and needsManual is true: the completion still commits, the condition is
// reported for manual follow-up.
func (sl *SettlementLedger) AutoRefundDeposit(ctx context.Context, st *store.Store, rental *models.Rental) (refund *models.Payment, needsManual bool, err error) {
	if !rental.Deposit.IsPositive() {
		return nil, false, nil
	}

	charges, err := st.SumPayments(ctx, rental.ID, models.TransactionTypeCharge, models.PaymentStatusPaid)
	if err != nil {
		return nil, false, fmt.Errorf("failed to sum charges: %w", err)
	}

	refunded, err := st.SumPayments(ctx, rental.ID, models.TransactionTypeRefund, models.PaymentStatusRefunded)
	if err != nil {
		return nil, false, fmt.Errorf("failed to sum refunds: %w", err)
	}

	refundable := rental.Deposit.Sub(refunded)
	if !refundable.IsPositive() || charges.LessThan(rental.Deposit) {
		return nil, false, nil
	}

	accountID, err := sl.refundAccount(ctx, st, rental)
	if err != nil {
		return nil, false, err
	}
	if accountID == nil {
		sl.logger.Warn("No account to attribute deposit refund, needs manual follow-up",
			zap.Int64("rental_id", rental.ID),
			zap.String("refundable", refundable.String()))
		util.RefundManualFollowupsTotal.Inc()
		return nil, true, nil
	}

	now := time.Now()
	payment := &models.Payment{
		RentalID:        rental.ID,
		AccountID:       accountID,
		Amount:          refundable,
		TransactionType: models.TransactionTypeRefund,
		Status:          models.PaymentStatusRefunded,
		Method:          "BANK",
		Description:     "deposit refunded automatically on completion",
		TransactionRef:  fmt.Sprintf("REF-%s", uuid.New().String()),
		PaidAt:          &now,
	}

	if err := st.CreatePayment(ctx, payment); err != nil {
		return nil, false, fmt.Errorf("failed to create refund record: %w", err)
	}

	util.DepositRefundsTotal.Inc()
	sl.logger.Info("Deposit refunded",
		zap.Int64("rental_id", rental.ID),
		zap.String("amount", refundable.String()),
		zap.String("transaction_ref", payment.TransactionRef))

	return payment, false, nil
}

// refundAccount walks the attribution chain: first charge payer, then the
// customer's linked account
func (sl *SettlementLedger) refundAccount(ctx context.Context, st *store.Store, rental *models.Rental) (*int64, error) {
	first, err := st.FirstChargePayment(ctx, rental.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load first charge payment: %w", err)
	}
	if first != nil && first.AccountID != nil {
		return first.AccountID, nil
	}

	customer, err := st.GetCustomerByID(ctx, rental.CustomerID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return customer.AccountID, nil
}
