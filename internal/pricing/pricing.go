package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"rental-service/internal/models"
)

var (
	vipDiscountRate      = decimal.NewFromFloat(0.10)
	depositRateMultiple  = decimal.NewFromInt(10)
	crossLocationFeeRate = decimal.NewFromFloat(0.5)
)

// Input carries everything the calculator needs about a rental
type Input struct {
	DailyRate        decimal.Decimal
	MemberLevel      string
	StartDate        time.Time
	EndDate          time.Time
	ActualReturnDate *time.Time
	Deposit          decimal.Decimal
	CrossLocation    bool
	CrossLocationFee decimal.Decimal
}

// CostBreakdown itemizes every component of a rental bill so the order
// detail view can render it; Total is never the only exposed number.
type CostBreakdown struct {
	RentalDays       int             `json:"rental_days"`
	BaseAmount       decimal.Decimal `json:"base_amount"`
	Discount         decimal.Decimal `json:"discount"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	ExtraDays        int             `json:"extra_days"`
	ExtraAmount      decimal.Decimal `json:"extra_amount"`
	Deposit          decimal.Decimal `json:"deposit"`
	CrossLocationFee decimal.Decimal `json:"cross_location_fee"`
	Total            decimal.Decimal `json:"total"`
}

// RentalDays counts days inclusive of both endpoints, minimum 1.
// A single-day booking (start == end) is one rental day.
func RentalDays(start, end time.Time) int {
	days := int(dateOnly(end).Sub(dateOnly(start)).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

// ExtraDays counts overdue days past the booked end date, zero if on time
func ExtraDays(end, actualReturn time.Time) int {
	days := int(dateOnly(actualReturn).Sub(dateOnly(end)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// DefaultDeposit is the deposit applied when none is set: ten daily rates
func DefaultDeposit(dailyRate decimal.Decimal) decimal.Decimal {
	return dailyRate.Mul(depositRateMultiple).Round(2)
}

// DefaultCrossLocationFee is the fee applied when the cross-location flag is
// set without an explicit fee: half a daily rate
func DefaultCrossLocationFee(dailyRate decimal.Decimal) decimal.Decimal {
	return dailyRate.Mul(crossLocationFeeRate).Round(2)
}

// Calculate produces the itemized bill for a rental. The VIP discount is 10%
// of the base amount; the overdue surcharge is daily rate times days past the
// booked end date; the cross-location fee only counts toward the total when
// the flag is set. All amounts are rounded to 2 decimal places.
func Calculate(in Input) CostBreakdown {
	bd := CostBreakdown{
		RentalDays: RentalDays(in.StartDate, in.EndDate),
		Deposit:    in.Deposit.Round(2),
		Discount:   decimal.Zero,
	}

	bd.BaseAmount = in.DailyRate.Mul(decimal.NewFromInt(int64(bd.RentalDays))).Round(2)
	if in.MemberLevel == models.MemberLevelVIP {
		bd.Discount = bd.BaseAmount.Mul(vipDiscountRate).Round(2)
	}
	bd.Subtotal = bd.BaseAmount.Sub(bd.Discount)

	bd.ExtraAmount = decimal.Zero
	if in.ActualReturnDate != nil {
		bd.ExtraDays = ExtraDays(in.EndDate, *in.ActualReturnDate)
		if bd.ExtraDays > 0 {
			bd.ExtraAmount = in.DailyRate.Mul(decimal.NewFromInt(int64(bd.ExtraDays))).Round(2)
		}
	}

	bd.CrossLocationFee = decimal.Zero
	if in.CrossLocation {
		bd.CrossLocationFee = in.CrossLocationFee.Round(2)
	}

	bd.Total = bd.Subtotal.Add(bd.ExtraAmount).Add(bd.Deposit).Add(bd.CrossLocationFee)
	return bd
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
