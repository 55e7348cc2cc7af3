// Package yield turns a batch's paddy input and categorized outputs into the
// percentage breakdown stored on a yield record.
package yield

import (
	"github.com/shopspring/decimal"

	"ricemill/internal/apperror"
)

// StoragePlaces is the number of decimal places kept on persisted percentages.
const StoragePlaces = 2

var hundred = decimal.NewFromInt(100)

// Quantities are the measured weights of one milling run, all in the same unit.
type Quantities struct {
	Input      decimal.Decimal
	HeadRice   decimal.Decimal
	BrokenRice decimal.Decimal
	Bran       decimal.Decimal
	Husk       decimal.Decimal
}

// OutputTotal sums the four output categories.
func (q Quantities) OutputTotal() decimal.Decimal {
	return q.HeadRice.Add(q.BrokenRice).Add(q.Bran).Add(q.Husk)
}

// Breakdown holds every percentage relative to the paddy input.
type Breakdown struct {
	HeadRicePercent   decimal.Decimal
	BrokenRicePercent decimal.Decimal
	BranPercent       decimal.Decimal
	HuskPercent       decimal.Decimal
	TotalYieldPercent decimal.Decimal
	MillingRecovery   decimal.Decimal
}

// Calculate derives the breakdown at full precision. Bran and husk are
// expressed against paddy charged, not against rice produced. Milling
// recovery is reported as measured; losses from moisture and dust are not
// corrected.
func Calculate(q Quantities) (Breakdown, error) {
	if q.Input.LessThanOrEqual(decimal.Zero) {
		return Breakdown{}, apperror.New(apperror.KindDivisionByZero, "input paddy quantity must be greater than zero, got %s", q.Input.String())
	}
	for name, v := range map[string]decimal.Decimal{
		"head rice":   q.HeadRice,
		"broken rice": q.BrokenRice,
		"bran":        q.Bran,
		"husk":        q.Husk,
	} {
		if v.IsNegative() {
			return Breakdown{}, apperror.Validation("%s quantity cannot be negative, got %s", name, v.String())
		}
	}

	percent := func(v decimal.Decimal) decimal.Decimal {
		return v.Mul(hundred).Div(q.Input)
	}

	return Breakdown{
		HeadRicePercent:   percent(q.HeadRice),
		BrokenRicePercent: percent(q.BrokenRice),
		BranPercent:       percent(q.Bran),
		HuskPercent:       percent(q.Husk),
		TotalYieldPercent: percent(q.HeadRice.Add(q.BrokenRice)),
		MillingRecovery:   percent(q.OutputTotal()),
	}, nil
}

// Rounded returns the breakdown at storage precision.
func (b Breakdown) Rounded() Breakdown {
	return Breakdown{
		HeadRicePercent:   b.HeadRicePercent.Round(StoragePlaces),
		BrokenRicePercent: b.BrokenRicePercent.Round(StoragePlaces),
		BranPercent:       b.BranPercent.Round(StoragePlaces),
		HuskPercent:       b.HuskPercent.Round(StoragePlaces),
		TotalYieldPercent: b.TotalYieldPercent.Round(StoragePlaces),
		MillingRecovery:   b.MillingRecovery.Round(StoragePlaces),
	}
}

// ExceedsInput reports a recovery above 100%, which points at a weighing error.
func (b Breakdown) ExceedsInput() bool {
	return b.MillingRecovery.GreaterThan(hundred)
}
