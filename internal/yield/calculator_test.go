package yield

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ricemill/internal/apperror"
)

func qty(input, head, broken, bran, husk float64) Quantities {
	return Quantities{
		Input:      decimal.NewFromFloat(input),
		HeadRice:   decimal.NewFromFloat(head),
		BrokenRice: decimal.NewFromFloat(broken),
		Bran:       decimal.NewFromFloat(bran),
		Husk:       decimal.NewFromFloat(husk),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestCalculate_ReferenceRun(t *testing.T) {
	b, err := Calculate(qty(100, 65, 10, 8, 15))
	require.NoError(t, err)

	assertDecimal(t, "65", b.HeadRicePercent)
	assertDecimal(t, "10", b.BrokenRicePercent)
	assertDecimal(t, "8", b.BranPercent)
	assertDecimal(t, "15", b.HuskPercent)
	assertDecimal(t, "75", b.TotalYieldPercent)
	assertDecimal(t, "98", b.MillingRecovery)
	assert.False(t, b.ExceedsInput())
}

func TestCalculate_ZeroOrNegativeInput(t *testing.T) {
	for _, input := range []float64{0, -5} {
		_, err := Calculate(qty(input, 65, 10, 8, 15))
		require.Error(t, err)
		assert.Equal(t, apperror.KindDivisionByZero, apperror.KindOf(err))
	}

	_, err := Calculate(qty(0, 0, 0, 0, 0))
	assert.ErrorIs(t, err, apperror.ErrDivisionByZero)
}

func TestCalculate_NegativeOutput(t *testing.T) {
	_, err := Calculate(qty(100, 65, -1, 8, 15))
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestCalculate_RoundingOnlyAtStorage(t *testing.T) {
	b, err := Calculate(qty(3, 1, 1, 0.5, 0.4))
	require.NoError(t, err)

	// 1/3 carried at full precision, rounded only on request.
	assert.True(t, b.HeadRicePercent.GreaterThan(decimal.RequireFromString("33.333")))
	r := b.Rounded()
	assertDecimal(t, "33.33", r.HeadRicePercent)
	assertDecimal(t, "66.67", r.TotalYieldPercent)
	assertDecimal(t, "96.67", r.MillingRecovery)
}

func TestCalculate_Deterministic(t *testing.T) {
	q := qty(1250.5, 800.25, 120, 95.5, 210)
	first, err := Calculate(q)
	require.NoError(t, err)
	second, err := Calculate(q)
	require.NoError(t, err)
	assert.Equal(t, first.Rounded(), second.Rounded())
}

func TestBreakdown_ExceedsInput(t *testing.T) {
	b, err := Calculate(qty(100, 70, 10, 10, 15))
	require.NoError(t, err)
	assert.True(t, b.ExceedsInput())
}
