package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ricemill/internal/apperror"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func sample(number, date, variety string, total, head float64) Sample {
	return Sample{
		BatchID:           number,
		BatchNumber:       number,
		BatchDate:         day(date),
		PaddyVariety:      variety,
		HeadRicePercent:   head,
		BrokenRicePercent: total - head,
		BranPercent:       8,
		HuskPercent:       15,
		TotalYieldPercent: total,
		MillingRecovery:   total + 23,
		InputQuantity:     1000,
		OutputQuantity:    (total + 23) * 10,
	}
}

func TestEmptyInputNeverDivides(t *testing.T) {
	overall := Overall(nil)
	assert.False(t, overall.HasData)
	assert.Zero(t, overall.BatchCount)
	assert.Zero(t, overall.MeanTotalYield)
	assert.Equal(t, PercentageMeans{}, overall.Means)

	trends := Trends(nil, Daily)
	assert.NotNil(t, trends)
	assert.Empty(t, trends)

	variance := Variance([]Sample{})
	assert.False(t, variance.HasData)
	assert.Zero(t, variance.StandardDeviation)
	assert.Empty(t, variance.Inconsistent)

	assert.Empty(t, ByVariety(nil))
	assert.Empty(t, ByMachine(nil, 720))
	assert.Empty(t, LowYield(nil, DefaultLowYieldThreshold))
	assert.Empty(t, HighYield(nil, DefaultHighYieldThreshold))

	perf := Performance(nil, 5)
	assert.Empty(t, perf.Batches)
	assert.Empty(t, perf.Top)
	assert.Empty(t, perf.Bottom)
}

func TestOverall(t *testing.T) {
	samples := []Sample{
		sample("B1", "2026-09-01", "IR64", 75, 65),
		sample("B2", "2026-09-02", "IR64", 60, 50),
		sample("B3", "2026-09-03", "Basmati", 70, 62),
	}

	got := Overall(samples)
	assert.True(t, got.HasData)
	assert.Equal(t, 3, got.BatchCount)
	assert.Equal(t, 68.33, got.MeanTotalYield)
	assert.Equal(t, 60.0, got.MinTotalYield)
	assert.Equal(t, 75.0, got.MaxTotalYield)
	assert.Equal(t, 59.0, got.Means.HeadRice)
	assert.Equal(t, 8.0, got.Means.Bran)
	assert.Equal(t, 15.0, got.Means.Husk)
	assert.Equal(t, 3000.0, got.TotalInput)
}

func TestTrends(t *testing.T) {
	samples := []Sample{
		sample("B5", "2026-10-02", "IR64", 70, 60),
		sample("B1", "2026-09-01", "IR64", 75, 65),
		sample("B3", "2026-09-03", "IR64", 60, 50),
		sample("B2", "2026-09-01", "IR64", 65, 55),
		sample("B4", "2026-09-08", "IR64", 72, 60),
	}

	t.Run("daily", func(t *testing.T) {
		points := Trends(samples, Daily)
		require.Len(t, points, 4)
		assert.Equal(t, "2026-09-01", points[0].Period)
		assert.Equal(t, 2, points[0].BatchCount)
		assert.Equal(t, 70.0, points[0].Means.TotalYield)
		assert.Equal(t, 60.0, points[0].Means.HeadRice)
		assert.Equal(t, "2026-09-03", points[1].Period)
		assert.Equal(t, "2026-09-08", points[2].Period)
		assert.Equal(t, "2026-10-02", points[3].Period)
	})

	t.Run("weekly starts on monday", func(t *testing.T) {
		points := Trends(samples, Weekly)
		require.Len(t, points, 3)
		assert.Equal(t, day("2026-08-31"), points[0].PeriodStart)
		assert.Equal(t, "2026-W36", points[0].Period)
		assert.Equal(t, 3, points[0].BatchCount)
		assert.Equal(t, day("2026-09-07"), points[1].PeriodStart)
		assert.Equal(t, "2026-W40", points[2].Period)
	})

	t.Run("monthly", func(t *testing.T) {
		points := Trends(samples, Monthly)
		require.Len(t, points, 2)
		assert.Equal(t, "2026-09", points[0].Period)
		assert.Equal(t, 4, points[0].BatchCount)
		assert.Equal(t, "2026-10", points[1].Period)
		assert.Equal(t, 1, points[1].BatchCount)
	})
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("")
	require.NoError(t, err)
	assert.Equal(t, Daily, g)

	g, err = ParseGranularity("weekly")
	require.NoError(t, err)
	assert.Equal(t, Weekly, g)

	_, err = ParseGranularity("hourly")
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestByVariety(t *testing.T) {
	samples := []Sample{
		sample("B1", "2026-09-01", "IR64", 75, 65),
		sample("B2", "2026-09-02", "IR64", 65, 55),
		sample("B3", "2026-09-03", "Basmati", 60, 50),
		sample("B4", "2026-09-04", "Basmati", 70, 62),
		sample("B5", "2026-09-05", "Jasmine", 72, 64),
	}

	got := ByVariety(samples)
	require.Len(t, got, 3)
	assert.Equal(t, "Jasmine", got[0].PaddyVariety)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "IR64", got[1].PaddyVariety)
	assert.Equal(t, 2, got[1].BatchCount)
	assert.Equal(t, 70.0, got[1].MeanTotalYield)
	assert.Equal(t, 60.0, got[1].MeanHeadRice)
	assert.Equal(t, "Basmati", got[2].PaddyVariety)
	assert.Equal(t, 3, got[2].Rank)
}

func TestByMachine(t *testing.T) {
	a := sample("B1", "2026-09-01", "IR64", 75, 65)
	a.MachineID, a.MachineName, a.DurationHours = "m1", "Huller 1", 4
	b := sample("B2", "2026-09-02", "IR64", 65, 55)
	b.MachineID, b.MachineName, b.DurationHours = "m1", "Huller 1", 6
	c := sample("B3", "2026-09-03", "IR64", 72, 60)
	c.MachineID, c.MachineName, c.DurationHours = "m2", "Huller 2", 5
	unassigned := sample("B4", "2026-09-04", "IR64", 90, 80)

	got := ByMachine([]Sample{a, b, c, unassigned}, 100)
	require.Len(t, got, 2)

	assert.Equal(t, "m2", got[0].MachineID)
	assert.Equal(t, 72.0, got[0].MeanTotalYield)
	assert.Equal(t, 0.05, got[0].Utilization)

	assert.Equal(t, "m1", got[1].MachineID)
	assert.Equal(t, "Huller 1", got[1].MachineName)
	assert.Equal(t, 2, got[1].BatchCount)
	assert.Equal(t, 70.0, got[1].MeanTotalYield)
	assert.Equal(t, 2000.0, got[1].TotalInput)
	assert.Equal(t, 10.0, got[1].RunningHours)
	assert.Equal(t, 0.1, got[1].Utilization)

	zeroRange := ByMachine([]Sample{a}, 0)
	require.Len(t, zeroRange, 1)
	assert.Zero(t, zeroRange[0].Utilization)
}

func TestVariance(t *testing.T) {
	got := Variance([]Sample{
		sample("B1", "2026-09-01", "IR64", 60, 50),
		sample("B2", "2026-09-02", "IR64", 70, 60),
	})
	assert.True(t, got.HasData)
	assert.Equal(t, 65.0, got.Mean)
	assert.Equal(t, 5.0, got.StandardDeviation)
	assert.Equal(t, 25.0, got.Variance)
	assert.Equal(t, 10.0, got.Spread)
	assert.Equal(t, 0.0769, got.CoefficientOfVariation)
	assert.Empty(t, got.Inconsistent)

	t.Run("flags outliers beyond two deviations", func(t *testing.T) {
		var samples []Sample
		for i := 0; i < 10; i++ {
			samples = append(samples, sample("OK", "2026-09-01", "IR64", 70, 60))
		}
		samples = append(samples, sample("BAD", "2026-09-02", "IR64", 40, 30))

		got := Variance(samples)
		require.Len(t, got.Inconsistent, 1)
		assert.Equal(t, "BAD", got.Inconsistent[0].BatchNumber)
	})

	t.Run("single batch has no spread", func(t *testing.T) {
		got := Variance([]Sample{sample("B1", "2026-09-01", "IR64", 70, 60)})
		assert.True(t, got.HasData)
		assert.Zero(t, got.StandardDeviation)
		assert.Empty(t, got.Inconsistent)
	})
}

func TestThresholdBoundaries(t *testing.T) {
	samples := []Sample{
		sample("AT60", "2026-09-01", "IR64", 60.0, 50),
		sample("BELOW60", "2026-09-01", "IR64", 59.99, 50),
		sample("AT70", "2026-09-01", "IR64", 70.0, 60),
		sample("BELOW70", "2026-09-01", "IR64", 69.99, 60),
	}

	low := LowYield(samples, DefaultLowYieldThreshold)
	require.Len(t, low, 1)
	assert.Equal(t, "BELOW60", low[0].BatchNumber)

	high := HighYield(samples, DefaultHighYieldThreshold)
	require.Len(t, high, 1)
	assert.Equal(t, "AT70", high[0].BatchNumber)

	low65 := LowYield(samples, 65)
	require.Len(t, low65, 2)
	assert.Equal(t, "BELOW60", low65[0].BatchNumber)
	assert.Equal(t, "AT60", low65[1].BatchNumber)
}

func TestPerformance(t *testing.T) {
	var samples []Sample
	for i, q := range []float64{3, 7, 1, 5, 2, 6, 4} {
		s := sample(string(rune('A'+i)), "2026-09-01", "IR64", 70, 60)
		s.QualityScore = q
		samples = append(samples, s)
	}

	got := Performance(samples, 5)
	require.Len(t, got.Batches, 7)
	assert.Equal(t, 7.0, got.Batches[0].QualityScore)
	assert.Equal(t, 1.0, got.Batches[6].QualityScore)

	require.Len(t, got.Top, 5)
	assert.Equal(t, []float64{7, 6, 5, 4, 3}, qualities(got.Top))
	require.Len(t, got.Bottom, 5)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, qualities(got.Bottom))

	short := Performance(samples[:2], 5)
	assert.Len(t, short.Top, 2)
	assert.Len(t, short.Bottom, 2)
}

func qualities(rows []BatchRow) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.QualityScore
	}
	return out
}
