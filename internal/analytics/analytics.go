// Package analytics aggregates yield samples into trend series, rollups and
// batch rankings. Every function is pure and safe on empty input: means over
// no samples are reported as zero with HasData=false.
package analytics

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/montanaflynn/stats"

	"ricemill/internal/apperror"
)

const (
	DefaultLowYieldThreshold  = 60.0
	DefaultHighYieldThreshold = 70.0
	DefaultRankingSize        = 5
)

// Granularity selects the bucket width for trend series.
type Granularity string

const (
	Daily   Granularity = "DAILY"
	Weekly  Granularity = "WEEKLY"
	Monthly Granularity = "MONTHLY"
)

// ParseGranularity accepts the granularity case-insensitively and defaults
// to Daily when empty.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToUpper(strings.TrimSpace(s))) {
	case "", Daily:
		return Daily, nil
	case Weekly:
		return Weekly, nil
	case Monthly:
		return Monthly, nil
	default:
		return "", apperror.Validation("unsupported group_by %q, expected DAILY, WEEKLY or MONTHLY", s)
	}
}

// Sample is one completed or verified batch joined with its yield record.
type Sample struct {
	BatchID           string
	BatchNumber       string
	BatchDate         time.Time
	PaddyVariety      string
	MachineID         string
	MachineName       string
	QualityScore      float64
	InputQuantity     float64
	OutputQuantity    float64
	HeadRicePercent   float64
	BrokenRicePercent float64
	BranPercent       float64
	HuskPercent       float64
	TotalYieldPercent float64
	MillingRecovery   float64
	DurationHours     float64
}

type PercentageMeans struct {
	HeadRice        float64 `json:"head_rice_percent"`
	BrokenRice      float64 `json:"broken_rice_percent"`
	Bran            float64 `json:"bran_percent"`
	Husk            float64 `json:"husk_percent"`
	TotalYield      float64 `json:"total_yield_percent"`
	MillingRecovery float64 `json:"milling_recovery"`
}

type OverallStatistics struct {
	HasData        bool            `json:"has_data"`
	BatchCount     int             `json:"batch_count"`
	MeanTotalYield float64         `json:"mean_total_yield_percent"`
	MinTotalYield  float64         `json:"min_total_yield_percent"`
	MaxTotalYield  float64         `json:"max_total_yield_percent"`
	Means          PercentageMeans `json:"means"`
	TotalInput     float64         `json:"total_input_quantity"`
	TotalOutput    float64         `json:"total_output_quantity"`
}

type TrendPoint struct {
	Period      string          `json:"period"`
	PeriodStart time.Time       `json:"period_start"`
	BatchCount  int             `json:"batch_count"`
	Means       PercentageMeans `json:"means"`
}

type VarietyYield struct {
	Rank           int     `json:"rank"`
	PaddyVariety   string  `json:"paddy_variety"`
	BatchCount     int     `json:"batch_count"`
	MeanTotalYield float64 `json:"mean_total_yield_percent"`
	MeanHeadRice   float64 `json:"mean_head_rice_percent"`
	TotalInput     float64 `json:"total_input_quantity"`
}

type MachineYield struct {
	MachineID      string          `json:"machine_id"`
	MachineName    string          `json:"machine_name"`
	BatchCount     int             `json:"batch_count"`
	MeanTotalYield float64         `json:"mean_total_yield_percent"`
	Means          PercentageMeans `json:"means"`
	TotalInput     float64         `json:"total_input_quantity"`
	TotalOutput    float64         `json:"total_output_quantity"`
	RunningHours   float64         `json:"running_hours"`
	Utilization    float64         `json:"utilization_ratio"`
}

type BatchRow struct {
	BatchID           string    `json:"batch_id"`
	BatchNumber       string    `json:"batch_number"`
	BatchDate         time.Time `json:"batch_date"`
	PaddyVariety      string    `json:"paddy_variety"`
	MachineName       string    `json:"machine_name,omitempty"`
	QualityScore      float64   `json:"quality_score"`
	TotalYieldPercent float64   `json:"total_yield_percent"`
	HeadRicePercent   float64   `json:"head_rice_percent"`
	MillingRecovery   float64   `json:"milling_recovery"`
}

type VarianceAnalysis struct {
	HasData                bool       `json:"has_data"`
	BatchCount             int        `json:"batch_count"`
	Mean                   float64    `json:"mean_total_yield_percent"`
	StandardDeviation      float64    `json:"standard_deviation"`
	Variance               float64    `json:"variance"`
	Min                    float64    `json:"min_total_yield_percent"`
	Max                    float64    `json:"max_total_yield_percent"`
	Spread                 float64    `json:"spread"`
	CoefficientOfVariation float64    `json:"coefficient_of_variation"`
	Inconsistent           []BatchRow `json:"inconsistent_batches"`
}

type PerformanceReport struct {
	Batches []BatchRow `json:"batches"`
	Top     []BatchRow `json:"top"`
	Bottom  []BatchRow `json:"bottom"`
}

// Overall computes count, mean/min/max total yield and the category means.
func Overall(samples []Sample) OverallStatistics {
	out := OverallStatistics{BatchCount: len(samples)}
	if len(samples) == 0 {
		return out
	}
	totals := column(samples, func(s Sample) float64 { return s.TotalYieldPercent })
	out.HasData = true
	out.MeanTotalYield = round2(mean(totals))
	out.MinTotalYield = round2(minOf(totals))
	out.MaxTotalYield = round2(maxOf(totals))
	out.Means = means(samples)
	for _, s := range samples {
		out.TotalInput += s.InputQuantity
		out.TotalOutput += s.OutputQuantity
	}
	out.TotalInput = round2(out.TotalInput)
	out.TotalOutput = round2(out.TotalOutput)
	return out
}

// Trends buckets samples by BatchDate truncated to g. Empty buckets are
// omitted; the series is ordered chronologically.
func Trends(samples []Sample, g Granularity) []TrendPoint {
	buckets := make(map[time.Time][]Sample)
	for _, s := range samples {
		start := truncate(s.BatchDate, g)
		buckets[start] = append(buckets[start], s)
	}

	points := make([]TrendPoint, 0, len(buckets))
	for start, group := range buckets {
		points = append(points, TrendPoint{
			Period:      periodLabel(start, g),
			PeriodStart: start,
			BatchCount:  len(group),
			Means:       means(group),
		})
	}
	slices.SortFunc(points, func(a, b TrendPoint) int {
		return a.PeriodStart.Compare(b.PeriodStart)
	})
	return points
}

// ByVariety ranks paddy varieties by mean total yield, best first.
func ByVariety(samples []Sample) []VarietyYield {
	groups := make(map[string][]Sample)
	for _, s := range samples {
		groups[s.PaddyVariety] = append(groups[s.PaddyVariety], s)
	}

	out := make([]VarietyYield, 0, len(groups))
	for variety, group := range groups {
		v := VarietyYield{
			PaddyVariety:   variety,
			BatchCount:     len(group),
			MeanTotalYield: round2(mean(column(group, func(s Sample) float64 { return s.TotalYieldPercent }))),
			MeanHeadRice:   round2(mean(column(group, func(s Sample) float64 { return s.HeadRicePercent }))),
		}
		for _, s := range group {
			v.TotalInput += s.InputQuantity
		}
		v.TotalInput = round2(v.TotalInput)
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b VarietyYield) int {
		if c := cmp.Compare(b.MeanTotalYield, a.MeanTotalYield); c != 0 {
			return c
		}
		return cmp.Compare(a.PaddyVariety, b.PaddyVariety)
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// ByMachine groups samples by machine. Samples without a machine are skipped.
// Utilization is running hours over rangeHours.
func ByMachine(samples []Sample, rangeHours float64) []MachineYield {
	groups := make(map[string][]Sample)
	for _, s := range samples {
		if s.MachineID == "" {
			continue
		}
		groups[s.MachineID] = append(groups[s.MachineID], s)
	}

	out := make([]MachineYield, 0, len(groups))
	for id, group := range groups {
		m := MachineYield{
			MachineID:   id,
			MachineName: group[0].MachineName,
			BatchCount:  len(group),
			Means:       means(group),
		}
		m.MeanTotalYield = m.Means.TotalYield
		for _, s := range group {
			m.TotalInput += s.InputQuantity
			m.TotalOutput += s.OutputQuantity
			m.RunningHours += s.DurationHours
		}
		if rangeHours > 0 {
			m.Utilization = round4(m.RunningHours / rangeHours)
		}
		m.TotalInput = round2(m.TotalInput)
		m.TotalOutput = round2(m.TotalOutput)
		m.RunningHours = round2(m.RunningHours)
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b MachineYield) int {
		if c := cmp.Compare(b.MeanTotalYield, a.MeanTotalYield); c != 0 {
			return c
		}
		return cmp.Compare(a.MachineName, b.MachineName)
	})
	return out
}

// Variance measures the spread of total yield. Batches further than two
// standard deviations from the mean are listed as inconsistent runs.
func Variance(samples []Sample) VarianceAnalysis {
	out := VarianceAnalysis{BatchCount: len(samples), Inconsistent: []BatchRow{}}
	if len(samples) == 0 {
		return out
	}
	totals := column(samples, func(s Sample) float64 { return s.TotalYieldPercent })
	mu := mean(totals)
	sd, err := stats.StandardDeviationPopulation(totals)
	if err != nil {
		sd = 0
	}
	variance, err := stats.PopulationVariance(totals)
	if err != nil {
		variance = 0
	}
	lo, hi := minOf(totals), maxOf(totals)

	out.HasData = true
	out.Mean = round2(mu)
	out.StandardDeviation = round4(sd)
	out.Variance = round4(variance)
	out.Min = round2(lo)
	out.Max = round2(hi)
	out.Spread = round2(hi - lo)
	if mu != 0 {
		out.CoefficientOfVariation = round4(sd / mu)
	}
	if sd > 0 {
		for _, s := range samples {
			if math.Abs(s.TotalYieldPercent-mu) > 2*sd {
				out.Inconsistent = append(out.Inconsistent, row(s))
			}
		}
	}
	return out
}

// LowYield lists samples strictly below threshold, lowest first.
func LowYield(samples []Sample, threshold float64) []BatchRow {
	out := []BatchRow{}
	for _, s := range samples {
		if s.TotalYieldPercent < threshold {
			out = append(out, row(s))
		}
	}
	slices.SortStableFunc(out, func(a, b BatchRow) int {
		return cmp.Compare(a.TotalYieldPercent, b.TotalYieldPercent)
	})
	return out
}

// HighYield lists samples at or above threshold, highest first.
func HighYield(samples []Sample, threshold float64) []BatchRow {
	out := []BatchRow{}
	for _, s := range samples {
		if s.TotalYieldPercent >= threshold {
			out = append(out, row(s))
		}
	}
	slices.SortStableFunc(out, func(a, b BatchRow) int {
		return cmp.Compare(b.TotalYieldPercent, a.TotalYieldPercent)
	})
	return out
}

// Performance sorts all rows by quality score descending and slices the best
// and worst n. Bottom is ordered worst first.
func Performance(samples []Sample, n int) PerformanceReport {
	if n <= 0 {
		n = DefaultRankingSize
	}
	rows := make([]BatchRow, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, row(s))
	}
	slices.SortStableFunc(rows, func(a, b BatchRow) int {
		if c := cmp.Compare(b.QualityScore, a.QualityScore); c != 0 {
			return c
		}
		return cmp.Compare(a.BatchNumber, b.BatchNumber)
	})

	k := min(n, len(rows))
	top := slices.Clone(rows[:k])
	bottom := slices.Clone(rows[len(rows)-k:])
	slices.Reverse(bottom)
	return PerformanceReport{Batches: rows, Top: top, Bottom: bottom}
}

func means(samples []Sample) PercentageMeans {
	if len(samples) == 0 {
		return PercentageMeans{}
	}
	return PercentageMeans{
		HeadRice:        round2(mean(column(samples, func(s Sample) float64 { return s.HeadRicePercent }))),
		BrokenRice:      round2(mean(column(samples, func(s Sample) float64 { return s.BrokenRicePercent }))),
		Bran:            round2(mean(column(samples, func(s Sample) float64 { return s.BranPercent }))),
		Husk:            round2(mean(column(samples, func(s Sample) float64 { return s.HuskPercent }))),
		TotalYield:      round2(mean(column(samples, func(s Sample) float64 { return s.TotalYieldPercent }))),
		MillingRecovery: round2(mean(column(samples, func(s Sample) float64 { return s.MillingRecovery }))),
	}
}

func row(s Sample) BatchRow {
	return BatchRow{
		BatchID:           s.BatchID,
		BatchNumber:       s.BatchNumber,
		BatchDate:         s.BatchDate,
		PaddyVariety:      s.PaddyVariety,
		MachineName:       s.MachineName,
		QualityScore:      s.QualityScore,
		TotalYieldPercent: s.TotalYieldPercent,
		HeadRicePercent:   s.HeadRicePercent,
		MillingRecovery:   s.MillingRecovery,
	}
}

func column(samples []Sample, pick func(Sample) float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = pick(s)
	}
	return out
}

func mean(xs []float64) float64 {
	m, err := stats.Mean(xs)
	if err != nil {
		return 0
	}
	return m
}

func minOf(xs []float64) float64 {
	m, err := stats.Min(xs)
	if err != nil {
		return 0
	}
	return m
}

func maxOf(xs []float64) float64 {
	m, err := stats.Max(xs)
	if err != nil {
		return 0
	}
	return m
}

func truncate(t time.Time, g Granularity) time.Time {
	y, m, d := t.Date()
	switch g {
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	case Weekly:
		day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
		offset := (int(day.Weekday()) + 6) % 7 // Monday starts the week
		return day.AddDate(0, 0, -offset)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}
}

func periodLabel(start time.Time, g Granularity) string {
	switch g {
	case Monthly:
		return start.Format("2006-01")
	case Weekly:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	default:
		return start.Format("2006-01-02")
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
