package service

import (
	"context"
	"time"

	"ricemill/internal/analytics"
	"ricemill/internal/apperror"
	"ricemill/internal/model"
	"ricemill/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AnalyticsSettings carries the tunable defaults of the analytics endpoints.
type AnalyticsSettings struct {
	LowYieldThreshold  float64
	HighYieldThreshold float64
	RankingSize        int
	DefaultRangeDays   int
}

func DefaultAnalyticsSettings() AnalyticsSettings {
	return AnalyticsSettings{
		LowYieldThreshold:  analytics.DefaultLowYieldThreshold,
		HighYieldThreshold: analytics.DefaultHighYieldThreshold,
		RankingSize:        analytics.DefaultRankingSize,
		DefaultRangeDays:   30,
	}
}

// DateRange bounds analytics by batch date. From is inclusive, To exclusive;
// a zero value means the bound was not supplied.
type DateRange struct {
	From time.Time
	To   time.Time
}

type RangeInfo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type OverallYieldResponse struct {
	RangeInfo
	analytics.OverallStatistics
}

type YieldTrendResponse struct {
	RangeInfo
	GroupBy analytics.Granularity `json:"group_by"`
	Points  []analytics.TrendPoint `json:"points"`
}

type VarietyYieldResponse struct {
	RangeInfo
	Varieties []analytics.VarietyYield `json:"varieties"`
}

type MachineYieldResponse struct {
	RangeInfo
	Machines []analytics.MachineYield `json:"machines"`
}

type VarianceResponse struct {
	RangeInfo
	analytics.VarianceAnalysis
}

type ThresholdBatchesResponse struct {
	RangeInfo
	Threshold float64              `json:"threshold"`
	Count     int                  `json:"count"`
	Batches   []analytics.BatchRow `json:"batches"`
}

type PerformanceResponse struct {
	RangeInfo
	analytics.PerformanceReport
}

type YieldAnalyticsService interface {
	Overall(ctx context.Context, r DateRange) (OverallYieldResponse, error)
	Trends(ctx context.Context, r DateRange, groupBy string) (YieldTrendResponse, error)
	ByVariety(ctx context.Context, r DateRange) (VarietyYieldResponse, error)
	ByMachine(ctx context.Context, r DateRange) (MachineYieldResponse, error)
	Variance(ctx context.Context, r DateRange) (VarianceResponse, error)
	// LowYield and HighYield fall back to the default range like the rest.
	LowYield(ctx context.Context, r DateRange, threshold *float64) (ThresholdBatchesResponse, error)
	HighYield(ctx context.Context, r DateRange, threshold *float64) (ThresholdBatchesResponse, error)
	Performance(ctx context.Context, r DateRange) (PerformanceResponse, error)
}

type yieldAnalyticsService struct {
	batchRepo repository.ProductionBatchRepository
	refs      ReferenceLookup
	settings  AnalyticsSettings
	log       *zap.Logger
	now       func() time.Time
}

func NewYieldAnalyticsService(batchRepo repository.ProductionBatchRepository, refs ReferenceLookup, settings AnalyticsSettings, log *zap.Logger) YieldAnalyticsService {
	if log == nil {
		log = zap.NewNop()
	}
	defaults := DefaultAnalyticsSettings()
	if settings.RankingSize <= 0 {
		settings.RankingSize = defaults.RankingSize
	}
	if settings.DefaultRangeDays <= 0 {
		settings.DefaultRangeDays = defaults.DefaultRangeDays
	}
	return &yieldAnalyticsService{
		batchRepo: batchRepo,
		refs:      refs,
		settings:  settings,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *yieldAnalyticsService) Overall(ctx context.Context, r DateRange) (OverallYieldResponse, error) {
	r, samples, err := s.load(ctx, r)
	if err != nil {
		return OverallYieldResponse{}, err
	}
	return OverallYieldResponse{RangeInfo: rangeInfo(r), OverallStatistics: analytics.Overall(samples)}, nil
}

func (s *yieldAnalyticsService) Trends(ctx context.Context, r DateRange, groupBy string) (YieldTrendResponse, error) {
	granularity, err := analytics.ParseGranularity(groupBy)
	if err != nil {
		return YieldTrendResponse{}, err
	}
	r, samples, err := s.load(ctx, r)
	if err != nil {
		return YieldTrendResponse{}, err
	}
	return YieldTrendResponse{
		RangeInfo: rangeInfo(r),
		GroupBy:   granularity,
		Points:    analytics.Trends(samples, granularity),
	}, nil
}

func (s *yieldAnalyticsService) ByVariety(ctx context.Context, r DateRange) (VarietyYieldResponse, error) {
	r, samples, err := s.load(ctx, r)
	if err != nil {
		return VarietyYieldResponse{}, err
	}
	return VarietyYieldResponse{RangeInfo: rangeInfo(r), Varieties: analytics.ByVariety(samples)}, nil
}

func (s *yieldAnalyticsService) ByMachine(ctx context.Context, r DateRange) (MachineYieldResponse, error) {
	r, samples, err := s.load(ctx, r)
	if err != nil {
		return MachineYieldResponse{}, err
	}
	return MachineYieldResponse{
		RangeInfo: rangeInfo(r),
		Machines:  analytics.ByMachine(samples, r.To.Sub(r.From).Hours()),
	}, nil
}

func (s *yieldAnalyticsService) Variance(ctx context.Context, r DateRange) (VarianceResponse, error) {
	r, samples, err := s.load(ctx, r)
	if err != nil {
		return VarianceResponse{}, err
	}
	return VarianceResponse{RangeInfo: rangeInfo(r), VarianceAnalysis: analytics.Variance(samples)}, nil
}

func (s *yieldAnalyticsService) LowYield(ctx context.Context, r DateRange, threshold *float64) (ThresholdBatchesResponse, error) {
	limit := s.settings.LowYieldThreshold
	if threshold != nil {
		limit = *threshold
	}
	r, samples, err := s.load(ctx, r)
	if err != nil {
		return ThresholdBatchesResponse{}, err
	}
	rows := analytics.LowYield(samples, limit)
	return ThresholdBatchesResponse{RangeInfo: rangeInfo(r), Threshold: limit, Count: len(rows), Batches: rows}, nil
}

func (s *yieldAnalyticsService) HighYield(ctx context.Context, r DateRange, threshold *float64) (ThresholdBatchesResponse, error) {
	limit := s.settings.HighYieldThreshold
	if threshold != nil {
		limit = *threshold
	}
	r, samples, err := s.load(ctx, r)
	if err != nil {
		return ThresholdBatchesResponse{}, err
	}
	rows := analytics.HighYield(samples, limit)
	return ThresholdBatchesResponse{RangeInfo: rangeInfo(r), Threshold: limit, Count: len(rows), Batches: rows}, nil
}

func (s *yieldAnalyticsService) Performance(ctx context.Context, r DateRange) (PerformanceResponse, error) {
	r, samples, err := s.load(ctx, r)
	if err != nil {
		return PerformanceResponse{}, err
	}
	return PerformanceResponse{
		RangeInfo:         rangeInfo(r),
		PerformanceReport: analytics.Performance(samples, s.settings.RankingSize),
	}, nil
}

// resolve fills missing bounds: an omitted To is the end of today and an
// omitted From is DefaultRangeDays before To.
func (s *yieldAnalyticsService) resolve(r DateRange) (DateRange, error) {
	if !r.From.IsZero() && !r.To.IsZero() && !r.From.Before(r.To) {
		return r, apperror.Validation("from must be before to")
	}
	if r.To.IsZero() {
		r.To = truncateDay(s.now()).AddDate(0, 0, 1)
	}
	if r.From.IsZero() {
		r.From = r.To.AddDate(0, 0, -s.settings.DefaultRangeDays)
	}
	return r, nil
}

func (s *yieldAnalyticsService) load(ctx context.Context, r DateRange) (DateRange, []analytics.Sample, error) {
	r, err := s.resolve(r)
	if err != nil {
		return r, nil, err
	}

	batches, err := s.batchRepo.ListYieldSamples(ctx, repository.YieldSampleFilter{From: r.From, To: r.To})
	if err != nil {
		return r, nil, classify(s.log, err, "yield samples")
	}

	machines, err := s.machineNames(ctx, batches)
	if err != nil {
		return r, nil, err
	}

	samples := make([]analytics.Sample, 0, len(batches))
	for i := range batches {
		samples = append(samples, toSample(&batches[i], machines))
	}
	return r, samples, nil
}

func (s *yieldAnalyticsService) machineNames(ctx context.Context, batches []model.ProductionBatch) (map[uuid.UUID]string, error) {
	seen := make(map[uuid.UUID]bool)
	ids := make([]uuid.UUID, 0)
	for _, b := range batches {
		if b.ProductionOrder == nil || b.ProductionOrder.MachineID == nil {
			continue
		}
		if id := *b.ProductionOrder.MachineID; !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	machines, err := s.refs.ListMachines(ctx, ids)
	if err != nil {
		return nil, classify(s.log, err, "machines")
	}
	for _, m := range machines {
		names[m.ID] = m.Name
	}
	return names, nil
}

// toSample flattens a batch and its yield record. Machine attribution goes
// through the parent order; batches without an order carry no machine.
func toSample(b *model.ProductionBatch, machines map[uuid.UUID]string) analytics.Sample {
	y := b.YieldRecord
	sample := analytics.Sample{
		BatchID:           b.ID.String(),
		BatchNumber:       b.BatchNumber,
		BatchDate:         b.BatchDate.UTC(),
		PaddyVariety:      b.PaddyVariety,
		InputQuantity:     y.InputQuantity.InexactFloat64(),
		OutputQuantity:    y.HeadRiceQuantity.Add(y.BrokenRiceQuantity).Add(y.BranQuantity).Add(y.HuskQuantity).InexactFloat64(),
		HeadRicePercent:   y.HeadRicePercent.InexactFloat64(),
		BrokenRicePercent: y.BrokenRicePercent.InexactFloat64(),
		BranPercent:       y.BranPercent.InexactFloat64(),
		HuskPercent:       y.HuskPercent.InexactFloat64(),
		TotalYieldPercent: y.TotalYieldPercent.InexactFloat64(),
		MillingRecovery:   y.MillingRecovery.InexactFloat64(),
	}
	switch {
	case b.QualityScore.Valid:
		sample.QualityScore = b.QualityScore.Decimal.InexactFloat64()
	case y.QualityScore.Valid:
		sample.QualityScore = y.QualityScore.Decimal.InexactFloat64()
	}
	if b.ProductionOrder != nil && b.ProductionOrder.MachineID != nil {
		id := *b.ProductionOrder.MachineID
		sample.MachineID = id.String()
		sample.MachineName = machines[id]
	}
	if b.StartTime != nil && b.EndTime != nil && b.EndTime.After(*b.StartTime) {
		sample.DurationHours = b.EndTime.Sub(*b.StartTime).Hours()
	}
	return sample
}

func rangeInfo(r DateRange) RangeInfo {
	var info RangeInfo
	if !r.From.IsZero() {
		info.From = r.From.UTC().Format(time.RFC3339)
	}
	if !r.To.IsZero() {
		info.To = r.To.UTC().Format(time.RFC3339)
	}
	return info
}
