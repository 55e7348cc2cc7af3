package scheduler

import (
	"context"
	"fmt"
	"time"

	"ricemill/internal/config"
	"ricemill/internal/model"
	"ricemill/internal/service"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// OrderStatistics is the order metrics source of the digest.
type OrderStatistics interface {
	Statistics(ctx context.Context) (model.OrderStatisticsResponse, error)
}

// BatchSummary is the batch floor view source of the digest.
type BatchSummary interface {
	Summary(ctx context.Context) (model.BatchSummaryResponse, error)
}

// YieldOverview computes the aggregate yield of a date range.
type YieldOverview interface {
	Overall(ctx context.Context, r service.DateRange) (service.OverallYieldResponse, error)
}

// Digest is the periodic production summary broadcast to subscribers.
type Digest struct {
	GeneratedAt         time.Time                    `json:"generated_at"`
	OverdueOrders       []string                     `json:"overdue_orders"`
	PendingVerification []string                     `json:"pending_verification_batches"`
	BatchCounts         map[string]int64             `json:"batch_counts_by_status"`
	PreviousDay         service.OverallYieldResponse `json:"previous_day_yield"`
}

// Scheduler runs the production digest on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	cfg       config.DigestConfig
	orders    OrderStatistics
	batches   BatchSummary
	analytics YieldOverview
	publisher service.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler evaluating cfg.CronSchedule in cfg.Timezone.
func NewScheduler(cfg config.DigestConfig, orders OrderStatistics, batches BatchSummary, analytics YieldOverview, publisher service.EventPublisher, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("invalid digest timezone %q: %w", cfg.Timezone, err)
		}
	}

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		cfg:       cfg,
		orders:    orders,
		batches:   batches,
		analytics: analytics,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Start registers the digest job and starts the cron loop. It is a no-op when
// the digest is disabled.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("production digest disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.runScheduled); err != nil {
		return fmt.Errorf("failed to schedule production digest %q: %w", s.cfg.CronSchedule, err)
	}

	s.logger.Info("starting scheduler", zap.String("schedule", s.cfg.CronSchedule), zap.String("timezone", s.cfg.Timezone))
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := s.RunDigest(ctx); err != nil {
		s.logger.Error("failed to build production digest", zap.Error(err))
	}
}

// RunDigest builds the digest, logs it and publishes it as PRODUCTION_DIGEST.
func (s *Scheduler) RunDigest(ctx context.Context) (Digest, error) {
	now := s.now().UTC()

	stats, err := s.orders.Statistics(ctx)
	if err != nil {
		return Digest{}, fmt.Errorf("order statistics: %w", err)
	}
	summary, err := s.batches.Summary(ctx)
	if err != nil {
		return Digest{}, fmt.Errorf("batch summary: %w", err)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterday, err := s.analytics.Overall(ctx, service.DateRange{From: today.AddDate(0, 0, -1), To: today})
	if err != nil {
		return Digest{}, fmt.Errorf("previous day yield: %w", err)
	}

	digest := Digest{
		GeneratedAt:         now,
		OverdueOrders:       stats.OverdueOrderNumbers,
		PendingVerification: summary.PendingVerification,
		BatchCounts:         summary.CountsByStatus,
		PreviousDay:         yesterday,
	}

	s.logger.Info("production digest",
		zap.Int("overdue_orders", len(digest.OverdueOrders)),
		zap.Int("pending_verification", len(digest.PendingVerification)),
		zap.Int("previous_day_batches", yesterday.BatchCount),
		zap.Float64("previous_day_mean_yield", yesterday.MeanTotalYield),
	)
	if len(digest.OverdueOrders) > 0 {
		s.logger.Warn("overdue production orders", zap.Strings("orders", digest.OverdueOrders))
	}

	s.publisher.Publish(service.EventProductionDigest, digest)
	return digest, nil
}
