package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"ricemill/internal/analytics"
	"ricemill/internal/config"
	"ricemill/internal/model"
	"ricemill/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOrders struct {
	stats model.OrderStatisticsResponse
	err   error
}

func (s stubOrders) Statistics(context.Context) (model.OrderStatisticsResponse, error) {
	return s.stats, s.err
}

type stubBatches struct{ summary model.BatchSummaryResponse }

func (s stubBatches) Summary(context.Context) (model.BatchSummaryResponse, error) {
	return s.summary, nil
}

type stubOverview struct{ got service.DateRange }

func (s *stubOverview) Overall(_ context.Context, r service.DateRange) (service.OverallYieldResponse, error) {
	s.got = r
	return service.OverallYieldResponse{OverallStatistics: analytics.OverallStatistics{HasData: true, BatchCount: 3, MeanTotalYield: 71.2}}, nil
}

type capture struct {
	event   string
	payload interface{}
}

func (c *capture) Publish(event string, payload interface{}) {
	c.event, c.payload = event, payload
}

func digestConfig() config.DigestConfig {
	return config.DigestConfig{Enabled: true, CronSchedule: "0 6 * * *", Timezone: "UTC"}
}

func TestRunDigest(t *testing.T) {
	overview := &stubOverview{}
	pub := &capture{}
	s, err := NewScheduler(digestConfig(),
		stubOrders{stats: model.OrderStatisticsResponse{OverdueOrderNumbers: []string{"PO000004"}}},
		stubBatches{summary: model.BatchSummaryResponse{
			CountsByStatus:      map[string]int64{"COMPLETED": 2},
			PendingVerification: []string{"BATCH000007"},
		}},
		overview, pub, nil)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC) }

	digest, err := s.RunDigest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC), overview.got.From)
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), overview.got.To)
	assert.Equal(t, []string{"PO000004"}, digest.OverdueOrders)
	assert.Equal(t, []string{"BATCH000007"}, digest.PendingVerification)
	assert.Equal(t, int64(2), digest.BatchCounts["COMPLETED"])
	assert.Equal(t, 3, digest.PreviousDay.BatchCount)

	assert.Equal(t, service.EventProductionDigest, pub.event)
	assert.Equal(t, digest, pub.payload)
}

func TestRunDigestPropagatesErrors(t *testing.T) {
	pub := &capture{}
	s, err := NewScheduler(digestConfig(), stubOrders{err: errors.New("db down")}, stubBatches{}, &stubOverview{}, pub, nil)
	require.NoError(t, err)

	_, err = s.RunDigest(context.Background())
	assert.ErrorContains(t, err, "db down")
	assert.Empty(t, pub.event, "nothing published on failure")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := digestConfig()
	cfg.CronSchedule = "every morning"
	s, err := NewScheduler(cfg, stubOrders{}, stubBatches{}, &stubOverview{}, &capture{}, nil)
	require.NoError(t, err)
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	s, err := NewScheduler(digestConfig(), stubOrders{}, stubBatches{}, &stubOverview{}, &capture{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()

	disabled, err := NewScheduler(config.DigestConfig{}, stubOrders{}, stubBatches{}, &stubOverview{}, &capture{}, nil)
	require.NoError(t, err)
	require.NoError(t, disabled.Start())
	assert.Empty(t, disabled.cron.Entries())
}

func TestNewSchedulerBadTimezone(t *testing.T) {
	cfg := digestConfig()
	cfg.Timezone = "Nowhere/Void"
	_, err := NewScheduler(cfg, stubOrders{}, stubBatches{}, &stubOverview{}, &capture{}, nil)
	assert.Error(t, err)
}
