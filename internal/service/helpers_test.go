package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ricemill/internal/database"
	"ricemill/internal/model"
	"ricemill/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordedEvent struct {
	Name    string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Name: event, Payload: payload})
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Name)
	}
	return out
}

type testEnv struct {
	db        *gorm.DB
	events    *recordingPublisher
	orders    ProductionOrderService
	batches   ProductionBatchService
	analytics YieldAnalyticsService
	audit     AuditService
	roles     RoleService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.Models()...))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)

	orderRepo := repository.NewProductionOrderRepository(db)
	batchRepo := repository.NewProductionBatchRepository(db)
	seqRepo := repository.NewSequenceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	refs := repository.NewReferenceRepository(db)
	txManager := repository.NewTransactionManager(db)
	events := &recordingPublisher{}

	return &testEnv{
		db:        db,
		events:    events,
		orders:    NewProductionOrderService(orderRepo, seqRepo, auditRepo, refs, txManager, events, nil),
		batches:   NewProductionBatchService(batchRepo, orderRepo, seqRepo, auditRepo, refs, txManager, events, nil),
		analytics: NewYieldAnalyticsService(batchRepo, refs, DefaultAnalyticsSettings(), nil),
		audit:     NewAuditService(auditRepo, nil),
		roles:     NewRoleService(repository.NewRoleRepository(db), txManager, nil),
	}
}

func (e *testEnv) machine(t *testing.T, code, status string) model.Machine {
	t.Helper()
	m := model.Machine{
		Code:              code,
		Name:              "Huller " + code,
		MachineType:       "HULLER",
		CapacityPerHour:   decimal.NewFromInt(2000),
		OperationalStatus: status,
	}
	require.NoError(t, e.db.Create(&m).Error)
	return m
}

func (e *testEnv) employee(t *testing.T, code string, active bool) model.Employee {
	t.Helper()
	emp := model.Employee{Code: code, FullName: "Employee " + code, Position: "SUPERVISOR", Active: active}
	require.NoError(t, e.db.Create(&emp).Error)
	return emp
}

// scheduledOrder creates an order and schedules it on a fresh machine.
func (e *testEnv) scheduledOrder(t *testing.T, variety string) ProductionOrderResponse {
	t.Helper()
	ctx := context.Background()
	m := e.machine(t, "M-"+variety, model.MachineOperational)

	order, err := e.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: variety, PlannedQuantity: "5000"})
	require.NoError(t, err)
	order, err = e.orders.Schedule(ctx, "planner", order.ID, ScheduleProductionOrderRequest{
		ScheduledDate: time.Now().UTC().AddDate(0, 0, 1).Format(time.DateOnly),
		MachineID:     m.ID.String(),
	})
	require.NoError(t, err)
	return order
}

// completedBatch runs a batch through start, line items and complete.
func (e *testEnv) completedBatch(t *testing.T, req CreateProductionBatchRequest, input string, outputs map[model.OutputCategory]string, score string) ProductionBatchResponse {
	t.Helper()
	ctx := context.Background()

	b, err := e.batches.Create(ctx, "operator", req)
	require.NoError(t, err)
	_, err = e.batches.Start(ctx, "operator", b.ID)
	require.NoError(t, err)
	_, err = e.batches.RecordInput(ctx, "operator", b.ID, RecordInputRequest{Quantity: input})
	require.NoError(t, err)
	for _, cat := range []model.OutputCategory{model.OutputHeadRice, model.OutputBrokenRice, model.OutputBran, model.OutputHusk} {
		qty, ok := outputs[cat]
		if !ok {
			continue
		}
		_, err = e.batches.RecordOutput(ctx, "operator", b.ID, RecordOutputRequest{Category: string(cat), Quantity: qty})
		require.NoError(t, err)
	}
	b, err = e.batches.Complete(ctx, "operator", b.ID, CompleteBatchRequest{QualityScore: score})
	require.NoError(t, err)
	return b
}

func standardOutputs() map[model.OutputCategory]string {
	return map[model.OutputCategory]string{
		model.OutputHeadRice:   "65",
		model.OutputBrokenRice: "10",
		model.OutputBran:       "8",
		model.OutputHusk:       "15",
	}
}
