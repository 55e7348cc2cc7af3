package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ricemill/internal/apperror"
	"ricemill/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionOrderCreateAssignsSequentialNumbers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "1000"})
	require.NoError(t, err)
	second, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "Jasmine", PlannedQuantity: "2500.5"})
	require.NoError(t, err)

	assert.Equal(t, "PO000001", first.OrderNumber)
	assert.Equal(t, "PO000002", second.OrderNumber)
	assert.Equal(t, string(model.OrderDraft), first.Status)
	assert.Equal(t, "planner", first.CreatedBy)
	assert.Equal(t, 1, first.Version)
	assert.ElementsMatch(t, []string{"SCHEDULED", "CANCELLED"}, first.AllowedTransitions)
	assert.Nil(t, first.ActualQuantityProduced)
}

func TestProductionOrderCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: " ", PlannedQuantity: "10"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "0"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "abc"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestProductionOrderLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	machine := env.machine(t, "M1", model.MachineOperational)
	supervisor := env.employee(t, "E1", true)

	order, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "5000"})
	require.NoError(t, err)

	order, err = env.orders.Schedule(ctx, "planner", order.ID, ScheduleProductionOrderRequest{
		ScheduledDate: "2026-10-20",
		MachineID:     machine.ID.String(),
		SupervisorID:  supervisor.ID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderScheduled), order.Status)
	require.NotNil(t, order.MachineID)
	assert.Equal(t, machine.ID.String(), *order.MachineID)
	require.NotNil(t, order.ScheduledDate)
	assert.Equal(t, "2026-10-20T00:00:00Z", *order.ScheduledDate)
	assert.Equal(t, 2, order.Version)

	order, err = env.orders.Start(ctx, "supervisor", order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderInProgress), order.Status)
	assert.Equal(t, "supervisor", order.ModifiedBy)

	_, err = env.orders.Complete(ctx, "supervisor", order.ID, CompleteProductionOrderRequest{ActualQuantity: "3400.25", ActualYieldPercent: "68.005"})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)

	order, err = env.orders.Complete(ctx, "supervisor", order.ID, CompleteProductionOrderRequest{ActualQuantity: "3400.1234", ActualYieldPercent: "68.05"})
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderCompleted), order.Status)
	assert.Empty(t, order.AllowedTransitions)

	reloaded, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ActualQuantityProduced)
	assert.Equal(t, "3400.1234", *reloaded.ActualQuantityProduced)
	require.NotNil(t, reloaded.ActualYieldPercent)
	assert.Equal(t, "68.05", *reloaded.ActualYieldPercent)
	assert.NotNil(t, reloaded.ActualCompletionDate)
	assert.Equal(t, 4, reloaded.Version)

	assert.Equal(t, []string{EventOrderStatusChanged, EventOrderStatusChanged, EventOrderStatusChanged}, env.events.names())

	logs, total, err := env.audit.GetAuditLogs(ctx, AuditLogFilter{EntityID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, logs, 4)
}

func TestProductionOrderSkippedStepIsInvalidTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "100"})
	require.NoError(t, err)

	_, err = env.orders.Complete(ctx, "planner", order.ID, CompleteProductionOrderRequest{ActualQuantity: "10", ActualYieldPercent: "60"})
	assert.True(t, errors.Is(err, apperror.ErrInvalidTransition), "got %v", err)

	_, err = env.orders.Start(ctx, "planner", order.ID)
	assert.True(t, errors.Is(err, apperror.ErrInvalidTransition), "got %v", err)

	reloaded, err := env.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderDraft), reloaded.Status)
	assert.Equal(t, 1, reloaded.Version)
	assert.Empty(t, env.events.names())
}

func TestProductionOrderStartRequiresMachine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "100"})
	require.NoError(t, err)
	order, err = env.orders.Schedule(ctx, "planner", order.ID, ScheduleProductionOrderRequest{ScheduledDate: "2026-10-20"})
	require.NoError(t, err)

	_, err = env.orders.Start(ctx, "planner", order.ID)
	assert.True(t, errors.Is(err, apperror.ErrPreconditionFailed), "got %v", err)
}

func TestProductionOrderScheduleChecksReferences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	broken := env.machine(t, "M-BRK", model.MachineBreakdown)
	inactive := env.employee(t, "E-OLD", false)

	order, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "100"})
	require.NoError(t, err)

	_, err = env.orders.Schedule(ctx, "planner", order.ID, ScheduleProductionOrderRequest{ScheduledDate: "2026-10-20", MachineID: broken.ID.String()})
	assert.True(t, errors.Is(err, apperror.ErrPreconditionFailed), "got %v", err)

	_, err = env.orders.Schedule(ctx, "planner", order.ID, ScheduleProductionOrderRequest{ScheduledDate: "2026-10-20", SupervisorID: inactive.ID.String()})
	assert.True(t, errors.Is(err, apperror.ErrPreconditionFailed), "got %v", err)

	_, err = env.orders.Schedule(ctx, "planner", order.ID, ScheduleProductionOrderRequest{ScheduledDate: "2026-10-20", MachineID: "7f1b2a52-5a51-4c35-9d1c-0c6f0c2b9a10"})
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	_, err = env.orders.Schedule(ctx, "planner", order.ID, ScheduleProductionOrderRequest{ScheduledDate: "20/10/2026"})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
}

func TestProductionOrderRescheduleKeepsScheduled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.scheduledOrder(t, "IR64")

	order, err := env.orders.Schedule(ctx, "planner", order.ID, ScheduleProductionOrderRequest{ScheduledDate: "2026-11-02T06:00:00+07:00"})
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderScheduled), order.Status)
	assert.Equal(t, "2026-11-01T23:00:00Z", *order.ScheduledDate)
	assert.NotNil(t, order.MachineID, "machine assignment survives a reschedule without machine_id")

	names := env.events.names()
	require.NotEmpty(t, names)
	assert.Equal(t, EventOrderRescheduled, names[len(names)-1])
}

func TestProductionOrderCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "100"})
	require.NoError(t, err)

	_, err = env.orders.Cancel(ctx, "planner", order.ID, CancelRequest{Reason: "  "})
	assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)

	cancelled, err := env.orders.Cancel(ctx, "planner", order.ID, CancelRequest{Reason: "customer withdrew"})
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderCancelled), cancelled.Status)
	assert.Equal(t, "customer withdrew", cancelled.CancellationReason)

	_, err = env.orders.Cancel(ctx, "planner", order.ID, CancelRequest{Reason: "again"})
	assert.True(t, errors.Is(err, apperror.ErrInvalidState), "got %v", err)
}

func TestProductionOrderCancelCompletedIsInvalidState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.scheduledOrder(t, "IR64")

	_, err := env.orders.Start(ctx, "planner", order.ID)
	require.NoError(t, err)
	_, err = env.orders.Complete(ctx, "planner", order.ID, CompleteProductionOrderRequest{ActualQuantity: "3000", ActualYieldPercent: "66"})
	require.NoError(t, err)

	_, err = env.orders.Cancel(ctx, "planner", order.ID, CancelRequest{Reason: "too late"})
	assert.True(t, errors.Is(err, apperror.ErrInvalidState), "got %v", err)
}

func TestProductionOrderUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "100"})
	require.NoError(t, err)

	variety, qty := "Jasmine", "250"
	updated, err := env.orders.Update(ctx, "editor", order.ID, UpdateProductionOrderRequest{PaddyVariety: &variety, PlannedQuantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, "Jasmine", updated.PaddyVariety)
	assert.Equal(t, "250.0000", updated.PlannedQuantity)
	assert.Equal(t, "editor", updated.ModifiedBy)
	assert.Equal(t, 2, updated.Version)

	scheduled := env.scheduledOrder(t, "IR64")
	assert.True(t, errors.Is(env.orders.Delete(ctx, "planner", scheduled.ID), apperror.ErrInvalidState))

	require.NoError(t, env.orders.Delete(ctx, "planner", order.ID))
	_, err = env.orders.Get(ctx, order.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
}

func TestProductionOrderUpdateRejectedOnceStarted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.scheduledOrder(t, "IR64")

	_, err := env.orders.Start(ctx, "planner", order.ID)
	require.NoError(t, err)

	notes := "late change"
	_, err = env.orders.Update(ctx, "planner", order.ID, UpdateProductionOrderRequest{Notes: &notes})
	assert.True(t, errors.Is(err, apperror.ErrInvalidState), "got %v", err)
}

func TestProductionOrderList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "100"})
		require.NoError(t, err)
	}
	env.scheduledOrder(t, "Jasmine")

	all, total, err := env.orders.List(ctx, ProductionOrderFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 2)

	drafts, total, err := env.orders.List(ctx, ProductionOrderFilter{Status: "draft"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, drafts, 3)
}

func TestProductionOrderStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	machine := env.machine(t, "M1", model.MachineOperational)

	overdue, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "1000"})
	require.NoError(t, err)
	_, err = env.orders.Schedule(ctx, "planner", overdue.ID, ScheduleProductionOrderRequest{
		ScheduledDate: time.Now().UTC().AddDate(0, 0, -3).Format(time.DateOnly),
		MachineID:     machine.ID.String(),
	})
	require.NoError(t, err)

	for _, actual := range []struct{ qty, pct string }{{"700", "70"}, {"650", "65"}} {
		o := env.scheduledOrder(t, "Jasmine-"+actual.pct)
		_, err = env.orders.Start(ctx, "planner", o.ID)
		require.NoError(t, err)
		_, err = env.orders.Complete(ctx, "planner", o.ID, CompleteProductionOrderRequest{ActualQuantity: actual.qty, ActualYieldPercent: actual.pct})
		require.NoError(t, err)
	}

	cancelled, err := env.orders.Create(ctx, "planner", CreateProductionOrderRequest{PaddyVariety: "IR64", PlannedQuantity: "9999"})
	require.NoError(t, err)
	_, err = env.orders.Cancel(ctx, "planner", cancelled.ID, CancelRequest{Reason: "duplicate"})
	require.NoError(t, err)

	stats, err := env.orders.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalOrders)
	assert.Equal(t, int64(1), stats.CountsByStatus[string(model.OrderScheduled)])
	assert.Equal(t, int64(2), stats.CountsByStatus[string(model.OrderCompleted)])
	assert.Equal(t, int64(1), stats.CountsByStatus[string(model.OrderCancelled)])
	assert.Equal(t, 1, stats.OverdueCount)
	assert.Equal(t, []string{overdue.OrderNumber}, stats.OverdueOrderNumbers)
	assert.Equal(t, 2, stats.CompletedOrders)
	assert.InDelta(t, 67.5, stats.AverageActualYield, 0.001)
	assert.Equal(t, "11000.0000", stats.TotalPlannedQuantity)
	assert.Equal(t, "1350.0000", stats.TotalProduced)
}

func TestProductionOrderStatisticsEmpty(t *testing.T) {
	env := newTestEnv(t)

	stats, err := env.orders.Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalOrders)
	assert.Zero(t, stats.AverageActualYield)
	assert.Empty(t, stats.OverdueOrderNumbers)
	assert.Equal(t, "0.0000", stats.TotalProduced)
}
