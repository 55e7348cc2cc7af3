package repository

import (
	"context"
	"time"

	"ricemill/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductionOrderFilter struct {
	Status string
	Page   int
	Limit  int
}

type ProductionOrderRepository interface {
	Create(ctx context.Context, order *model.ProductionOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ProductionOrder, error)
	List(ctx context.Context, filter ProductionOrderFilter) ([]model.ProductionOrder, int64, error)
	// UpdateVersioned writes every mutable column of order if the stored
	// version equals order.Version, then bumps order.Version.
	UpdateVersioned(ctx context.Context, order *model.ProductionOrder) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
	ListOverdue(ctx context.Context, now time.Time) ([]model.ProductionOrder, error)
	ListOpenAndCompleted(ctx context.Context) ([]model.ProductionOrder, error)
}

type productionOrderRepository struct {
	db *gorm.DB
}

func NewProductionOrderRepository(db *gorm.DB) ProductionOrderRepository {
	return &productionOrderRepository{db: db}
}

func (r *productionOrderRepository) Create(ctx context.Context, order *model.ProductionOrder) error {
	return GetDB(ctx, r.db).Create(order).Error
}

func (r *productionOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ProductionOrder, error) {
	var order model.ProductionOrder
	if err := GetDB(ctx, r.db).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *productionOrderRepository) List(ctx context.Context, filter ProductionOrderFilter) ([]model.ProductionOrder, int64, error) {
	var orders []model.ProductionOrder
	var total int64

	scoped := func() *gorm.DB {
		query := GetDB(ctx, r.db).Model(&model.ProductionOrder{})
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		return query
	}
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := scoped().Order("created_at desc").Order("order_number desc").Offset(offset).Limit(filter.Limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *productionOrderRepository) UpdateVersioned(ctx context.Context, order *model.ProductionOrder) error {
	err := casUpdate(GetDB(ctx, r.db), &model.ProductionOrder{}, order.ID, order.Version, map[string]interface{}{
		"paddy_variety":            order.PaddyVariety,
		"planned_quantity":         order.PlannedQuantity,
		"machine_id":               order.MachineID,
		"supervisor_id":            order.SupervisorID,
		"scheduled_date":           order.ScheduledDate,
		"actual_quantity_produced": order.ActualQuantityProduced,
		"actual_yield_percent":     order.ActualYieldPercent,
		"actual_completion_date":   order.ActualCompletionDate,
		"cancellation_reason":      order.CancellationReason,
		"notes":                    order.Notes,
		"status":                   order.Status,
		"modified_by":              order.ModifiedBy,
	})
	if err != nil {
		return err
	}
	order.Version++
	return nil
}

func (r *productionOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.ProductionOrder{}).Error
}

func (r *productionOrderRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countByStatus(GetDB(ctx, r.db), &model.ProductionOrder{})
}

func (r *productionOrderRepository) ListOverdue(ctx context.Context, now time.Time) ([]model.ProductionOrder, error) {
	var orders []model.ProductionOrder
	err := GetDB(ctx, r.db).
		Where("scheduled_date IS NOT NULL AND scheduled_date < ?", now).
		Where("status NOT IN ?", []model.OrderStatus{model.OrderCompleted, model.OrderCancelled}).
		Order("scheduled_date asc").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *productionOrderRepository) ListOpenAndCompleted(ctx context.Context) ([]model.ProductionOrder, error) {
	var orders []model.ProductionOrder
	if err := GetDB(ctx, r.db).Where("status <> ?", model.OrderCancelled).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func countByStatus(db *gorm.DB, table interface{}) (map[string]int64, error) {
	var rows []model.StatusCount
	if err := db.Model(table).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
