package repository

import (
	"context"
	"time"

	"ricemill/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductionBatchFilter struct {
	Status            string
	ProductionOrderID *uuid.UUID
	Page              int
	Limit             int
}

// YieldSampleFilter selects batches carrying a yield record. Zero From/To
// leave that side of the range open; To is exclusive.
type YieldSampleFilter struct {
	From time.Time
	To   time.Time
}

type ProductionBatchRepository interface {
	Create(ctx context.Context, batch *model.ProductionBatch) error
	// FindByID loads the batch with its line items, yield record and parent order.
	FindByID(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error)
	List(ctx context.Context, filter ProductionBatchFilter) ([]model.ProductionBatch, int64, error)
	UpdateVersioned(ctx context.Context, batch *model.ProductionBatch) error
	Delete(ctx context.Context, id uuid.UUID) error

	AddInput(ctx context.Context, line *model.BatchInput) error
	AddOutput(ctx context.Context, line *model.BatchOutput) error
	// DeleteLine removes an input or output line of the batch and reports
	// whether one matched.
	DeleteLine(ctx context.Context, batchID, lineID uuid.UUID) (bool, error)

	ReplaceYieldRecord(ctx context.Context, record *model.YieldRecord) error
	DeleteYieldRecord(ctx context.Context, batchID uuid.UUID) error

	CountByStatus(ctx context.Context) (map[string]int64, error)
	ListByBatchDate(ctx context.Context, from, to time.Time) ([]model.ProductionBatch, error)
	ListPendingVerification(ctx context.Context) ([]model.ProductionBatch, error)
	ListYieldSamples(ctx context.Context, filter YieldSampleFilter) ([]model.ProductionBatch, error)
}

type productionBatchRepository struct {
	db *gorm.DB
}

func NewProductionBatchRepository(db *gorm.DB) ProductionBatchRepository {
	return &productionBatchRepository{db: db}
}

func (r *productionBatchRepository) Create(ctx context.Context, batch *model.ProductionBatch) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(batch).Error
}

func (r *productionBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error) {
	var batch model.ProductionBatch
	err := GetDB(ctx, r.db).
		Preload("Inputs", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("Outputs", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("YieldRecord").
		Preload("ProductionOrder").
		First(&batch, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *productionBatchRepository) List(ctx context.Context, filter ProductionBatchFilter) ([]model.ProductionBatch, int64, error) {
	var batches []model.ProductionBatch
	var total int64

	scoped := func() *gorm.DB {
		query := GetDB(ctx, r.db).Model(&model.ProductionBatch{})
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.ProductionOrderID != nil {
			query = query.Where("production_order_id = ?", *filter.ProductionOrderID)
		}
		return query
	}
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := scoped().Preload("Inputs").Preload("Outputs").Preload("YieldRecord").
		Order("batch_date desc").Order("batch_number desc").
		Offset(offset).Limit(filter.Limit).
		Find(&batches).Error
	if err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

func (r *productionBatchRepository) UpdateVersioned(ctx context.Context, batch *model.ProductionBatch) error {
	err := casUpdate(GetDB(ctx, r.db), &model.ProductionBatch{}, batch.ID, batch.Version, map[string]interface{}{
		"paddy_variety":       batch.PaddyVariety,
		"batch_date":          batch.BatchDate,
		"shift":               batch.Shift,
		"operator_id":         batch.OperatorID,
		"start_time":          batch.StartTime,
		"end_time":            batch.EndTime,
		"status":              batch.Status,
		"quality_score":       batch.QualityScore,
		"quality_remarks":     batch.QualityRemarks,
		"cancellation_reason": batch.CancellationReason,
		"notes":               batch.Notes,
		"modified_by":         batch.ModifiedBy,
	})
	if err != nil {
		return err
	}
	batch.Version++
	return nil
}

func (r *productionBatchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("batch_id = ?", id).Delete(&model.BatchInput{}).Error; err != nil {
		return err
	}
	if err := db.Where("batch_id = ?", id).Delete(&model.BatchOutput{}).Error; err != nil {
		return err
	}
	if err := db.Where("batch_id = ?", id).Delete(&model.YieldRecord{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.ProductionBatch{}).Error
}

func (r *productionBatchRepository) AddInput(ctx context.Context, line *model.BatchInput) error {
	return GetDB(ctx, r.db).Create(line).Error
}

func (r *productionBatchRepository) AddOutput(ctx context.Context, line *model.BatchOutput) error {
	return GetDB(ctx, r.db).Create(line).Error
}

func (r *productionBatchRepository) DeleteLine(ctx context.Context, batchID, lineID uuid.UUID) (bool, error) {
	db := GetDB(ctx, r.db)
	res := db.Where("id = ? AND batch_id = ?", lineID, batchID).Delete(&model.BatchInput{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	res = db.Where("id = ? AND batch_id = ?", lineID, batchID).Delete(&model.BatchOutput{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *productionBatchRepository) ReplaceYieldRecord(ctx context.Context, record *model.YieldRecord) error {
	if err := r.DeleteYieldRecord(ctx, record.BatchID); err != nil {
		return err
	}
	return GetDB(ctx, r.db).Create(record).Error
}

func (r *productionBatchRepository) DeleteYieldRecord(ctx context.Context, batchID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("batch_id = ?", batchID).Delete(&model.YieldRecord{}).Error
}

func (r *productionBatchRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countByStatus(GetDB(ctx, r.db), &model.ProductionBatch{})
}

func (r *productionBatchRepository) ListByBatchDate(ctx context.Context, from, to time.Time) ([]model.ProductionBatch, error) {
	var batches []model.ProductionBatch
	err := GetDB(ctx, r.db).
		Where("batch_date >= ? AND batch_date < ?", from, to).
		Order("batch_number asc").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *productionBatchRepository) ListPendingVerification(ctx context.Context) ([]model.ProductionBatch, error) {
	var batches []model.ProductionBatch
	err := GetDB(ctx, r.db).
		Where("status = ?", model.BatchCompleted).
		Where("NOT EXISTS (SELECT 1 FROM yield_records WHERE yield_records.batch_id = production_batches.id)").
		Order("batch_number asc").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *productionBatchRepository) ListYieldSamples(ctx context.Context, filter YieldSampleFilter) ([]model.ProductionBatch, error) {
	var batches []model.ProductionBatch
	query := GetDB(ctx, r.db).
		InnerJoins("YieldRecord").
		Preload("ProductionOrder").
		Where("production_batches.status IN ?", []model.BatchStatus{model.BatchCompleted, model.BatchVerified})
	if !filter.From.IsZero() {
		query = query.Where("production_batches.batch_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("production_batches.batch_date < ?", filter.To)
	}
	if err := query.Order("production_batches.batch_date asc").Order("production_batches.batch_number asc").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}
