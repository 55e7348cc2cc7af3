package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ricemill/internal/apperror"
	"ricemill/internal/lifecycle"
	"ricemill/internal/model"
	"ricemill/internal/repository"
	"ricemill/internal/yield"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const batchSequence = "PRODUCTION_BATCH"

// --- DTOs ---

type CreateProductionBatchRequest struct {
	ProductionOrderID string `json:"production_order_id"`
	PaddyVariety      string `json:"paddy_variety"`                      // defaults to the order's variety
	BatchDate         string `json:"batch_date" binding:"required"`      // RFC3339 or YYYY-MM-DD
	Shift             string `json:"shift" binding:"required,oneof=MORNING EVENING NIGHT"`
	OperatorID        string `json:"operator_id"`
	Notes             string `json:"notes"`
}

// UpdateProductionBatchRequest edits header fields; nil fields are left unchanged
type UpdateProductionBatchRequest struct {
	PaddyVariety *string `json:"paddy_variety"`
	BatchDate    *string `json:"batch_date"`
	Shift        *string `json:"shift"`
	OperatorID   *string `json:"operator_id"`
	Notes        *string `json:"notes"`
}

type RecordInputRequest struct {
	Quantity   string `json:"quantity" binding:"required"`
	SourceNote string `json:"source_note"`
}

type RecordOutputRequest struct {
	Category string `json:"category" binding:"required,oneof=HEAD_RICE BROKEN_RICE BRAN HUSK"`
	Quantity string `json:"quantity" binding:"required"`
}

type CompleteBatchRequest struct {
	QualityScore   string `json:"quality_score"` // 0-100, optional
	QualityRemarks string `json:"quality_remarks"`
}

type ProductionBatchFilter struct {
	Status            string
	ProductionOrderID string
	Page              int
	Limit             int
}

type BatchLineResponse struct {
	ID         string `json:"id"`
	Category   string `json:"category,omitempty"`
	Quantity   string `json:"quantity"`
	SourceNote string `json:"source_note,omitempty"`
	RecordedBy string `json:"recorded_by"`
	CreatedAt  string `json:"created_at"`
}

type YieldRecordResponse struct {
	ID                 string  `json:"id"`
	PaddyVariety       string  `json:"paddy_variety"`
	InputQuantity      string  `json:"input_quantity"`
	HeadRiceQuantity   string  `json:"head_rice_quantity"`
	BrokenRiceQuantity string  `json:"broken_rice_quantity"`
	BranQuantity       string  `json:"bran_quantity"`
	HuskQuantity       string  `json:"husk_quantity"`
	HeadRicePercent    string  `json:"head_rice_percent"`
	BrokenRicePercent  string  `json:"broken_rice_percent"`
	BranPercent        string  `json:"bran_percent"`
	HuskPercent        string  `json:"husk_percent"`
	TotalYieldPercent  string  `json:"total_yield_percent"`
	MillingRecovery    string  `json:"milling_recovery_percent"`
	QualityScore       *string `json:"quality_score"`
	CalculatedAt       string  `json:"calculated_at"`
}

type ProductionBatchResponse struct {
	ID                 string               `json:"id"`
	BatchNumber        string               `json:"batch_number"`
	ProductionOrderID  *string              `json:"production_order_id"`
	PaddyVariety       string               `json:"paddy_variety"`
	BatchDate          string               `json:"batch_date"`
	Shift              string               `json:"shift"`
	OperatorID         *string              `json:"operator_id"`
	StartTime          *string              `json:"start_time"`
	EndTime            *string              `json:"end_time"`
	Status             string               `json:"status"`
	AllowedTransitions []string             `json:"allowed_transitions"`
	QualityScore       *string              `json:"quality_score"`
	QualityRemarks     string               `json:"quality_remarks"`
	CancellationReason string               `json:"cancellation_reason,omitempty"`
	Notes              string               `json:"notes"`
	Inputs             []BatchLineResponse  `json:"inputs"`
	Outputs            []BatchLineResponse  `json:"outputs"`
	TotalInput         string               `json:"total_input"`
	TotalOutput        string               `json:"total_output"`
	EfficiencyPercent  string               `json:"efficiency_percent"`
	Yield              *YieldRecordResponse `json:"yield_record"`
	CreatedBy          string               `json:"created_by"`
	ModifiedBy         string               `json:"modified_by"`
	Version            int                  `json:"version"`
	CreatedAt          string               `json:"created_at"`
	UpdatedAt          string               `json:"updated_at"`
}

// --- Lifecycle ---

type batchTransition = lifecycle.Transition[model.BatchStatus, *model.ProductionBatch]

var batchLifecycle = lifecycle.New("production batch", []batchTransition{
	{From: []model.BatchStatus{model.BatchPlanned}, To: model.BatchInProgress},
	{From: []model.BatchStatus{model.BatchInProgress}, To: model.BatchCompleted},
	{From: []model.BatchStatus{model.BatchCompleted}, To: model.BatchVerified, Require: requireYieldRecord},
	{
		From:      []model.BatchStatus{model.BatchPlanned, model.BatchInProgress, model.BatchCompleted},
		To:        model.BatchCancelled,
		Rejection: apperror.KindInvalidState,
	},
}...)

func requireYieldRecord(b *model.ProductionBatch) error {
	if b.YieldRecord == nil {
		return apperror.PreconditionFailed("batch %s has no yield record, calculate yield before verification", b.BatchNumber)
	}
	return nil
}

// quantitiesEditable lists the statuses in which line items may change.
func quantitiesEditable(s model.BatchStatus) bool {
	return s == model.BatchPlanned || s == model.BatchInProgress || s == model.BatchCompleted
}

// --- Interface ---

type ProductionBatchService interface {
	Create(ctx context.Context, userID string, req CreateProductionBatchRequest) (ProductionBatchResponse, error)
	Get(ctx context.Context, id string) (ProductionBatchResponse, error)
	List(ctx context.Context, filter ProductionBatchFilter) ([]ProductionBatchResponse, int64, error)
	Update(ctx context.Context, userID, id string, req UpdateProductionBatchRequest) (ProductionBatchResponse, error)
	RecordInput(ctx context.Context, userID, id string, req RecordInputRequest) (ProductionBatchResponse, error)
	RecordOutput(ctx context.Context, userID, id string, req RecordOutputRequest) (ProductionBatchResponse, error)
	RemoveLine(ctx context.Context, userID, id, lineID string) (ProductionBatchResponse, error)
	Start(ctx context.Context, userID, id string) (ProductionBatchResponse, error)
	Complete(ctx context.Context, userID, id string, req CompleteBatchRequest) (ProductionBatchResponse, error)
	CalculateYield(ctx context.Context, userID, id string) (ProductionBatchResponse, error)
	Verify(ctx context.Context, userID, id string) (ProductionBatchResponse, error)
	Cancel(ctx context.Context, userID, id string, req CancelRequest) (ProductionBatchResponse, error)
	Delete(ctx context.Context, userID, id string) error
	Summary(ctx context.Context) (model.BatchSummaryResponse, error)
}

type productionBatchService struct {
	batchRepo repository.ProductionBatchRepository
	orderRepo repository.ProductionOrderRepository
	seqRepo   repository.SequenceRepository
	auditRepo repository.AuditRepository
	refs      ReferenceLookup
	txManager repository.TransactionManager
	events    EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

func NewProductionBatchService(
	batchRepo repository.ProductionBatchRepository,
	orderRepo repository.ProductionOrderRepository,
	seqRepo repository.SequenceRepository,
	auditRepo repository.AuditRepository,
	refs ReferenceLookup,
	txManager repository.TransactionManager,
	events EventPublisher,
	log *zap.Logger,
) ProductionBatchService {
	if events == nil {
		events = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &productionBatchService{
		batchRepo: batchRepo,
		orderRepo: orderRepo,
		seqRepo:   seqRepo,
		auditRepo: auditRepo,
		refs:      refs,
		txManager: txManager,
		events:    events,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// --- Implementation ---

func (s *productionBatchService) Create(ctx context.Context, userID string, req CreateProductionBatchRequest) (ProductionBatchResponse, error) {
	orderID, err := parseOptionalID(req.ProductionOrderID, "production order")
	if err != nil {
		return ProductionBatchResponse{}, err
	}
	operatorID, err := parseOptionalID(req.OperatorID, "operator")
	if err != nil {
		return ProductionBatchResponse{}, err
	}
	batchDate, err := parseDate(req.BatchDate, "batch_date")
	if err != nil {
		return ProductionBatchResponse{}, err
	}
	shift := model.Shift(strings.ToUpper(strings.TrimSpace(req.Shift)))
	if !shift.Valid() {
		return ProductionBatchResponse{}, apperror.Validation("invalid shift %q, expected MORNING, EVENING or NIGHT", req.Shift)
	}

	batch := model.ProductionBatch{
		ProductionOrderID: orderID,
		PaddyVariety:      strings.TrimSpace(req.PaddyVariety),
		BatchDate:         truncateDay(batchDate),
		Shift:             shift,
		OperatorID:        operatorID,
		Status:            model.BatchPlanned,
		Notes:             req.Notes,
		CreatedBy:         userID,
		ModifiedBy:        userID,
		Version:           1,
	}

	var created *model.ProductionBatch
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if orderID != nil {
			order, err := s.orderRepo.FindByID(txCtx, *orderID)
			if err != nil {
				return classify(s.log, err, "production order %s", orderID.String())
			}
			if order.Status != model.OrderScheduled && order.Status != model.OrderInProgress {
				return apperror.InvalidState("batches can only be added to SCHEDULED or IN_PROGRESS orders, %s is %s", order.OrderNumber, order.Status)
			}
			if batch.PaddyVariety == "" {
				batch.PaddyVariety = order.PaddyVariety
			} else if !strings.EqualFold(batch.PaddyVariety, order.PaddyVariety) {
				return apperror.Validation("paddy variety %q does not match order %s (%s)", batch.PaddyVariety, order.OrderNumber, order.PaddyVariety)
			}
		}
		if batch.PaddyVariety == "" {
			return apperror.Validation("paddy_variety is required when no production order is linked")
		}
		if err := s.checkOperator(txCtx, operatorID); err != nil {
			return err
		}

		seq, err := s.seqRepo.Next(txCtx, batchSequence)
		if err != nil {
			return classify(s.log, err, "batch number sequence")
		}
		batch.BatchNumber = fmt.Sprintf("BATCH%06d", seq)

		if err := s.batchRepo.Create(txCtx, &batch); err != nil {
			return classify(s.log, err, "production batch %s", batch.BatchNumber)
		}
		if err := writeAudit(txCtx, s.auditRepo, userID, model.ActionCreateBatch, batch.ID.String(), batch.BatchNumber, req); err != nil {
			return err
		}
		created, err = s.batchRepo.FindByID(txCtx, batch.ID)
		return classify(s.log, err, "production batch %s", batch.BatchNumber)
	})
	if err != nil {
		return ProductionBatchResponse{}, classify(s.log, err, "production batch")
	}

	s.log.Info("production batch created", zap.String("batch_number", created.BatchNumber), zap.String("user_id", userID))
	return toProductionBatchResponse(*created), nil
}

func (s *productionBatchService) Get(ctx context.Context, id string) (ProductionBatchResponse, error) {
	batchID, err := parseID(id, "production batch")
	if err != nil {
		return ProductionBatchResponse{}, err
	}
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return ProductionBatchResponse{}, classify(s.log, err, "production batch %s", id)
	}
	return toProductionBatchResponse(*batch), nil
}

func (s *productionBatchService) List(ctx context.Context, filter ProductionBatchFilter) ([]ProductionBatchResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	orderID, err := parseOptionalID(filter.ProductionOrderID, "production order")
	if err != nil {
		return nil, 0, err
	}

	batches, total, err := s.batchRepo.List(ctx, repository.ProductionBatchFilter{
		Status:            strings.ToUpper(filter.Status),
		ProductionOrderID: orderID,
		Page:              filter.Page,
		Limit:             filter.Limit,
	})
	if err != nil {
		return nil, 0, classify(s.log, err, "production batches")
	}

	result := make([]ProductionBatchResponse, 0, len(batches))
	for _, b := range batches {
		result = append(result, toProductionBatchResponse(b))
	}
	return result, total, nil
}

func (s *productionBatchService) Update(ctx context.Context, userID, id string, req UpdateProductionBatchRequest) (ProductionBatchResponse, error) {
	return s.mutate(ctx, userID, id, model.ActionUpdateBatch, req, func(txCtx context.Context, b *model.ProductionBatch) error {
		if b.Status != model.BatchPlanned && b.Status != model.BatchInProgress {
			return apperror.InvalidState("batch %s cannot be edited while %s", b.BatchNumber, b.Status)
		}
		if req.PaddyVariety != nil {
			variety := strings.TrimSpace(*req.PaddyVariety)
			if variety == "" {
				return apperror.Validation("paddy_variety cannot be empty")
			}
			if b.ProductionOrder != nil && !strings.EqualFold(variety, b.ProductionOrder.PaddyVariety) {
				return apperror.Validation("paddy variety %q does not match order %s (%s)", variety, b.ProductionOrder.OrderNumber, b.ProductionOrder.PaddyVariety)
			}
			b.PaddyVariety = variety
		}
		if req.BatchDate != nil {
			date, err := parseDate(*req.BatchDate, "batch_date")
			if err != nil {
				return err
			}
			b.BatchDate = truncateDay(date)
		}
		if req.Shift != nil {
			shift := model.Shift(strings.ToUpper(strings.TrimSpace(*req.Shift)))
			if !shift.Valid() {
				return apperror.Validation("invalid shift %q, expected MORNING, EVENING or NIGHT", *req.Shift)
			}
			b.Shift = shift
		}
		if req.OperatorID != nil {
			operatorID, err := parseOptionalID(*req.OperatorID, "operator")
			if err != nil {
				return err
			}
			if err := s.checkOperator(txCtx, operatorID); err != nil {
				return err
			}
			b.OperatorID = operatorID
		}
		if req.Notes != nil {
			b.Notes = *req.Notes
		}
		return nil
	})
}

func (s *productionBatchService) RecordInput(ctx context.Context, userID, id string, req RecordInputRequest) (ProductionBatchResponse, error) {
	quantity, err := parseQuantity(req.Quantity, "quantity", false)
	if err != nil {
		return ProductionBatchResponse{}, err
	}
	return s.mutateQuantities(ctx, userID, id, model.ActionRecordBatchInput, req, func(txCtx context.Context, b *model.ProductionBatch) error {
		line := &model.BatchInput{
			BatchID:    b.ID,
			Quantity:   quantity,
			SourceNote: req.SourceNote,
			RecordedBy: userID,
		}
		return classify(s.log, s.batchRepo.AddInput(txCtx, line), "input line of batch %s", b.BatchNumber)
	})
}

func (s *productionBatchService) RecordOutput(ctx context.Context, userID, id string, req RecordOutputRequest) (ProductionBatchResponse, error) {
	category := model.OutputCategory(strings.ToUpper(strings.TrimSpace(req.Category)))
	if !category.Valid() {
		return ProductionBatchResponse{}, apperror.Validation("invalid output category %q, expected HEAD_RICE, BROKEN_RICE, BRAN or HUSK", req.Category)
	}
	quantity, err := parseQuantity(req.Quantity, "quantity", true)
	if err != nil {
		return ProductionBatchResponse{}, err
	}
	return s.mutateQuantities(ctx, userID, id, model.ActionRecordBatchOutput, req, func(txCtx context.Context, b *model.ProductionBatch) error {
		line := &model.BatchOutput{
			BatchID:    b.ID,
			Category:   category,
			Quantity:   quantity,
			RecordedBy: userID,
		}
		return classify(s.log, s.batchRepo.AddOutput(txCtx, line), "output line of batch %s", b.BatchNumber)
	})
}

func (s *productionBatchService) RemoveLine(ctx context.Context, userID, id, lineID string) (ProductionBatchResponse, error) {
	lid, err := parseID(lineID, "batch line")
	if err != nil {
		return ProductionBatchResponse{}, err
	}
	details := map[string]string{"line_id": lineID}
	return s.mutateQuantities(ctx, userID, id, model.ActionRemoveBatchLine, details, func(txCtx context.Context, b *model.ProductionBatch) error {
		found, err := s.batchRepo.DeleteLine(txCtx, b.ID, lid)
		if err != nil {
			return classify(s.log, err, "line %s of batch %s", lineID, b.BatchNumber)
		}
		if !found {
			return apperror.NotFound("line %s not found on batch %s", lineID, b.BatchNumber)
		}
		return nil
	})
}

func (s *productionBatchService) Start(ctx context.Context, userID, id string) (ProductionBatchResponse, error) {
	return s.transition(ctx, userID, id, model.BatchInProgress, model.ActionStartBatch, nil, func(b *model.ProductionBatch) error {
		now := s.now()
		b.StartTime = &now
		return nil
	})
}

// Complete closes the milling run. Yield is not calculated here; that stays
// an explicit step once the outputs are weighed.
func (s *productionBatchService) Complete(ctx context.Context, userID, id string, req CompleteBatchRequest) (ProductionBatchResponse, error) {
	var score decimal.NullDecimal
	if strings.TrimSpace(req.QualityScore) != "" {
		v, err := parsePercent(req.QualityScore, "quality_score")
		if err != nil {
			return ProductionBatchResponse{}, err
		}
		score = decimal.NewNullDecimal(v)
	}
	return s.transition(ctx, userID, id, model.BatchCompleted, model.ActionCompleteBatch, req, func(b *model.ProductionBatch) error {
		now := s.now()
		b.EndTime = &now
		b.QualityScore = score
		b.QualityRemarks = req.QualityRemarks
		return nil
	})
}

func (s *productionBatchService) Verify(ctx context.Context, userID, id string) (ProductionBatchResponse, error) {
	return s.transition(ctx, userID, id, model.BatchVerified, model.ActionVerifyBatch, nil, nil)
}

func (s *productionBatchService) Cancel(ctx context.Context, userID, id string, req CancelRequest) (ProductionBatchResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return ProductionBatchResponse{}, apperror.Validation("cancellation reason is required")
	}
	return s.transition(ctx, userID, id, model.BatchCancelled, model.ActionCancelBatch, req, func(b *model.ProductionBatch) error {
		b.CancellationReason = reason
		return nil
	})
}

// CalculateYield rebuilds the yield record from the current line items,
// replacing any previous record.
func (s *productionBatchService) CalculateYield(ctx context.Context, userID, id string) (ProductionBatchResponse, error) {
	batchID, err := parseID(id, "production batch")
	if err != nil {
		return ProductionBatchResponse{}, err
	}

	var batch *model.ProductionBatch
	var overRecovered bool
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		batch, findErr = s.batchRepo.FindByID(txCtx, batchID)
		if findErr != nil {
			return classify(s.log, findErr, "production batch %s", id)
		}
		switch {
		case batch.Status == model.BatchVerified:
			return apperror.InvalidState("batch %s is VERIFIED, its yield record is final", batch.BatchNumber)
		case batch.Status != model.BatchCompleted:
			return apperror.InvalidState("batch %s must be COMPLETED to calculate yield, it is %s", batch.BatchNumber, batch.Status)
		case len(batch.Inputs) == 0:
			return apperror.PreconditionFailed("batch %s has no recorded paddy input", batch.BatchNumber)
		case len(batch.Outputs) == 0:
			return apperror.PreconditionFailed("batch %s has no recorded outputs", batch.BatchNumber)
		}

		q := batchQuantities(batch)
		breakdown, err := yield.Calculate(q)
		if err != nil {
			return err
		}
		overRecovered = breakdown.ExceedsInput()
		rounded := breakdown.Rounded()

		record := &model.YieldRecord{
			BatchID:            batch.ID,
			PaddyVariety:       batch.PaddyVariety,
			InputQuantity:      q.Input,
			HeadRiceQuantity:   q.HeadRice,
			BrokenRiceQuantity: q.BrokenRice,
			BranQuantity:       q.Bran,
			HuskQuantity:       q.Husk,
			HeadRicePercent:    rounded.HeadRicePercent,
			BrokenRicePercent:  rounded.BrokenRicePercent,
			BranPercent:        rounded.BranPercent,
			HuskPercent:        rounded.HuskPercent,
			TotalYieldPercent:  rounded.TotalYieldPercent,
			MillingRecovery:    rounded.MillingRecovery,
			QualityScore:       batch.QualityScore,
			CalculatedAt:       s.now(),
		}
		if err := s.batchRepo.ReplaceYieldRecord(txCtx, record); err != nil {
			return classify(s.log, err, "yield record of batch %s", batch.BatchNumber)
		}
		batch.YieldRecord = record
		batch.ModifiedBy = userID
		if err := s.batchRepo.UpdateVersioned(txCtx, batch); err != nil {
			return classify(s.log, err, "production batch %s", batch.BatchNumber)
		}
		return writeAudit(txCtx, s.auditRepo, userID, model.ActionCalculateYield, batch.ID.String(), batch.BatchNumber, map[string]string{
			"total_yield_percent":      record.TotalYieldPercent.StringFixed(2),
			"milling_recovery_percent": record.MillingRecovery.StringFixed(2),
		})
	})
	if err != nil {
		return ProductionBatchResponse{}, classify(s.log, err, "production batch %s", id)
	}

	if overRecovered {
		s.log.Warn("milling recovery exceeds paddy input, check the weighbridge readings",
			zap.String("batch_number", batch.BatchNumber),
			zap.String("milling_recovery", batch.YieldRecord.MillingRecovery.String()),
		)
	}
	resp := toProductionBatchResponse(*batch)
	s.events.Publish(EventYieldCalculated, resp.Yield)
	s.log.Info("yield calculated",
		zap.String("batch_number", batch.BatchNumber),
		zap.String("total_yield_percent", batch.YieldRecord.TotalYieldPercent.String()),
	)
	return resp, nil
}

func (s *productionBatchService) Delete(ctx context.Context, userID, id string) error {
	batchID, err := parseID(id, "production batch")
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		batch, err := s.batchRepo.FindByID(txCtx, batchID)
		if err != nil {
			return classify(s.log, err, "production batch %s", id)
		}
		if batch.Status != model.BatchPlanned {
			return apperror.InvalidState("batch %s can only be deleted while PLANNED, it is %s", batch.BatchNumber, batch.Status)
		}
		if err := s.batchRepo.Delete(txCtx, batchID); err != nil {
			return classify(s.log, err, "production batch %s", batch.BatchNumber)
		}
		return writeAudit(txCtx, s.auditRepo, userID, model.ActionDeleteBatch, batch.ID.String(), batch.BatchNumber, map[string]interface{}{"deleted": true})
	})
}

func (s *productionBatchService) Summary(ctx context.Context) (model.BatchSummaryResponse, error) {
	summary := model.BatchSummaryResponse{TodayBatches: []string{}, PendingVerification: []string{}}

	counts, err := s.batchRepo.CountByStatus(ctx)
	if err != nil {
		return summary, classify(s.log, err, "batch counts")
	}
	summary.CountsByStatus = counts

	today := truncateDay(s.now())
	todays, err := s.batchRepo.ListByBatchDate(ctx, today, today.AddDate(0, 0, 1))
	if err != nil {
		return summary, classify(s.log, err, "today's batches")
	}
	for _, b := range todays {
		summary.TodayBatches = append(summary.TodayBatches, b.BatchNumber)
	}
	summary.TodayCount = len(todays)

	pending, err := s.batchRepo.ListPendingVerification(ctx)
	if err != nil {
		return summary, classify(s.log, err, "batches pending verification")
	}
	for _, b := range pending {
		summary.PendingVerification = append(summary.PendingVerification, b.BatchNumber)
	}
	summary.PendingCount = len(pending)
	return summary, nil
}

func (s *productionBatchService) checkOperator(ctx context.Context, operatorID *uuid.UUID) error {
	if operatorID == nil {
		return nil
	}
	operator, err := s.refs.FindEmployee(ctx, *operatorID)
	if err != nil {
		return classify(s.log, err, "operator %s", operatorID.String())
	}
	if !operator.Active {
		return apperror.PreconditionFailed("operator %s is inactive", operator.Code)
	}
	return nil
}

// mutate loads the batch, applies fn and persists it with a version check
// and an audit entry, all in one transaction.
func (s *productionBatchService) mutate(
	ctx context.Context,
	userID, id, action string,
	details interface{},
	fn func(txCtx context.Context, b *model.ProductionBatch) error,
) (ProductionBatchResponse, error) {
	batchID, err := parseID(id, "production batch")
	if err != nil {
		return ProductionBatchResponse{}, err
	}

	var batch *model.ProductionBatch
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.batchRepo.FindByID(txCtx, batchID)
		if err != nil {
			return classify(s.log, err, "production batch %s", id)
		}
		if err := fn(txCtx, current); err != nil {
			return err
		}
		current.ModifiedBy = userID
		if err := s.batchRepo.UpdateVersioned(txCtx, current); err != nil {
			return classify(s.log, err, "production batch %s", current.BatchNumber)
		}
		if err := writeAudit(txCtx, s.auditRepo, userID, action, current.ID.String(), current.BatchNumber, details); err != nil {
			return err
		}
		batch, err = s.batchRepo.FindByID(txCtx, batchID)
		return classify(s.log, err, "production batch %s", current.BatchNumber)
	})
	if err != nil {
		return ProductionBatchResponse{}, classify(s.log, err, "production batch %s", id)
	}
	return toProductionBatchResponse(*batch), nil
}

// mutateQuantities wraps a line item change. A yield record computed from the
// previous quantities no longer holds and is dropped.
func (s *productionBatchService) mutateQuantities(
	ctx context.Context,
	userID, id, action string,
	details interface{},
	fn func(txCtx context.Context, b *model.ProductionBatch) error,
) (ProductionBatchResponse, error) {
	dropped := false
	resp, err := s.mutate(ctx, userID, id, action, details, func(txCtx context.Context, b *model.ProductionBatch) error {
		if !quantitiesEditable(b.Status) {
			return apperror.InvalidState("batch %s is %s, its quantities can no longer change", b.BatchNumber, b.Status)
		}
		if err := fn(txCtx, b); err != nil {
			return err
		}
		if b.YieldRecord != nil {
			if err := s.batchRepo.DeleteYieldRecord(txCtx, b.ID); err != nil {
				return classify(s.log, err, "yield record of batch %s", b.BatchNumber)
			}
			s.log.Info("yield record invalidated by quantity change", zap.String("batch_number", b.BatchNumber))
			b.YieldRecord = nil
			dropped = true
		}
		return nil
	})
	if err != nil {
		return resp, err
	}
	if dropped {
		s.events.Publish(EventYieldInvalidated, map[string]string{"batch_id": resp.ID, "batch_number": resp.BatchNumber})
	}
	return resp, nil
}

func (s *productionBatchService) transition(
	ctx context.Context,
	userID, id string,
	to model.BatchStatus,
	action string,
	details interface{},
	apply func(b *model.ProductionBatch) error,
) (ProductionBatchResponse, error) {
	var from model.BatchStatus
	var number string
	resp, err := s.mutate(ctx, userID, id, action, details, func(_ context.Context, b *model.ProductionBatch) error {
		from, number = b.Status, b.BatchNumber
		if err := batchLifecycle.Check(b, from, to); err != nil {
			return err
		}
		if apply != nil {
			if err := apply(b); err != nil {
				return err
			}
		}
		b.Status = to
		return nil
	})
	if err != nil {
		s.log.Debug("production batch transition rejected", zap.String("id", id), zap.String("to", string(to)), zap.Error(err))
		return ProductionBatchResponse{}, err
	}

	s.events.Publish(EventBatchStatusChanged, StatusChange{
		ID:     resp.ID,
		Number: number,
		From:   string(from),
		To:     string(to),
		By:     userID,
	})
	s.log.Info("production batch transitioned",
		zap.String("batch_number", number),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return resp, nil
}

// --- Helpers ---

func batchQuantities(b *model.ProductionBatch) yield.Quantities {
	var q yield.Quantities
	for _, in := range b.Inputs {
		q.Input = q.Input.Add(in.Quantity)
	}
	for _, out := range b.Outputs {
		switch out.Category {
		case model.OutputHeadRice:
			q.HeadRice = q.HeadRice.Add(out.Quantity)
		case model.OutputBrokenRice:
			q.BrokenRice = q.BrokenRice.Add(out.Quantity)
		case model.OutputBran:
			q.Bran = q.Bran.Add(out.Quantity)
		case model.OutputHusk:
			q.Husk = q.Husk.Add(out.Quantity)
		}
	}
	return q
}

// batchEfficiency is total output over total input as a percentage.
func batchEfficiency(q yield.Quantities) decimal.Decimal {
	if !q.Input.IsPositive() {
		return decimal.Zero
	}
	return q.OutputTotal().Mul(decimal.NewFromInt(100)).Div(q.Input).Round(2)
}

// --- Mapping ---

func toProductionBatchResponse(b model.ProductionBatch) ProductionBatchResponse {
	targets := batchLifecycle.Targets(b.Status)
	allowed := make([]string, 0, len(targets))
	for _, t := range targets {
		allowed = append(allowed, string(t))
	}

	inputs := make([]BatchLineResponse, 0, len(b.Inputs))
	for _, in := range b.Inputs {
		inputs = append(inputs, BatchLineResponse{
			ID:         in.ID.String(),
			Quantity:   in.Quantity.StringFixed(4),
			SourceNote: in.SourceNote,
			RecordedBy: in.RecordedBy,
			CreatedAt:  in.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	outputs := make([]BatchLineResponse, 0, len(b.Outputs))
	for _, out := range b.Outputs {
		outputs = append(outputs, BatchLineResponse{
			ID:         out.ID.String(),
			Category:   string(out.Category),
			Quantity:   out.Quantity.StringFixed(4),
			RecordedBy: out.RecordedBy,
			CreatedAt:  out.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	q := batchQuantities(&b)
	resp := ProductionBatchResponse{
		ID:                 b.ID.String(),
		BatchNumber:        b.BatchNumber,
		ProductionOrderID:  formatID(b.ProductionOrderID),
		PaddyVariety:       b.PaddyVariety,
		BatchDate:          b.BatchDate.UTC().Format(time.DateOnly),
		Shift:              string(b.Shift),
		OperatorID:         formatID(b.OperatorID),
		StartTime:          formatTime(b.StartTime),
		EndTime:            formatTime(b.EndTime),
		Status:             string(b.Status),
		AllowedTransitions: allowed,
		QualityScore:       formatNullDecimal(b.QualityScore, 2),
		QualityRemarks:     b.QualityRemarks,
		CancellationReason: b.CancellationReason,
		Notes:              b.Notes,
		Inputs:             inputs,
		Outputs:            outputs,
		TotalInput:         q.Input.StringFixed(4),
		TotalOutput:        q.OutputTotal().StringFixed(4),
		EfficiencyPercent:  batchEfficiency(q).StringFixed(2),
		CreatedBy:          b.CreatedBy,
		ModifiedBy:         b.ModifiedBy,
		Version:            b.Version,
		CreatedAt:          b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          b.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if y := b.YieldRecord; y != nil {
		resp.Yield = &YieldRecordResponse{
			ID:                 y.ID.String(),
			PaddyVariety:       y.PaddyVariety,
			InputQuantity:      y.InputQuantity.StringFixed(4),
			HeadRiceQuantity:   y.HeadRiceQuantity.StringFixed(4),
			BrokenRiceQuantity: y.BrokenRiceQuantity.StringFixed(4),
			BranQuantity:       y.BranQuantity.StringFixed(4),
			HuskQuantity:       y.HuskQuantity.StringFixed(4),
			HeadRicePercent:    y.HeadRicePercent.StringFixed(2),
			BrokenRicePercent:  y.BrokenRicePercent.StringFixed(2),
			BranPercent:        y.BranPercent.StringFixed(2),
			HuskPercent:        y.HuskPercent.StringFixed(2),
			TotalYieldPercent:  y.TotalYieldPercent.StringFixed(2),
			MillingRecovery:    y.MillingRecovery.StringFixed(2),
			QualityScore:       formatNullDecimal(y.QualityScore, 2),
			CalculatedAt:       y.CalculatedAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}
