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

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const orderSequence = "PRODUCTION_ORDER"

// --- DTOs ---

type CreateProductionOrderRequest struct {
	PaddyVariety    string `json:"paddy_variety" binding:"required"`
	PlannedQuantity string `json:"planned_quantity" binding:"required"`
	Notes           string `json:"notes"`
}

// UpdateProductionOrderRequest edits header fields; nil fields are left unchanged
type UpdateProductionOrderRequest struct {
	PaddyVariety    *string `json:"paddy_variety"`
	PlannedQuantity *string `json:"planned_quantity"`
	Notes           *string `json:"notes"`
}

type ScheduleProductionOrderRequest struct {
	ScheduledDate string `json:"scheduled_date" binding:"required"` // RFC3339 or YYYY-MM-DD
	MachineID     string `json:"machine_id"`
	SupervisorID  string `json:"supervisor_id"`
}

type CompleteProductionOrderRequest struct {
	ActualQuantity     string `json:"actual_quantity" binding:"required"`
	ActualYieldPercent string `json:"actual_yield_percent" binding:"required"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type ProductionOrderFilter struct {
	Status string
	Page   int
	Limit  int
}

type ProductionOrderResponse struct {
	ID                     string   `json:"id"`
	OrderNumber            string   `json:"order_number"`
	PaddyVariety           string   `json:"paddy_variety"`
	PlannedQuantity        string   `json:"planned_quantity"`
	MachineID              *string  `json:"machine_id"`
	SupervisorID           *string  `json:"supervisor_id"`
	ScheduledDate          *string  `json:"scheduled_date"`
	ActualQuantityProduced *string  `json:"actual_quantity_produced"`
	ActualYieldPercent     *string  `json:"actual_yield_percent"`
	ActualCompletionDate   *string  `json:"actual_completion_date"`
	CancellationReason     string   `json:"cancellation_reason,omitempty"`
	Notes                  string   `json:"notes"`
	Status                 string   `json:"status"`
	AllowedTransitions     []string `json:"allowed_transitions"`
	CreatedBy              string   `json:"created_by"`
	ModifiedBy             string   `json:"modified_by"`
	Version                int      `json:"version"`
	CreatedAt              string   `json:"created_at"`
	UpdatedAt              string   `json:"updated_at"`
}

// --- Lifecycle ---

type orderTransition = lifecycle.Transition[model.OrderStatus, *model.ProductionOrder]

var orderLifecycle = lifecycle.New("production order", []orderTransition{
	{From: []model.OrderStatus{model.OrderDraft, model.OrderScheduled}, To: model.OrderScheduled},
	{From: []model.OrderStatus{model.OrderScheduled}, To: model.OrderInProgress, Require: requireAssignedMachine},
	{From: []model.OrderStatus{model.OrderInProgress}, To: model.OrderCompleted},
	{
		From:      []model.OrderStatus{model.OrderDraft, model.OrderScheduled, model.OrderInProgress},
		To:        model.OrderCancelled,
		Rejection: apperror.KindInvalidState,
	},
}...)

func requireAssignedMachine(o *model.ProductionOrder) error {
	if o.MachineID == nil {
		return apperror.PreconditionFailed("production order %s has no assigned machine", o.OrderNumber)
	}
	return nil
}

// --- Interface ---

type ProductionOrderService interface {
	Create(ctx context.Context, userID string, req CreateProductionOrderRequest) (ProductionOrderResponse, error)
	Get(ctx context.Context, id string) (ProductionOrderResponse, error)
	List(ctx context.Context, filter ProductionOrderFilter) ([]ProductionOrderResponse, int64, error)
	Update(ctx context.Context, userID, id string, req UpdateProductionOrderRequest) (ProductionOrderResponse, error)
	Schedule(ctx context.Context, userID, id string, req ScheduleProductionOrderRequest) (ProductionOrderResponse, error)
	Start(ctx context.Context, userID, id string) (ProductionOrderResponse, error)
	Complete(ctx context.Context, userID, id string, req CompleteProductionOrderRequest) (ProductionOrderResponse, error)
	Cancel(ctx context.Context, userID, id string, req CancelRequest) (ProductionOrderResponse, error)
	Delete(ctx context.Context, userID, id string) error
	Statistics(ctx context.Context) (model.OrderStatisticsResponse, error)
}

type productionOrderService struct {
	orderRepo repository.ProductionOrderRepository
	seqRepo   repository.SequenceRepository
	auditRepo repository.AuditRepository
	refs      ReferenceLookup
	txManager repository.TransactionManager
	events    EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

func NewProductionOrderService(
	orderRepo repository.ProductionOrderRepository,
	seqRepo repository.SequenceRepository,
	auditRepo repository.AuditRepository,
	refs ReferenceLookup,
	txManager repository.TransactionManager,
	events EventPublisher,
	log *zap.Logger,
) ProductionOrderService {
	if events == nil {
		events = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &productionOrderService{
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

func (s *productionOrderService) Create(ctx context.Context, userID string, req CreateProductionOrderRequest) (ProductionOrderResponse, error) {
	variety := strings.TrimSpace(req.PaddyVariety)
	if variety == "" {
		return ProductionOrderResponse{}, apperror.Validation("paddy_variety is required")
	}
	planned, err := parseQuantity(req.PlannedQuantity, "planned_quantity", false)
	if err != nil {
		return ProductionOrderResponse{}, err
	}

	order := model.ProductionOrder{
		PaddyVariety:    variety,
		PlannedQuantity: planned,
		Notes:           req.Notes,
		Status:          model.OrderDraft,
		CreatedBy:       userID,
		ModifiedBy:      userID,
		Version:         1,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		seq, err := s.seqRepo.Next(txCtx, orderSequence)
		if err != nil {
			return classify(s.log, err, "order number sequence")
		}
		order.OrderNumber = fmt.Sprintf("PO%06d", seq)

		if err := s.orderRepo.Create(txCtx, &order); err != nil {
			return classify(s.log, err, "production order %s", order.OrderNumber)
		}
		return writeAudit(txCtx, s.auditRepo, userID, model.ActionCreateProductionOrder, order.ID.String(), order.OrderNumber, req)
	})
	if err != nil {
		return ProductionOrderResponse{}, classify(s.log, err, "production order")
	}

	s.log.Info("production order created", zap.String("order_number", order.OrderNumber), zap.String("user_id", userID))
	return toProductionOrderResponse(order), nil
}

func (s *productionOrderService) Get(ctx context.Context, id string) (ProductionOrderResponse, error) {
	orderID, err := parseID(id, "production order")
	if err != nil {
		return ProductionOrderResponse{}, err
	}
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return ProductionOrderResponse{}, classify(s.log, err, "production order %s", id)
	}
	return toProductionOrderResponse(*order), nil
}

func (s *productionOrderService) List(ctx context.Context, filter ProductionOrderFilter) ([]ProductionOrderResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	orders, total, err := s.orderRepo.List(ctx, repository.ProductionOrderFilter{
		Status: strings.ToUpper(filter.Status),
		Page:   filter.Page,
		Limit:  filter.Limit,
	})
	if err != nil {
		return nil, 0, classify(s.log, err, "production orders")
	}

	result := make([]ProductionOrderResponse, 0, len(orders))
	for _, o := range orders {
		result = append(result, toProductionOrderResponse(o))
	}
	return result, total, nil
}

func (s *productionOrderService) Update(ctx context.Context, userID, id string, req UpdateProductionOrderRequest) (ProductionOrderResponse, error) {
	orderID, err := parseID(id, "production order")
	if err != nil {
		return ProductionOrderResponse{}, err
	}

	var order *model.ProductionOrder
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		order, findErr = s.orderRepo.FindByID(txCtx, orderID)
		if findErr != nil {
			return classify(s.log, findErr, "production order %s", id)
		}
		if order.Status != model.OrderDraft && order.Status != model.OrderScheduled {
			return apperror.InvalidState("production order %s cannot be edited while %s", order.OrderNumber, order.Status)
		}

		if req.PaddyVariety != nil {
			variety := strings.TrimSpace(*req.PaddyVariety)
			if variety == "" {
				return apperror.Validation("paddy_variety cannot be empty")
			}
			order.PaddyVariety = variety
		}
		if req.PlannedQuantity != nil {
			planned, err := parseQuantity(*req.PlannedQuantity, "planned_quantity", false)
			if err != nil {
				return err
			}
			order.PlannedQuantity = planned
		}
		if req.Notes != nil {
			order.Notes = *req.Notes
		}
		order.ModifiedBy = userID

		if err := s.orderRepo.UpdateVersioned(txCtx, order); err != nil {
			return classify(s.log, err, "production order %s", order.OrderNumber)
		}
		return writeAudit(txCtx, s.auditRepo, userID, model.ActionUpdateProductionOrder, order.ID.String(), order.OrderNumber, req)
	})
	if err != nil {
		return ProductionOrderResponse{}, err
	}
	return toProductionOrderResponse(*order), nil
}

func (s *productionOrderService) Schedule(ctx context.Context, userID, id string, req ScheduleProductionOrderRequest) (ProductionOrderResponse, error) {
	date, err := parseDate(req.ScheduledDate, "scheduled_date")
	if err != nil {
		return ProductionOrderResponse{}, err
	}
	machineID, err := parseOptionalID(req.MachineID, "machine")
	if err != nil {
		return ProductionOrderResponse{}, err
	}
	supervisorID, err := parseOptionalID(req.SupervisorID, "supervisor")
	if err != nil {
		return ProductionOrderResponse{}, err
	}

	return s.transition(ctx, userID, id, model.OrderScheduled, model.ActionScheduleProductionOrder, req,
		func(txCtx context.Context, o *model.ProductionOrder) error {
			if machineID != nil {
				machine, err := s.refs.FindMachine(txCtx, *machineID)
				if err != nil {
					return classify(s.log, err, "machine %s", machineID.String())
				}
				if machine.OperationalStatus == model.MachineBreakdown || machine.OperationalStatus == model.MachineMaintenance {
					return apperror.PreconditionFailed("machine %s is %s", machine.Code, machine.OperationalStatus)
				}
				o.MachineID = machineID
			}
			if supervisorID != nil {
				supervisor, err := s.refs.FindEmployee(txCtx, *supervisorID)
				if err != nil {
					return classify(s.log, err, "supervisor %s", supervisorID.String())
				}
				if !supervisor.Active {
					return apperror.PreconditionFailed("supervisor %s is inactive", supervisor.Code)
				}
				o.SupervisorID = supervisorID
			}
			o.ScheduledDate = &date
			return nil
		})
}

func (s *productionOrderService) Start(ctx context.Context, userID, id string) (ProductionOrderResponse, error) {
	return s.transition(ctx, userID, id, model.OrderInProgress, model.ActionStartProductionOrder, nil, nil)
}

func (s *productionOrderService) Complete(ctx context.Context, userID, id string, req CompleteProductionOrderRequest) (ProductionOrderResponse, error) {
	quantity, err := parseQuantity(req.ActualQuantity, "actual_quantity", false)
	if err != nil {
		return ProductionOrderResponse{}, err
	}
	yieldPercent, err := parsePercent(req.ActualYieldPercent, "actual_yield_percent")
	if err != nil {
		return ProductionOrderResponse{}, err
	}

	return s.transition(ctx, userID, id, model.OrderCompleted, model.ActionCompleteProductionOrder, req,
		func(_ context.Context, o *model.ProductionOrder) error {
			now := s.now()
			o.ActualQuantityProduced = decimal.NewNullDecimal(quantity)
			o.ActualYieldPercent = decimal.NewNullDecimal(yieldPercent)
			o.ActualCompletionDate = &now
			return nil
		})
}

func (s *productionOrderService) Cancel(ctx context.Context, userID, id string, req CancelRequest) (ProductionOrderResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return ProductionOrderResponse{}, apperror.Validation("cancellation reason is required")
	}
	return s.transition(ctx, userID, id, model.OrderCancelled, model.ActionCancelProductionOrder, req,
		func(_ context.Context, o *model.ProductionOrder) error {
			o.CancellationReason = reason
			return nil
		})
}

func (s *productionOrderService) Delete(ctx context.Context, userID, id string) error {
	orderID, err := parseID(id, "production order")
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orderRepo.FindByID(txCtx, orderID)
		if err != nil {
			return classify(s.log, err, "production order %s", id)
		}
		if order.Status != model.OrderDraft {
			return apperror.InvalidState("production order %s can only be deleted while DRAFT, it is %s", order.OrderNumber, order.Status)
		}
		if err := s.orderRepo.Delete(txCtx, orderID); err != nil {
			return classify(s.log, err, "production order %s", order.OrderNumber)
		}
		return writeAudit(txCtx, s.auditRepo, userID, model.ActionDeleteProductionOrder, order.ID.String(), order.OrderNumber, map[string]interface{}{"deleted": true})
	})
}

func (s *productionOrderService) Statistics(ctx context.Context) (model.OrderStatisticsResponse, error) {
	now := s.now()
	stats := model.OrderStatisticsResponse{GeneratedAt: now, OverdueOrderNumbers: []string{}}

	counts, err := s.orderRepo.CountByStatus(ctx)
	if err != nil {
		return stats, classify(s.log, err, "production order counts")
	}
	stats.CountsByStatus = counts
	for _, c := range counts {
		stats.TotalOrders += c
	}

	overdue, err := s.orderRepo.ListOverdue(ctx, now)
	if err != nil {
		return stats, classify(s.log, err, "overdue production orders")
	}
	for _, o := range overdue {
		stats.OverdueOrderNumbers = append(stats.OverdueOrderNumbers, o.OrderNumber)
	}
	stats.OverdueCount = len(overdue)

	orders, err := s.orderRepo.ListOpenAndCompleted(ctx)
	if err != nil {
		return stats, classify(s.log, err, "production orders")
	}
	planned, produced, yieldSum := decimal.Zero, decimal.Zero, decimal.Zero
	yieldCount := 0
	for _, o := range orders {
		planned = planned.Add(o.PlannedQuantity)
		if o.Status != model.OrderCompleted {
			continue
		}
		stats.CompletedOrders++
		if o.ActualQuantityProduced.Valid {
			produced = produced.Add(o.ActualQuantityProduced.Decimal)
		}
		if o.ActualYieldPercent.Valid {
			yieldSum = yieldSum.Add(o.ActualYieldPercent.Decimal)
			yieldCount++
		}
	}
	if yieldCount > 0 {
		stats.AverageActualYield = yieldSum.Div(decimal.NewFromInt(int64(yieldCount))).Round(2).InexactFloat64()
	}
	stats.TotalPlannedQuantity = planned.StringFixed(4)
	stats.TotalProduced = produced.StringFixed(4)
	return stats, nil
}

// transition runs one guarded status change as a single unit: load, check,
// apply, versioned write and audit inside one transaction.
func (s *productionOrderService) transition(
	ctx context.Context,
	userID, id string,
	to model.OrderStatus,
	action string,
	details interface{},
	apply func(txCtx context.Context, o *model.ProductionOrder) error,
) (ProductionOrderResponse, error) {
	orderID, err := parseID(id, "production order")
	if err != nil {
		return ProductionOrderResponse{}, err
	}

	var order *model.ProductionOrder
	var from model.OrderStatus
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		order, findErr = s.orderRepo.FindByID(txCtx, orderID)
		if findErr != nil {
			return classify(s.log, findErr, "production order %s", id)
		}
		from = order.Status

		if err := orderLifecycle.Check(order, from, to); err != nil {
			return err
		}
		if apply != nil {
			if err := apply(txCtx, order); err != nil {
				return err
			}
		}
		order.Status = to
		order.ModifiedBy = userID

		if err := s.orderRepo.UpdateVersioned(txCtx, order); err != nil {
			return classify(s.log, err, "production order %s", order.OrderNumber)
		}
		return writeAudit(txCtx, s.auditRepo, userID, action, order.ID.String(), order.OrderNumber, map[string]interface{}{
			"from":    from,
			"to":      to,
			"request": details,
		})
	})
	if err != nil {
		s.log.Debug("production order transition rejected", zap.String("id", id), zap.String("to", string(to)), zap.Error(err))
		return ProductionOrderResponse{}, classify(s.log, err, "production order %s", id)
	}

	event := EventOrderStatusChanged
	if from == to {
		// only a reschedule keeps the status
		event = EventOrderRescheduled
	}
	s.events.Publish(event, StatusChange{
		ID:     order.ID.String(),
		Number: order.OrderNumber,
		From:   string(from),
		To:     string(to),
		By:     userID,
	})
	s.log.Info("production order transitioned",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return toProductionOrderResponse(*order), nil
}

// --- Mapping ---

func toProductionOrderResponse(o model.ProductionOrder) ProductionOrderResponse {
	targets := orderLifecycle.Targets(o.Status)
	allowed := make([]string, 0, len(targets))
	for _, t := range targets {
		allowed = append(allowed, string(t))
	}

	return ProductionOrderResponse{
		ID:                     o.ID.String(),
		OrderNumber:            o.OrderNumber,
		PaddyVariety:           o.PaddyVariety,
		PlannedQuantity:        o.PlannedQuantity.StringFixed(4),
		MachineID:              formatID(o.MachineID),
		SupervisorID:           formatID(o.SupervisorID),
		ScheduledDate:          formatTime(o.ScheduledDate),
		ActualQuantityProduced: formatNullDecimal(o.ActualQuantityProduced, 4),
		ActualYieldPercent:     formatNullDecimal(o.ActualYieldPercent, 2),
		ActualCompletionDate:   formatTime(o.ActualCompletionDate),
		CancellationReason:     o.CancellationReason,
		Notes:                  o.Notes,
		Status:                 string(o.Status),
		AllowedTransitions:     allowed,
		CreatedBy:              o.CreatedBy,
		ModifiedBy:             o.ModifiedBy,
		Version:                o.Version,
		CreatedAt:              o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:              o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
