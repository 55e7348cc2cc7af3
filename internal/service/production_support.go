package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ricemill/internal/apperror"
	"ricemill/internal/model"
	"ricemill/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Realtime event names pushed to websocket subscribers
const (
	EventOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventBatchStatusChanged = "BATCH_STATUS_CHANGED"
	EventYieldCalculated    = "YIELD_CALCULATED"
	EventYieldInvalidated   = "YIELD_INVALIDATED"
	EventOrderRescheduled   = "ORDER_RESCHEDULED"
	EventProductionDigest   = "PRODUCTION_DIGEST"
)

// EventPublisher fans production events out to live subscribers. Publish
// must not block the caller.
type EventPublisher interface {
	Publish(event string, payload interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}

// Flusher drops every cached entry; *cache.Cache satisfies it.
type Flusher interface {
	Flush()
}

type flushingPublisher struct {
	next  EventPublisher
	store Flusher
}

// NewFlushingPublisher clears store whenever an event that can change
// analytics results passes through, then forwards the event to next.
func NewFlushingPublisher(next EventPublisher, store Flusher) EventPublisher {
	if next == nil {
		next = nopPublisher{}
	}
	return &flushingPublisher{next: next, store: store}
}

func (p *flushingPublisher) Publish(event string, payload interface{}) {
	switch event {
	case EventYieldCalculated, EventYieldInvalidated, EventBatchStatusChanged,
		EventOrderStatusChanged, EventOrderRescheduled:
		p.store.Flush()
	}
	p.next.Publish(event, payload)
}

// ReferenceLookup is the read-only view of machine and employee master data.
type ReferenceLookup interface {
	FindMachine(ctx context.Context, id uuid.UUID) (*model.Machine, error)
	FindEmployee(ctx context.Context, id uuid.UUID) (*model.Employee, error)
	ListMachines(ctx context.Context, ids []uuid.UUID) ([]model.Machine, error)
}

// StatusChange is the payload of the *_STATUS_CHANGED events.
type StatusChange struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	From   string `json:"from"`
	To     string `json:"to"`
	By     string `json:"by"`
}

// classify turns a repository error into a typed error. Unknown failures are
// logged and reported as STORAGE_ERROR.
func classify(log *zap.Logger, err error, format string, args ...interface{}) error {
	var appErr *apperror.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperror.NotFound(format+" not found", args...)
	case errors.Is(err, repository.ErrStaleVersion):
		return apperror.Wrap(apperror.KindConflict, err, format+" was modified concurrently, reload and retry", args...)
	default:
		log.Error("storage failure", zap.String("subject", fmt.Sprintf(format, args...)), zap.Error(err))
		return apperror.Storage(err, "failed to access "+format, args...)
	}
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid %s id %q", what, raw)
	}
	return id, nil
}

func parseOptionalID(raw, what string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(raw, what)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Column scales: quantities are decimal(18,4), percentages decimal(7,2).
// Input finer than the column is rejected so stored values read back unchanged.
const (
	quantityScale = 4
	percentScale  = 2
)

func parseQuantity(raw, field string, allowZero bool) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, apperror.Validation("invalid %s %q", field, raw)
	}
	if d.IsNegative() || (!allowZero && d.IsZero()) {
		return decimal.Zero, apperror.Validation("%s must be greater than zero", field)
	}
	if !d.Equal(d.Truncate(quantityScale)) {
		return decimal.Zero, apperror.Validation("%s allows at most %d decimal places", field, quantityScale)
	}
	return d, nil
}

func parsePercent(raw, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, apperror.Validation("invalid %s %q", field, raw)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, apperror.Validation("%s must be between 0 and 100", field)
	}
	if !d.Equal(d.Truncate(percentScale)) {
		return decimal.Zero, apperror.Validation("%s allows at most %d decimal places", field, percentScale)
	}
	return d, nil
}

// parseDate accepts RFC3339 or YYYY-MM-DD and normalizes to UTC.
func parseDate(raw, field string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperror.Validation("invalid %s %q, expected RFC3339 or YYYY-MM-DD", field, raw)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func writeAudit(ctx context.Context, repo repository.AuditRepository, userID, action, entityID, entityName string, details interface{}) error {
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func formatNullDecimal(d decimal.NullDecimal, places int32) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(places)
	return &s
}

func formatID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
