package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus enum constants
type OrderStatus string

const (
	OrderDraft      OrderStatus = "DRAFT"
	OrderScheduled  OrderStatus = "SCHEDULED"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderCompleted  OrderStatus = "COMPLETED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// ProductionOrder is a plan to mill a quantity of one paddy variety on a machine.
// Actual* fields are only populated once the order is COMPLETED.
type ProductionOrder struct {
	ID                     uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber            string              `gorm:"type:varchar(20);uniqueIndex;not null" json:"order_number"`
	PaddyVariety           string              `gorm:"type:varchar(100);not null;index" json:"paddy_variety"`
	PlannedQuantity        decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"planned_quantity"`
	MachineID              *uuid.UUID          `gorm:"type:uuid;index" json:"machine_id"`
	SupervisorID           *uuid.UUID          `gorm:"type:uuid" json:"supervisor_id"`
	ScheduledDate          *time.Time          `gorm:"index" json:"scheduled_date"`
	ActualQuantityProduced decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"actual_quantity_produced"`
	ActualYieldPercent     decimal.NullDecimal `gorm:"type:decimal(7,2)" json:"actual_yield_percent"`
	ActualCompletionDate   *time.Time          `json:"actual_completion_date"`
	CancellationReason     string              `gorm:"type:text" json:"cancellation_reason,omitempty"`
	Notes                  string              `gorm:"type:text" json:"notes"`
	Status                 OrderStatus         `gorm:"type:varchar(20);not null;default:'DRAFT';index" json:"status"`
	CreatedBy              string              `gorm:"type:varchar(64)" json:"created_by"`
	ModifiedBy             string              `gorm:"type:varchar(64)" json:"modified_by"`
	Version                int                 `gorm:"not null;default:1" json:"version"`
	CreatedAt              time.Time           `json:"created_at"`
	UpdatedAt              time.Time           `json:"updated_at"`
}

func (o *ProductionOrder) BeforeCreate(tx *gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// assignID fills a zero primary key so inserts do not depend on a
// database-side uuid generator.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
