package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BatchStatus enum constants
type BatchStatus string

const (
	BatchPlanned    BatchStatus = "PLANNED"
	BatchInProgress BatchStatus = "IN_PROGRESS"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchVerified   BatchStatus = "VERIFIED"
	BatchCancelled  BatchStatus = "CANCELLED"
)

// Shift enum constants
type Shift string

const (
	ShiftMorning Shift = "MORNING"
	ShiftEvening Shift = "EVENING"
	ShiftNight   Shift = "NIGHT"
)

func (s Shift) Valid() bool {
	switch s {
	case ShiftMorning, ShiftEvening, ShiftNight:
		return true
	}
	return false
}

// OutputCategory enum constants
type OutputCategory string

const (
	OutputHeadRice   OutputCategory = "HEAD_RICE"
	OutputBrokenRice OutputCategory = "BROKEN_RICE"
	OutputBran       OutputCategory = "BRAN"
	OutputHusk       OutputCategory = "HUSK"
)

func (c OutputCategory) Valid() bool {
	switch c {
	case OutputHeadRice, OutputBrokenRice, OutputBran, OutputHusk:
		return true
	}
	return false
}

// ProductionBatch is one milling run. Quantities live in the Inputs and
// Outputs line items; YieldRecord exists only after an explicit calculation.
type ProductionBatch struct {
	ID                 uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	BatchNumber        string              `gorm:"type:varchar(20);uniqueIndex;not null" json:"batch_number"`
	ProductionOrderID  *uuid.UUID          `gorm:"type:uuid;index" json:"production_order_id"`
	ProductionOrder    *ProductionOrder    `gorm:"foreignKey:ProductionOrderID" json:"production_order,omitempty"`
	PaddyVariety       string              `gorm:"type:varchar(100);not null;index" json:"paddy_variety"`
	BatchDate          time.Time           `gorm:"not null;index" json:"batch_date"`
	Shift              Shift               `gorm:"type:varchar(10);not null" json:"shift"`
	OperatorID         *uuid.UUID          `gorm:"type:uuid" json:"operator_id"`
	StartTime          *time.Time          `json:"start_time"`
	EndTime            *time.Time          `json:"end_time"`
	Status             BatchStatus         `gorm:"type:varchar(20);not null;default:'PLANNED';index" json:"status"`
	QualityScore       decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"quality_score"`
	QualityRemarks     string              `gorm:"type:text" json:"quality_remarks"`
	CancellationReason string              `gorm:"type:text" json:"cancellation_reason,omitempty"`
	Notes              string              `gorm:"type:text" json:"notes"`
	CreatedBy          string              `gorm:"type:varchar(64)" json:"created_by"`
	ModifiedBy         string              `gorm:"type:varchar(64)" json:"modified_by"`
	Version            int                 `gorm:"not null;default:1" json:"version"`
	Inputs             []BatchInput        `gorm:"foreignKey:BatchID" json:"inputs,omitempty"`
	Outputs            []BatchOutput       `gorm:"foreignKey:BatchID" json:"outputs,omitempty"`
	YieldRecord        *YieldRecord        `gorm:"foreignKey:BatchID" json:"yield_record,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func (b *ProductionBatch) BeforeCreate(tx *gorm.DB) error {
	assignID(&b.ID)
	return nil
}

// BatchInput records paddy charged into the huller for a batch.
type BatchInput struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"batch_id"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	SourceNote string          `gorm:"type:varchar(255)" json:"source_note"`
	RecordedBy string          `gorm:"type:varchar(64)" json:"recorded_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (i *BatchInput) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// BatchOutput records one weighed output fraction.
type BatchOutput struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"batch_id"`
	Category   OutputCategory  `gorm:"type:varchar(20);not null" json:"category"`
	Quantity   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	RecordedBy string          `gorm:"type:varchar(64)" json:"recorded_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (o *BatchOutput) BeforeCreate(tx *gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// YieldRecord is the derived yield of a batch. It is rebuilt from the line
// items on every calculation and never edited in place.
type YieldRecord struct {
	ID                 uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID            uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex" json:"batch_id"`
	PaddyVariety       string              `gorm:"type:varchar(100);not null" json:"paddy_variety"`
	InputQuantity      decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"input_quantity"`
	HeadRiceQuantity   decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"head_rice_quantity"`
	BrokenRiceQuantity decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"broken_rice_quantity"`
	BranQuantity       decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"bran_quantity"`
	HuskQuantity       decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"husk_quantity"`
	HeadRicePercent    decimal.Decimal     `gorm:"type:decimal(7,2);not null" json:"head_rice_percent"`
	BrokenRicePercent  decimal.Decimal     `gorm:"type:decimal(7,2);not null" json:"broken_rice_percent"`
	BranPercent        decimal.Decimal     `gorm:"type:decimal(7,2);not null" json:"bran_percent"`
	HuskPercent        decimal.Decimal     `gorm:"type:decimal(7,2);not null" json:"husk_percent"`
	TotalYieldPercent  decimal.Decimal     `gorm:"type:decimal(7,2);not null;index" json:"total_yield_percent"`
	MillingRecovery    decimal.Decimal     `gorm:"type:decimal(7,2);not null" json:"milling_recovery_percent"`
	QualityScore       decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"quality_score"`
	CalculatedAt       time.Time           `gorm:"not null" json:"calculated_at"`
}

func (y *YieldRecord) BeforeCreate(tx *gorm.DB) error {
	assignID(&y.ID)
	return nil
}
