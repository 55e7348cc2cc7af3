package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MachineStatus enum constants
const (
	MachineOperational = "OPERATIONAL"
	MachineMaintenance = "MAINTENANCE"
	MachineBreakdown   = "BREAKDOWN"
	MachineIdle        = "IDLE"
)

// Machine and Employee are master data owned by another module. This service
// only reads them.
type Machine struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Code              string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	Name              string          `gorm:"type:varchar(255);not null" json:"name"`
	MachineType       string          `gorm:"type:varchar(50)" json:"machine_type"`
	CapacityPerHour   decimal.Decimal `gorm:"type:decimal(18,4)" json:"capacity_per_hour"`
	OperationalStatus string          `gorm:"type:varchar(20);not null;default:'OPERATIONAL'" json:"operational_status"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (m *Machine) BeforeCreate(tx *gorm.DB) error {
	assignID(&m.ID)
	return nil
}

type Employee struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code      string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	FullName  string    `gorm:"type:varchar(255);not null" json:"full_name"`
	Position  string    `gorm:"type:varchar(100)" json:"position"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *Employee) BeforeCreate(tx *gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// NumberSequence backs the PO/BATCH document numbers.
type NumberSequence struct {
	Name      string `gorm:"type:varchar(30);primaryKey"`
	Value     int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}
