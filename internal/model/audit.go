package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateProductionOrder   = "CREATE_PRODUCTION_ORDER"
	ActionUpdateProductionOrder   = "UPDATE_PRODUCTION_ORDER"
	ActionScheduleProductionOrder = "SCHEDULE_PRODUCTION_ORDER"
	ActionStartProductionOrder    = "START_PRODUCTION_ORDER"
	ActionCompleteProductionOrder = "COMPLETE_PRODUCTION_ORDER"
	ActionCancelProductionOrder   = "CANCEL_PRODUCTION_ORDER"
	ActionDeleteProductionOrder   = "DELETE_PRODUCTION_ORDER"

	ActionCreateBatch       = "CREATE_BATCH"
	ActionUpdateBatch       = "UPDATE_BATCH"
	ActionRecordBatchInput  = "RECORD_BATCH_INPUT"
	ActionRecordBatchOutput = "RECORD_BATCH_OUTPUT"
	ActionRemoveBatchLine   = "REMOVE_BATCH_LINE"
	ActionStartBatch        = "START_BATCH"
	ActionCompleteBatch     = "COMPLETE_BATCH"
	ActionCalculateYield    = "CALCULATE_YIELD"
	ActionVerifyBatch       = "VERIFY_BATCH"
	ActionCancelBatch       = "CANCEL_BATCH"
	ActionDeleteBatch       = "DELETE_BATCH"
)

// AuditLog tracks Who, What, and When for production changes.
// UserID is the opaque caller identity taken from the token subject.
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string    `gorm:"type:varchar(64);index" json:"user_id"`
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string    `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // order or batch number
	Details    string    `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
