package model

import (
	"time"
)

// StatusCount is one row of a GROUP BY status aggregation
type StatusCount struct {
	Status string
	Count  int64
}

// OrderStatisticsResponse aggregates derived production order metrics
type OrderStatisticsResponse struct {
	CountsByStatus       map[string]int64 `json:"counts_by_status"`
	TotalOrders          int64            `json:"total_orders"`
	OverdueCount         int              `json:"overdue_count"`
	OverdueOrderNumbers  []string         `json:"overdue_order_numbers"`
	AverageActualYield   float64          `json:"average_actual_yield_percent"`
	CompletedOrders      int              `json:"completed_orders"`
	TotalPlannedQuantity string           `json:"total_planned_quantity"`
	TotalProduced        string           `json:"total_produced_quantity"`
	GeneratedAt          time.Time        `json:"generated_at"`
}

// BatchSummaryResponse is the floor dashboard view of production batches
type BatchSummaryResponse struct {
	CountsByStatus      map[string]int64 `json:"counts_by_status"`
	TodayBatches        []string         `json:"today_batch_numbers"`
	TodayCount          int              `json:"today_count"`
	PendingVerification []string         `json:"pending_verification_batch_numbers"`
	PendingCount        int              `json:"pending_verification_count"`
}
