package model

import "time"

// EventSeverity grades how material a detected change is. This vocabulary
// belongs to event rows only; opportunity urgency is a separate type.
type EventSeverity string

const (
	SeverityLow      EventSeverity = "low"
	SeverityMedium   EventSeverity = "medium"
	SeverityHigh     EventSeverity = "high"
	SeverityCritical EventSeverity = "critical"
)

// PriceDirection is the sign of a price move.
type PriceDirection string

const (
	PriceUp     PriceDirection = "up"
	PriceDown   PriceDirection = "down"
	PriceStable PriceDirection = "stable"
)

// RankDirection distinguishes rank-improving (lower rank number) from
// rank-worsening moves.
type RankDirection string

const (
	RankImproving RankDirection = "up"
	RankWorsening RankDirection = "down"
)

// StockEventKind classifies a stock status transition.
type StockEventKind string

const (
	StockEventStockout      StockEventKind = "stockout"
	StockEventRestock       StockEventKind = "restock"
	StockEventLowStockAlert StockEventKind = "low_stock_alert"
	StockEventStatusChange  StockEventKind = "status_change"
)

// PriceEvent is emitted when a snapshot's price moved at least 5% against
// its predecessor. The (ASIN, SnapshotBeforeAt, SnapshotAfterAt) triple is
// unique; replays collapse silently.
type PriceEvent struct {
	ASIN             ASIN           `json:"asin"`
	DetectedAt       time.Time      `json:"detected_at"`
	PriceBefore      float64        `json:"price_before"`
	PriceAfter       float64        `json:"price_after"`
	ChangeAmount     float64        `json:"change_amount"`
	ChangePercent    float64        `json:"change_percent"`
	Direction        PriceDirection `json:"direction"`
	Severity         EventSeverity  `json:"severity"`
	IsDeal           bool           `json:"is_deal"`
	SnapshotBeforeAt time.Time      `json:"snapshot_before_at"`
	SnapshotAfterAt  time.Time      `json:"snapshot_after_at"`
}

// RankEvent is emitted when the primary sales rank moved at least 20% or
// 10,000 absolute positions.
type RankEvent struct {
	ASIN             ASIN          `json:"asin"`
	DetectedAt       time.Time     `json:"detected_at"`
	RankBefore       int64         `json:"rank_before"`
	RankAfter        int64         `json:"rank_after"`
	ChangeAmount     int64         `json:"change_amount"`
	ChangePercent    float64       `json:"change_percent"`
	Direction        RankDirection `json:"direction"`
	Severity         EventSeverity `json:"severity"`
	Sustained        bool          `json:"sustained"`
	SnapshotBeforeAt time.Time     `json:"snapshot_before_at"`
	SnapshotAfterAt  time.Time     `json:"snapshot_after_at"`
}

// StockEvent is emitted on any stock status transition.
type StockEvent struct {
	ASIN             ASIN           `json:"asin"`
	DetectedAt       time.Time      `json:"detected_at"`
	StatusBefore     StockStatus    `json:"status_before"`
	StatusAfter      StockStatus    `json:"status_after"`
	QuantityBefore   *int           `json:"quantity_before,omitempty"`
	QuantityAfter    *int           `json:"quantity_after,omitempty"`
	Kind             StockEventKind `json:"kind"`
	Severity         EventSeverity  `json:"severity"`
	StockoutStartAt  *time.Time     `json:"stockout_start_at,omitempty"`
	StockoutHours    *float64       `json:"stockout_hours,omitempty"`
	SnapshotBeforeAt time.Time      `json:"snapshot_before_at"`
	SnapshotAfterAt  time.Time      `json:"snapshot_after_at"`
}
