// Package events derives snapshot deltas and price/rank/stock event rows
// from consecutive observations. The rules are pure; persistence and dedup
// live in the store, which calls ComputeDeltas and Detect inside the
// snapshot-insert transaction.
package events

import (
	"math"
	"time"

	"github.com/smartacus/probe-cli/internal/model"
)

// Thresholds holds the event-generation gates. Values mirror the default
// economics and are captured into each run's config snapshot.
type Thresholds struct {
	PriceEventMinPct float64 `json:"price_event_min_pct"`
	PriceMediumPct   float64 `json:"price_medium_pct"`
	PriceHighPct     float64 `json:"price_high_pct"`
	PriceCriticalPct float64 `json:"price_critical_pct"`
	RankEventMinPct  float64 `json:"rank_event_min_pct"`
	RankEventMinAbs  int64   `json:"rank_event_min_abs"`
	RankHighPct      float64 `json:"rank_high_pct"`
	RankCriticalPct  float64 `json:"rank_critical_pct"`
	RankCriticalAbs  int64   `json:"rank_critical_abs"`
	DealDropPct      float64 `json:"deal_drop_pct"`
}

// DefaultThresholds returns the calibrated event gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PriceEventMinPct: 5,
		PriceMediumPct:   10,
		PriceHighPct:     15,
		PriceCriticalPct: 25,
		RankEventMinPct:  20,
		RankEventMinAbs:  10_000,
		RankHighPct:      30,
		RankCriticalPct:  50,
		RankCriticalAbs:  50_000,
		DealDropPct:      15,
	}
}

// ComputeDeltas fills the three delta fields of next against prior. A nil
// prior leaves all deltas nil. Percent deltas are nil when the prior value
// is zero or missing.
func ComputeDeltas(next *model.Snapshot, prior *model.Snapshot) {
	next.PriceDelta = nil
	next.PriceDeltaPercent = nil
	next.RankDelta = nil
	next.RankDeltaPercent = nil
	next.ReviewCountDelta = nil

	if prior == nil {
		return
	}

	if next.PriceCurrent != nil && prior.PriceCurrent != nil {
		d := *next.PriceCurrent - *prior.PriceCurrent
		next.PriceDelta = &d
		if *prior.PriceCurrent != 0 {
			pct := 100 * d / *prior.PriceCurrent
			next.PriceDeltaPercent = &pct
		}
	}

	if next.RankPrimary != nil && prior.RankPrimary != nil {
		d := *next.RankPrimary - *prior.RankPrimary
		next.RankDelta = &d
		if *prior.RankPrimary != 0 {
			pct := 100 * float64(d) / float64(*prior.RankPrimary)
			next.RankDeltaPercent = &pct
		}
	}

	if next.ReviewCount != nil && prior.ReviewCount != nil {
		d := *next.ReviewCount - *prior.ReviewCount
		next.ReviewCountDelta = &d
	}
}

// Detected bundles the event rows derived from one snapshot pair.
type Detected struct {
	Price *model.PriceEvent
	Rank  *model.RankEvent
	Stock *model.StockEvent
}

// Detect evaluates the three event rules for a snapshot whose deltas were
// already computed against prior. A nil prior yields no events.
func Detect(th Thresholds, next *model.Snapshot, prior *model.Snapshot, detectedAt time.Time) Detected {
	if prior == nil {
		return Detected{}
	}
	return Detected{
		Price: detectPrice(th, next, prior, detectedAt),
		Rank:  detectRank(th, next, prior, detectedAt),
		Stock: detectStock(next, prior, detectedAt),
	}
}

func detectPrice(th Thresholds, next, prior *model.Snapshot, detectedAt time.Time) *model.PriceEvent {
	if next.PriceDeltaPercent == nil || next.PriceDelta == nil {
		return nil
	}
	pct := *next.PriceDeltaPercent
	abs := math.Abs(pct)
	if abs < th.PriceEventMinPct {
		return nil
	}

	severity := model.SeverityLow
	switch {
	case abs >= th.PriceCriticalPct:
		severity = model.SeverityCritical
	case abs >= th.PriceHighPct:
		severity = model.SeverityHigh
	case abs >= th.PriceMediumPct:
		severity = model.SeverityMedium
	}

	direction := model.PriceStable
	switch {
	case *next.PriceDelta > 0:
		direction = model.PriceUp
	case *next.PriceDelta < 0:
		direction = model.PriceDown
	}

	return &model.PriceEvent{
		ASIN:             next.ASIN,
		DetectedAt:       detectedAt,
		PriceBefore:      *prior.PriceCurrent,
		PriceAfter:       *next.PriceCurrent,
		ChangeAmount:     *next.PriceDelta,
		ChangePercent:    pct,
		Direction:        direction,
		Severity:         severity,
		IsDeal:           pct <= -th.DealDropPct,
		SnapshotBeforeAt: prior.CapturedAt,
		SnapshotAfterAt:  next.CapturedAt,
	}
}

func detectRank(th Thresholds, next, prior *model.Snapshot, detectedAt time.Time) *model.RankEvent {
	if next.RankDeltaPercent == nil || next.RankDelta == nil {
		return nil
	}
	pct := *next.RankDeltaPercent
	delta := *next.RankDelta
	absPct := math.Abs(pct)
	absDelta := delta
	if absDelta < 0 {
		absDelta = -absDelta
	}
	if absPct < th.RankEventMinPct && absDelta < th.RankEventMinAbs {
		return nil
	}

	// Negative delta means the rank number dropped, i.e. sales improved.
	direction := model.RankWorsening
	severity := model.SeverityLow
	if delta < 0 {
		direction = model.RankImproving
		switch {
		case absPct >= th.RankCriticalPct || absDelta >= th.RankCriticalAbs:
			severity = model.SeverityCritical
		case absPct >= th.RankHighPct:
			severity = model.SeverityHigh
		default:
			severity = model.SeverityMedium
		}
	}

	return &model.RankEvent{
		ASIN:             next.ASIN,
		DetectedAt:       detectedAt,
		RankBefore:       *prior.RankPrimary,
		RankAfter:        *next.RankPrimary,
		ChangeAmount:     delta,
		ChangePercent:    pct,
		Direction:        direction,
		Severity:         severity,
		SnapshotBeforeAt: prior.CapturedAt,
		SnapshotAfterAt:  next.CapturedAt,
	}
}

func detectStock(next, prior *model.Snapshot, detectedAt time.Time) *model.StockEvent {
	before, after := prior.StockStatus, next.StockStatus
	if before == "" || before == after {
		return nil
	}

	kind := model.StockEventStatusChange
	severity := model.SeverityLow
	switch {
	case (before == model.StockInStock || before == model.StockLowStock) && after == model.StockOutOfStock:
		kind = model.StockEventStockout
		severity = model.SeverityHigh
	case before == model.StockOutOfStock && (after == model.StockInStock || after == model.StockLowStock):
		kind = model.StockEventRestock
		severity = model.SeverityMedium
	case after == model.StockLowStock:
		kind = model.StockEventLowStockAlert
	}

	ev := &model.StockEvent{
		ASIN:             next.ASIN,
		DetectedAt:       detectedAt,
		StatusBefore:     before,
		StatusAfter:      after,
		QuantityBefore:   prior.StockQuantity,
		QuantityAfter:    next.StockQuantity,
		Kind:             kind,
		Severity:         severity,
		SnapshotBeforeAt: prior.CapturedAt,
		SnapshotAfterAt:  next.CapturedAt,
	}

	if kind == model.StockEventRestock {
		start := prior.CapturedAt
		hours := next.CapturedAt.Sub(prior.CapturedAt).Hours()
		ev.StockoutStartAt = &start
		ev.StockoutHours = &hours
	}

	return ev
}
