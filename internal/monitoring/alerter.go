package monitoring

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/smartacus/probe-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunDegraded       AlertType = "run_degraded"
	AlertErrorBudgetBurn   AlertType = "error_budget_burn"
	AlertShortlistFrozen   AlertType = "shortlist_frozen"
	AlertDegradedRateTrend AlertType = "degraded_rate_trend"
)

// Alert represents a single raised condition.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates run outcomes and metric snapshots against thresholds.
// Alerts surface as structured log records; downstream log shipping turns
// them into pages.
type Alerter struct {
	// DegradedRateThreshold trips AlertDegradedRateTrend. Default 0.3.
	DegradedRateThreshold float64
}

// NewAlerter creates an Alerter with default thresholds.
func NewAlerter() *Alerter {
	return &Alerter{DegradedRateThreshold: 0.3}
}

// EvaluateRun checks one finished run.
func (a *Alerter) EvaluateRun(run *model.PipelineRun) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if run.Status == model.RunStatusDegraded || run.Status == model.RunStatusFailed {
		alerts = append(alerts, Alert{
			Type:     AlertRunDegraded,
			Severity: "high",
			Message:  fmt.Sprintf("run %s finished %s", run.RunID, run.Status),
			Details: map[string]any{
				"run_id":     run.RunID,
				"status":     string(run.Status),
				"error_rate": run.ErrorRate,
				"dq_passed":  run.DataQuality.Passed,
			},
			Timestamp: now,
		})
	}

	if run.ErrorBudgetBreached {
		alerts = append(alerts, Alert{
			Type:     AlertErrorBudgetBurn,
			Severity: "high",
			Message: fmt.Sprintf("run %s burned the error budget: %.1f%% of products failed",
				run.RunID, run.ErrorRate*100),
			Details: map[string]any{
				"run_id":       run.RunID,
				"error_rate":   run.ErrorRate,
				"asins_failed": run.ASINsFailed,
				"asins_total":  run.ASINsTotal,
			},
			Timestamp: now,
		})
	}

	if run.ShortlistFrozen && run.Status != model.RunStatusCompleted {
		alerts = append(alerts, Alert{
			Type:      AlertShortlistFrozen,
			Severity:  "medium",
			Message:   fmt.Sprintf("run %s froze the shortlist; previous active snapshot still serves", run.RunID),
			Details:   map[string]any{"run_id": run.RunID},
			Timestamp: now,
		})
	}

	return alerts
}

// EvaluateSnapshot checks aggregate metrics.
func (a *Alerter) EvaluateSnapshot(snap *MetricsSnapshot) []Alert {
	var alerts []Alert

	threshold := a.DegradedRateThreshold
	if threshold <= 0 {
		threshold = 0.3
	}
	finished := snap.RunsCompleted + snap.RunsDegraded + snap.RunsFailed
	if finished >= 5 && snap.DegradedRate > threshold {
		alerts = append(alerts, Alert{
			Type:     AlertDegradedRateTrend,
			Severity: "high",
			Message: fmt.Sprintf("%.0f%% of the last %d finished runs degraded or failed",
				snap.DegradedRate*100, finished),
			Details: map[string]any{
				"degraded_rate": snap.DegradedRate,
				"threshold":     threshold,
				"finished":      finished,
			},
			Timestamp: time.Now().UTC(),
		})
	}

	return alerts
}

// Emit writes alerts to the structured log.
func (a *Alerter) Emit(alerts []Alert) {
	for _, alert := range alerts {
		zap.L().Warn("monitoring: alert",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("message", alert.Message),
			zap.Any("details", alert.Details),
		)
	}
}
