// Package monitoring aggregates run health metrics and raises alerts when
// runs degrade or the error budget burns down.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsDegraded  int     `json:"runs_degraded"`
	RunsFailed    int     `json:"runs_failed"`
	RunsCancelled int     `json:"runs_cancelled"`
	DegradedRate  float64 `json:"degraded_rate"`

	AvgErrorRate       float64 `json:"avg_error_rate"`
	TokensConsumed     int     `json:"tokens_consumed"`
	OpportunitiesFound int     `json:"opportunities_found"`
	EventsGenerated    int     `json:"events_generated"`

	LatestRunID  string          `json:"latest_run_id,omitempty"`
	LatestStatus model.RunStatus `json:"latest_status,omitempty"`

	LookbackRuns int       `json:"lookback_runs"`
	CollectedAt  time.Time `json:"collected_at"`
}

// Collector gathers metrics from the run store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect summarizes the most recent lookback runs.
func (c *Collector) Collect(ctx context.Context, lookbackRuns int) (*MetricsSnapshot, error) {
	if lookbackRuns <= 0 {
		lookbackRuns = 20
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: lookbackRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap := &MetricsSnapshot{
		RunsTotal:    len(runs),
		LookbackRuns: lookbackRuns,
		CollectedAt:  time.Now().UTC(),
	}
	if len(runs) > 0 {
		snap.LatestRunID = runs[0].RunID
		snap.LatestStatus = runs[0].Status
	}

	var errorRateSum float64
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusCompleted:
			snap.RunsCompleted++
		case model.RunStatusDegraded:
			snap.RunsDegraded++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusCancelled:
			snap.RunsCancelled++
		}
		errorRateSum += r.ErrorRate
		snap.TokensConsumed += r.TokensConsumed
		snap.OpportunitiesFound += r.OpportunitiesFound
		snap.EventsGenerated += r.EventsGenerated
	}

	finished := snap.RunsCompleted + snap.RunsDegraded + snap.RunsFailed
	if finished > 0 {
		snap.DegradedRate = float64(snap.RunsDegraded+snap.RunsFailed) / float64(finished)
	}
	if len(runs) > 0 {
		snap.AvgErrorRate = errorRateSum / float64(len(runs))
	}

	return snap, nil
}
