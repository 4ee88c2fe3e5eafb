package monitoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/store"
)

// stubStore provides canned runs; the embedded interface panics on any
// other method, which the collector never calls.
type stubStore struct {
	store.Store
	runs []model.PipelineRun
}

func (s *stubStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.PipelineRun, error) {
	return s.runs, nil
}

func TestCollect_Summarizes(t *testing.T) {
	st := &stubStore{runs: []model.PipelineRun{
		{RunID: "r1", Status: model.RunStatusCompleted, ErrorRate: 0.02, TokensConsumed: 100, OpportunitiesFound: 4, EventsGenerated: 12},
		{RunID: "r2", Status: model.RunStatusDegraded, ErrorRate: 0.12, TokensConsumed: 80, OpportunitiesFound: 1, EventsGenerated: 6},
		{RunID: "r3", Status: model.RunStatusFailed, ErrorRate: 1, TokensConsumed: 10},
		{RunID: "r4", Status: model.RunStatusCancelled},
	}}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 20)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsCompleted)
	assert.Equal(t, 1, snap.RunsDegraded)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsCancelled)
	assert.InDelta(t, 2.0/3.0, snap.DegradedRate, 1e-9)
	assert.Equal(t, 190, snap.TokensConsumed)
	assert.Equal(t, 5, snap.OpportunitiesFound)
	assert.Equal(t, 18, snap.EventsGenerated)
	assert.Equal(t, "r1", snap.LatestRunID)
}

func TestAlerter_EvaluateRun(t *testing.T) {
	a := NewAlerter()

	healthy := &model.PipelineRun{
		RunID:       "ok",
		Status:      model.RunStatusCompleted,
		DataQuality: model.DataQuality{Passed: true},
	}
	assert.Empty(t, a.EvaluateRun(healthy))

	degraded := &model.PipelineRun{
		RunID:               "bad",
		Status:              model.RunStatusDegraded,
		ErrorRate:           0.15,
		ErrorBudgetBreached: true,
		ShortlistFrozen:     true,
	}
	alerts := a.EvaluateRun(degraded)
	require.Len(t, alerts, 3)

	types := map[AlertType]bool{}
	for _, al := range alerts {
		types[al.Type] = true
	}
	assert.True(t, types[AlertRunDegraded])
	assert.True(t, types[AlertErrorBudgetBurn])
	assert.True(t, types[AlertShortlistFrozen])
}

func TestAlerter_EvaluateSnapshot(t *testing.T) {
	a := NewAlerter()

	quiet := &MetricsSnapshot{RunsCompleted: 10, RunsDegraded: 1, DegradedRate: 1.0 / 11.0}
	assert.Empty(t, a.EvaluateSnapshot(quiet))

	noisy := &MetricsSnapshot{RunsCompleted: 3, RunsDegraded: 4, RunsFailed: 1, DegradedRate: 5.0 / 8.0}
	alerts := a.EvaluateSnapshot(noisy)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDegradedRateTrend, alerts[0].Type)
}
