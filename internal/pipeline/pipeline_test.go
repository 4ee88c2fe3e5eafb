package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartacus/probe-cli/internal/config"
	"github.com/smartacus/probe-cli/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Ingestion: config.IngestionConfig{
			CategoryID:        7072562011,
			BatchSize:         100,
			FreshnessHours:    20,
			MaxProducts:       100,
			ReviewsPerProduct: 500,
		},
		Scoring: config.ScoringConfig{
			RiskFactor:           0.3,
			ImprovementBonusRate: 0.2,
			COGSPriceDivisor:     5,
			TimePressureMinimum:  3,
		},
		Shortlist: config.ShortlistConfig{MinScore: 50, MinValue: 5000, MaxItems: 10},
		Pipeline: config.PipelineConfig{
			DQThresholdPct:       30,
			ErrorBudget:          0.10,
			RetentionDays:        180,
			DiscoveryTimeoutSecs: 60,
			FetchTimeoutSecsPerK: 300,
			ScoringTimeoutSecs:   120,
			ArtifactDir:          t.TempDir(),
			ScoreWorkers:         2,
		},
	}
}

// seedClean populates the client with n fully-observed products.
func seedClean(client *fakeClient, n int) []model.ASIN {
	now := time.Now().UTC()
	var asins []model.ASIN
	for i := 0; i < n; i++ {
		rec := testRecord(i, now)
		client.records[rec.Product.ASIN] = rec
		asins = append(asins, rec.Product.ASIN)
	}
	client.discovered = asins
	return asins
}

func TestRun_CleanRunCompletes(t *testing.T) {
	st := newFakeStore()
	client := newFakeClient()
	seedClean(client, 20)

	p := New(testConfig(t), st, client)
	run, err := p.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 20, run.ASINsTotal)
	assert.Zero(t, run.ASINsFailed)
	assert.True(t, run.DataQuality.Passed)
	assert.False(t, run.ErrorBudgetBreached)
	assert.False(t, run.ShortlistFrozen)
	assert.Zero(t, run.ExitCode())
	assert.NotEmpty(t, run.ConfigSnapshot)
	assert.Positive(t, run.TokensConsumed)

	// A new shortlist snapshot was recorded and activated.
	require.Len(t, st.savedSnapshots, 1)
	assert.True(t, st.savedSnapshots[0].activate)
	require.NotNil(t, st.active)
	assert.Equal(t, run.RunID, st.active.RunID)

	// Every fetched product left an artifact.
	assert.Len(t, st.artifacts, 20)
}

func TestRun_DQFailDegradesAndFreezes(t *testing.T) {
	st := newFakeStore()
	client := newFakeClient()
	asins := seedClean(client, 20)

	// 40% of snapshots lose their rank: the rank gate fails.
	for i, a := range asins {
		if i%5 < 2 {
			rec := client.records[a]
			rec.Snapshot.RankPrimary = nil
			client.records[a] = rec
		}
	}

	// A previously active snapshot must keep serving.
	previous := &model.ShortlistSnapshot{SnapshotID: "old", RunID: "old-run", Active: true}
	st.active = previous

	p := New(testConfig(t), st, client)
	run, err := p.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusDegraded, run.Status)
	assert.False(t, run.DataQuality.Passed)
	assert.InDelta(t, 40, run.DataQuality.RankMissingPct, 1e-9)
	assert.True(t, run.ShortlistFrozen)
	assert.Equal(t, 2, run.ExitCode())

	// The run's proposed snapshot is recorded frozen and non-active; the
	// previous active snapshot is untouched.
	require.NotEmpty(t, st.savedSnapshots)
	last := st.savedSnapshots[len(st.savedSnapshots)-1]
	assert.True(t, last.snapshot.Frozen)
	assert.False(t, last.activate)
	assert.Equal(t, "old-run", st.active.RunID)
}

func TestRun_ErrorBudgetBreachDegrades(t *testing.T) {
	st := newFakeStore()
	client := newFakeClient()
	asins := seedClean(client, 100)

	// 12 individual failures out of 100: error rate 0.12 >= 0.10.
	for i := 0; i < 12; i++ {
		client.failASINs[asins[i]] = true
	}

	p := New(testConfig(t), st, client)
	run, err := p.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusDegraded, run.Status)
	assert.Equal(t, 12, run.ASINsFailed)
	assert.InDelta(t, 0.12, run.ErrorRate, 1e-9)
	assert.True(t, run.ErrorBudgetBreached)
	assert.True(t, run.ShortlistFrozen)
	assert.Len(t, run.FailedASINs, 12)
	assert.Equal(t, 2, run.ExitCode())
	assert.Nil(t, st.active)
}

func TestRun_FreezeOptionNeverActivates(t *testing.T) {
	st := newFakeStore()
	client := newFakeClient()
	seedClean(client, 10)

	p := New(testConfig(t), st, client)
	run, err := p.Run(context.Background(), RunOptions{Freeze: true})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.True(t, run.ShortlistFrozen)
	assert.Nil(t, st.active)
	require.NotEmpty(t, st.savedSnapshots)
	assert.False(t, st.savedSnapshots[0].activate)
}

func TestRun_HealthCheckFailureFailsRun(t *testing.T) {
	st := newFakeStore()
	client := newFakeClient()
	client.healthErr = fmt.Errorf("remote unreachable")

	p := New(testConfig(t), st, client)
	run, err := p.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "health check")
	assert.Equal(t, 3, run.ExitCode())
}

func TestRun_ExplicitASINsSkipDiscovery(t *testing.T) {
	st := newFakeStore()
	client := newFakeClient()
	seedClean(client, 5)
	client.discovered = nil // discovery would return nothing

	p := New(testConfig(t), st, client)
	run, err := p.Run(context.Background(), RunOptions{
		ExplicitASINs: []model.ASIN{"B0TEST0000", "B0TEST0001"},
	})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.ASINsTotal)
}

func TestRun_MaxProductsCap(t *testing.T) {
	st := newFakeStore()
	client := newFakeClient()
	seedClean(client, 50)

	p := New(testConfig(t), st, client)
	run, err := p.Run(context.Background(), RunOptions{MaxProducts: 10})
	require.NoError(t, err)

	assert.Equal(t, 10, run.ASINsTotal)
	assert.Equal(t, 40, run.ASINsSkipped)
}

func TestRun_CancelledBeforeFetch(t *testing.T) {
	st := newFakeStore()
	client := newFakeClient()
	seedClean(client, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(testConfig(t), st, client)
	run, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCancelled, run.Status)
	assert.Equal(t, 130, run.ExitCode())
	assert.Nil(t, st.active)
}

func TestDataQuality_Gate(t *testing.T) {
	p := New(testConfig(t), newFakeStore(), newFakeClient())
	now := time.Now().UTC()

	var records []model.ProductRecord
	for i := 0; i < 10; i++ {
		rec := testRecord(i, now)
		if i < 4 {
			rec.Snapshot.PriceCurrent = nil
		}
		records = append(records, rec)
	}

	dq := p.dataQuality(records)
	assert.InDelta(t, 40, dq.PriceMissingPct, 1e-9)
	assert.Zero(t, dq.RankMissingPct)
	assert.False(t, dq.Passed)

	dq = p.dataQuality(records[4:])
	assert.True(t, dq.Passed)
}

func TestRankArtifacts_RejectedSortLast(t *testing.T) {
	artifacts := []model.OpportunityArtifact{
		{ASIN: "B000000001", RankScore: 10, Rejected: true},
		{ASIN: "B000000002", RankScore: 5},
		{ASIN: "B000000003", RankScore: 8},
	}

	rankArtifacts(artifacts)

	assert.Equal(t, model.ASIN("B000000003"), artifacts[0].ASIN)
	assert.Equal(t, 1, artifacts[0].Rank)
	assert.Equal(t, model.ASIN("B000000002"), artifacts[1].ASIN)
	assert.True(t, artifacts[2].Rejected)
	assert.Equal(t, 3, artifacts[2].Rank)
}
