package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartacus/probe-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func fp(v float64) *float64 { return &v }
func ip(v int64) *int64     { return &v }
func np(v int) *int         { return &v }

var snapshotColNames = []string{
	"asin", "captured_at", "price_current", "price_list", "price_lowest_new",
	"price_lowest_used", "currency", "coupon_amount", "coupon_percent", "rank_primary",
	"rank_category", "rank_secondary", "rank_secondary_cat", "stock_status", "stock_quantity",
	"seller_count", "fulfillment", "rating_average", "rating_count", "review_count",
	"star_percents", "price_delta", "price_delta_percent", "rank_delta", "rank_delta_percent",
	"review_count_delta",
}

func priorRow(asin string, capturedAt time.Time, price *float64, rank *int64, stock string) *pgxmock.Rows {
	return pgxmock.NewRows(snapshotColNames).AddRow(
		asin, capturedAt, price, nil, nil,
		nil, "USD", nil, nil, rank,
		"Electronics", nil, "", stock, nil,
		np(5), "fba", nil, nil, np(100),
		nil, nil, nil, nil, nil,
		nil,
	)
}

func TestInsertSnapshots_FirstSnapshotNoEvents(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	snap := model.Snapshot{
		ASIN:         "B000TEST01",
		CapturedAt:   now,
		PriceCurrent: fp(19.99),
		RankPrimary:  ip(5000),
		StockStatus:  model.StockInStock,
		Fulfillment:  model.FulfillmentFBA,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM snapshots\s+WHERE asin = \$1 AND captured_at < \$2`).
		WithArgs("B000TEST01", now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT max\(captured_at\) FROM snapshots`).
		WithArgs("B000TEST01").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectExec(`INSERT INTO snapshots`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	report, err := s.InsertSnapshots(context.Background(), []model.Snapshot{snap}, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Zero(t, report.Events())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSnapshots_PriceEventGenerated(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	priorAt := now.Add(-24 * time.Hour)

	snap := model.Snapshot{
		ASIN:         "B000TEST01",
		CapturedAt:   now,
		PriceCurrent: fp(25.00), // +25% vs prior 20.00: critical price event
		RankPrimary:  ip(5000),
		StockStatus:  model.StockInStock,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM snapshots\s+WHERE asin = \$1 AND captured_at < \$2`).
		WithArgs("B000TEST01", now).
		WillReturnRows(priorRow("B000TEST01", priorAt, fp(20.00), ip(5000), "in_stock"))
	mock.ExpectQuery(`SELECT max\(captured_at\) FROM snapshots`).
		WithArgs("B000TEST01").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&priorAt))
	mock.ExpectExec(`INSERT INTO snapshots`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO price_events`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	report, err := s.InsertSnapshots(context.Background(), []model.Snapshot{snap}, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.PriceEvents)
	assert.Zero(t, report.RankEvents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSnapshots_ReplaySkipsBehindNewest(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	snap := model.Snapshot{
		ASIN:         "B000TEST01",
		CapturedAt:   now,
		PriceCurrent: fp(19.99),
		StockStatus:  model.StockInStock,
	}

	// The store already holds this exact capture time: skip, no insert.
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM snapshots\s+WHERE asin = \$1 AND captured_at < \$2`).
		WithArgs("B000TEST01", now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT max\(captured_at\) FROM snapshots`).
		WithArgs("B000TEST01").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&now))
	mock.ExpectCommit()

	report, err := s.InsertSnapshots(context.Background(), []model.Snapshot{snap}, "session-2")
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
	assert.Equal(t, 1, report.Skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM pipeline_runs WHERE run_id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveShortlistSnapshot_RefusesActivatingFrozen(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	snap := &model.ShortlistSnapshot{SnapshotID: "snap-1", RunID: "run-1", Frozen: true}
	err := s.SaveShortlistSnapshot(context.Background(), snap, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")
}

func TestSaveShortlistSnapshot_ActivateDeactivatesPrevious(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	snap := &model.ShortlistSnapshot{
		SnapshotID: "snap-1",
		RunID:      "run-1",
		CreatedAt:  time.Now().UTC(),
		ASINs:      []model.ASIN{"B000TEST01"},
		Scores:     []int{80},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE shortlist_snapshots SET active = false WHERE active`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO shortlist_snapshots`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.SaveShortlistSnapshot(context.Background(), snap, true)
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveShortlistSnapshot_FrozenRecordedInactive(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	snap := &model.ShortlistSnapshot{
		SnapshotID: "snap-2",
		RunID:      "run-2",
		CreatedAt:  time.Now().UTC(),
		Frozen:     true,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO shortlist_snapshots`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.SaveShortlistSnapshot(context.Background(), snap, false)
	require.NoError(t, err)
	assert.False(t, snap.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveShortlistSnapshot_NoneActive(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM shortlist_snapshots\s+WHERE active`).
		WillReturnError(pgx.ErrNoRows)

	snap, err := s.ActiveShortlistSnapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneEvents_AllThreeTables(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM price_events`).WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM rank_events`).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM stock_events`).WillReturnResult(pgxmock.NewResult("DELETE", 1))

	pruned, err := s.PruneEvents(context.Background(), 180*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pruned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockEventCount(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectQuery(`SELECT count\(\*\) FROM stock_events`).
		WithArgs("B000TEST01", "stockout", since).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	count, err := s.StockEventCount(context.Background(), "B000TEST01", since)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReviewsAnalyzed_EmptyIsNoop(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.MarkReviewsAnalyzed(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertProducts_EmptyIsNoop(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.UpsertProducts(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertArtifacts_ConflictSkipped(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	artifacts := []model.OpportunityArtifact{
		{ArtifactID: "a-1", RunID: "run-1", ASIN: "B000TEST01", Rank: 1, ScoredAt: time.Now()},
		{ArtifactID: "a-2", RunID: "run-1", ASIN: "B000TEST02", Rank: 2, ScoredAt: time.Now()},
	}

	mock.ExpectExec(`INSERT INTO opportunity_artifacts`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO opportunity_artifacts`).WillReturnResult(pgxmock.NewResult("INSERT", 0)) // replay

	inserted, err := s.InsertArtifacts(context.Background(), artifacts)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSnapshot_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM snapshots\s+WHERE asin = \$1\s+ORDER BY captured_at DESC`).
		WithArgs("B000TEST01").
		WillReturnError(pgx.ErrNoRows)

	snap, err := s.LatestSnapshot(context.Background(), "B000TEST01")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}
