package store

import (
	"context"
	"time"

	"github.com/smartacus/probe-cli/internal/model"
)

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// InsertReport summarizes one InsertSnapshots call: how many rows were
// written, how many collided with existing primary keys (idempotent replay),
// and how many event rows each rule emitted.
type InsertReport struct {
	Inserted    int `json:"inserted"`
	Skipped     int `json:"skipped"`
	PriceEvents int `json:"price_events"`
	RankEvents  int `json:"rank_events"`
	StockEvents int `json:"stock_events"`
}

// Events returns the total event rows generated.
func (r InsertReport) Events() int {
	return r.PriceEvents + r.RankEvents + r.StockEvents
}

// Store is the persistence surface for the probe pipeline.
type Store interface {
	// Catalog.
	UpsertProducts(ctx context.Context, records []model.ProductRecord) (int, error)
	StaleASINs(ctx context.Context, candidates []model.ASIN, olderThan time.Time) ([]model.ASIN, error)
	TrackedASINs(ctx context.Context, limit int) ([]model.ASIN, error)

	// Time series. InsertSnapshots atomically computes deltas against the
	// prior snapshot per product and emits event rows in the same
	// transaction.
	InsertSnapshots(ctx context.Context, snapshots []model.Snapshot, sessionID string) (InsertReport, error)
	SnapshotHistory(ctx context.Context, asin model.ASIN, since time.Time) ([]model.Snapshot, error)
	LatestSnapshot(ctx context.Context, asin model.ASIN) (*model.Snapshot, error)

	// Events.
	StockEventCount(ctx context.Context, asin model.ASIN, since time.Time) (int, error)
	PruneEvents(ctx context.Context, retention time.Duration) (int64, error)
	PruneSnapshots(ctx context.Context, retention time.Duration) (int64, error)

	// Reviews.
	ListReviews(ctx context.Context, asin model.ASIN, limit int) ([]model.Review, error)
	MarkReviewsAnalyzed(ctx context.Context, reviewIDs []string, at time.Time) error
	SaveImprovementProfile(ctx context.Context, profile model.ImprovementProfile) error
	LatestImprovementProfile(ctx context.Context, asin model.ASIN) (*model.ImprovementProfile, error)

	// Runs.
	CreateRun(ctx context.Context, run *model.PipelineRun) error
	FinalizeRun(ctx context.Context, run *model.PipelineRun) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)

	// Artifacts and shortlist.
	InsertArtifacts(ctx context.Context, artifacts []model.OpportunityArtifact) (int, error)
	ArtifactsForRun(ctx context.Context, runID string) ([]model.OpportunityArtifact, error)
	SaveShortlistSnapshot(ctx context.Context, snapshot *model.ShortlistSnapshot, activate bool) error
	ActiveShortlistSnapshot(ctx context.Context) (*model.ShortlistSnapshot, error)

	// Aggregates.
	RefreshAggregates(ctx context.Context) error

	// Lifecycle.
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
