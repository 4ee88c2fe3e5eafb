package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/store"
	"github.com/smartacus/probe-cli/pkg/keepa"
)

// fakeClient serves canned product records and tracks token spend.
type fakeClient struct {
	mu         sync.Mutex
	discovered []model.ASIN
	records    map[model.ASIN]model.ProductRecord
	failASINs  map[model.ASIN]bool
	healthErr  error
	consumed   int
	fetchCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		records:   map[model.ASIN]model.ProductRecord{},
		failASINs: map[model.ASIN]bool{},
	}
}

func (f *fakeClient) DiscoverCategory(ctx context.Context, categoryID int64, domain int) ([]model.ASIN, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed += 5
	return f.discovered, nil
}

func (f *fakeClient) FetchProducts(ctx context.Context, asins []model.ASIN, includeHistory bool) (*keepa.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	f.consumed += 2 * len(asins)

	result := &keepa.FetchResult{}
	for _, a := range asins {
		if f.failASINs[a] {
			result.Failed = append(result.Failed, keepa.ProductFailure{ASIN: a, Reason: "malformed record"})
			continue
		}
		if rec, ok := f.records[a]; ok {
			result.Records = append(result.Records, rec)
		} else {
			result.Failed = append(result.Failed, keepa.ProductFailure{ASIN: a, Reason: "not returned by remote"})
		}
	}
	return result, nil
}

func (f *fakeClient) HealthCheck(ctx context.Context) (*keepa.Health, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &keepa.Health{TokensLeft: 200, RefillPerMinute: 21}, nil
}

func (f *fakeClient) TokensConsumed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consumed
}

// fakeStore is an in-memory Store for orchestration tests.
type fakeStore struct {
	mu sync.Mutex

	products  map[model.ASIN]model.Product
	snapshots map[model.ASIN][]model.Snapshot
	reviews   map[model.ASIN][]model.Review
	profiles  map[string]model.ImprovementProfile
	runs      map[string]*model.PipelineRun
	artifacts []model.OpportunityArtifact

	savedSnapshots []savedSnapshot
	active         *model.ShortlistSnapshot

	stockouts map[model.ASIN]int
}

type savedSnapshot struct {
	snapshot model.ShortlistSnapshot
	activate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:  map[model.ASIN]model.Product{},
		snapshots: map[model.ASIN][]model.Snapshot{},
		reviews:   map[model.ASIN][]model.Review{},
		profiles:  map[string]model.ImprovementProfile{},
		runs:      map[string]*model.PipelineRun{},
		stockouts: map[model.ASIN]int{},
	}
}

func (f *fakeStore) UpsertProducts(ctx context.Context, records []model.ProductRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range records {
		f.products[rec.Product.ASIN] = rec.Product
	}
	return len(records), nil
}

func (f *fakeStore) StaleASINs(ctx context.Context, candidates []model.ASIN, olderThan time.Time) ([]model.ASIN, error) {
	return candidates, nil
}

func (f *fakeStore) TrackedASINs(ctx context.Context, limit int) ([]model.ASIN, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var asins []model.ASIN
	for a := range f.products {
		asins = append(asins, a)
	}
	return asins, nil
}

func (f *fakeStore) InsertSnapshots(ctx context.Context, snapshots []model.Snapshot, sessionID string) (store.InsertReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	report := store.InsertReport{}
	for _, s := range snapshots {
		f.snapshots[s.ASIN] = append(f.snapshots[s.ASIN], s)
		report.Inserted++
	}
	return report, nil
}

func (f *fakeStore) SnapshotHistory(ctx context.Context, asin model.ASIN, since time.Time) ([]model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots[asin], nil
}

func (f *fakeStore) LatestSnapshot(ctx context.Context, asin model.ASIN) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.snapshots[asin]
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[len(history)-1]
	return &latest, nil
}

func (f *fakeStore) StockEventCount(ctx context.Context, asin model.ASIN, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stockouts[asin], nil
}

func (f *fakeStore) PruneEvents(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeStore) PruneSnapshots(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeStore) ListReviews(ctx context.Context, asin model.ASIN, limit int) ([]model.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reviews[asin], nil
}

func (f *fakeStore) MarkReviewsAnalyzed(ctx context.Context, reviewIDs []string, at time.Time) error {
	return nil
}

func (f *fakeStore) SaveImprovementProfile(ctx context.Context, profile model.ImprovementProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[string(profile.ASIN)+"/"+profile.RunID] = profile
	return nil
}

func (f *fakeStore) LatestImprovementProfile(ctx context.Context, asin model.ASIN) (*model.ImprovementProfile, error) {
	return nil, nil
}

func (f *fakeStore) CreateRun(ctx context.Context, run *model.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *run
	f.runs[run.RunID] = &copied
	return nil
}

func (f *fakeStore) FinalizeRun(ctx context.Context, run *model.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[run.RunID]; !ok {
		return eris.Errorf("run not found: %s", run.RunID)
	}
	copied := *run
	f.runs[run.RunID] = &copied
	return nil
}

func (f *fakeStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	return run, nil
}

func (f *fakeStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var runs []model.PipelineRun
	for _, r := range f.runs {
		runs = append(runs, *r)
	}
	return runs, nil
}

func (f *fakeStore) InsertArtifacts(ctx context.Context, artifacts []model.OpportunityArtifact) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts = append(f.artifacts, artifacts...)
	return len(artifacts), nil
}

func (f *fakeStore) ArtifactsForRun(ctx context.Context, runID string) ([]model.OpportunityArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.OpportunityArtifact
	for _, a := range f.artifacts {
		if a.RunID == runID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveShortlistSnapshot(ctx context.Context, snapshot *model.ShortlistSnapshot, activate bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if snapshot.Frozen && activate {
		return eris.New("refusing to activate a frozen snapshot")
	}
	f.savedSnapshots = append(f.savedSnapshots, savedSnapshot{snapshot: *snapshot, activate: activate})
	if activate {
		snapshot.Active = true
		copied := *snapshot
		f.active = &copied
	}
	return nil
}

func (f *fakeStore) ActiveShortlistSnapshot(ctx context.Context) (*model.ShortlistSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeStore) RefreshAggregates(ctx context.Context) error { return nil }
func (f *fakeStore) Ping(ctx context.Context) error              { return nil }
func (f *fakeStore) Migrate(ctx context.Context) error           { return nil }
func (f *fakeStore) Close() error                                { return nil }

// testRecord builds a fully-populated product observation.
func testRecord(i int, capturedAt time.Time) model.ProductRecord {
	asin := model.ASIN(fmt.Sprintf("B0TEST%04d", i))
	title := fmt.Sprintf("Car Mount %d", i)
	price := 24.99
	rank := int64(9000 + i)
	reviewCount := 400 + i
	rating := 4.1
	sellers := 4

	return model.ProductRecord{
		Product: model.Product{
			ASIN:             asin,
			Title:            &title,
			Brand:            "Acme",
			CategoryID:       7072562011,
			Active:           true,
			TrackingPriority: 5,
		},
		Snapshot: model.Snapshot{
			ASIN:          asin,
			CapturedAt:    capturedAt,
			PriceCurrent:  &price,
			Currency:      "USD",
			RankPrimary:   &rank,
			RankCategory:  "Electronics",
			StockStatus:   model.StockInStock,
			SellerCount:   &sellers,
			Fulfillment:   model.FulfillmentFBA,
			RatingAverage: &rating,
			ReviewCount:   &reviewCount,
			StarPercents:  []int{8, 10, 12, 25, 45},
		},
	}
}
