// Package pipeline orchestrates the end-to-end probe run: discovery,
// freshness filtering, budgeted fetch, snapshot storage with event
// generation, data-quality gating, review intelligence, scoring, shortlist
// selection, and the immutable run audit.
package pipeline

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smartacus/probe-cli/internal/config"
	"github.com/smartacus/probe-cli/internal/events"
	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/monitoring"
	"github.com/smartacus/probe-cli/internal/reviews"
	"github.com/smartacus/probe-cli/internal/scorer"
	"github.com/smartacus/probe-cli/internal/shortlist"
	"github.com/smartacus/probe-cli/internal/store"
	"github.com/smartacus/probe-cli/pkg/keepa"
)

// RunOptions are the per-invocation controls from the CLI surface.
type RunOptions struct {
	MaxProducts   int
	Freeze        bool
	SkipDiscovery bool
	ExplicitASINs []model.ASIN
}

// Pipeline wires the probe components into the phased run.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	keepa     keepa.Client
	scorer    *scorer.Scorer
	scoreCfg  scorer.Config
	selector  *shortlist.Selector
	extractor *reviews.Extractor
	alerter   *monitoring.Alerter
	lexicon   reviews.Lexicon
}

// New creates a Pipeline with all dependencies. Config overrides are folded
// into the scorer thresholds here so one frozen set serves the whole run.
func New(cfg *config.Config, st store.Store, client keepa.Client) *Pipeline {
	scoreCfg := scorer.DefaultConfig()
	if cfg.Scoring.RiskFactor > 0 {
		scoreCfg.Economics.RiskFactor = cfg.Scoring.RiskFactor
	}
	if cfg.Scoring.ImprovementBonusRate > 0 {
		scoreCfg.Economics.ImprovementBonusRate = cfg.Scoring.ImprovementBonusRate
	}
	if cfg.Scoring.COGSPriceDivisor > 0 {
		scoreCfg.Margin.COGSPriceDivisor = cfg.Scoring.COGSPriceDivisor
	}
	if cfg.Scoring.TimePressureMinimum > 0 {
		scoreCfg.TimePressure.MinimumValid = cfg.Scoring.TimePressureMinimum
	}

	selectCfg := shortlist.DefaultConfig()
	if cfg.Shortlist.MinScore > 0 {
		selectCfg.MinScore = cfg.Shortlist.MinScore
	}
	if cfg.Shortlist.MinValue > 0 {
		selectCfg.MinValue = cfg.Shortlist.MinValue
	}
	if cfg.Shortlist.MaxItems > 0 {
		selectCfg.MaxItems = cfg.Shortlist.MaxItems
	}

	lexicon := reviews.DefaultLexicon()
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		keepa:     client,
		scorer:    scorer.New(scoreCfg),
		scoreCfg:  scoreCfg,
		selector:  shortlist.New(selectCfg),
		extractor: reviews.NewExtractor(lexicon),
		alerter:   monitoring.NewAlerter(),
		lexicon:   lexicon,
	}
}

// configSnapshot is the frozen configuration serialized onto each run row
// for reproducibility.
type configSnapshot struct {
	Options   RunOptions             `json:"options"`
	Ingestion config.IngestionConfig `json:"ingestion"`
	Pipeline  config.PipelineConfig  `json:"pipeline"`
	Shortlist config.ShortlistConfig `json:"shortlist"`
	Scoring   scorer.Config          `json:"scoring"`
	Events    events.Thresholds      `json:"events"`
	Lexicon   reviews.Lexicon        `json:"lexicon"`
}

// Run executes the full pipeline. The returned run row always reflects the
// final status; err is non-nil only for pre-flight failures that prevented
// a run row from being recorded.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*model.PipelineRun, error) {
	if opts.MaxProducts <= 0 {
		opts.MaxProducts = p.cfg.Ingestion.MaxProducts
	}

	run := &model.PipelineRun{
		RunID:           uuid.New().String(),
		Status:          model.RunStatusRunning,
		StartedAt:       time.Now().UTC(),
		ShortlistFrozen: opts.Freeze,
		PhaseTimingsMS:  map[string]int64{},
	}
	log := zap.L().With(zap.String("run_id", run.RunID))

	snapJSON, err := json.Marshal(configSnapshot{
		Options:   opts,
		Ingestion: p.cfg.Ingestion,
		Pipeline:  p.cfg.Pipeline,
		Shortlist: p.cfg.Shortlist,
		Scoring:   p.scoreCfg,
		Events:    events.DefaultThresholds(),
		Lexicon:   p.lexicon,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: marshal config snapshot")
	}
	run.ConfigSnapshot = snapJSON

	// Pre-flight: run row + external API health.
	if err := p.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	if _, err := p.keepa.HealthCheck(ctx); err != nil {
		log.Error("pipeline: pre-flight health check failed", zap.Error(err))
		return p.finalize(ctx, run, nil, nil, eris.Wrap(err, "pre-flight health check"))
	}
	log.Info("pipeline: starting run",
		zap.Int("max_products", opts.MaxProducts),
		zap.Bool("freeze", opts.Freeze),
	)

	audit := newRunAudit(run.RunID)

	// Phase 1: discovery.
	var candidates []model.ASIN
	err = p.phase(ctx, run, audit, "discovery", func(ctx context.Context) error {
		candidates, err = p.discover(ctx, opts)
		return err
	})
	if cancelled(ctx) {
		return p.finalizeCancelled(run, audit)
	}
	if err != nil {
		return p.finalize(ctx, run, audit, nil, err)
	}
	audit.recordCount("asins_discovered", len(candidates))

	// Phase 2: freshness filter + cap.
	var targets []model.ASIN
	err = p.phase(ctx, run, audit, "filter", func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-time.Duration(p.cfg.Ingestion.FreshnessHours) * time.Hour)
		targets, err = p.store.StaleASINs(ctx, candidates, cutoff)
		if err != nil {
			return err
		}
		if len(targets) > opts.MaxProducts {
			targets = targets[:opts.MaxProducts]
		}
		return nil
	})
	if cancelled(ctx) {
		return p.finalizeCancelled(run, audit)
	}
	if err != nil {
		return p.finalize(ctx, run, audit, nil, err)
	}

	run.ASINsTotal = len(targets)
	run.ASINsSkipped = len(candidates) - len(targets)
	audit.recordCount("asins_to_process", len(targets))
	if len(targets) == 0 {
		log.Info("pipeline: nothing stale to fetch")
		return p.finalize(ctx, run, audit, nil, nil)
	}

	// Phase 3: fetch.
	var records []model.ProductRecord
	err = p.phase(ctx, run, audit, "fetch", func(ctx context.Context) error {
		records = p.fetch(ctx, targets, run, audit)
		return nil
	})
	if cancelled(ctx) {
		return p.finalizeCancelled(run, audit)
	}
	audit.recordCount("products_fetched", len(records))
	if len(records) == 0 {
		return p.finalize(ctx, run, audit, nil, eris.New("no products fetched"))
	}

	// Phase 4: store (delta + event generation ride the snapshot insert).
	var report store.InsertReport
	err = p.phase(ctx, run, audit, "store", func(ctx context.Context) error {
		if _, err := p.store.UpsertProducts(ctx, records); err != nil {
			return err
		}
		sessionID := uuid.New().String()
		snapshots := make([]model.Snapshot, 0, len(records))
		for _, rec := range records {
			snapshots = append(snapshots, rec.Snapshot)
		}
		report, err = p.store.InsertSnapshots(ctx, snapshots, sessionID)
		return err
	})
	if cancelled(ctx) {
		return p.finalizeCancelled(run, audit)
	}
	if err != nil {
		return p.finalize(ctx, run, audit, nil, err)
	}
	run.EventsGenerated = report.Events()
	audit.recordCount("snapshots_inserted", report.Inserted)
	audit.recordCount("snapshots_skipped", report.Skipped)
	audit.recordCount("events_generated", report.Events())

	// Phase 5: data-quality gate.
	_ = p.phase(ctx, run, audit, "data_quality", func(ctx context.Context) error {
		run.DataQuality = p.dataQuality(records)
		audit.dataQuality = run.DataQuality
		return nil
	})

	// Phase 6a: review intelligence.
	profiles := map[model.ASIN]*model.ImprovementProfile{}
	_ = p.phase(ctx, run, audit, "review_intelligence", func(ctx context.Context) error {
		profiles = p.analyzeReviews(ctx, run.RunID, records, audit)
		return nil
	})
	if cancelled(ctx) {
		return p.finalizeCancelled(run, audit)
	}

	// Phase 6b: scoring.
	var artifacts []model.OpportunityArtifact
	_ = p.phase(ctx, run, audit, "scoring", func(ctx context.Context) error {
		artifacts = p.scoreProducts(ctx, run, records, profiles, audit)
		return nil
	})
	if cancelled(ctx) {
		return p.finalizeCancelled(run, audit)
	}

	_ = p.phase(ctx, run, audit, "persist_artifacts", func(ctx context.Context) error {
		inserted, err := p.store.InsertArtifacts(ctx, artifacts)
		if err != nil {
			return err
		}
		audit.recordCount("artifacts_inserted", inserted)
		return nil
	})
	run.OpportunitiesFound = countViable(artifacts)

	// Phase 7: aggregates refresh + retention.
	_ = p.phase(ctx, run, audit, "refresh", func(ctx context.Context) error {
		if err := p.store.RefreshAggregates(ctx); err != nil {
			audit.warn("aggregate refresh failed: " + err.Error())
		}
		retention := time.Duration(p.cfg.Pipeline.RetentionDays) * 24 * time.Hour
		if pruned, err := p.store.PruneEvents(ctx, retention); err != nil {
			audit.warn("event pruning failed: " + err.Error())
		} else if pruned > 0 {
			audit.recordCount("events_pruned", int(pruned))
		}
		snapRetention := time.Duration(p.cfg.Pipeline.SnapshotRetentionDays) * 24 * time.Hour
		if snapRetention > 0 {
			if pruned, err := p.store.PruneSnapshots(ctx, snapRetention); err != nil {
				audit.warn("snapshot pruning failed: " + err.Error())
			} else if pruned > 0 {
				audit.recordCount("snapshots_pruned", int(pruned))
			}
		}
		return nil
	})

	// Phase 8: finalize.
	return p.finalize(ctx, run, audit, artifacts, nil)
}

// phase runs fn with timing, recording the duration on the run row.
func (p *Pipeline) phase(ctx context.Context, run *model.PipelineRun, audit *runAudit, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	run.PhaseTimingsMS[name] = elapsed.Milliseconds()
	if audit != nil {
		audit.timings[name] = elapsed
	}

	log := zap.L().With(zap.String("run_id", run.RunID), zap.String("phase", name))
	if err != nil {
		log.Error("pipeline: phase failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return eris.Wrapf(err, "pipeline: phase %s", name)
	}
	log.Info("pipeline: phase complete", zap.Duration("elapsed", elapsed))
	return nil
}

func (p *Pipeline) discover(ctx context.Context, opts RunOptions) ([]model.ASIN, error) {
	if len(opts.ExplicitASINs) > 0 {
		return opts.ExplicitASINs, nil
	}
	if opts.SkipDiscovery {
		return p.store.TrackedASINs(ctx, 0)
	}

	timeout := time.Duration(p.cfg.Pipeline.DiscoveryTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	asins, err := p.keepa.DiscoverCategory(ctx, p.cfg.Ingestion.CategoryID, p.cfg.Keepa.Domain)
	if err != nil {
		return nil, eris.Wrap(err, "discover category")
	}
	return asins, nil
}

// fetch pulls product batches, isolating per-product failures into the
// run's failed list. Every batch-level failure gets one retry from the
// phase's residual budget; the phase never aborts on individual products.
func (p *Pipeline) fetch(ctx context.Context, targets []model.ASIN, run *model.PipelineRun, audit *runAudit) []model.ProductRecord {
	batchSize := p.cfg.Ingestion.BatchSize
	if batchSize <= 0 || batchSize > keepa.MaxBatchSize {
		batchSize = keepa.MaxBatchSize
	}

	timeout := time.Duration(p.cfg.Pipeline.FetchTimeoutSecsPerK) * time.Second
	timeout = timeout * time.Duration(max(1, (len(targets)+999)/1000))
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var records []model.ProductRecord
	failed := map[model.ASIN]string{}

	for start := 0; start < len(targets); start += batchSize {
		end := min(start+batchSize, len(targets))
		batch := targets[start:end]

		result, err := p.keepa.FetchProducts(ctx, batch, true)
		if err != nil {
			// One retry per failed batch with whatever budget remains.
			result, err = p.keepa.FetchProducts(ctx, batch, true)
		}
		if err != nil {
			for _, a := range batch {
				failed[a] = err.Error()
			}
			zap.L().Warn("pipeline: batch fetch failed",
				zap.String("run_id", run.RunID),
				zap.Int("batch_start", start),
				zap.Error(err),
			)
			continue
		}

		records = append(records, result.Records...)
		for _, f := range result.Failed {
			failed[f.ASIN] = f.Reason
		}
		if ctx.Err() != nil {
			audit.warn("fetch phase timed out; promoting partial results")
			break
		}
	}

	for asin, reason := range failed {
		run.FailedASINs = append(run.FailedASINs, asin)
		audit.recordError(asin, reason)
	}
	run.ASINsFailed = len(failed)
	run.ASINsOK = len(records)
	run.TokensConsumed = p.keepa.TokensConsumed()
	return records
}

// dataQuality computes the three missingness gates over the run's snapshots.
func (p *Pipeline) dataQuality(records []model.ProductRecord) model.DataQuality {
	dq := model.DataQuality{}
	total := len(records)
	if total == 0 {
		return dq
	}

	var priceMissing, rankMissing, reviewMissing int
	for _, rec := range records {
		if rec.Snapshot.PriceCurrent == nil {
			priceMissing++
		}
		if rec.Snapshot.RankPrimary == nil {
			rankMissing++
		}
		if rec.Snapshot.ReviewCount == nil {
			reviewMissing++
		}
	}

	dq.PriceMissingPct = 100 * float64(priceMissing) / float64(total)
	dq.RankMissingPct = 100 * float64(rankMissing) / float64(total)
	dq.ReviewMissingPct = 100 * float64(reviewMissing) / float64(total)

	threshold := p.cfg.Pipeline.DQThresholdPct
	dq.Passed = dq.PriceMissingPct < threshold &&
		dq.RankMissingPct < threshold &&
		dq.ReviewMissingPct < threshold
	return dq
}

// analyzeReviews runs the extractor for every fetched product with stored
// reviews and persists the per-run improvement profiles.
func (p *Pipeline) analyzeReviews(ctx context.Context, runID string, records []model.ProductRecord, audit *runAudit) map[model.ASIN]*model.ImprovementProfile {
	profiles := map[model.ASIN]*model.ImprovementProfile{}
	analyzed := 0

	for _, rec := range records {
		asin := rec.Product.ASIN
		stored, err := p.store.ListReviews(ctx, asin, p.cfg.Ingestion.ReviewsPerProduct)
		if err != nil {
			audit.warn("review load failed for " + string(asin) + ": " + err.Error())
			continue
		}
		if len(stored) == 0 {
			continue
		}

		defects := p.extractor.ExtractDefects(stored)
		wishes := p.extractor.ExtractWishes(stored)
		negative := 0
		ids := make([]string, 0, len(stored))
		for _, r := range stored {
			ids = append(ids, r.ReviewID)
			if r.Rating <= 3 && r.Body != "" {
				negative++
			}
		}

		profile := reviews.BuildProfile(asin, runID, defects, wishes, len(stored), negative, time.Now().UTC())
		if err := p.store.SaveImprovementProfile(ctx, profile); err != nil {
			audit.warn("profile save failed for " + string(asin) + ": " + err.Error())
			continue
		}
		if err := p.store.MarkReviewsAnalyzed(ctx, ids, time.Now().UTC()); err != nil {
			audit.warn("review analyzed stamp failed for " + string(asin) + ": " + err.Error())
		}
		profiles[asin] = &profile
		analyzed++
	}

	audit.recordCount("profiles_created", analyzed)
	return profiles
}

// scoreProducts fans product scoring across CPU workers, then ranks the
// results deterministically.
func (p *Pipeline) scoreProducts(ctx context.Context, run *model.PipelineRun, records []model.ProductRecord, profiles map[model.ASIN]*model.ImprovementProfile, audit *runAudit) []model.OpportunityArtifact {
	timeout := time.Duration(p.cfg.Pipeline.ScoringTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workers := p.cfg.Pipeline.ScoreWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var mu sync.Mutex
	artifacts := make([]model.OpportunityArtifact, 0, len(records))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range records {
		rec := records[i]
		g.Go(func() error {
			artifact, err := p.scoreOne(gCtx, run.RunID, rec, profiles[rec.Product.ASIN])
			if err != nil {
				audit.recordError(rec.Product.ASIN, err.Error())
				return nil // per-product isolation
			}
			mu.Lock()
			artifacts = append(artifacts, *artifact)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rankArtifacts(artifacts)
	audit.scoring = artifacts
	audit.recordCount("products_scored", len(artifacts))
	return artifacts
}

func (p *Pipeline) scoreOne(ctx context.Context, runID string, rec model.ProductRecord, profile *model.ImprovementProfile) (*model.OpportunityArtifact, error) {
	asin := rec.Product.ASIN
	since := time.Now().UTC().Add(-30 * 24 * time.Hour)

	history, err := p.store.SnapshotHistory(ctx, asin, since)
	if err != nil {
		return nil, eris.Wrapf(err, "history %s", asin)
	}
	stockouts, err := p.store.StockEventCount(ctx, asin, since)
	if err != nil {
		return nil, eris.Wrapf(err, "stock events %s", asin)
	}

	latest := rec.Snapshot
	input := buildScorerInput(asin, &latest, history, stockouts, profile)
	result := p.scorer.Score(input)

	artifact := model.OpportunityArtifact{
		ArtifactID:        uuid.New().String(),
		RunID:             runID,
		ASIN:              asin,
		ScoredAt:          time.Now().UTC(),
		FinalScore:        result.FinalScore,
		BaseScore:         result.BaseScore,
		TimeMultiplier:    result.TimeMultiplier,
		ComponentScores:   result.Components,
		TimeFactors:       result.TimeFactors,
		SignalsFor:        result.SignalsFor,
		SignalsAgainst:    result.SignalsAgainst,
		Thesis:            result.Thesis,
		Action:            result.Action,
		MonthlyProfit:     result.MonthlyProfit,
		AnnualValue:       result.AnnualValue,
		RiskAdjustedValue: result.RiskAdjustedValue,
		RankScore:         result.RankScore,
		WindowDays:        result.WindowDays,
		Urgency:           result.Urgency,
		Rejected:          result.Rejected,
		RejectionReason:   result.RejectionReason,
		InputHash:         result.InputHash,
		Context: model.ProductContext{
			Price:       latest.PriceCurrent,
			ReviewCount: latest.ReviewCount,
			Rating:      latest.RatingAverage,
			RankPrimary: latest.RankPrimary,
		},
	}
	return &artifact, nil
}

// rankArtifacts orders viable artifacts by rank score (ties: final score,
// shorter window, lexical asin) ahead of rejected ones, and assigns ranks.
func rankArtifacts(artifacts []model.OpportunityArtifact) {
	less := func(a, b *model.OpportunityArtifact) bool {
		if a.Rejected != b.Rejected {
			return !a.Rejected
		}
		if a.RankScore != b.RankScore {
			return a.RankScore > b.RankScore
		}
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.WindowDays != b.WindowDays {
			return a.WindowDays < b.WindowDays
		}
		return a.ASIN < b.ASIN
	}
	// Insertion sort keeps this dependency-free and stable for small runs.
	for i := 1; i < len(artifacts); i++ {
		for j := i; j > 0 && less(&artifacts[j], &artifacts[j-1]); j-- {
			artifacts[j], artifacts[j-1] = artifacts[j-1], artifacts[j]
		}
	}
	for i := range artifacts {
		artifacts[i].Rank = i + 1
	}
}

func countViable(artifacts []model.OpportunityArtifact) int {
	n := 0
	for i := range artifacts {
		if !artifacts[i].Rejected {
			n++
		}
	}
	return n
}

func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

// finalizeCancelled records a cooperative cancellation: artifacts already
// written stay for audit, but no shortlist snapshot is activated.
func (p *Pipeline) finalizeCancelled(run *model.PipelineRun, audit *runAudit) (*model.PipelineRun, error) {
	run.Status = model.RunStatusCancelled
	run.ShortlistFrozen = true
	now := time.Now().UTC()
	run.EndedAt = &now

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.store.FinalizeRun(ctx, run); err != nil {
		zap.L().Error("pipeline: finalize cancelled run failed", zap.Error(err))
	}
	p.writeAudit(run, audit, nil)
	return run, nil
}

// finalize computes the terminal status, applies the freeze policy, runs
// the shortlist selector when allowed, and writes the audit artifacts.
func (p *Pipeline) finalize(ctx context.Context, run *model.PipelineRun, audit *runAudit, artifacts []model.OpportunityArtifact, fatal error) (*model.PipelineRun, error) {
	now := time.Now().UTC()
	run.EndedAt = &now

	if run.ASINsTotal > 0 {
		run.ErrorRate = float64(run.ASINsFailed) / float64(run.ASINsTotal)
	}
	run.ErrorBudgetBreached = run.ErrorRate >= p.cfg.Pipeline.ErrorBudget

	switch {
	case fatal != nil:
		run.Status = model.RunStatusFailed
		run.ErrorMessage = fatal.Error()
	case !run.DataQuality.Passed || run.ErrorBudgetBreached:
		run.Status = model.RunStatusDegraded
	default:
		run.Status = model.RunStatusCompleted
	}

	// Freeze policy: a degraded or failed run never replaces the active
	// shortlist. Stale-correct wins over fresh-broken.
	frozen := run.ShortlistFrozen || run.Status != model.RunStatusCompleted

	if len(artifacts) > 0 {
		previous, err := p.store.ActiveShortlistSnapshot(ctx)
		if err != nil {
			zap.L().Warn("pipeline: active snapshot lookup failed", zap.Error(err))
		}
		snapshot := p.selector.Select(run.RunID, artifacts, previous, frozen, now)
		if err := p.store.SaveShortlistSnapshot(ctx, &snapshot, !frozen); err != nil {
			zap.L().Error("pipeline: shortlist snapshot save failed", zap.Error(err))
			if audit != nil {
				audit.warn("shortlist snapshot save failed: " + err.Error())
			}
		} else {
			zap.L().Info("pipeline: shortlist snapshot recorded",
				zap.String("run_id", run.RunID),
				zap.Int("items", len(snapshot.ASINs)),
				zap.Bool("active", snapshot.Active),
				zap.Float64("stability", snapshot.Stability),
			)
		}
	}
	run.ShortlistFrozen = frozen

	if err := p.store.FinalizeRun(ctx, run); err != nil {
		zap.L().Error("pipeline: finalize run failed", zap.Error(err))
	}

	p.alerter.Emit(p.alerter.EvaluateRun(run))
	p.writeAudit(run, audit, artifacts)

	zap.L().Info("pipeline: run finished",
		zap.String("run_id", run.RunID),
		zap.String("status", string(run.Status)),
		zap.Int("asins_total", run.ASINsTotal),
		zap.Int("asins_failed", run.ASINsFailed),
		zap.Float64("error_rate", run.ErrorRate),
		zap.Bool("dq_passed", run.DataQuality.Passed),
		zap.Bool("shortlist_frozen", run.ShortlistFrozen),
	)
	return run, nil
}
