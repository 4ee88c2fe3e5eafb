package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS products (
	asin              TEXT PRIMARY KEY,
	title             TEXT,
	brand             TEXT NOT NULL DEFAULT '',
	manufacturer      TEXT NOT NULL DEFAULT '',
	category_id       BIGINT NOT NULL DEFAULT 0,
	category_path     JSONB,
	dimensions        JSONB,
	active            BOOLEAN NOT NULL DEFAULT true,
	tracking_priority INTEGER NOT NULL DEFAULT 5,
	first_seen_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_products_last_updated ON products(last_updated_at);
CREATE INDEX IF NOT EXISTS idx_products_active ON products(active) WHERE active;

CREATE TABLE IF NOT EXISTS snapshots (
	asin                TEXT NOT NULL REFERENCES products(asin),
	captured_at         TIMESTAMPTZ NOT NULL,
	session_id          TEXT,
	price_current       NUMERIC(12,2),
	price_list          NUMERIC(12,2),
	price_lowest_new    NUMERIC(12,2),
	price_lowest_used   NUMERIC(12,2),
	currency            TEXT NOT NULL DEFAULT '',
	coupon_amount       NUMERIC(12,2),
	coupon_percent      NUMERIC(6,2),
	rank_primary        BIGINT,
	rank_category       TEXT NOT NULL DEFAULT '',
	rank_secondary      BIGINT,
	rank_secondary_cat  TEXT NOT NULL DEFAULT '',
	stock_status        TEXT NOT NULL DEFAULT 'unknown',
	stock_quantity      INTEGER,
	seller_count        INTEGER,
	fulfillment         TEXT NOT NULL DEFAULT 'unknown',
	rating_average      NUMERIC(3,1),
	rating_count        INTEGER,
	review_count        INTEGER,
	star_percents       JSONB,
	price_delta         NUMERIC(12,2),
	price_delta_percent NUMERIC(10,4),
	rank_delta          BIGINT,
	rank_delta_percent  NUMERIC(10,4),
	review_count_delta  INTEGER,
	PRIMARY KEY (asin, captured_at)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_captured_at ON snapshots(captured_at);

CREATE TABLE IF NOT EXISTS price_events (
	id                 BIGSERIAL PRIMARY KEY,
	asin               TEXT NOT NULL,
	detected_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	price_before       NUMERIC(12,2) NOT NULL,
	price_after        NUMERIC(12,2) NOT NULL,
	change_amount      NUMERIC(12,2) NOT NULL,
	change_percent     NUMERIC(10,4) NOT NULL,
	direction          TEXT NOT NULL,
	severity           TEXT NOT NULL,
	is_deal            BOOLEAN NOT NULL DEFAULT false,
	snapshot_before_at TIMESTAMPTZ NOT NULL,
	snapshot_after_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT price_events_dedup UNIQUE (asin, snapshot_before_at, snapshot_after_at)
);

CREATE TABLE IF NOT EXISTS rank_events (
	id                 BIGSERIAL PRIMARY KEY,
	asin               TEXT NOT NULL,
	detected_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	rank_before        BIGINT NOT NULL,
	rank_after         BIGINT NOT NULL,
	change_amount      BIGINT NOT NULL,
	change_percent     NUMERIC(10,4) NOT NULL,
	direction          TEXT NOT NULL,
	severity           TEXT NOT NULL,
	sustained          BOOLEAN NOT NULL DEFAULT false,
	snapshot_before_at TIMESTAMPTZ NOT NULL,
	snapshot_after_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT rank_events_dedup UNIQUE (asin, snapshot_before_at, snapshot_after_at)
);

CREATE TABLE IF NOT EXISTS stock_events (
	id                 BIGSERIAL PRIMARY KEY,
	asin               TEXT NOT NULL,
	detected_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	status_before      TEXT NOT NULL,
	status_after       TEXT NOT NULL,
	quantity_before    INTEGER,
	quantity_after     INTEGER,
	kind               TEXT NOT NULL,
	severity           TEXT NOT NULL,
	stockout_start_at  TIMESTAMPTZ,
	stockout_hours     NUMERIC(10,2),
	snapshot_before_at TIMESTAMPTZ NOT NULL,
	snapshot_after_at  TIMESTAMPTZ NOT NULL,
	CONSTRAINT stock_events_dedup UNIQUE (asin, snapshot_before_at, snapshot_after_at)
);

CREATE INDEX IF NOT EXISTS idx_price_events_asin ON price_events(asin, detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_rank_events_asin ON rank_events(asin, detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_stock_events_asin ON stock_events(asin, detected_at DESC);

CREATE TABLE IF NOT EXISTS reviews (
	review_id         TEXT PRIMARY KEY,
	asin              TEXT NOT NULL,
	title             TEXT NOT NULL DEFAULT '',
	body              TEXT NOT NULL DEFAULT '',
	rating            NUMERIC(2,1) NOT NULL,
	verified_purchase BOOLEAN NOT NULL DEFAULT false,
	review_date       TIMESTAMPTZ NOT NULL,
	captured_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	analyzed_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_reviews_asin ON reviews(asin, review_date DESC);

CREATE TABLE IF NOT EXISTS review_defects (
	id                       BIGSERIAL PRIMARY KEY,
	asin                     TEXT NOT NULL,
	run_id                   TEXT NOT NULL,
	defect_type              TEXT NOT NULL CHECK (defect_type IN (
		'mechanical_failure','poor_grip','durability','compatibility_issue',
		'heat_issue','installation_issue','vibration_noise','material_quality','size_fit')),
	frequency                INTEGER NOT NULL,
	severity_score           NUMERIC(4,3) NOT NULL,
	example_quotes           JSONB,
	total_reviews_scanned    INTEGER NOT NULL,
	negative_reviews_scanned INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS review_feature_requests (
	id            BIGSERIAL PRIMARY KEY,
	asin          TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	feature       TEXT NOT NULL,
	mentions      INTEGER NOT NULL,
	confidence    NUMERIC(4,3) NOT NULL,
	source_quotes JSONB
);

CREATE TABLE IF NOT EXISTS review_improvement_profiles (
	asin                      TEXT NOT NULL,
	run_id                    TEXT NOT NULL,
	top_defects               JSONB NOT NULL,
	missing_features          JSONB NOT NULL,
	dominant_pain             TEXT,
	improvement_score         NUMERIC(4,3) NOT NULL,
	reviews_analyzed          INTEGER NOT NULL,
	negative_reviews_analyzed INTEGER NOT NULL,
	reviews_ready             BOOLEAN NOT NULL DEFAULT false,
	computed_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (asin, run_id)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id                TEXT PRIMARY KEY,
	status                TEXT NOT NULL,
	started_at            TIMESTAMPTZ NOT NULL,
	ended_at              TIMESTAMPTZ,
	asins_total           INTEGER NOT NULL DEFAULT 0,
	asins_ok              INTEGER NOT NULL DEFAULT 0,
	asins_failed          INTEGER NOT NULL DEFAULT 0,
	asins_skipped         INTEGER NOT NULL DEFAULT 0,
	phase_timings_ms      JSONB,
	tokens_consumed       INTEGER NOT NULL DEFAULT 0,
	dq_price_missing_pct  NUMERIC(6,2) NOT NULL DEFAULT 0,
	dq_rank_missing_pct   NUMERIC(6,2) NOT NULL DEFAULT 0,
	dq_review_missing_pct NUMERIC(6,2) NOT NULL DEFAULT 0,
	dq_passed             BOOLEAN NOT NULL DEFAULT false,
	error_rate            NUMERIC(6,4) NOT NULL DEFAULT 0,
	error_budget_breached BOOLEAN NOT NULL DEFAULT false,
	shortlist_frozen      BOOLEAN NOT NULL DEFAULT false,
	opportunities_found   INTEGER NOT NULL DEFAULT 0,
	events_generated      INTEGER NOT NULL DEFAULT 0,
	config_snapshot       JSONB,
	error_message         TEXT,
	failed_asins          JSONB
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at DESC);

CREATE TABLE IF NOT EXISTS opportunity_artifacts (
	artifact_id           TEXT PRIMARY KEY,
	run_id                TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	asin                  TEXT NOT NULL,
	rank                  INTEGER NOT NULL,
	scored_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	final_score           INTEGER NOT NULL,
	base_score            NUMERIC(6,4) NOT NULL,
	time_multiplier       NUMERIC(4,2) NOT NULL,
	component_scores      JSONB NOT NULL,
	time_pressure_factors JSONB NOT NULL,
	signals_for           JSONB,
	signals_against       JSONB,
	thesis                TEXT NOT NULL DEFAULT '',
	action_recommendation TEXT NOT NULL DEFAULT '',
	monthly_profit        NUMERIC(14,2) NOT NULL DEFAULT 0,
	annual_value          NUMERIC(14,2) NOT NULL DEFAULT 0,
	risk_adjusted_value   NUMERIC(14,2) NOT NULL DEFAULT 0,
	rank_score            NUMERIC(16,2) NOT NULL DEFAULT 0,
	window_days           INTEGER NOT NULL DEFAULT 0,
	urgency_level         TEXT NOT NULL DEFAULT 'standard',
	rejected              BOOLEAN NOT NULL DEFAULT false,
	rejection_reason      TEXT,
	input_hash            TEXT NOT NULL DEFAULT '',
	product_context       JSONB,
	CONSTRAINT opportunity_artifacts_run_asin UNIQUE (run_id, asin)
);

CREATE TABLE IF NOT EXISTS shortlist_snapshots (
	snapshot_id           TEXT PRIMARY KEY,
	run_id                TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	asins                 JSONB NOT NULL,
	scores                JSONB NOT NULL,
	total_potential_value NUMERIC(16,2) NOT NULL DEFAULT 0,
	added                 JSONB,
	removed               JSONB,
	stability             NUMERIC(4,3) NOT NULL DEFAULT 0,
	frozen                BOOLEAN NOT NULL DEFAULT false,
	active                BOOLEAN NOT NULL DEFAULT false
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_shortlist_one_active
	ON shortlist_snapshots(active) WHERE active;

CREATE MATERIALIZED VIEW IF NOT EXISTS mv_latest_snapshots AS
	SELECT DISTINCT ON (asin) *
	FROM snapshots
	ORDER BY asin, captured_at DESC;

CREATE UNIQUE INDEX IF NOT EXISTS idx_mv_latest_snapshots_asin ON mv_latest_snapshots(asin);

CREATE MATERIALIZED VIEW IF NOT EXISTS mv_product_stats_7d AS
	SELECT asin,
	       count(*)                        AS snapshot_count,
	       avg(price_current)              AS avg_price,
	       stddev_pop(price_current)       AS stddev_price,
	       min(rank_primary)               AS best_rank,
	       max(rank_primary)               AS worst_rank
	FROM snapshots
	WHERE captured_at > now() - interval '7 days'
	GROUP BY asin;

CREATE UNIQUE INDEX IF NOT EXISTS idx_mv_stats_7d_asin ON mv_product_stats_7d(asin);

CREATE MATERIALIZED VIEW IF NOT EXISTS mv_product_stats_30d AS
	SELECT asin,
	       count(*)                        AS snapshot_count,
	       avg(price_current)              AS avg_price,
	       stddev_pop(price_current)       AS stddev_price,
	       min(rank_primary)               AS best_rank,
	       max(rank_primary)               AS worst_rank
	FROM snapshots
	WHERE captured_at > now() - interval '30 days'
	GROUP BY asin;

CREATE UNIQUE INDEX IF NOT EXISTS idx_mv_stats_30d_asin ON mv_product_stats_30d(asin);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// RefreshAggregates recomputes the materialized views without taking
// exclusive locks, so readers are never blocked.
func (s *PostgresStore) RefreshAggregates(ctx context.Context) error {
	for _, view := range []string{"mv_latest_snapshots", "mv_product_stats_7d", "mv_product_stats_30d"} {
		if _, err := s.pool.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+view); err != nil {
			return eris.Wrapf(err, "postgres: refresh %s", view)
		}
	}
	return nil
}

// isNoRows reports pgx.ErrNoRows anywhere in the chain.
func isNoRows(err error) bool {
	return eris.Is(err, pgx.ErrNoRows)
}
