package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/model"
)

const runColumns = `run_id, status, started_at, ended_at, asins_total, asins_ok, asins_failed,
	asins_skipped, phase_timings_ms, tokens_consumed, dq_price_missing_pct, dq_rank_missing_pct,
	dq_review_missing_pct, dq_passed, error_rate, error_budget_breached, shortlist_frozen,
	opportunities_found, events_generated, config_snapshot, error_message, failed_asins`

// CreateRun inserts the pre-flight run row with status running.
func (s *PostgresStore) CreateRun(ctx context.Context, run *model.PipelineRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (run_id, status, started_at, shortlist_frozen, config_snapshot)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.RunID, string(run.Status), run.StartedAt, run.ShortlistFrozen, []byte(run.ConfigSnapshot),
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.RunID)
}

// FinalizeRun writes every measured field of the finished run.
func (s *PostgresStore) FinalizeRun(ctx context.Context, run *model.PipelineRun) error {
	timingsJSON, err := json.Marshal(run.PhaseTimingsMS)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal phase timings")
	}
	failedJSON, err := json.Marshal(run.FailedASINs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal failed asins")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET
			status = $1, ended_at = $2, asins_total = $3, asins_ok = $4, asins_failed = $5,
			asins_skipped = $6, phase_timings_ms = $7, tokens_consumed = $8,
			dq_price_missing_pct = $9, dq_rank_missing_pct = $10, dq_review_missing_pct = $11,
			dq_passed = $12, error_rate = $13, error_budget_breached = $14, shortlist_frozen = $15,
			opportunities_found = $16, events_generated = $17, error_message = $18, failed_asins = $19
		 WHERE run_id = $20`,
		string(run.Status), run.EndedAt, run.ASINsTotal, run.ASINsOK, run.ASINsFailed,
		run.ASINsSkipped, timingsJSON, run.TokensConsumed,
		run.DataQuality.PriceMissingPct, run.DataQuality.RankMissingPct, run.DataQuality.ReviewMissingPct,
		run.DataQuality.Passed, run.ErrorRate, run.ErrorBudgetBreached, run.ShortlistFrozen,
		run.OpportunitiesFound, run.EventsGenerated, nullIfEmpty(run.ErrorMessage), failedJSON,
		run.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize run %s", run.RunID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.RunID)
	}
	return nil
}

// GetRun loads a run row by id.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE run_id = $1`, runID,
	)
	run, err := scanRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

// ListRuns lists runs newest first, optionally filtered by status.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func scanRun(row pgx.Row) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var status string
	var timingsJSON, configJSON, failedJSON []byte
	var errMsg *string

	err := row.Scan(
		&run.RunID, &status, &run.StartedAt, &run.EndedAt, &run.ASINsTotal, &run.ASINsOK,
		&run.ASINsFailed, &run.ASINsSkipped, &timingsJSON, &run.TokensConsumed,
		&run.DataQuality.PriceMissingPct, &run.DataQuality.RankMissingPct,
		&run.DataQuality.ReviewMissingPct, &run.DataQuality.Passed,
		&run.ErrorRate, &run.ErrorBudgetBreached, &run.ShortlistFrozen,
		&run.OpportunitiesFound, &run.EventsGenerated, &configJSON, &errMsg, &failedJSON,
	)
	if err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)
	run.ConfigSnapshot = configJSON
	if errMsg != nil {
		run.ErrorMessage = *errMsg
	}
	if len(timingsJSON) > 0 {
		if err := json.Unmarshal(timingsJSON, &run.PhaseTimingsMS); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal phase timings")
		}
	}
	if len(failedJSON) > 0 {
		if err := json.Unmarshal(failedJSON, &run.FailedASINs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal failed asins")
		}
	}
	return &run, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
