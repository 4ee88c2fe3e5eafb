package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/model"
)

const artifactColumns = `artifact_id, run_id, asin, rank, scored_at, final_score, base_score,
	time_multiplier, component_scores, time_pressure_factors, signals_for, signals_against,
	thesis, action_recommendation, monthly_profit, annual_value, risk_adjusted_value,
	rank_score, window_days, urgency_level, rejected, rejection_reason, input_hash, product_context`

// InsertArtifacts persists the run's scoring artifacts. Artifacts are
// immutable; replays collide on (run_id, asin) and are skipped.
func (s *PostgresStore) InsertArtifacts(ctx context.Context, artifacts []model.OpportunityArtifact) (int, error) {
	inserted := 0
	for i := range artifacts {
		a := &artifacts[i]

		componentsJSON, err := json.Marshal(a.ComponentScores)
		if err != nil {
			return inserted, eris.Wrap(err, "postgres: marshal component scores")
		}
		factorsJSON, err := json.Marshal(a.TimeFactors)
		if err != nil {
			return inserted, eris.Wrap(err, "postgres: marshal time factors")
		}
		forJSON, err := json.Marshal(a.SignalsFor)
		if err != nil {
			return inserted, eris.Wrap(err, "postgres: marshal signals for")
		}
		againstJSON, err := json.Marshal(a.SignalsAgainst)
		if err != nil {
			return inserted, eris.Wrap(err, "postgres: marshal signals against")
		}
		contextJSON, err := json.Marshal(a.Context)
		if err != nil {
			return inserted, eris.Wrap(err, "postgres: marshal product context")
		}

		tag, err := s.pool.Exec(ctx,
			`INSERT INTO opportunity_artifacts (artifact_id, run_id, asin, rank, scored_at,
				final_score, base_score, time_multiplier, component_scores, time_pressure_factors,
				signals_for, signals_against, thesis, action_recommendation, monthly_profit,
				annual_value, risk_adjusted_value, rank_score, window_days, urgency_level,
				rejected, rejection_reason, input_hash, product_context)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
			 ON CONFLICT ON CONSTRAINT opportunity_artifacts_run_asin DO NOTHING`,
			a.ArtifactID, a.RunID, string(a.ASIN), a.Rank, a.ScoredAt,
			a.FinalScore, a.BaseScore, a.TimeMultiplier, componentsJSON, factorsJSON,
			forJSON, againstJSON, a.Thesis, a.Action, a.MonthlyProfit,
			a.AnnualValue, a.RiskAdjustedValue, a.RankScore, a.WindowDays, string(a.Urgency),
			a.Rejected, nullIfEmpty(a.RejectionReason), a.InputHash, contextJSON,
		)
		if err != nil {
			return inserted, eris.Wrapf(err, "postgres: insert artifact %s", a.ASIN)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ArtifactsForRun loads a run's artifacts ordered by rank.
func (s *PostgresStore) ArtifactsForRun(ctx context.Context, runID string) ([]model.OpportunityArtifact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+artifactColumns+` FROM opportunity_artifacts
		 WHERE run_id = $1
		 ORDER BY rank ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: artifacts for run %s", runID)
	}
	defer rows.Close()

	var artifacts []model.OpportunityArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan artifact")
		}
		artifacts = append(artifacts, *a)
	}
	return artifacts, eris.Wrap(rows.Err(), "postgres: iterate artifacts")
}

func scanArtifact(row pgx.Row) (*model.OpportunityArtifact, error) {
	var a model.OpportunityArtifact
	var asin, urgency string
	var rejectionReason *string
	var componentsJSON, factorsJSON, forJSON, againstJSON, contextJSON []byte

	err := row.Scan(
		&a.ArtifactID, &a.RunID, &asin, &a.Rank, &a.ScoredAt, &a.FinalScore, &a.BaseScore,
		&a.TimeMultiplier, &componentsJSON, &factorsJSON, &forJSON, &againstJSON,
		&a.Thesis, &a.Action, &a.MonthlyProfit, &a.AnnualValue, &a.RiskAdjustedValue,
		&a.RankScore, &a.WindowDays, &urgency, &a.Rejected, &rejectionReason, &a.InputHash, &contextJSON,
	)
	if err != nil {
		return nil, err
	}

	a.ASIN = model.ASIN(asin)
	a.Urgency = model.OpportunityUrgency(urgency)
	if rejectionReason != nil {
		a.RejectionReason = *rejectionReason
	}
	if err := json.Unmarshal(componentsJSON, &a.ComponentScores); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal component scores")
	}
	if err := json.Unmarshal(factorsJSON, &a.TimeFactors); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal time factors")
	}
	if len(forJSON) > 0 {
		if err := json.Unmarshal(forJSON, &a.SignalsFor); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal signals for")
		}
	}
	if len(againstJSON) > 0 {
		if err := json.Unmarshal(againstJSON, &a.SignalsAgainst); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal signals against")
		}
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &a.Context); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal product context")
		}
	}
	return &a, nil
}

// SaveShortlistSnapshot records the snapshot row. When activate is true the
// previously active snapshot is deactivated in the same transaction; the
// partial unique index on (active) WHERE active makes "one active snapshot"
// hold even under concurrent writers. Frozen snapshots are never activated.
func (s *PostgresStore) SaveShortlistSnapshot(ctx context.Context, snapshot *model.ShortlistSnapshot, activate bool) error {
	if snapshot.Frozen && activate {
		return eris.New("postgres: refusing to activate a frozen shortlist snapshot")
	}

	asinsJSON, err := json.Marshal(snapshot.ASINs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal shortlist asins")
	}
	scoresJSON, err := json.Marshal(snapshot.Scores)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal shortlist scores")
	}
	addedJSON, err := json.Marshal(snapshot.Added)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal shortlist added")
	}
	removedJSON, err := json.Marshal(snapshot.Removed)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal shortlist removed")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin shortlist tx")
	}
	defer tx.Rollback(ctx)

	if activate {
		if _, err := tx.Exec(ctx,
			`UPDATE shortlist_snapshots SET active = false WHERE active`,
		); err != nil {
			return eris.Wrap(err, "postgres: deactivate shortlist")
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO shortlist_snapshots (snapshot_id, run_id, created_at, asins, scores,
			total_potential_value, added, removed, stability, frozen, active)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		snapshot.SnapshotID, snapshot.RunID, snapshot.CreatedAt, asinsJSON, scoresJSON,
		snapshot.TotalPotentialValue, addedJSON, removedJSON, snapshot.Stability,
		snapshot.Frozen, activate,
	); err != nil {
		return eris.Wrap(err, "postgres: insert shortlist snapshot")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit shortlist tx")
	}
	snapshot.Active = activate
	return nil
}

// ActiveShortlistSnapshot returns the currently active snapshot, or nil.
func (s *PostgresStore) ActiveShortlistSnapshot(ctx context.Context) (*model.ShortlistSnapshot, error) {
	var snap model.ShortlistSnapshot
	var asinsJSON, scoresJSON, addedJSON, removedJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT snapshot_id, run_id, created_at, asins, scores, total_potential_value,
			added, removed, stability, frozen, active
		 FROM shortlist_snapshots
		 WHERE active LIMIT 1`,
	).Scan(&snap.SnapshotID, &snap.RunID, &snap.CreatedAt, &asinsJSON, &scoresJSON,
		&snap.TotalPotentialValue, &addedJSON, &removedJSON, &snap.Stability,
		&snap.Frozen, &snap.Active)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: active shortlist snapshot")
	}

	if err := json.Unmarshal(asinsJSON, &snap.ASINs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal shortlist asins")
	}
	if err := json.Unmarshal(scoresJSON, &snap.Scores); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal shortlist scores")
	}
	if len(addedJSON) > 0 {
		if err := json.Unmarshal(addedJSON, &snap.Added); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal shortlist added")
		}
	}
	if len(removedJSON) > 0 {
		if err := json.Unmarshal(removedJSON, &snap.Removed); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal shortlist removed")
		}
	}
	return &snap, nil
}
