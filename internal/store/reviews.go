package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/model"
)

// ListReviews loads a product's stored reviews with non-empty bodies,
// newest first.
func (s *PostgresStore) ListReviews(ctx context.Context, asin model.ASIN, limit int) ([]model.Review, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT review_id, asin, title, body, rating, verified_purchase, review_date, captured_at, analyzed_at
		 FROM reviews
		 WHERE asin = $1 AND body <> ''
		 ORDER BY review_date DESC
		 LIMIT $2`,
		string(asin), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list reviews %s", asin)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		var r model.Review
		var rowASIN string
		if err := rows.Scan(&r.ReviewID, &rowASIN, &r.Title, &r.Body, &r.Rating,
			&r.VerifiedPurchase, &r.ReviewDate, &r.CapturedAt, &r.AnalyzedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review")
		}
		r.ASIN = model.ASIN(rowASIN)
		reviews = append(reviews, r)
	}
	return reviews, eris.Wrap(rows.Err(), "postgres: iterate reviews")
}

// MarkReviewsAnalyzed stamps analyzed_at on the given reviews.
func (s *PostgresStore) MarkReviewsAnalyzed(ctx context.Context, reviewIDs []string, at time.Time) error {
	if len(reviewIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE reviews SET analyzed_at = $1 WHERE review_id = ANY($2)`,
		at, reviewIDs,
	)
	return eris.Wrap(err, "postgres: mark reviews analyzed")
}

// SaveImprovementProfile persists a (product, run) profile plus its defect
// and feature-request detail rows in one transaction. The profile upserts on
// (asin, run_id); the store rejects defect types outside the closed
// enumeration via the table CHECK constraint.
func (s *PostgresStore) SaveImprovementProfile(ctx context.Context, profile model.ImprovementProfile) error {
	for _, d := range profile.TopDefects {
		if !d.DefectType.Valid() {
			return eris.Errorf("postgres: unknown defect type %q", d.DefectType)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin profile tx")
	}
	defer tx.Rollback(ctx)

	for _, d := range profile.TopDefects {
		quotesJSON, err := json.Marshal(d.ExampleQuotes)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal defect quotes")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO review_defects (asin, run_id, defect_type, frequency, severity_score,
				example_quotes, total_reviews_scanned, negative_reviews_scanned)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			string(profile.ASIN), profile.RunID, string(d.DefectType), d.Frequency,
			d.SeverityScore, quotesJSON, d.TotalReviewsScanned, d.NegativeReviewsScanned,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert defect %s", profile.ASIN)
		}
	}

	for _, w := range profile.MissingFeatures {
		quotesJSON, err := json.Marshal(w.SourceQuotes)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal wish quotes")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO review_feature_requests (asin, run_id, feature, mentions, confidence, source_quotes)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			string(profile.ASIN), profile.RunID, w.Feature, w.Mentions, w.Confidence, quotesJSON,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert feature request %s", profile.ASIN)
		}
	}

	defectsJSON, err := json.Marshal(profile.TopDefects)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal top defects")
	}
	featuresJSON, err := json.Marshal(profile.MissingFeatures)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal missing features")
	}

	var dominant *string
	if profile.DominantPain != nil {
		v := string(*profile.DominantPain)
		dominant = &v
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO review_improvement_profiles (asin, run_id, top_defects, missing_features,
			dominant_pain, improvement_score, reviews_analyzed, negative_reviews_analyzed,
			reviews_ready, computed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (asin, run_id) DO UPDATE SET
			top_defects = EXCLUDED.top_defects,
			missing_features = EXCLUDED.missing_features,
			dominant_pain = EXCLUDED.dominant_pain,
			improvement_score = EXCLUDED.improvement_score,
			reviews_analyzed = EXCLUDED.reviews_analyzed,
			negative_reviews_analyzed = EXCLUDED.negative_reviews_analyzed,
			reviews_ready = EXCLUDED.reviews_ready,
			computed_at = EXCLUDED.computed_at`,
		string(profile.ASIN), profile.RunID, defectsJSON, featuresJSON,
		dominant, profile.ImprovementScore, profile.ReviewsAnalyzed,
		profile.NegativeReviewsAnalyzed, profile.ReviewsReady, profile.ComputedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: upsert profile %s", profile.ASIN)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit profile tx")
}

// LatestImprovementProfile returns a product's most recent profile, or nil.
func (s *PostgresStore) LatestImprovementProfile(ctx context.Context, asin model.ASIN) (*model.ImprovementProfile, error) {
	var p model.ImprovementProfile
	var rowASIN string
	var dominant *string
	var defectsJSON, featuresJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT asin, run_id, top_defects, missing_features, dominant_pain, improvement_score,
			reviews_analyzed, negative_reviews_analyzed, reviews_ready, computed_at
		 FROM review_improvement_profiles
		 WHERE asin = $1
		 ORDER BY computed_at DESC LIMIT 1`,
		string(asin),
	).Scan(&rowASIN, &p.RunID, &defectsJSON, &featuresJSON, &dominant, &p.ImprovementScore,
		&p.ReviewsAnalyzed, &p.NegativeReviewsAnalyzed, &p.ReviewsReady, &p.ComputedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest profile %s", asin)
	}

	p.ASIN = model.ASIN(rowASIN)
	if dominant != nil {
		dt := model.DefectType(*dominant)
		p.DominantPain = &dt
	}
	if err := json.Unmarshal(defectsJSON, &p.TopDefects); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal top defects")
	}
	if err := json.Unmarshal(featuresJSON, &p.MissingFeatures); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal missing features")
	}
	return &p, nil
}
