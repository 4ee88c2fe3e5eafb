package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/events"
	"github.com/smartacus/probe-cli/internal/model"
)

const snapshotColumns = `asin, captured_at, price_current, price_list, price_lowest_new,
	price_lowest_used, currency, coupon_amount, coupon_percent, rank_primary, rank_category,
	rank_secondary, rank_secondary_cat, stock_status, stock_quantity, seller_count, fulfillment,
	rating_average, rating_count, review_count, star_percents, price_delta, price_delta_percent,
	rank_delta, rank_delta_percent, review_count_delta`

// InsertSnapshots appends snapshot rows. For every row the prior snapshot of
// the same product is loaded, the three delta fields are computed, and the
// price/rank/stock event rules run — all inside one transaction, so a
// snapshot never lands without its deltas and events. Replays collide on the
// (asin, captured_at) primary key and the event dedup triples and are
// skipped silently. Rows older than the product's newest stored snapshot are
// skipped to keep captured_at strictly increasing per product.
func (s *PostgresStore) InsertSnapshots(ctx context.Context, snapshots []model.Snapshot, sessionID string) (InsertReport, error) {
	var report InsertReport
	if len(snapshots) == 0 {
		return report, nil
	}

	ordered := make([]model.Snapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ASIN != ordered[j].ASIN {
			return ordered[i].ASIN < ordered[j].ASIN
		}
		return ordered[i].CapturedAt.Before(ordered[j].CapturedAt)
	})

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return report, eris.Wrap(err, "postgres: begin snapshot tx")
	}
	defer tx.Rollback(ctx)

	thresholds := events.DefaultThresholds()
	now := time.Now().UTC()

	for i := range ordered {
		snap := ordered[i]

		prior, err := priorSnapshot(ctx, tx, snap.ASIN, snap.CapturedAt)
		if err != nil {
			return report, err
		}

		// Monotonicity: never insert behind the product's newest row.
		newest, err := newestCapturedAt(ctx, tx, snap.ASIN)
		if err != nil {
			return report, err
		}
		if newest != nil && !snap.CapturedAt.After(*newest) {
			report.Skipped++
			continue
		}

		events.ComputeDeltas(&snap, prior)

		inserted, err := insertSnapshotRow(ctx, tx, &snap, sessionID)
		if err != nil {
			return report, err
		}
		if !inserted {
			report.Skipped++
			continue
		}
		report.Inserted++

		detected := events.Detect(thresholds, &snap, prior, now)
		n, err := insertEvents(ctx, tx, detected)
		if err != nil {
			return report, err
		}
		report.PriceEvents += n.PriceEvents
		report.RankEvents += n.RankEvents
		report.StockEvents += n.StockEvents
	}

	if err := tx.Commit(ctx); err != nil {
		return report, eris.Wrap(err, "postgres: commit snapshot tx")
	}
	return report, nil
}

func priorSnapshot(ctx context.Context, tx pgx.Tx, asin model.ASIN, before time.Time) (*model.Snapshot, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE asin = $1 AND captured_at < $2
		 ORDER BY captured_at DESC LIMIT 1`,
		string(asin), before,
	)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: prior snapshot %s", asin)
	}
	return snap, nil
}

func newestCapturedAt(ctx context.Context, tx pgx.Tx, asin model.ASIN) (*time.Time, error) {
	var ts *time.Time
	err := tx.QueryRow(ctx,
		`SELECT max(captured_at) FROM snapshots WHERE asin = $1`,
		string(asin),
	).Scan(&ts)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: newest captured_at %s", asin)
	}
	return ts, nil
}

func insertSnapshotRow(ctx context.Context, tx pgx.Tx, snap *model.Snapshot, sessionID string) (bool, error) {
	var starJSON []byte
	if snap.StarPercents != nil {
		var err error
		starJSON, err = json.Marshal(snap.StarPercents)
		if err != nil {
			return false, eris.Wrapf(err, "postgres: marshal star percents %s", snap.ASIN)
		}
	}

	tag, err := tx.Exec(ctx,
		`INSERT INTO snapshots (asin, captured_at, session_id, price_current, price_list,
			price_lowest_new, price_lowest_used, currency, coupon_amount, coupon_percent,
			rank_primary, rank_category, rank_secondary, rank_secondary_cat, stock_status,
			stock_quantity, seller_count, fulfillment, rating_average, rating_count,
			review_count, star_percents, price_delta, price_delta_percent, rank_delta,
			rank_delta_percent, review_count_delta)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
		 ON CONFLICT (asin, captured_at) DO NOTHING`,
		string(snap.ASIN), snap.CapturedAt, sessionID, snap.PriceCurrent, snap.PriceList,
		snap.PriceLowestNew, snap.PriceLowestUsed, snap.Currency, snap.CouponAmount, snap.CouponPercent,
		snap.RankPrimary, snap.RankCategory, snap.RankSecondary, snap.RankSecondaryCat, string(snap.StockStatus),
		snap.StockQuantity, snap.SellerCount, string(snap.Fulfillment), snap.RatingAverage, snap.RatingCount,
		snap.ReviewCount, starJSON, snap.PriceDelta, snap.PriceDeltaPercent, snap.RankDelta,
		snap.RankDeltaPercent, snap.ReviewCountDelta,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert snapshot %s", snap.ASIN)
	}
	return tag.RowsAffected() > 0, nil
}

func insertEvents(ctx context.Context, tx pgx.Tx, d events.Detected) (InsertReport, error) {
	var report InsertReport

	if ev := d.Price; ev != nil {
		tag, err := tx.Exec(ctx,
			`INSERT INTO price_events (asin, detected_at, price_before, price_after,
				change_amount, change_percent, direction, severity, is_deal,
				snapshot_before_at, snapshot_after_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			 ON CONFLICT ON CONSTRAINT price_events_dedup DO NOTHING`,
			string(ev.ASIN), ev.DetectedAt, ev.PriceBefore, ev.PriceAfter,
			ev.ChangeAmount, ev.ChangePercent, string(ev.Direction), string(ev.Severity), ev.IsDeal,
			ev.SnapshotBeforeAt, ev.SnapshotAfterAt,
		)
		if err != nil {
			return report, eris.Wrapf(err, "postgres: insert price event %s", ev.ASIN)
		}
		report.PriceEvents += int(tag.RowsAffected())
	}

	if ev := d.Rank; ev != nil {
		tag, err := tx.Exec(ctx,
			`INSERT INTO rank_events (asin, detected_at, rank_before, rank_after,
				change_amount, change_percent, direction, severity, sustained,
				snapshot_before_at, snapshot_after_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			 ON CONFLICT ON CONSTRAINT rank_events_dedup DO NOTHING`,
			string(ev.ASIN), ev.DetectedAt, ev.RankBefore, ev.RankAfter,
			ev.ChangeAmount, ev.ChangePercent, string(ev.Direction), string(ev.Severity), ev.Sustained,
			ev.SnapshotBeforeAt, ev.SnapshotAfterAt,
		)
		if err != nil {
			return report, eris.Wrapf(err, "postgres: insert rank event %s", ev.ASIN)
		}
		report.RankEvents += int(tag.RowsAffected())
	}

	if ev := d.Stock; ev != nil {
		tag, err := tx.Exec(ctx,
			`INSERT INTO stock_events (asin, detected_at, status_before, status_after,
				quantity_before, quantity_after, kind, severity, stockout_start_at,
				stockout_hours, snapshot_before_at, snapshot_after_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			 ON CONFLICT ON CONSTRAINT stock_events_dedup DO NOTHING`,
			string(ev.ASIN), ev.DetectedAt, string(ev.StatusBefore), string(ev.StatusAfter),
			ev.QuantityBefore, ev.QuantityAfter, string(ev.Kind), string(ev.Severity), ev.StockoutStartAt,
			ev.StockoutHours, ev.SnapshotBeforeAt, ev.SnapshotAfterAt,
		)
		if err != nil {
			return report, eris.Wrapf(err, "postgres: insert stock event %s", ev.ASIN)
		}
		report.StockEvents += int(tag.RowsAffected())
	}

	return report, nil
}

// SnapshotHistory returns a product's snapshots since the given time in
// ascending captured_at order.
func (s *PostgresStore) SnapshotHistory(ctx context.Context, asin model.ASIN, since time.Time) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE asin = $1 AND captured_at >= $2
		 ORDER BY captured_at ASC`,
		string(asin), since,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: snapshot history %s", asin)
	}
	defer rows.Close()

	var history []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan snapshot %s", asin)
		}
		history = append(history, *snap)
	}
	return history, eris.Wrap(rows.Err(), "postgres: iterate snapshot history")
}

// LatestSnapshot returns a product's most recent snapshot, or nil.
func (s *PostgresStore) LatestSnapshot(ctx context.Context, asin model.ASIN) (*model.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE asin = $1
		 ORDER BY captured_at DESC LIMIT 1`,
		string(asin),
	)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest snapshot %s", asin)
	}
	return snap, nil
}

func scanSnapshot(row pgx.Row) (*model.Snapshot, error) {
	var snap model.Snapshot
	var asin, stockStatus, fulfillment string
	var starJSON []byte

	err := row.Scan(
		&asin, &snap.CapturedAt, &snap.PriceCurrent, &snap.PriceList, &snap.PriceLowestNew,
		&snap.PriceLowestUsed, &snap.Currency, &snap.CouponAmount, &snap.CouponPercent,
		&snap.RankPrimary, &snap.RankCategory, &snap.RankSecondary, &snap.RankSecondaryCat,
		&stockStatus, &snap.StockQuantity, &snap.SellerCount, &fulfillment,
		&snap.RatingAverage, &snap.RatingCount, &snap.ReviewCount, &starJSON,
		&snap.PriceDelta, &snap.PriceDeltaPercent, &snap.RankDelta, &snap.RankDeltaPercent,
		&snap.ReviewCountDelta,
	)
	if err != nil {
		return nil, err
	}

	snap.ASIN = model.ASIN(asin)
	snap.StockStatus = model.StockStatus(stockStatus)
	snap.Fulfillment = model.FulfillmentType(fulfillment)
	if len(starJSON) > 0 {
		if err := json.Unmarshal(starJSON, &snap.StarPercents); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal star percents")
		}
	}
	return &snap, nil
}
