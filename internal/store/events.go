package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/model"
)

// StockEventCount counts a product's stockout events since the given time.
func (s *PostgresStore) StockEventCount(ctx context.Context, asin model.ASIN, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM stock_events
		 WHERE asin = $1 AND kind = $2 AND detected_at >= $3`,
		string(asin), string(model.StockEventStockout), since,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: stock event count %s", asin)
}

// PruneSnapshots deletes raw snapshot rows older than the retention
// horizon. Aggregates live on in the materialized views until their next
// refresh.
func (s *PostgresStore) PruneSnapshots(ctx context.Context, retention time.Duration) (int64, error) {
	horizon := time.Now().UTC().Add(-retention)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM snapshots WHERE captured_at < $1`, horizon,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune snapshots")
	}
	return tag.RowsAffected(), nil
}

// PruneEvents deletes event rows older than the retention horizon across
// the three event tables and returns the total rows removed.
func (s *PostgresStore) PruneEvents(ctx context.Context, retention time.Duration) (int64, error) {
	horizon := time.Now().UTC().Add(-retention)

	var total int64
	for _, table := range []string{"price_events", "rank_events", "stock_events"} {
		tag, err := s.pool.Exec(ctx,
			"DELETE FROM "+table+" WHERE detected_at < $1", horizon,
		)
		if err != nil {
			return total, eris.Wrapf(err, "postgres: prune %s", table)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
