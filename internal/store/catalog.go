package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/db"
	"github.com/smartacus/probe-cli/internal/model"
)

var productColumns = []string{
	"asin", "title", "brand", "manufacturer", "category_id", "category_path",
	"dimensions", "active", "tracking_priority", "last_seen_at", "last_updated_at",
}

// UpsertProducts idempotently upserts catalog rows, refreshing last_seen_at
// and last_updated_at. first_seen_at keeps its insert-time default on
// conflict because it is not in the update set.
func (s *PostgresStore) UpsertProducts(ctx context.Context, records []model.ProductRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		p := rec.Product
		pathJSON, err := json.Marshal(p.CategoryPath)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal category path %s", p.ASIN)
		}
		var dimsJSON []byte
		if p.Dimensions != nil {
			dimsJSON, err = json.Marshal(p.Dimensions)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: marshal dimensions %s", p.ASIN)
			}
		}
		priority := p.TrackingPriority
		if priority < 1 || priority > 10 {
			priority = 5
		}
		rows = append(rows, []any{
			string(p.ASIN), p.Title, p.Brand, p.Manufacturer, p.CategoryID,
			pathJSON, dimsJSON, p.Active, priority, now, now,
		})
	}

	affected, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "products",
		Columns:      productColumns,
		ConflictKeys: []string{"asin"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert products")
	}
	return int(affected), nil
}

// StaleASINs returns the subset of candidates whose catalog row is missing
// or older than the freshness threshold. Unknown products count as stale so
// first-time discoveries are always fetched.
func (s *PostgresStore) StaleASINs(ctx context.Context, candidates []model.ASIN, olderThan time.Time) ([]model.ASIN, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, a := range candidates {
		ids[i] = string(a)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT asin FROM products
		 WHERE asin = ANY($1) AND last_updated_at >= $2 AND deleted_at IS NULL`,
		ids, olderThan,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query fresh products")
	}
	defer rows.Close()

	fresh := map[model.ASIN]bool{}
	for rows.Next() {
		var asin string
		if err := rows.Scan(&asin); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fresh asin")
		}
		fresh[model.ASIN(asin)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate fresh asins")
	}

	var stale []model.ASIN
	for _, a := range candidates {
		if !fresh[a] {
			stale = append(stale, a)
		}
	}
	return stale, nil
}

// TrackedASINs lists active catalog products by tracking priority, used when
// discovery is skipped.
func (s *PostgresStore) TrackedASINs(ctx context.Context, limit int) ([]model.ASIN, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT asin FROM products
		 WHERE active AND deleted_at IS NULL
		 ORDER BY tracking_priority DESC, last_updated_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query tracked asins")
	}
	defer rows.Close()

	var asins []model.ASIN
	for rows.Next() {
		var asin string
		if err := rows.Scan(&asin); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tracked asin")
		}
		asins = append(asins, model.ASIN(asin))
	}
	return asins, eris.Wrap(rows.Err(), "postgres: iterate tracked asins")
}
