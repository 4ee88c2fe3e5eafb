package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestBulkUpsert_EmptyRowsIsNoop(t *testing.T) {
	mock := newMockPool(t)

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "products",
		Columns:      []string{"asin"},
		ConflictKeys: []string{"asin"},
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_RequiresColumnsAndKeys(t *testing.T) {
	mock := newMockPool(t)
	rows := [][]any{{"B0TESTASIN"}}

	_, err := BulkUpsert(context.Background(), mock, UpsertConfig{Table: "products"}, rows)
	assert.Error(t, err)

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:   "products",
		Columns: []string{"asin"},
	}, rows)
	assert.Error(t, err)
}

func TestBulkUpsert_TempTableFlow(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_products"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_products"}, []string{"asin", "brand"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "products" .* ON CONFLICT \("asin"\) DO UPDATE SET "brand" = EXCLUDED\."brand"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "products",
		Columns:      []string{"asin", "brand"},
		ConflictKeys: []string{"asin"},
	}, [][]any{
		{"B0TESTASIN", "Acme"},
		{"B0OTHERAAA", "Zenith"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
