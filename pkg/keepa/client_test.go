package keepa

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/resilience"
)

func testClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key",
		WithBaseURL(srv.URL),
		WithBucket(1000, 600),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}),
	)
}

func productJSON(asin string, priceCents, rank int64) string {
	return fmt.Sprintf(`{
		"asin": %q,
		"title": "Magnetic Car Mount",
		"brand": "Acme",
		"rootCategory": 7072562011,
		"categoryTree": [{"name": "Electronics"}, {"name": "Car Mounts"}],
		"stats": {
			"capturedAt": 1750000000,
			"price": %d,
			"listPrice": -1,
			"lowestNew": %d,
			"lowestUsed": -1,
			"currency": "USD",
			"coupon": -1,
			"salesRank": %d,
			"salesRankCategory": "Electronics",
			"stockStatus": "in_stock",
			"stockQuantity": 12,
			"sellerCount": 5,
			"fulfillment": "fba",
			"rating": 43,
			"ratingCount": 900,
			"reviewCount": 850,
			"starPercents": [5, 7, 10, 28, 50]
		}
	}`, asin, priceCents, priceCents, rank)
}

func TestDiscoverCategory(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bestsellers", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		fmt.Fprint(w, `{
			"tokensLeft": 195,
			"refillRate": 21,
			"bestSellersList": ["B0TESTASIN", "B0OTHERAAA", "short"]
		}`)
	})

	asins, err := c.DiscoverCategory(context.Background(), 7072562011, 1)
	require.NoError(t, err)
	// The malformed id is dropped.
	assert.Equal(t, []model.ASIN{"B0TESTASIN", "B0OTHERAAA"}, asins)
	assert.Equal(t, 5, c.TokensConsumed())
}

func TestFetchProducts_DecodesRecords(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/product", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("history"))
		fmt.Fprintf(w, `{"tokensLeft": 180, "refillRate": 21, "products": [%s]}`,
			productJSON("B0TESTASIN", 2999, 8500))
	})

	result, err := c.FetchProducts(context.Background(), []model.ASIN{"B0TESTASIN"}, true)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Empty(t, result.Failed)

	rec := result.Records[0]
	assert.Equal(t, model.ASIN("B0TESTASIN"), rec.Product.ASIN)
	assert.Equal(t, []string{"Electronics", "Car Mounts"}, rec.Product.CategoryPath)

	snap := rec.Snapshot
	require.NotNil(t, snap.PriceCurrent)
	assert.InDelta(t, 29.99, *snap.PriceCurrent, 1e-9)
	assert.Nil(t, snap.PriceList) // -1 means absent
	require.NotNil(t, snap.RankPrimary)
	assert.Equal(t, int64(8500), *snap.RankPrimary)
	assert.Equal(t, model.StockInStock, snap.StockStatus)
	assert.Equal(t, model.FulfillmentFBA, snap.Fulfillment)
	require.NotNil(t, snap.RatingAverage)
	assert.InDelta(t, 4.3, *snap.RatingAverage, 1e-9)
	require.NotNil(t, snap.ReviewCount)
	assert.Equal(t, 850, *snap.ReviewCount)
}

func TestFetchProducts_IsolatesMalformedRecords(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Second record has no stats block: malformed, must not fail the batch.
		fmt.Fprintf(w, `{"tokensLeft": 170, "refillRate": 21, "products": [%s, {"asin": "B0MALFORMD"}]}`,
			productJSON("B0TESTASIN", 2999, 8500))
	})

	result, err := c.FetchProducts(context.Background(), []model.ASIN{"B0TESTASIN", "B0MALFORMD"}, false)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, model.ASIN("B0MALFORMD"), result.Failed[0].ASIN)
}

func TestFetchProducts_MissingRecordReported(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"tokensLeft": 170, "refillRate": 21, "products": [%s]}`,
			productJSON("B0TESTASIN", 2999, 8500))
	})

	result, err := c.FetchProducts(context.Background(), []model.ASIN{"B0TESTASIN", "B0NORESULT"}, false)
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, model.ASIN("B0NORESULT"), result.Failed[0].ASIN)
	assert.Equal(t, "not returned by remote", result.Failed[0].Reason)
}

func TestFetchProducts_BatchCeiling(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	batch := make([]model.ASIN, MaxBatchSize+1)
	for i := range batch {
		batch[i] = "B0TESTASIN"
	}
	_, err := c.FetchProducts(context.Background(), batch, false)
	require.Error(t, err)
	assert.Equal(t, resilience.KindMalformed, resilience.KindOf(err))
}

func TestCall_MalformedStatusNotRetried(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error": "bad request"}`, http.StatusBadRequest)
	})

	_, err := c.FetchProducts(context.Background(), []model.ASIN{"B0TESTASIN"}, false)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, resilience.KindMalformed, resilience.KindOf(err))
}

func TestCall_TransientRetried(t *testing.T) {
	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		fmt.Fprintf(w, `{"tokensLeft": 160, "refillRate": 21, "products": [%s]}`,
			productJSON("B0TESTASIN", 2999, 8500))
	})

	result, err := c.FetchProducts(context.Background(), []model.ASIN{"B0TESTASIN"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, result.Records, 1)
}

func TestHealthCheck_SyncsFromRemote(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		fmt.Fprint(w, `{"tokensLeft": 123, "refillRate": 42}`)
	})

	health, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 123, health.TokensLeft)
	assert.InDelta(t, 42, health.RefillPerMinute, 1e-9)
	assert.Empty(t, health.LastError)
}

func TestFetchProducts_EmptyBatchIsNoop(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	result, err := c.FetchProducts(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
}
