// Package keepa implements the budget-aware client for the product data
// API: batched catalog discovery and per-product observation fetches paced
// by a leaky bucket that is re-synchronized from every response.
package keepa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://api.keepa.com"

	// MaxBatchSize is the per-call product ceiling the remote accepts.
	MaxBatchSize = 100

	defaultDiscoveryCost  = 5
	defaultPerProductCost = 2
	defaultTimeout        = 30 * time.Second
)

// Health reports the remote token economy as of the last exchange.
type Health struct {
	TokensLeft      int     `json:"tokens_left"`
	RefillPerMinute float64 `json:"refill_per_minute"`
	LastError       string  `json:"last_error,omitempty"`
}

// ProductFailure records one product that could not be decoded from a batch.
type ProductFailure struct {
	ASIN   model.ASIN `json:"asin"`
	Reason string     `json:"reason"`
}

// FetchResult carries the decodable records of a batch plus the explicit
// failure list; one malformed record never fails the batch.
type FetchResult struct {
	Records []model.ProductRecord
	Failed  []ProductFailure
}

// Client is the external-API surface the orchestrator depends on.
type Client interface {
	DiscoverCategory(ctx context.Context, categoryID int64, domain int) ([]model.ASIN, error)
	FetchProducts(ctx context.Context, asins []model.ASIN, includeHistory bool) (*FetchResult, error)
	HealthCheck(ctx context.Context) (*Health, error)
	TokensConsumed() int
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithBucket overrides the local bucket capacity and initial refill rate.
func WithBucket(capacity int, refillPerMinute float64) Option {
	return func(c *httpClient) { c.bucket = newTokenBucket(capacity, refillPerMinute) }
}

// WithCosts overrides the per-call token cost estimates.
func WithCosts(discovery, perProduct int) Option {
	return func(c *httpClient) {
		if discovery > 0 {
			c.discoveryCost = discovery
		}
		if perProduct > 0 {
			c.perProductCost = perProduct
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRetry overrides the retry configuration.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) { c.retry = cfg }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client

	bucket  *tokenBucket
	pace    *rate.Limiter // request-frequency floor, independent of tokens
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig

	discoveryCost  int
	perProductCost int

	mu        sync.Mutex
	consumed  int
	lastError string
}

// NewClient creates a product data API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: defaultTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		bucket:         newTokenBucket(200, 21),
		pace:           rate.NewLimiter(5, 1),
		breaker:        resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		retry:          resilience.DefaultRetryConfig(),
		discoveryCost:  defaultDiscoveryCost,
		perProductCost: defaultPerProductCost,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// envelope is the common response wrapper; every response reports the
// remote's authoritative token accounting.
type envelope struct {
	TokensLeft int     `json:"tokensLeft"`
	RefillRate float64 `json:"refillRate"` // tokens per minute
	Error      string  `json:"error,omitempty"`
}

type discoveryResponse struct {
	envelope
	ASINs []string `json:"bestSellersList"`
}

type productResponse struct {
	envelope
	Products []json.RawMessage `json:"products"`
}

func (c *httpClient) DiscoverCategory(ctx context.Context, categoryID int64, domain int) ([]model.ASIN, error) {
	url := fmt.Sprintf("%s/bestsellers?key=%s&domain=%d&category=%d", c.baseURL, c.apiKey, domain, categoryID)

	var resp discoveryResponse
	if err := c.call(ctx, url, c.discoveryCost, &resp); err != nil {
		return nil, eris.Wrap(err, "keepa: discover category")
	}

	asins := make([]model.ASIN, 0, len(resp.ASINs))
	for _, raw := range resp.ASINs {
		a := model.ASIN(raw)
		if a.Valid() {
			asins = append(asins, a)
		}
	}
	return asins, nil
}

func (c *httpClient) FetchProducts(ctx context.Context, asins []model.ASIN, includeHistory bool) (*FetchResult, error) {
	if len(asins) == 0 {
		return &FetchResult{}, nil
	}
	if len(asins) > MaxBatchSize {
		return nil, resilience.WithKind(
			eris.Errorf("keepa: batch of %d exceeds the %d-product ceiling", len(asins), MaxBatchSize),
			resilience.KindMalformed,
		)
	}

	ids := make([]string, len(asins))
	for i, a := range asins {
		ids[i] = string(a)
	}
	url := fmt.Sprintf("%s/product?key=%s&asin=%s", c.baseURL, c.apiKey, strings.Join(ids, ","))
	if includeHistory {
		url += "&history=1"
	}

	cost := len(asins) * c.perProductCost
	var resp productResponse
	if err := c.call(ctx, url, cost, &resp); err != nil {
		return nil, eris.Wrap(err, "keepa: fetch products")
	}

	// Per-product isolation: one malformed record must not fail the batch.
	result := &FetchResult{}
	seen := map[model.ASIN]bool{}
	for _, raw := range resp.Products {
		record, err := decodeProduct(raw)
		if err != nil {
			asin := peekASIN(raw)
			result.Failed = append(result.Failed, ProductFailure{ASIN: asin, Reason: err.Error()})
			zap.L().Warn("keepa: skipping malformed product record",
				zap.String("asin", string(asin)),
				zap.Error(err),
			)
			continue
		}
		seen[record.Product.ASIN] = true
		result.Records = append(result.Records, record)
	}
	for _, a := range asins {
		if !seen[a] {
			if !containsFailure(result.Failed, a) {
				result.Failed = append(result.Failed, ProductFailure{ASIN: a, Reason: "not returned by remote"})
			}
		}
	}
	return result, nil
}

func (c *httpClient) HealthCheck(ctx context.Context) (*Health, error) {
	url := fmt.Sprintf("%s/token?key=%s", c.baseURL, c.apiKey)

	var resp struct{ envelope }
	if err := c.call(ctx, url, 0, &resp); err != nil {
		return nil, eris.Wrap(err, "keepa: health check")
	}

	tokens, refill := c.bucket.Status()
	c.mu.Lock()
	lastErr := c.lastError
	c.mu.Unlock()
	return &Health{TokensLeft: tokens, RefillPerMinute: refill, LastError: lastErr}, nil
}

func (c *httpClient) TokensConsumed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumed
}

// call blocks for budget, issues the GET through the circuit breaker with
// retries, synchronizes the bucket from the response envelope, and decodes
// into out (which must embed envelope).
func (c *httpClient) call(ctx context.Context, url string, cost int, out any) error {
	if err := c.waitForBudget(ctx, cost); err != nil {
		return err
	}
	if err := c.pace.Wait(ctx); err != nil {
		return err
	}

	retry := c.retry
	retry.RateLimitWait = func() time.Duration { return c.bucket.WaitTime(cost) }
	retry.OnRetry = resilience.RetryLogger("keepa", "call")

	body, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.doGET(ctx, url)
		})
	})

	c.bucket.Consume(cost)
	c.mu.Lock()
	c.consumed += cost
	if err != nil {
		c.lastError = err.Error()
	} else {
		c.lastError = ""
	}
	c.mu.Unlock()

	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resilience.WithKind(eris.Wrap(err, "keepa: decode response"), resilience.KindMalformed)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.TokensLeft > 0 {
		c.bucket.Sync(env.TokensLeft, env.RefillRate)
	}
	return nil
}

// waitForBudget blocks until the bucket can cover cost, or ctx expires. The
// wait duration is derived from the refill rate; waits beyond the deadline
// surface as budget errors.
func (c *httpClient) waitForBudget(ctx context.Context, cost int) error {
	for {
		wait := c.bucket.WaitTime(cost)
		if wait <= 0 {
			return nil
		}
		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(wait).After(deadline) {
			return resilience.WithKind(
				eris.Errorf("keepa: %s token wait exceeds deadline", wait),
				resilience.KindBudget,
			)
		}
		zap.L().Info("keepa: waiting for token budget",
			zap.Duration("wait", wait),
			zap.Int("cost", cost),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *httpClient) doGET(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "keepa: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.WithKind(eris.Wrap(err, "keepa: send request"), resilience.KindTransient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.WithKind(eris.Wrap(err, "keepa: read response"), resilience.KindTransient)
	}

	if resp.StatusCode != http.StatusOK {
		kind := resilience.KindForHTTPStatus(resp.StatusCode)
		err := eris.Errorf("keepa: unexpected status %d: %s", resp.StatusCode, truncateBody(body))
		if kind == "" {
			kind = resilience.KindTransient
		}
		return nil, resilience.WithKindStatus(err, kind, resp.StatusCode)
	}
	return body, nil
}

func truncateBody(b []byte) string {
	const n = 200
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func containsFailure(failures []ProductFailure, asin model.ASIN) bool {
	for _, f := range failures {
		if f.ASIN == asin {
			return true
		}
	}
	return false
}
