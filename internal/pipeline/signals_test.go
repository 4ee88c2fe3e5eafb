package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartacus/probe-cli/internal/model"
)

func histSnap(at time.Time, price float64, rank int64, reviews int) model.Snapshot {
	return model.Snapshot{
		ASIN:         "B000TEST01",
		CapturedAt:   at,
		PriceCurrent: &price,
		RankPrimary:  &rank,
		ReviewCount:  &reviews,
		StockStatus:  model.StockInStock,
	}
}

func TestPriceVolatility(t *testing.T) {
	now := time.Now().UTC()

	var flat []model.Snapshot
	for i := 0; i < 6; i++ {
		flat = append(flat, histSnap(now.Add(time.Duration(-i)*24*time.Hour), 20.00, 5000, 100))
	}
	assert.Zero(t, priceVolatility(flat))

	var wobbly []model.Snapshot
	prices := []float64{15, 25, 15, 25, 15, 25}
	for i, p := range prices {
		wobbly = append(wobbly, histSnap(now.Add(time.Duration(-i)*24*time.Hour), p, 5000, 100))
	}
	// mean 20, stddev 5 -> cv 0.25
	assert.InDelta(t, 0.25, priceVolatility(wobbly), 1e-9)

	// Too few observations: no signal.
	assert.Zero(t, priceVolatility(flat[:3]))
}

func TestRankAcceleration(t *testing.T) {
	now := time.Now().UTC()

	// Rank improving from 10000 to 5500 across the window: first-half avg
	// higher than second-half avg, acceleration positive.
	var improving []model.Snapshot
	for i := 0; i < 10; i++ {
		improving = append(improving, histSnap(
			now.Add(time.Duration(i-10)*24*time.Hour), 20, int64(10000-i*500), 100))
	}
	assert.Positive(t, rankAcceleration(improving))

	// Worsening rank yields a negative acceleration.
	var worsening []model.Snapshot
	for i := 0; i < 10; i++ {
		worsening = append(worsening, histSnap(
			now.Add(time.Duration(i-10)*24*time.Hour), 20, int64(5000+i*500), 100))
	}
	assert.Negative(t, rankAcceleration(worsening))

	assert.Zero(t, rankAcceleration(improving[:5]))
}

func TestWindowRankDelta(t *testing.T) {
	now := time.Now().UTC()
	history := []model.Snapshot{
		histSnap(now.Add(-6*24*time.Hour), 20, 10000, 100),
		histSnap(now.Add(-3*24*time.Hour), 20, 9000, 100),
		histSnap(now.Add(-1*24*time.Hour), 20, 8000, 100),
	}

	// (8000 - 10000) / 10000 = -20%
	assert.InDelta(t, -20, windowRankDelta(history, now.Add(-7*24*time.Hour)), 1e-9)
	// Only the last two fall into a 4-day window.
	assert.InDelta(t, -100.0/9.0, windowRankDelta(history, now.Add(-4*24*time.Hour)), 1e-6)
}

func TestReviewsPerMonth(t *testing.T) {
	now := time.Now().UTC()
	history := []model.Snapshot{
		histSnap(now.Add(-30*24*time.Hour), 20, 5000, 100),
		histSnap(now, 20, 5000, 130),
	}
	latest := history[1]

	// 30 reviews over 30 days -> 30/month.
	assert.InDelta(t, 30, reviewsPerMonth(history, &latest), 1e-6)

	// Without usable growth the lifetime/12 fallback applies.
	single := history[:1]
	assert.InDelta(t, float64(100)/12, reviewsPerMonth(single, &single[0]), 1e-6)
}

func TestNegativeShare(t *testing.T) {
	snap := histSnap(time.Now(), 20, 5000, 100)
	snap.StarPercents = []int{10, 8, 12, 25, 45}
	assert.InDelta(t, 0.18, negativeShare(&snap), 1e-9)

	snap.StarPercents = nil
	assert.InDelta(t, 0.10, negativeShare(&snap), 1e-9)
}

func TestBuildScorerInput_UsesProfileOnlyWhenReady(t *testing.T) {
	now := time.Now().UTC()
	latest := histSnap(now, 24.99, 9000, 500)

	ready := &model.ImprovementProfile{ImprovementScore: 0.7, ReviewsReady: true}
	notReady := &model.ImprovementProfile{ImprovementScore: 0.7, ReviewsReady: false}

	in := buildScorerInput("B000TEST01", &latest, nil, 2, ready)
	assert.InDelta(t, 0.7, in.ImprovementScore, 1e-9)
	assert.Equal(t, 2, in.StockoutCount30D)

	in = buildScorerInput("B000TEST01", &latest, nil, 0, notReady)
	assert.Zero(t, in.ImprovementScore)

	in = buildScorerInput("B000TEST01", &latest, nil, 0, nil)
	assert.Zero(t, in.ImprovementScore)
	require.NotNil(t, latest.PriceCurrent)
	assert.InDelta(t, *latest.PriceCurrent, in.Price, 1e-9)
}
