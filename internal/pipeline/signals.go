package pipeline

import (
	"math"
	"time"

	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/scorer"
)

// buildScorerInput derives the full scoring tuple for one product from its
// latest snapshot, 30 days of history, stockout events, and (when ready)
// its review improvement profile. Fields the observation source cannot see
// (buy-box rotation, review gap vs the category top 10) use calibrated
// niche defaults.
func buildScorerInput(
	asin model.ASIN,
	latest *model.Snapshot,
	history []model.Snapshot,
	stockouts30d int,
	profile *model.ImprovementProfile,
) scorer.Input {
	in := scorer.Input{
		ASIN:             asin,
		SellerRotation:   0.15,
		BuyBoxChurn:      0.10,
		ReviewGapVsTop10: 0.50,
		StockoutCount30D: stockouts30d,
		StockoutPerMonth: float64(stockouts30d),
	}

	if latest.PriceCurrent != nil {
		in.Price = *latest.PriceCurrent
	}
	if latest.RankPrimary != nil {
		in.RankCurrent = *latest.RankPrimary
	}
	if latest.SellerCount != nil {
		in.SellerCount = *latest.SellerCount
	}

	in.NegativeShare = negativeShare(latest)
	in.RankDelta7DPct, in.RankDelta30DPct = rankDeltas(history, latest.CapturedAt)
	in.PriceVolatility = priceVolatility(history)
	in.RankAcceleration = rankAcceleration(history)
	in.ReviewsPerMonth = reviewsPerMonth(history, latest)
	in.SellerChurnRate = sellerChurnHeuristic(latest)

	if profile != nil && profile.ReviewsReady {
		in.ImprovementScore = profile.ImprovementScore
	}

	return in
}

// negativeShare reads the 1-2 star share from the star distribution when
// present, else falls back to the niche default.
func negativeShare(snap *model.Snapshot) float64 {
	if len(snap.StarPercents) == 5 {
		return float64(snap.StarPercents[0]+snap.StarPercents[1]) / 100
	}
	return 0.10
}

// rankDeltas returns the 7-day and 30-day rank change percentages, negative
// when the rank improved.
func rankDeltas(history []model.Snapshot, now time.Time) (pct7, pct30 float64) {
	pct7 = windowRankDelta(history, now.Add(-7*24*time.Hour))
	pct30 = windowRankDelta(history, now.Add(-30*24*time.Hour))
	return pct7, pct30
}

func windowRankDelta(history []model.Snapshot, since time.Time) float64 {
	var first, last *int64
	for i := range history {
		snap := &history[i]
		if snap.CapturedAt.Before(since) || snap.RankPrimary == nil {
			continue
		}
		if first == nil {
			first = snap.RankPrimary
		}
		last = snap.RankPrimary
	}
	if first == nil || last == nil || *first == 0 || first == last {
		return 0
	}
	return 100 * float64(*last-*first) / float64(*first)
}

// priceVolatility is the coefficient of variation of observed prices.
func priceVolatility(history []model.Snapshot) float64 {
	var prices []float64
	for i := range history {
		if p := history[i].PriceCurrent; p != nil && *p > 0 {
			prices = append(prices, *p)
		}
	}
	if len(prices) < 5 {
		return 0
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))
	if mean <= 0 {
		return 0
	}

	var variance float64
	for _, p := range prices {
		variance += (p - mean) * (p - mean)
	}
	variance /= float64(len(prices))
	return math.Sqrt(variance) / mean
}

// rankAcceleration compares the average rank of the first and second halves
// of the window; positive means the improvement is speeding up.
func rankAcceleration(history []model.Snapshot) float64 {
	var ranks []int64
	for i := range history {
		if r := history[i].RankPrimary; r != nil && *r > 0 {
			ranks = append(ranks, *r)
		}
	}
	if len(ranks) < 10 {
		return 0
	}

	mid := len(ranks) / 2
	var firstSum, secondSum float64
	for _, r := range ranks[:mid] {
		firstSum += float64(r)
	}
	for _, r := range ranks[mid:] {
		secondSum += float64(r)
	}
	firstAvg := firstSum / float64(mid)
	secondAvg := secondSum / float64(len(ranks)-mid)
	if firstAvg <= 0 {
		return 0
	}

	// Rank falling (improving) yields a positive acceleration.
	return -(secondAvg - firstAvg) / firstAvg
}

// reviewsPerMonth derives visible review velocity from the review-count
// movement over the history window, falling back to a twelfth of the
// lifetime count.
func reviewsPerMonth(history []model.Snapshot, latest *model.Snapshot) float64 {
	var first, last *model.Snapshot
	for i := range history {
		if history[i].ReviewCount == nil {
			continue
		}
		if first == nil {
			first = &history[i]
		}
		last = &history[i]
	}
	if first != nil && last != nil && first != last {
		days := last.CapturedAt.Sub(first.CapturedAt).Hours() / 24
		if days >= 1 {
			grown := float64(*last.ReviewCount - *first.ReviewCount)
			if grown >= 0 {
				return grown / days * 30
			}
		}
	}
	if latest.ReviewCount != nil {
		return float64(*latest.ReviewCount) / 12
	}
	return 0
}

// sellerChurnHeuristic estimates churn from the observed seller count until
// seller-level history is tracked.
func sellerChurnHeuristic(snap *model.Snapshot) float64 {
	count := 5
	if snap.SellerCount != nil {
		count = *snap.SellerCount
	}
	switch {
	case count > 15:
		return 0.25
	case count > 8:
		return 0.15
	case count > 3:
		return 0.10
	default:
		return 0.05
	}
}
