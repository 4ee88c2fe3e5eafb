package scorer

import (
	"fmt"

	"github.com/smartacus/probe-cli/internal/model"
)

// collectSignals turns the raw inputs and factors into the human-readable
// supporting and contradicting signal lists stored on the artifact.
func collectSignals(in Input, f model.TimePressureFactors) (signalsFor, signalsAgainst []string) {
	if in.StockoutPerMonth >= 1 {
		signalsFor = append(signalsFor, fmt.Sprintf("%.1f stockouts/month: demand exceeds supply", in.StockoutPerMonth))
	}
	if in.SellerChurnRate > 0.20 {
		signalsFor = append(signalsFor, fmt.Sprintf("seller churn %.0f%%: shelf space opening up", in.SellerChurnRate*100))
	}
	if in.PriceVolatility > 0.10 {
		signalsFor = append(signalsFor, fmt.Sprintf("price volatility %.0f%%: unstable market", in.PriceVolatility*100))
	}
	if in.RankAcceleration > 0 {
		signalsFor = append(signalsFor, fmt.Sprintf("rank accelerating %+.0f%%: momentum building", in.RankAcceleration*100))
	} else if in.RankAcceleration < -0.05 {
		signalsAgainst = append(signalsAgainst, fmt.Sprintf("rank decelerating %.0f%%: momentum fading", in.RankAcceleration*100))
	}
	if in.ImprovementScore >= 0.4 {
		signalsFor = append(signalsFor, fmt.Sprintf("improvement score %.2f: fixable product defects", in.ImprovementScore))
	}
	if in.SellerCount > 20 {
		signalsAgainst = append(signalsAgainst, fmt.Sprintf("%d active sellers: saturated listing", in.SellerCount))
	}
	if f.GeometricMean < 0.9 {
		signalsAgainst = append(signalsAgainst, "urgency factors below neutral: window not opening")
	}
	return signalsFor, signalsAgainst
}

// buildThesis renders a one-line economic thesis for the artifact.
func buildThesis(r Result) string {
	strength := "moderate-risk product"
	switch {
	case r.BaseScore >= 0.8:
		strength = "high-potential product"
	case r.BaseScore >= 0.6:
		strength = "viable product"
	}
	return fmt.Sprintf("%s | %dd window | ~$%.0f/mo estimated", strength, r.WindowDays, r.MonthlyProfit)
}

// ActionForWindow maps window days to the recommended next step.
func ActionForWindow(windowDays int) string {
	switch {
	case windowDays <= 14:
		return "ACT NOW: source a supplier this week"
	case windowDays <= 30:
		return "PRIORITY: start supplier analysis within 7 days"
	case windowDays <= 60:
		return "ACTIVE: plan sourcing within 2 weeks"
	default:
		return "WATCH: add to backlog, re-evaluate in 30 days"
	}
}
