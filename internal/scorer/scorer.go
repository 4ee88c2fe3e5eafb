// Package scorer implements the deterministic opportunity scorer: five
// capped base-score components, a four-factor time multiplier, window
// classification, and economic value estimates. For a fixed config and
// identical inputs the output is bit-identical across re-runs.
package scorer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"

	"github.com/smartacus/probe-cli/internal/model"
)

// Input is the full tuple the scorer consumes for one product. Every field
// participates in the artifact's input hash.
type Input struct {
	ASIN model.ASIN `json:"asin"`

	// Margin inputs.
	Price         float64  `json:"price"`
	EstimatedCOGS *float64 `json:"estimated_cogs,omitempty"` // nil = price/divisor heuristic

	// Velocity inputs.
	RankCurrent     int64   `json:"rank_current"`
	RankDelta7DPct  float64 `json:"rank_delta_7d_pct"`
	RankDelta30DPct float64 `json:"rank_delta_30d_pct"`
	ReviewsPerMonth float64 `json:"reviews_per_month"`

	// Competition inputs.
	SellerCount    int     `json:"seller_count"`
	SellerRotation float64 `json:"seller_rotation_30d"` // [0,1]
	BuyBoxChurn    float64 `json:"buybox_churn_30d"`    // [0,1]

	// Gap inputs.
	ReviewGapVsTop10 float64 `json:"review_gap_vs_top10"` // [0,1], smaller = catchable
	NegativeShare    float64 `json:"negative_share"`      // share of 1-2 star reviews

	// Time-pressure / multiplier inputs.
	StockoutCount30D      int     `json:"stockout_count_30d"`
	StockoutPerMonth      float64 `json:"stockout_per_month"`
	SellerChurnRate       float64 `json:"seller_churn_rate"` // [0,1]
	PriceVolatility       float64 `json:"price_volatility"`  // coefficient of variation
	RankAcceleration      float64 `json:"rank_acceleration"` // positive = improving faster
	EstimatedMonthlyUnits int     `json:"estimated_monthly_units"`

	// Review-intelligence bonus, [0,1]. Zero when no ready profile exists.
	ImprovementScore float64 `json:"improvement_score"`
}

// Result is the complete scoring outcome for one product.
type Result struct {
	ASIN model.ASIN

	Components  []model.ComponentScore
	TotalPoints int     // [0,100]
	BaseScore   float64 // TotalPoints / 100

	TimeFactors    model.TimePressureFactors
	TimeMultiplier float64
	FinalScore     int

	WindowDays int
	Urgency    model.OpportunityUrgency

	MonthlyProfit     float64
	AnnualValue       float64
	RiskAdjustedValue float64
	RankScore         float64

	Rejected        bool
	RejectionReason string

	SignalsFor     []string
	SignalsAgainst []string
	Thesis         string
	Action         string
	InputHash      string
}

// Scorer computes deterministic opportunity scores against a frozen config.
type Scorer struct {
	cfg Config
}

// New creates a Scorer. The config is copied and must not change afterwards.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score runs the full pipeline for one input tuple.
func (s *Scorer) Score(in Input) Result {
	margin := s.scoreMargin(in)
	velocity := s.scoreVelocity(in)
	competition := s.scoreCompetition(in)
	gap := s.scoreGap(in)
	timePressure := s.scoreTimePressure(in)

	components := []model.ComponentScore{margin, velocity, competition, gap, timePressure}
	total := 0
	for _, c := range components {
		total += c.Score
	}

	factors, multiplier := s.timeMultiplier(in)
	windowDays, urgency := s.classifyWindow(multiplier)

	final := int(math.Round(float64(total) * multiplier))
	final = clampInt(final, 0, 100)

	monthly, annual, riskAdjusted := s.estimateValue(in)

	windowMult := windowMultiplier(urgency)
	rankScore := riskAdjusted * windowMult
	if in.ImprovementScore > 0 {
		rankScore += in.ImprovementScore * s.cfg.Economics.ImprovementBonusRate * riskAdjusted
	}

	res := Result{
		ASIN:              in.ASIN,
		Components:        components,
		TotalPoints:       total,
		BaseScore:         float64(total) / float64(s.cfg.MaxTotalScore),
		TimeFactors:       factors,
		TimeMultiplier:    multiplier,
		FinalScore:        final,
		WindowDays:        windowDays,
		Urgency:           urgency,
		MonthlyProfit:     monthly,
		AnnualValue:       annual,
		RiskAdjustedValue: riskAdjusted,
		RankScore:         rankScore,
		InputHash:         s.hashInput(in),
	}

	// Hard gate: no window, no opportunity, regardless of the total.
	if timePressure.Score < s.cfg.TimePressure.MinimumValid {
		res.Rejected = true
		res.RejectionReason = model.RejectionNoWindow
	}

	res.SignalsFor, res.SignalsAgainst = collectSignals(in, factors)
	res.Thesis = buildThesis(res)
	res.Action = ActionForWindow(windowDays)
	return res
}

func (s *Scorer) scoreMargin(in Input) model.ComponentScore {
	cfg := s.cfg.Margin

	cogs := in.Price / cfg.COGSPriceDivisor
	if in.EstimatedCOGS != nil {
		cogs = *in.EstimatedCOGS
	}

	netMargin := 0.0
	if in.Price > 0 {
		fulfilment := math.Max(in.Price*cfg.FulfilmentFeePercent, cfg.FulfilmentFeeMinimum)
		totalCost := cogs + cfg.ShippingPerUnit + fulfilment +
			in.Price*cfg.ReferralPercent +
			in.Price*cfg.PPCPercent +
			in.Price*cfg.ReturnRatePercent +
			cfg.StoragePerUnit
		netMargin = (in.Price - totalCost) / in.Price
	}

	score := pointsAtOrAbove(cfg.Thresholds, netMargin)
	return component("margin", score, cfg.MaxPoints)
}

func (s *Scorer) scoreVelocity(in Input) model.ComponentScore {
	cfg := s.cfg.Velocity

	rank := float64(in.RankCurrent)
	if in.RankCurrent <= 0 {
		rank = math.MaxFloat64
	}
	score := pointsAtOrBelow(cfg.RankTiers, rank)
	score += pointsAtOrBelow(cfg.Trend7D, in.RankDelta7DPct)
	score += pointsAtOrBelow(cfg.Trend30D, in.RankDelta30DPct)
	score += pointsAtOrAbove(cfg.ReviewsPerMonth, in.ReviewsPerMonth)

	return component("velocity", clampInt(score, 0, cfg.MaxPoints), cfg.MaxPoints)
}

func (s *Scorer) scoreCompetition(in Input) model.ComponentScore {
	cfg := s.cfg.Competition

	sellers := float64(in.SellerCount)
	if in.SellerCount <= 0 {
		sellers = math.MaxFloat64
	}
	score := pointsAtOrBelow(cfg.SellerCount, sellers)
	score += pointsAtOrAbove(cfg.Rotation, in.SellerRotation)
	score += pointsAtOrAbove(cfg.BuyBoxChurn, in.BuyBoxChurn)

	return component("competition", clampInt(score, 0, cfg.MaxPoints), cfg.MaxPoints)
}

func (s *Scorer) scoreGap(in Input) model.ComponentScore {
	cfg := s.cfg.Gap

	score := pointsAtOrBelow(cfg.ReviewGap, in.ReviewGapVsTop10)
	score += pointsAtOrAbove(cfg.NegativeShare, in.NegativeShare)

	return component("gap", clampInt(score, 0, cfg.MaxPoints), cfg.MaxPoints)
}

func (s *Scorer) scoreTimePressure(in Input) model.ComponentScore {
	cfg := s.cfg.TimePressure

	score := pointsAtOrAbove(cfg.Stockouts30D, float64(in.StockoutCount30D))
	score += pointsAtOrAbove(cfg.RankAcceleration, in.RankAcceleration)
	score += pointsAtOrAbove(cfg.PriceVolatility, in.PriceVolatility)

	return component("time_pressure", clampInt(score, 0, cfg.MaxPoints), cfg.MaxPoints)
}

// timeMultiplier derives the four urgency factors and their geometric mean,
// clamped to the configured range.
func (s *Scorer) timeMultiplier(in Input) (model.TimePressureFactors, float64) {
	cfg := s.cfg.Multiplier

	f := model.TimePressureFactors{
		Stockout:        factorAtOrAbove(cfg.StockoutSteps, in.StockoutPerMonth),
		SellerChurn:     factorAbove(cfg.ChurnSteps, in.SellerChurnRate),
		PriceVolatility: factorAbove(cfg.VolatilitySteps, in.PriceVolatility),
		RankAccel:       factorAbove(cfg.RankAccelSteps, in.RankAcceleration),
	}
	f.GeometricMean = math.Pow(f.Stockout*f.SellerChurn*f.PriceVolatility*f.RankAccel, 0.25)

	return f, math.Min(cfg.ClampMax, math.Max(cfg.ClampMin, f.GeometricMean))
}

// classifyWindow maps the multiplier to the expected action window.
func (s *Scorer) classifyWindow(multiplier float64) (int, model.OpportunityUrgency) {
	switch {
	case multiplier >= 1.8:
		return 14, model.UrgencyCritical
	case multiplier >= 1.4:
		return 30, model.UrgencyUrgent
	case multiplier >= 1.1:
		return 60, model.UrgencyActive
	case multiplier >= 0.9:
		return 90, model.UrgencyStandard
	default:
		return 180, model.UrgencyExtended
	}
}

// windowMultiplier is used only by shortlist ranking, never by the score.
func windowMultiplier(u model.OpportunityUrgency) float64 {
	switch u {
	case model.UrgencyCritical:
		return 2.0
	case model.UrgencyUrgent:
		return 1.5
	case model.UrgencyActive:
		return 1.2
	case model.UrgencyStandard:
		return 1.0
	default:
		return 0.7
	}
}

// estimateValue computes the per-unit economics and scales by estimated
// monthly units.
func (s *Scorer) estimateValue(in Input) (monthly, annual, riskAdjusted float64) {
	cfg := s.cfg.Margin

	cogs := in.Price / cfg.COGSPriceDivisor
	if in.EstimatedCOGS != nil {
		cogs = *in.EstimatedCOGS
	}

	fulfilment := math.Max(in.Price*cfg.FulfilmentFeePercent, cfg.FulfilmentFeeMinimum)
	perUnit := in.Price - cogs - cfg.ShippingPerUnit - fulfilment -
		in.Price*cfg.ReferralPercent -
		in.Price*cfg.PPCPercent -
		in.Price*cfg.ReturnRatePercent

	units := in.EstimatedMonthlyUnits
	if units <= 0 {
		units = estimateMonthlyUnits(in.RankCurrent)
	}

	monthly = math.Max(0, perUnit*float64(units))
	annual = 12 * monthly
	riskAdjusted = annual * (1 - s.cfg.Economics.RiskFactor)
	return monthly, annual, riskAdjusted
}

// estimateMonthlyUnits is the rank-to-units heuristic used when no unit
// estimate is supplied.
func estimateMonthlyUnits(rank int64) int {
	switch {
	case rank <= 0:
		return 10
	case rank < 1_000:
		return 300
	case rank < 5_000:
		return 150
	case rank < 20_000:
		return 80
	case rank < 50_000:
		return 40
	case rank < 100_000:
		return 20
	default:
		return 10
	}
}

// hashInput produces the deterministic digest of the scoring input stored on
// the artifact; struct field order fixes the JSON byte layout.
func (s *Scorer) hashInput(in Input) string {
	raw, err := json.Marshal(in)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func component(name string, score, maxScore int) model.ComponentScore {
	return model.ComponentScore{Name: name, Score: score, MaxScore: maxScore}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
