package scorer

import (
	"github.com/rotisserie/eris"
)

// Threshold maps a minimum input value to awarded points. Tables are
// evaluated first-match, so entries must be ordered from the strongest
// condition down.
type Threshold struct {
	Min    float64 `json:"min"`
	Points int     `json:"points"`
}

// MarginConfig calibrates the margin component (30 points max). Net margin
// after all fees and provisions is mapped across the weak/fair/good/strong
// thresholds to 6/14/22/30 points.
type MarginConfig struct {
	MaxPoints int `json:"max_points"`

	Thresholds []Threshold `json:"thresholds"` // keyed by net margin ratio

	FulfilmentFeePercent float64 `json:"fulfilment_fee_percent"`
	FulfilmentFeeMinimum float64 `json:"fulfilment_fee_minimum"`
	ReferralPercent      float64 `json:"referral_percent"`
	PPCPercent           float64 `json:"ppc_percent"`
	ReturnRatePercent    float64 `json:"return_rate_percent"`
	StoragePerUnit       float64 `json:"storage_per_unit"`
	ShippingPerUnit      float64 `json:"shipping_per_unit"`
	COGSPriceDivisor     float64 `json:"cogs_price_divisor"` // COGS fallback = price / divisor
}

// VelocityConfig calibrates the velocity component (25 points max): rank
// tier contributes up to 15, trend and review growth up to 10.
type VelocityConfig struct {
	MaxPoints int `json:"max_points"`

	// RankTiers award points for the absolute primary rank; Min holds the
	// rank ceiling (lower rank = more sales), so entries run best-first.
	RankTiers []Threshold `json:"rank_tiers"`

	// Trend7D / Trend30D award points for negative (improving) rank deltas;
	// Min holds the delta-percent ceiling, entries run most-negative first.
	Trend7D  []Threshold `json:"trend_7d"`
	Trend30D []Threshold `json:"trend_30d"`

	ReviewsPerMonth []Threshold `json:"reviews_per_month"`
}

// CompetitionConfig calibrates the competition component (20 points max).
type CompetitionConfig struct {
	MaxPoints int `json:"max_points"`

	// SellerCount awards points for few sellers; Min is the seller ceiling.
	SellerCount []Threshold `json:"seller_count"`
	// Rotation / BuyBoxChurn award points for instability; Min is the floor.
	Rotation    []Threshold `json:"rotation"`
	BuyBoxChurn []Threshold `json:"buybox_churn"`
}

// GapConfig calibrates the gap component (15 points max): review-count gap
// vs the category top 10 and the share of 1-2 star reviews.
type GapConfig struct {
	MaxPoints int `json:"max_points"`

	// ReviewGap awards points for a catchable gap; Min is the gap ceiling.
	ReviewGap []Threshold `json:"review_gap"`
	// NegativeShare awards points for expressed problems; Min is the floor.
	NegativeShare []Threshold `json:"negative_share"`
}

// TimePressureConfig calibrates the time-pressure component (10 points max)
// and its hard gate.
type TimePressureConfig struct {
	MaxPoints    int `json:"max_points"`
	MinimumValid int `json:"minimum_valid"` // below this the product is rejected

	// Stockouts30D awards points per stockout count; Min is the floor.
	Stockouts30D []Threshold `json:"stockouts_30d"`
	// RankAcceleration awards points for accelerating momentum; Min is the floor.
	RankAcceleration []Threshold `json:"rank_acceleration"`
	// PriceVolatility awards points for an unstable market; Min is the floor.
	PriceVolatility []Threshold `json:"price_volatility"`
}

// FactorStep maps an input bound to a time-multiplier factor.
type FactorStep struct {
	Min    float64 `json:"min"`
	Factor float64 `json:"factor"`
}

// MultiplierConfig calibrates the four time-multiplier factors. Each table
// maps an input bound to a factor; entries run strongest-first and the last
// entry is the fallthrough. The stockout table matches inclusively (>= 0.5
// stockouts/month is "occasional"); the other three match strictly above
// their bound (churn of exactly 30% is still the moderate tier).
type MultiplierConfig struct {
	StockoutSteps   []FactorStep `json:"stockout_steps"`   // stockouts per month, inclusive bounds
	ChurnSteps      []FactorStep `json:"churn_steps"`      // seller churn rate [0,1], strict bounds
	VolatilitySteps []FactorStep `json:"volatility_steps"` // price coefficient of variation, strict bounds
	RankAccelSteps  []FactorStep `json:"rank_accel_steps"` // rank acceleration ratio, strict bounds

	ClampMin float64 `json:"clamp_min"`
	ClampMax float64 `json:"clamp_max"`
}

// EconomicsConfig calibrates the value estimate.
type EconomicsConfig struct {
	RiskFactor           float64 `json:"risk_factor"`            // risk-adjusted = (1-risk) * annual
	ImprovementBonusRate float64 `json:"improvement_bonus_rate"` // rankScore += score * rate * riskAdjusted
}

// Config aggregates every scoring threshold. A frozen Config is passed by
// reference to the scorer and serialized into each run's config snapshot.
type Config struct {
	Margin       MarginConfig       `json:"margin"`
	Velocity     VelocityConfig     `json:"velocity"`
	Competition  CompetitionConfig  `json:"competition"`
	Gap          GapConfig          `json:"gap"`
	TimePressure TimePressureConfig `json:"time_pressure"`
	Multiplier   MultiplierConfig   `json:"multiplier"`
	Economics    EconomicsConfig    `json:"economics"`

	MaxTotalScore int `json:"max_total_score"`
}

// DefaultConfig returns the calibrated scoring configuration.
func DefaultConfig() Config {
	return Config{
		MaxTotalScore: 100,
		Margin: MarginConfig{
			MaxPoints: 30,
			Thresholds: []Threshold{
				{Min: 0.35, Points: 30}, // strong
				{Min: 0.25, Points: 22}, // good
				{Min: 0.15, Points: 14}, // fair
				{Min: 0.08, Points: 6},  // weak
			},
			FulfilmentFeePercent: 0.15,
			FulfilmentFeeMinimum: 3.00,
			ReferralPercent:      0.15,
			PPCPercent:           0.10,
			ReturnRatePercent:    0.05,
			StoragePerUnit:       0.30,
			ShippingPerUnit:      3.00,
			COGSPriceDivisor:     5,
		},
		Velocity: VelocityConfig{
			MaxPoints: 25,
			RankTiers: []Threshold{
				{Min: 5_000, Points: 15},
				{Min: 20_000, Points: 11},
				{Min: 50_000, Points: 7},
				{Min: 100_000, Points: 3},
			},
			Trend7D: []Threshold{
				{Min: -30, Points: 5},
				{Min: -15, Points: 4},
				{Min: -5, Points: 2},
				{Min: 5, Points: 1},
			},
			Trend30D: []Threshold{
				{Min: -20, Points: 3},
				{Min: -5, Points: 2},
				{Min: 10, Points: 1},
			},
			ReviewsPerMonth: []Threshold{
				{Min: 50, Points: 2},
				{Min: 20, Points: 1},
			},
		},
		Competition: CompetitionConfig{
			MaxPoints: 20,
			SellerCount: []Threshold{
				{Min: 3, Points: 8},
				{Min: 5, Points: 6},
				{Min: 10, Points: 4},
				{Min: 20, Points: 2},
			},
			Rotation: []Threshold{
				{Min: 0.40, Points: 6},
				{Min: 0.25, Points: 4},
				{Min: 0.10, Points: 2},
			},
			BuyBoxChurn: []Threshold{
				{Min: 0.30, Points: 6},
				{Min: 0.15, Points: 4},
				{Min: 0.05, Points: 2},
			},
		},
		Gap: GapConfig{
			MaxPoints: 15,
			ReviewGap: []Threshold{
				{Min: 0.30, Points: 8},
				{Min: 0.50, Points: 5},
				{Min: 0.70, Points: 2},
			},
			NegativeShare: []Threshold{
				{Min: 0.25, Points: 7},
				{Min: 0.15, Points: 5},
				{Min: 0.08, Points: 2},
			},
		},
		TimePressure: TimePressureConfig{
			MaxPoints:    10,
			MinimumValid: 3,
			Stockouts30D: []Threshold{
				{Min: 3, Points: 4},
				{Min: 2, Points: 3},
				{Min: 1, Points: 2},
			},
			RankAcceleration: []Threshold{
				{Min: 0.20, Points: 3},
				{Min: 0.05, Points: 2},
				{Min: 0.001, Points: 1},
			},
			PriceVolatility: []Threshold{
				{Min: 0.20, Points: 3},
				{Min: 0.10, Points: 2},
				{Min: 0.05, Points: 1},
			},
		},
		Multiplier: MultiplierConfig{
			StockoutSteps: []FactorStep{
				{Min: 3, Factor: 1.5},
				{Min: 1, Factor: 1.2},
				{Min: 0.5, Factor: 1.0},
				{Min: -1, Factor: 0.8},
			},
			ChurnSteps: []FactorStep{
				{Min: 0.30, Factor: 1.4},
				{Min: 0.20, Factor: 1.2},
				{Min: 0.10, Factor: 1.0},
				{Min: -1, Factor: 0.8},
			},
			VolatilitySteps: []FactorStep{
				{Min: 0.20, Factor: 1.3},
				{Min: 0.10, Factor: 1.1},
				{Min: -1, Factor: 1.0},
			},
			RankAccelSteps: []FactorStep{
				{Min: 0.10, Factor: 1.4},
				{Min: 0.0, Factor: 1.2},
				{Min: -0.05, Factor: 1.0},
				{Min: -1000, Factor: 0.8},
			},
			ClampMin: 0.5,
			ClampMax: 2.0,
		},
		Economics: EconomicsConfig{
			RiskFactor:           0.3,
			ImprovementBonusRate: 0.2,
		},
	}
}

// Validate checks that the component caps sum to the total.
func (c Config) Validate() error {
	total := c.Margin.MaxPoints + c.Velocity.MaxPoints + c.Competition.MaxPoints +
		c.Gap.MaxPoints + c.TimePressure.MaxPoints
	if total != c.MaxTotalScore {
		return eris.Errorf("scorer: component caps sum to %d, want %d", total, c.MaxTotalScore)
	}
	return nil
}

// pointsAtOrAbove returns the points of the first threshold whose Min the
// value meets or exceeds.
func pointsAtOrAbove(table []Threshold, value float64) int {
	for _, t := range table {
		if value >= t.Min {
			return t.Points
		}
	}
	return 0
}

// pointsAtOrBelow returns the points of the first threshold whose Min the
// value does not exceed (for lower-is-better inputs like rank or gap).
func pointsAtOrBelow(table []Threshold, value float64) int {
	for _, t := range table {
		if value <= t.Min {
			return t.Points
		}
	}
	return 0
}

// factorAtOrAbove returns the factor of the first step whose Min the value
// meets or exceeds (stockout frequency).
func factorAtOrAbove(table []FactorStep, value float64) float64 {
	for _, s := range table {
		if value >= s.Min {
			return s.Factor
		}
	}
	if len(table) > 0 {
		return table[len(table)-1].Factor
	}
	return 1.0
}

// factorAbove returns the factor of the first step the value strictly
// exceeds (churn, volatility, rank acceleration). A value landing exactly
// on a bound belongs to the weaker tier.
func factorAbove(table []FactorStep, value float64) float64 {
	for _, s := range table {
		if value > s.Min {
			return s.Factor
		}
	}
	if len(table) > 0 {
		return table[len(table)-1].Factor
	}
	return 1.0
}
