package model

import "time"

// ASIN is the 10-character opaque marketplace identifier used as the
// stable primary key for catalog and time-series rows.
type ASIN string

// Valid reports whether the identifier has the expected 10-character shape.
func (a ASIN) Valid() bool {
	return len(a) == 10
}

// Product is a catalog row. Created on first discovery, mutated only by
// catalog upsert, never physically deleted (soft-delete via DeletedAt).
type Product struct {
	ASIN             ASIN        `json:"asin"`
	Title            *string     `json:"title,omitempty"`
	Brand            string      `json:"brand,omitempty"`
	Manufacturer     string      `json:"manufacturer,omitempty"`
	CategoryID       int64       `json:"category_id"`
	CategoryPath     []string    `json:"category_path,omitempty"`
	Dimensions       *Dimensions `json:"dimensions,omitempty"`
	Active           bool        `json:"active"`
	TrackingPriority int         `json:"tracking_priority"` // 1-10
	FirstSeenAt      time.Time   `json:"first_seen_at"`
	LastSeenAt       time.Time   `json:"last_seen_at"`
	LastUpdatedAt    time.Time   `json:"last_updated_at"`
	DeletedAt        *time.Time  `json:"deleted_at,omitempty"`
}

// Dimensions holds optional physical package dimensions.
type Dimensions struct {
	LengthMM int `json:"length_mm,omitempty"`
	WidthMM  int `json:"width_mm,omitempty"`
	HeightMM int `json:"height_mm,omitempty"`
	WeightG  int `json:"weight_g,omitempty"`
}

// StockStatus enumerates observed listing availability.
type StockStatus string

const (
	StockInStock     StockStatus = "in_stock"
	StockLowStock    StockStatus = "low_stock"
	StockOutOfStock  StockStatus = "out_of_stock"
	StockBackOrdered StockStatus = "back_ordered"
	StockUnknown     StockStatus = "unknown"
)

// FulfillmentType enumerates who fulfils the buy box offer.
type FulfillmentType string

const (
	FulfillmentFBA        FulfillmentType = "fba"
	FulfillmentFBM        FulfillmentType = "fbm"
	FulfillmentFirstParty FulfillmentType = "first_party"
	FulfillmentUnknown    FulfillmentType = "unknown"
)

// Snapshot is a single timestamped observation of a product's market-visible
// fields. Append-only; the three delta fields are computed by the store
// against the immediately prior snapshot of the same product, never by
// callers.
type Snapshot struct {
	ASIN       ASIN      `json:"asin"`
	CapturedAt time.Time `json:"captured_at"`

	// Pricing.
	PriceCurrent    *float64 `json:"price_current,omitempty"`
	PriceList       *float64 `json:"price_list,omitempty"`
	PriceLowestNew  *float64 `json:"price_lowest_new,omitempty"`
	PriceLowestUsed *float64 `json:"price_lowest_used,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	CouponAmount    *float64 `json:"coupon_amount,omitempty"`
	CouponPercent   *float64 `json:"coupon_percent,omitempty"`

	// Rank.
	RankPrimary      *int64 `json:"rank_primary,omitempty"`
	RankCategory     string `json:"rank_category,omitempty"`
	RankSecondary    *int64 `json:"rank_secondary,omitempty"`
	RankSecondaryCat string `json:"rank_secondary_category,omitempty"`

	// Availability.
	StockStatus   StockStatus     `json:"stock_status"`
	StockQuantity *int            `json:"stock_quantity,omitempty"`
	SellerCount   *int            `json:"seller_count,omitempty"`
	Fulfillment   FulfillmentType `json:"fulfillment"`

	// Social proof.
	RatingAverage *float64 `json:"rating_average,omitempty"`
	RatingCount   *int     `json:"rating_count,omitempty"`
	ReviewCount   *int     `json:"review_count,omitempty"`
	StarPercents  []int    `json:"star_percents,omitempty"` // 1..5 star shares

	// Deltas vs prior snapshot. Set by the store on insert.
	PriceDelta        *float64 `json:"price_delta,omitempty"`
	PriceDeltaPercent *float64 `json:"price_delta_percent,omitempty"`
	RankDelta         *int64   `json:"rank_delta,omitempty"`
	RankDeltaPercent  *float64 `json:"rank_delta_percent,omitempty"`
	ReviewCountDelta  *int     `json:"review_count_delta,omitempty"`
}

// ProductRecord is what the external API returns for one product: the
// catalog fields plus the freshly observed snapshot.
type ProductRecord struct {
	Product  Product  `json:"product"`
	Snapshot Snapshot `json:"snapshot"`
}

// ProductStats holds the 7-day / 30-day aggregates the scorer consumes,
// materialized by the store.
type ProductStats struct {
	ASIN ASIN `json:"asin"`

	RankDelta7DPct   *float64 `json:"rank_delta_7d_pct,omitempty"`
	RankDelta30DPct  *float64 `json:"rank_delta_30d_pct,omitempty"`
	RankAcceleration float64  `json:"rank_acceleration"`
	PriceTrend30DPct float64  `json:"price_trend_30d_pct"`
	PriceVolatility  float64  `json:"price_volatility"` // coefficient of variation
	StockoutCount30D int      `json:"stockout_count_30d"`
	SellerChurn30D   float64  `json:"seller_churn_30d"` // [0,1]
	ReviewsPerMonth  float64  `json:"reviews_per_month"`
	SnapshotCount30D int      `json:"snapshot_count_30d"`
}
