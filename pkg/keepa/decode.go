package keepa

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/smartacus/probe-cli/internal/model"
)

// wireProduct is the per-product payload shape. Prices arrive in cents;
// -1 marks an absent numeric observation.
type wireProduct struct {
	ASIN         string  `json:"asin"`
	Title        *string `json:"title"`
	Brand        string  `json:"brand"`
	Manufacturer string  `json:"manufacturer"`
	RootCategory int64   `json:"rootCategory"`
	CategoryTree []struct {
		Name string `json:"name"`
	} `json:"categoryTree"`
	PackageLength int `json:"packageLength"`
	PackageWidth  int `json:"packageWidth"`
	PackageHeight int `json:"packageHeight"`
	PackageWeight int `json:"packageWeight"`

	Stats *wireStats `json:"stats"`
}

type wireStats struct {
	CapturedAt      int64  `json:"capturedAt"` // unix seconds
	PriceCents      int64  `json:"price"`
	ListPriceCents  int64  `json:"listPrice"`
	LowestNewCents  int64  `json:"lowestNew"`
	LowestUsedCents int64  `json:"lowestUsed"`
	Currency        string `json:"currency"`
	CouponCents     int64  `json:"coupon"`
	CouponPercent   int64  `json:"couponPercent"`

	SalesRank       int64  `json:"salesRank"`
	SalesRankCat    string `json:"salesRankCategory"`
	SalesRankSecond int64  `json:"salesRankSecondary"`
	SalesRankSecCat string `json:"salesRankSecondaryCategory"`

	StockStatus   string `json:"stockStatus"`
	StockQuantity int    `json:"stockQuantity"`
	SellerCount   int    `json:"sellerCount"`
	Fulfillment   string `json:"fulfillment"`

	Rating       int64 `json:"rating"` // tenths of a star
	RatingCount  int   `json:"ratingCount"`
	ReviewCount  int   `json:"reviewCount"`
	StarPercents []int `json:"starPercents"`
}

// decodeProduct validates and converts one raw product record. Contract
// violations come back as errors (carrying no resilience kind) so callers
// can isolate them.
func decodeProduct(raw json.RawMessage) (model.ProductRecord, error) {
	var wp wireProduct
	if err := json.Unmarshal(raw, &wp); err != nil {
		return model.ProductRecord{}, eris.Wrap(err, "keepa: undecodable product record")
	}

	asin := model.ASIN(wp.ASIN)
	if !asin.Valid() {
		return model.ProductRecord{}, eris.Errorf("keepa: invalid asin %q", wp.ASIN)
	}
	if wp.Stats == nil {
		return model.ProductRecord{}, eris.Errorf("keepa: product %s missing stats block", wp.ASIN)
	}
	if wp.Stats.CapturedAt <= 0 {
		return model.ProductRecord{}, eris.Errorf("keepa: product %s missing capture timestamp", wp.ASIN)
	}

	product := model.Product{
		ASIN:             asin,
		Title:            wp.Title,
		Brand:            wp.Brand,
		Manufacturer:     wp.Manufacturer,
		CategoryID:       wp.RootCategory,
		Active:           true,
		TrackingPriority: 5,
	}
	for _, node := range wp.CategoryTree {
		product.CategoryPath = append(product.CategoryPath, node.Name)
	}
	if wp.PackageLength > 0 || wp.PackageWeight > 0 {
		product.Dimensions = &model.Dimensions{
			LengthMM: wp.PackageLength,
			WidthMM:  wp.PackageWidth,
			HeightMM: wp.PackageHeight,
			WeightG:  wp.PackageWeight,
		}
	}

	st := wp.Stats
	snapshot := model.Snapshot{
		ASIN:             asin,
		CapturedAt:       time.Unix(st.CapturedAt, 0).UTC(),
		PriceCurrent:     centsToPrice(st.PriceCents),
		PriceList:        centsToPrice(st.ListPriceCents),
		PriceLowestNew:   centsToPrice(st.LowestNewCents),
		PriceLowestUsed:  centsToPrice(st.LowestUsedCents),
		Currency:         st.Currency,
		CouponAmount:     centsToPrice(st.CouponCents),
		RankPrimary:      positiveInt64(st.SalesRank),
		RankCategory:     st.SalesRankCat,
		RankSecondary:    positiveInt64(st.SalesRankSecond),
		RankSecondaryCat: st.SalesRankSecCat,
		StockStatus:      stockStatus(st.StockStatus),
		Fulfillment:      fulfillment(st.Fulfillment),
		ReviewCount:      positiveInt(st.ReviewCount),
		RatingCount:      positiveInt(st.RatingCount),
		StarPercents:     st.StarPercents,
	}
	if st.CouponPercent > 0 {
		pct := float64(st.CouponPercent)
		snapshot.CouponPercent = &pct
	}
	if st.StockQuantity >= 0 && st.StockStatus != "" {
		q := st.StockQuantity
		snapshot.StockQuantity = &q
	}
	if st.SellerCount > 0 {
		sc := st.SellerCount
		snapshot.SellerCount = &sc
	}
	if st.Rating > 0 {
		r := float64(st.Rating) / 10
		snapshot.RatingAverage = &r
	}

	return model.ProductRecord{Product: product, Snapshot: snapshot}, nil
}

// peekASIN extracts just the asin from a record that failed full decoding.
func peekASIN(raw json.RawMessage) model.ASIN {
	var head struct {
		ASIN string `json:"asin"`
	}
	_ = json.Unmarshal(raw, &head)
	return model.ASIN(head.ASIN)
}

func centsToPrice(cents int64) *float64 {
	if cents < 0 {
		return nil
	}
	v := float64(cents) / 100
	return &v
}

func positiveInt64(v int64) *int64 {
	if v <= 0 {
		return nil
	}
	return &v
}

func positiveInt(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func stockStatus(raw string) model.StockStatus {
	switch model.StockStatus(raw) {
	case model.StockInStock, model.StockLowStock, model.StockOutOfStock, model.StockBackOrdered:
		return model.StockStatus(raw)
	default:
		return model.StockUnknown
	}
}

func fulfillment(raw string) model.FulfillmentType {
	switch model.FulfillmentType(raw) {
	case model.FulfillmentFBA, model.FulfillmentFBM, model.FulfillmentFirstParty:
		return model.FulfillmentType(raw)
	default:
		return model.FulfillmentUnknown
	}
}
