package model

import "time"

// DefectType is the closed enumeration of review defect categories. The
// store enforces the enumeration; free-form defect strings are rejected.
type DefectType string

const (
	DefectMechanicalFailure  DefectType = "mechanical_failure"
	DefectPoorGrip           DefectType = "poor_grip"
	DefectDurability         DefectType = "durability"
	DefectCompatibilityIssue DefectType = "compatibility_issue"
	DefectHeatIssue          DefectType = "heat_issue"
	DefectInstallationIssue  DefectType = "installation_issue"
	DefectVibrationNoise     DefectType = "vibration_noise"
	DefectMaterialQuality    DefectType = "material_quality"
	DefectSizeFit            DefectType = "size_fit"
)

// DefectTypes lists every known defect type in lexical order.
func DefectTypes() []DefectType {
	return []DefectType{
		DefectCompatibilityIssue,
		DefectDurability,
		DefectHeatIssue,
		DefectInstallationIssue,
		DefectMaterialQuality,
		DefectMechanicalFailure,
		DefectPoorGrip,
		DefectSizeFit,
		DefectVibrationNoise,
	}
}

// Valid reports whether t is a member of the closed defect set.
func (t DefectType) Valid() bool {
	for _, known := range DefectTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Review is a stored customer review, populated from an external source.
// AnalyzedAt is stamped by the extractor.
type Review struct {
	ReviewID         string     `json:"review_id"`
	ASIN             ASIN       `json:"asin"`
	Title            string     `json:"title,omitempty"`
	Body             string     `json:"body"`
	Rating           float64    `json:"rating"`
	VerifiedPurchase bool       `json:"verified_purchase"`
	ReviewDate       time.Time  `json:"review_date"`
	CapturedAt       time.Time  `json:"captured_at"`
	AnalyzedAt       *time.Time `json:"analyzed_at,omitempty"`
}

// DefectSignal is one extracted defect aggregate for a product in a run.
type DefectSignal struct {
	DefectType             DefectType `json:"defect_type"`
	Frequency              int        `json:"frequency"`
	SeverityScore          float64    `json:"severity_score"` // [0,1]
	ExampleQuotes          []string   `json:"example_quotes,omitempty"`
	TotalReviewsScanned    int        `json:"total_reviews_scanned"`
	NegativeReviewsScanned int        `json:"negative_reviews_scanned"`
}

// FeatureRequest is a normalized wish extracted from review text.
type FeatureRequest struct {
	Feature      string   `json:"feature"`
	Mentions     int      `json:"mentions"`
	Confidence   float64  `json:"confidence"` // [0,1]
	SourceQuotes []string `json:"source_quotes,omitempty"`
}

// ImprovementProfile aggregates a product's defect and wish signals for one
// run. The improvement score feeds shortlist ranking only, never the base
// score.
type ImprovementProfile struct {
	ASIN                    ASIN             `json:"asin"`
	RunID                   string           `json:"run_id"`
	TopDefects              []DefectSignal   `json:"top_defects"`
	MissingFeatures         []FeatureRequest `json:"missing_features"`
	DominantPain            *DefectType      `json:"dominant_pain,omitempty"`
	ImprovementScore        float64          `json:"improvement_score"` // [0,1]
	ReviewsAnalyzed         int              `json:"reviews_analyzed"`
	NegativeReviewsAnalyzed int              `json:"negative_reviews_analyzed"`
	ReviewsReady            bool             `json:"reviews_ready"`
	ComputedAt              time.Time        `json:"computed_at"`
}
