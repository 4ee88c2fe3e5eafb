package reviews

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartacus/probe-cli/internal/model"
)

func review(id string, rating float64, body string) model.Review {
	return model.Review{
		ReviewID:   id,
		ASIN:       "B000TEST01",
		Body:       body,
		Rating:     rating,
		ReviewDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CapturedAt: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestExtractDefects_OneKeywordPerType(t *testing.T) {
	// One negative review per defect type, each matching exactly one keyword
	// and none of the wish patterns.
	bodies := map[model.DefectType]string{
		model.DefectMechanicalFailure: "it snapped on day two",
		model.DefectPoorGrip:          "no grip at all on the arm",
		model.DefectDurability:        "adhesive wore off over the summer",
	}

	var revs []model.Review
	i := 0
	for _, body := range bodies {
		revs = append(revs, review(fmt.Sprintf("r%d", i), 2, body))
		i++
	}

	e := NewExtractor(nil)
	signals := e.ExtractDefects(revs)
	require.Len(t, signals, 3)

	n := len(revs)
	lex := DefaultLexicon()
	for _, sig := range signals {
		assert.Equal(t, 1, sig.Frequency)
		expected := lex[sig.DefectType].BaseWeight * min(1, 2.0/float64(n))
		assert.InDelta(t, expected, sig.SeverityScore, 1e-9)
		assert.Equal(t, n, sig.TotalReviewsScanned)
		assert.Equal(t, n, sig.NegativeReviewsScanned)
		require.Len(t, sig.ExampleQuotes, 1)
	}
}

func TestExtractDefects_IgnoresPositiveAndEmpty(t *testing.T) {
	revs := []model.Review{
		review("r1", 5, "broke after a week but I love it"), // positive: excluded
		review("r2", 2, ""), // empty body: excluded
		review("r3", 1, "it broke immediately"),
	}

	e := NewExtractor(nil)
	signals := e.ExtractDefects(revs)
	require.Len(t, signals, 1)
	assert.Equal(t, model.DefectMechanicalFailure, signals[0].DefectType)
	assert.Equal(t, 1, signals[0].Frequency)
	assert.Equal(t, 1, signals[0].NegativeReviewsScanned)
}

func TestExtractDefects_SeverityCapsAtBaseWeight(t *testing.T) {
	// Every negative review matches, so the frequency factor saturates at 1
	// and severity equals the base weight.
	var revs []model.Review
	for i := 0; i < 10; i++ {
		revs = append(revs, review(fmt.Sprintf("r%d", i), 1, "the clamp snapped"))
	}

	e := NewExtractor(nil)
	signals := e.ExtractDefects(revs)
	require.Len(t, signals, 1)
	assert.InDelta(t, 0.90, signals[0].SeverityScore, 1e-9)
}

func TestExtractDefects_OrderedBySeverity(t *testing.T) {
	revs := []model.Review{
		review("r1", 2, "it snapped"),             // mechanical_failure 0.90
		review("r2", 2, "feels cheap"),            // material_quality 0.50
		review("r3", 2, "it snapped and rattles"), // mechanical + vibration
		review("r4", 3, "too bulky for my taste"), // size_fit 0.40
	}

	e := NewExtractor(nil)
	signals := e.ExtractDefects(revs)
	require.NotEmpty(t, signals)
	assert.Equal(t, model.DefectMechanicalFailure, signals[0].DefectType)
	for i := 1; i < len(signals); i++ {
		assert.GreaterOrEqual(t, signals[i-1].SeverityScore, signals[i].SeverityScore)
	}
}

func TestExtractWishes_PatternsAndGrouping(t *testing.T) {
	revs := []model.Review{
		review("r1", 3, "I wish it had wireless charging. Otherwise fine."),
		review("r2", 2, "Would be great if wireless charging came built in!"),
		review("r3", 4, "It should have wireless charging."),
		review("r4", 5, "Needs a longer arm."),
		review("r5", 4, "missing a longer arm for my dash"),
	}

	e := NewExtractor(nil)
	wishes := e.ExtractWishes(revs)
	require.NotEmpty(t, wishes)

	top := wishes[0]
	assert.GreaterOrEqual(t, top.Mentions, 3)
	assert.Contains(t, top.Feature, "wireless charging")
	assert.InDelta(t, min(1, float64(top.Mentions)/10), top.Confidence, 1e-9)
}

func TestExtractWishes_DropsOneOffsAndNoise(t *testing.T) {
	revs := []model.Review{
		review("r1", 3, "I wish it had a cup"), // single mention: dropped
		review("r2", 3, "no wish patterns here at all"),
	}

	e := NewExtractor(nil)
	wishes := e.ExtractWishes(revs)
	assert.Empty(t, wishes)
}

func TestNormalizeWish(t *testing.T) {
	assert.Equal(t, "wireless charging", normalizeWish("a Wireless charging!! for my phone"))
	assert.Equal(t, "", normalizeWish("it was the a"))
}

func TestBuildProfile_ScoreFormula(t *testing.T) {
	defects := []model.DefectSignal{
		{DefectType: model.DefectMechanicalFailure, Frequency: 10, SeverityScore: 0.90},
		{DefectType: model.DefectPoorGrip, Frequency: 5, SeverityScore: 0.60},
	}
	wishes := []model.FeatureRequest{
		{Feature: "wireless charging", Mentions: 4},
		{Feature: "longer arm", Mentions: 3},
		{Feature: "stronger clamp", Mentions: 2}, // below the 3-mention bar
	}

	profile := BuildProfile("B000TEST01", "run-1", defects, wishes, 60, 25, time.Now())

	// weightedAvg = (0.90*3 + 0.60*2) / 5 = 0.78
	// coverage    = min(1, 15/25) = 0.6
	// defectScore = 0.78 * (0.5 + 0.5*0.6) = 0.624
	// wishBonus   = min(0.2, 0.1*2) = 0.2
	assert.InDelta(t, 0.824, profile.ImprovementScore, 0.001)
	require.NotNil(t, profile.DominantPain)
	assert.Equal(t, model.DefectMechanicalFailure, *profile.DominantPain)
	assert.True(t, profile.ReviewsReady) // 25 negative >= 20
}

func TestBuildProfile_ReadinessFloor(t *testing.T) {
	profile := BuildProfile("B000TEST01", "run-1", nil, nil, 30, 19, time.Now())
	assert.False(t, profile.ReviewsReady)
	assert.Zero(t, profile.ImprovementScore)
	assert.Nil(t, profile.DominantPain)
}

func TestBuildProfile_ScoreNeverExceedsOne(t *testing.T) {
	var defects []model.DefectSignal
	for _, dt := range model.DefectTypes()[:5] {
		defects = append(defects, model.DefectSignal{DefectType: dt, Frequency: 50, SeverityScore: 1.0})
	}
	wishes := []model.FeatureRequest{
		{Feature: "a", Mentions: 5}, {Feature: "b", Mentions: 5}, {Feature: "c", Mentions: 5},
	}

	profile := BuildProfile("B000TEST01", "run-1", defects, wishes, 100, 50, time.Now())
	assert.LessOrEqual(t, profile.ImprovementScore, 1.0)
}
