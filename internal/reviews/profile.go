package reviews

import (
	"math"
	"time"

	"github.com/smartacus/probe-cli/internal/model"
)

const (
	topDefectCount = 5
	topWishCount   = 5

	// reviewsReadyFloor is the minimum negative-review sample before callers
	// may trust the profile.
	reviewsReadyFloor = 20
)

// topDefectWeights weight the top severities when averaging; the dominant
// defect counts three times as much as the tail.
var topDefectWeights = []float64{3, 2, 1.5, 1, 1}

// BuildProfile aggregates extracted signals into one ImprovementProfile for
// a (product, run) pair. The improvement score is a ranking bonus only and
// never feeds the base score.
func BuildProfile(
	asin model.ASIN,
	runID string,
	defects []model.DefectSignal,
	wishes []model.FeatureRequest,
	reviewsAnalyzed int,
	negativeAnalyzed int,
	now time.Time,
) model.ImprovementProfile {
	profile := model.ImprovementProfile{
		ASIN:                    asin,
		RunID:                   runID,
		ReviewsAnalyzed:         reviewsAnalyzed,
		NegativeReviewsAnalyzed: negativeAnalyzed,
		ReviewsReady:            negativeAnalyzed >= reviewsReadyFloor,
		ComputedAt:              now,
	}

	if len(defects) > topDefectCount {
		defects = defects[:topDefectCount]
	}
	if len(wishes) > topWishCount {
		wishes = wishes[:topWishCount]
	}
	profile.TopDefects = defects
	profile.MissingFeatures = wishes

	if len(defects) > 0 {
		pain := defects[0].DefectType
		profile.DominantPain = &pain
	}

	profile.ImprovementScore = improvementScore(defects, wishes, negativeAnalyzed)
	return profile
}

// improvementScore implements:
//
//	coverage     = min(1, sum(top defect frequencies) / max(1, negativeCount))
//	defectScore  = weightedAvg(top severities) * (0.5 + 0.5*coverage)
//	wishBonus    = min(0.2, 0.1 * |wishes with mentions >= 3|)
//	score        = min(1, defectScore + wishBonus)
//
// Coverage sums per-type frequencies, so a review that matches several
// defect types is counted once per type; it is not the number of distinct
// reviews with at least one match. The cap at 1 bounds the overcount.
func improvementScore(defects []model.DefectSignal, wishes []model.FeatureRequest, negativeCount int) float64 {
	var defectScore float64
	if len(defects) > 0 {
		var weightedSum, weightSum float64
		for i, d := range defects {
			w := topDefectWeights[i]
			weightedSum += d.SeverityScore * w
			weightSum += w
		}
		weightedAvg := weightedSum / weightSum

		var matched int
		for _, d := range defects {
			matched += d.Frequency
		}
		coverage := math.Min(1, float64(matched)/float64(max(1, negativeCount)))

		defectScore = weightedAvg * (0.5 + 0.5*coverage)
	}

	var strongWishes int
	for _, w := range wishes {
		if w.Mentions >= 3 {
			strongWishes++
		}
	}
	wishBonus := math.Min(0.2, 0.1*float64(strongWishes))

	return round3(math.Min(1, defectScore+wishBonus))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
