// Package reviews extracts deterministic product-improvement signals from
// stored review text: defect detection against a fixed lexicon and wish
// extraction via regex patterns. No model calls — fast, reproducible,
// explainable.
package reviews

import "github.com/smartacus/probe-cli/internal/model"

// DefectEntry pairs a defect type's keyword set with its severity base
// weight (how critical the defect is for a purchase decision, 0-1).
type DefectEntry struct {
	Keywords   []string `json:"keywords"`
	BaseWeight float64  `json:"base_weight"`
}

// Lexicon maps each defect type of the closed enumeration to its entry.
// Passed by reference to the extractor; serialized into the run's config
// snapshot. Adding a type is a schema change plus a snapshot version bump.
type Lexicon map[model.DefectType]DefectEntry

// DefaultLexicon returns the calibrated lexicon for the car phone mount
// niche.
func DefaultLexicon() Lexicon {
	return Lexicon{
		model.DefectMechanicalFailure: {
			BaseWeight: 0.90,
			Keywords: []string{
				"broke", "broken", "snapped", "cracked", "fell apart",
				"stopped working", "collapsed", "shattered", "split",
			},
		},
		model.DefectPoorGrip: {
			BaseWeight: 0.85,
			Keywords: []string{
				"slips", "slides", "falls off", "doesn't hold", "loose",
				"phone fell", "dropped my phone", "can't hold", "keeps falling",
				"doesn't stay", "won't grip", "no grip",
			},
		},
		model.DefectDurability: {
			BaseWeight: 0.75,
			Keywords: []string{
				"after a month", "after a week", "few months later",
				"didn't last", "wore out", "degraded", "stopped sticking",
				"adhesive wore off", "suction lost over time",
			},
		},
		model.DefectCompatibilityIssue: {
			BaseWeight: 0.70,
			Keywords: []string{
				"doesn't fit", "too small", "too big", "case too thick",
				"won't fit my phone", "not compatible", "blocks camera",
				"blocks buttons", "can't charge", "magsafe doesn't work",
				"doesn't work with case", "phone too heavy",
			},
		},
		model.DefectHeatIssue: {
			BaseWeight: 0.65,
			Keywords: []string{
				"overheats", "gets hot", "phone heats up", "too hot",
				"blocks airflow", "heat damage",
			},
		},
		model.DefectInstallationIssue: {
			BaseWeight: 0.60,
			Keywords: []string{
				"hard to install", "difficult to mount", "confusing setup",
				"can't attach", "won't stick", "doesn't stick",
				"suction doesn't hold", "suction cup failed",
				"won't stay on windshield", "won't stay on dash",
			},
		},
		model.DefectVibrationNoise: {
			BaseWeight: 0.55,
			Keywords: []string{
				"vibrates", "rattles", "shakes", "buzzes", "noisy",
				"wobbles", "jiggles", "unstable on bumps",
			},
		},
		model.DefectMaterialQuality: {
			BaseWeight: 0.50,
			Keywords: []string{
				"cheap plastic", "feels flimsy", "low quality",
				"feels cheap", "poor quality", "plastic broke",
				"rubber peeled", "paint chipped", "creaks",
			},
		},
		model.DefectSizeFit: {
			BaseWeight: 0.40,
			Keywords: []string{
				"too bulky", "blocks view", "obstructs", "takes too much space",
				"too large", "sticks out", "in the way",
			},
		},
	}
}
