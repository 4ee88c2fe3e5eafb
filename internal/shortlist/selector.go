// Package shortlist turns a run's scored artifacts into the constrained,
// ordered shortlist snapshot: threshold gates, deterministic ordering,
// stability against the previous snapshot, and freeze semantics.
package shortlist

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/smartacus/probe-cli/internal/model"
)

// Config holds the selection gates.
type Config struct {
	MinScore int     `json:"min_score"` // minimum final score
	MinValue float64 `json:"min_value"` // minimum risk-adjusted annual value
	MaxItems int     `json:"max_items"`
}

// DefaultConfig returns the calibrated shortlist gates.
func DefaultConfig() Config {
	return Config{
		MinScore: 50,
		MinValue: 5_000,
		MaxItems: 10,
	}
}

// Selector builds shortlist snapshots from artifacts.
type Selector struct {
	cfg Config
}

// New creates a Selector.
func New(cfg Config) *Selector {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultConfig().MaxItems
	}
	return &Selector{cfg: cfg}
}

// Select ranks the run's artifacts and produces the snapshot. The previous
// snapshot (nil if none) feeds the stability computation. frozen marks a
// snapshot that must never become active; the caller decides based on the
// run status.
func (s *Selector) Select(runID string, artifacts []model.OpportunityArtifact, previous *model.ShortlistSnapshot, frozen bool, now time.Time) model.ShortlistSnapshot {
	var viable []model.OpportunityArtifact
	for _, a := range artifacts {
		if a.Rejected {
			continue
		}
		if a.FinalScore < s.cfg.MinScore || a.RiskAdjustedValue < s.cfg.MinValue {
			continue
		}
		viable = append(viable, a)
	}

	sort.Slice(viable, func(i, j int) bool {
		if viable[i].RankScore != viable[j].RankScore {
			return viable[i].RankScore > viable[j].RankScore
		}
		if viable[i].FinalScore != viable[j].FinalScore {
			return viable[i].FinalScore > viable[j].FinalScore
		}
		if viable[i].WindowDays != viable[j].WindowDays {
			return viable[i].WindowDays < viable[j].WindowDays
		}
		return viable[i].ASIN < viable[j].ASIN
	})

	if len(viable) > s.cfg.MaxItems {
		viable = viable[:s.cfg.MaxItems]
	}

	snapshot := model.ShortlistSnapshot{
		SnapshotID: uuid.New().String(),
		RunID:      runID,
		CreatedAt:  now,
		Frozen:     frozen,
	}
	for _, a := range viable {
		snapshot.ASINs = append(snapshot.ASINs, a.ASIN)
		snapshot.Scores = append(snapshot.Scores, a.FinalScore)
		snapshot.TotalPotentialValue += a.RiskAdjustedValue
	}

	snapshot.Added, snapshot.Removed, snapshot.Stability = diff(snapshot.ASINs, previous)
	return snapshot
}

// diff computes added/removed members and the Jaccard stability against the
// previous snapshot. With no previous snapshot, everything is new and
// stability is 0 (1 if both lists are empty).
func diff(current []model.ASIN, previous *model.ShortlistSnapshot) (added, removed []model.ASIN, stability float64) {
	prevSet := map[model.ASIN]bool{}
	if previous != nil {
		for _, a := range previous.ASINs {
			prevSet[a] = true
		}
	}
	curSet := map[model.ASIN]bool{}
	for _, a := range current {
		curSet[a] = true
	}

	for _, a := range current {
		if !prevSet[a] {
			added = append(added, a)
		}
	}
	if previous != nil {
		for _, a := range previous.ASINs {
			if !curSet[a] {
				removed = append(removed, a)
			}
		}
	}

	intersection := 0
	for a := range curSet {
		if prevSet[a] {
			intersection++
		}
	}
	union := len(curSet) + len(prevSet) - intersection
	if union == 0 {
		return added, removed, 1
	}
	return added, removed, float64(intersection) / float64(max(1, union))
}
