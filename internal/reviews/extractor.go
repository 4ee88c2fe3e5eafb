package reviews

import (
	"regexp"
	"sort"
	"strings"

	"github.com/smartacus/probe-cli/internal/model"
)

const (
	maxQuotes       = 3
	maxQuoteLen     = 300
	minWishLen      = 5
	maxWishLen      = 100
	negativeCeiling = 3.0 // reviews rated <= 3 count as negative
)

// wishPatterns detect feature requests in raw review text. The first capture
// group is the requested feature tail.
var wishPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i (?:\w+ )?wish (?:it )?(?:had|was|were|could|would)(.*?)(?:\.|!|$)`),
	regexp.MustCompile(`(?i)would be (?:nice|great|better|awesome) if(.*?)(?:\.|!|$)`),
	regexp.MustCompile(`(?i)should (?:have|come with|include)(.*?)(?:\.|!|$)`),
	regexp.MustCompile(`(?i)needs? (?:a |an |to have )(.*?)(?:\.|!|$)`),
	regexp.MustCompile(`(?i)(?:missing|lacks?) (?:a |an )?(.*?)(?:\.|!|$)`),
	regexp.MustCompile(`(?i)if only (?:it )?(.*?)(?:\.|!|$)`),
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9\s]`)

// wishStopwords are stripped from wish text before grouping. Kept minimal to
// avoid over-normalising domain-specific terms; includes niche words that
// would otherwise create artificial overlaps between unrelated wishes.
var wishStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "it": true, "its": true, "is": true,
	"was": true, "were": true, "be": true, "been": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "can": true,
	"may": true, "might": true, "shall": true, "to": true, "of": true,
	"in": true, "on": true, "for": true, "with": true, "at": true,
	"by": true, "from": true, "that": true, "this": true, "these": true,
	"those": true, "and": true, "or": true, "but": true, "not": true,
	"so": true, "if": true, "then": true, "also": true, "just": true,
	"very": true, "really": true, "too": true, "more": true, "much": true,
	"some": true, "any": true, "all": true, "my": true, "your": true,
	"their": true, "our": true, "i": true, "me": true, "you": true,
	"we": true, "they": true, "came": true, "come": true, "built": true,
	"one": true, "like": true,
	// Niche stopwords.
	"phone": true, "mount": true, "car": true, "holder": true,
	"dashboard": true, "windshield": true, "stand": true, "cradle": true,
	"bracket": true, "device": true,
}

// Extractor runs deterministic defect and wish extraction over a product's
// reviews against a frozen lexicon.
type Extractor struct {
	lexicon Lexicon
}

// NewExtractor creates an Extractor. A nil lexicon uses the default.
func NewExtractor(lexicon Lexicon) *Extractor {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &Extractor{lexicon: lexicon}
}

// ExtractDefects scans the negative subset (rating <= 3, non-empty body) of
// reviews and returns one DefectSignal per matched type, sorted by severity
// descending with frequency then lexical order as tie-breaks.
func (e *Extractor) ExtractDefects(reviews []model.Review) []model.DefectSignal {
	negative := negativeReviews(reviews)
	if len(negative) == 0 {
		return nil
	}

	type hit struct {
		count  int
		quotes []string
	}
	hits := make(map[model.DefectType]*hit)

	for _, r := range negative {
		body := strings.ToLower(r.Body)
		for defectType, entry := range e.lexicon {
			if !matchesAny(body, entry.Keywords) {
				continue
			}
			h := hits[defectType]
			if h == nil {
				h = &hit{}
				hits[defectType] = h
			}
			h.count++
			h.quotes = append(h.quotes, truncate(r.Body, maxQuoteLen))
		}
	}

	signals := make([]model.DefectSignal, 0, len(hits))
	for defectType, h := range hits {
		freqFactor := min(1, 2*float64(h.count)/float64(len(negative)))
		severity := min(1, e.lexicon[defectType].BaseWeight*freqFactor)

		// Shortest quotes first to keep examples compact.
		sort.Slice(h.quotes, func(i, j int) bool { return len(h.quotes[i]) < len(h.quotes[j]) })
		quotes := h.quotes
		if len(quotes) > maxQuotes {
			quotes = quotes[:maxQuotes]
		}

		signals = append(signals, model.DefectSignal{
			DefectType:             defectType,
			Frequency:              h.count,
			SeverityScore:          severity,
			ExampleQuotes:          quotes,
			TotalReviewsScanned:    len(reviews),
			NegativeReviewsScanned: len(negative),
		})
	}

	sort.Slice(signals, func(i, j int) bool {
		if signals[i].SeverityScore != signals[j].SeverityScore {
			return signals[i].SeverityScore > signals[j].SeverityScore
		}
		if signals[i].Frequency != signals[j].Frequency {
			return signals[i].Frequency > signals[j].Frequency
		}
		return signals[i].DefectType < signals[j].DefectType
	})
	return signals
}

// ExtractWishes runs the wish patterns over every review body, normalizes
// the captured tails, and aggregates mention counts by normalized phrase.
// Phrases mentioned only once are dropped as noise. Confidence starts at
// min(1, mentions/10); an offline pass may revise it later.
func (e *Extractor) ExtractWishes(reviews []model.Review) []model.FeatureRequest {
	type hit struct {
		feature string // shortest raw phrasing seen
		count   int
		quotes  []string
	}
	hits := make(map[string]*hit)

	for _, r := range reviews {
		if r.Body == "" {
			continue
		}
		for _, pattern := range wishPatterns {
			for _, m := range pattern.FindAllStringSubmatch(r.Body, -1) {
				feature := strings.TrimRight(strings.TrimSpace(m[1]), ".,!?")
				if len(feature) < minWishLen || len(feature) > maxWishLen {
					continue
				}
				key := normalizeWish(feature)
				if key == "" {
					continue
				}
				h := hits[key]
				if h == nil {
					h = &hit{feature: strings.ToLower(feature)}
					hits[key] = h
				}
				h.count++
				if len(strings.ToLower(feature)) < len(h.feature) {
					h.feature = strings.ToLower(feature)
				}
				if len(h.quotes) < maxQuotes {
					h.quotes = append(h.quotes, truncate(r.Body, maxQuoteLen))
				}
			}
		}
	}

	requests := make([]model.FeatureRequest, 0, len(hits))
	for _, h := range hits {
		if h.count < 2 {
			continue
		}
		requests = append(requests, model.FeatureRequest{
			Feature:      h.feature,
			Mentions:     h.count,
			Confidence:   min(1, float64(h.count)/10),
			SourceQuotes: h.quotes,
		})
	}

	sort.Slice(requests, func(i, j int) bool {
		if requests[i].Mentions != requests[j].Mentions {
			return requests[i].Mentions > requests[j].Mentions
		}
		return requests[i].Feature < requests[j].Feature
	})
	return requests
}

// normalizeWish lowercases, strips punctuation, drops stopwords and
// single-character tokens, and collapses whitespace.
func normalizeWish(text string) string {
	text = nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "")
	var kept []string
	for _, w := range strings.Fields(text) {
		if len(w) > 1 && !wishStopwords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func negativeReviews(reviews []model.Review) []model.Review {
	var out []model.Review
	for _, r := range reviews {
		if r.Rating <= negativeCeiling && r.Body != "" {
			out = append(out, r)
		}
	}
	return out
}

func matchesAny(body string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(body, kw) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
