package reqcontext

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

const (
	// DefaultThreshold is the minimum similarity for agent selection.
	DefaultThreshold = 0.6
	// DefaultTopK bounds the number of agent-selected items.
	DefaultTopK = 5

	minTokenLen = 3
)

// Selector picks candidate items relevant to a request by fuzzy token
// similarity between the request text and each item's name and description.
type Selector struct {
	Threshold float64
	TopK      int
}

// NewSelector creates a selector. Zero values take the defaults.
func NewSelector(threshold float64, topK int) *Selector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Selector{Threshold: threshold, TopK: topK}
}

// Select scores candidates against query and returns the best matches as
// agent items, highest score first.
func (s *Selector) Select(query string, candidates []Item) []RequestItem {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type scored struct {
		item  Item
		score float64
		index int
	}
	var hits []scored
	for i, c := range candidates {
		score := Score(queryTokens, tokenize(c.Name+" "+c.Description))
		if score >= s.Threshold {
			hits = append(hits, scored{item: c, score: score, index: i})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > s.TopK {
		hits = hits[:s.TopK]
	}

	out := make([]RequestItem, len(hits))
	for i, h := range hits {
		score := h.score
		out[i] = RequestItem{Item: h.item, IncludeMode: IncludeAgent, SimilarityScore: &score}
	}
	return out
}

// Score is the best similarity any item token reaches against any query
// token, averaged with the share of item tokens that match well.
func Score(queryTokens, itemTokens []string) float64 {
	if len(queryTokens) == 0 || len(itemTokens) == 0 {
		return 0
	}

	best := 0.0
	matched := 0
	for _, it := range itemTokens {
		tokenBest := 0.0
		for _, qt := range queryTokens {
			if sim := Similarity(qt, it); sim > tokenBest {
				tokenBest = sim
			}
		}
		if tokenBest > best {
			best = tokenBest
		}
		if tokenBest >= DefaultThreshold {
			matched++
		}
	}
	coverage := float64(matched) / float64(len(itemTokens))
	return (best + coverage) / 2
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)).
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(max(len([]rune(a)), len([]rune(b))))
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(fields))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) < minTokenLen || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}
	return tokens
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "are": true, "was": true, "you": true,
	"how": true, "what": true, "can": true, "use": true, "into": true,
}
