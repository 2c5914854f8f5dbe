package knowledge

import (
	"context"
	"sort"
	"strings"
)

// Match is one knowledge entry scored against a clause query.
type Match struct {
	RuleID      string  `json:"rule_id"`
	Similarity  float64 `json:"similarity"`
	RuleText    string  `json:"rule_text"`
	CategoryTag string  `json:"category_tag,omitempty"`
}

// Searcher ranks knowledge entries for a query. Implementations must be safe
// for concurrent use; retrieval fans out across clauses.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Match, error)
}

// KeywordSearcher scores entries by keyword and title-term overlap with the
// query. It is deterministic, so retrieval results are reproducible across
// runs of the same document.
type KeywordSearcher struct {
	base *Base
}

func NewKeywordSearcher(base *Base) *KeywordSearcher {
	return &KeywordSearcher{base: base}
}

// Search implements Searcher. Scores are normalized into [0, 1].
func (s *KeywordSearcher) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(query)
	queryTerms := termSet(queryLower)

	var matches []Match
	for _, e := range s.base.Entries {
		score := s.scoreEntry(e, queryLower, queryTerms)
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{
			RuleID:      e.ID,
			Similarity:  normalizeScore(score),
			RuleText:    entrySnippet(e),
			CategoryTag: e.Category,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].RuleID < matches[j].RuleID
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// scoreEntry weights exact keyword hits highest, then title-term overlap, then
// a small boost for high-risk entries so dangerous precedent surfaces first on
// ties of topical relevance.
func (s *KeywordSearcher) scoreEntry(e Entry, queryLower string, queryTerms map[string]bool) float64 {
	var score float64
	for _, kw := range e.Keywords {
		if strings.Contains(queryLower, kw) {
			score += 3
		}
	}
	for _, t := range strings.Fields(strings.ToLower(e.Title)) {
		t = strings.Trim(t, ".,:;()")
		if len(t) >= 4 && queryTerms[t] {
			score += 1
		}
	}
	if score > 0 && e.RiskTier == "high" {
		score += 1
	}
	return score
}

func normalizeScore(score float64) float64 {
	// Smooth saturation: 3 points (one keyword hit) ≈ 0.27, 10 points ≈ 0.59.
	v := score / (score + 7)
	if v > 1 {
		v = 1
	}
	return v
}

func entrySnippet(e Entry) string {
	text := e.Title
	if e.Content != "" {
		text = e.Title + ": " + firstSentence(e.Content)
	}
	return text
}

func firstSentence(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if i := strings.Index(text, ". "); i > 0 {
		return text[:i+1]
	}
	if len(text) > 240 {
		return text[:240]
	}
	return text
}

func termSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(text) {
		w = strings.Trim(w, ".,:;()\"'")
		if len(w) >= 4 {
			set[w] = true
		}
	}
	return set
}
