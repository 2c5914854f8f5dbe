package knowledge

import (
	"context"
	"sort"
	"strings"
	"time"

	"contract-backend/internal/shared/telemetry"
)

const (
	// MaxTopK bounds how many matches a caller can request per clause.
	MaxTopK = 20

	defaultTopK      = 5
	queryMaxChars    = 500
	defaultCallLimit = 10 * time.Second
)

// Retriever wraps a Searcher with the guarantees the pipeline relies on:
// bounded queries, deduplicated deterministic ordering, and graceful
// degradation to an empty result when the searcher fails.
type Retriever struct {
	Searcher Searcher
	TopK     int
	Timeout  time.Duration
}

func NewRetriever(searcher Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	return &Retriever{Searcher: searcher, TopK: topK, Timeout: defaultCallLimit}
}

// Retrieve returns the top matches for one clause. A failing or unconfigured
// searcher degrades to an empty slice and a non-nil error the caller records;
// retrieval never aborts a run.
func (r *Retriever) Retrieve(ctx context.Context, clauseText string) ([]Match, error) {
	if r.Searcher == nil {
		return nil, nil
	}

	query := truncateQuery(clauseText)
	if query == "" {
		return nil, nil
	}

	callCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	matches, err := r.Searcher.Search(callCtx, query, r.TopK)
	if err != nil {
		telemetry.Warn("knowledge.search_failed", map[string]any{"error": err.Error()})
		return nil, err
	}

	return r.normalize(matches), nil
}

// normalize enforces the retrieval contract regardless of searcher behavior:
// clamp similarity into [0, 1], keep the best match per rule id, order by
// similarity descending with rule id as tie-break, and cap at top-k.
func (r *Retriever) normalize(matches []Match) []Match {
	best := map[string]Match{}
	for _, m := range matches {
		if m.RuleID == "" {
			continue
		}
		if m.Similarity < 0 {
			m.Similarity = 0
		}
		if m.Similarity > 1 {
			m.Similarity = 1
		}
		if prev, ok := best[m.RuleID]; !ok || m.Similarity > prev.Similarity {
			best[m.RuleID] = m
		}
	}

	out := make([]Match, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].RuleID < out[j].RuleID
	})

	if len(out) > r.TopK {
		out = out[:r.TopK]
	}
	return out
}

func truncateQuery(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= queryMaxChars {
		return text
	}
	cut := strings.LastIndex(text[:queryMaxChars], " ")
	if cut < queryMaxChars/2 {
		cut = queryMaxChars
	}
	return text[:cut] + "..."
}

// Recommendations extracts actionable guidance sentences from match texts for
// the report's next-steps section.
func Recommendations(matches []Match) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range matches {
		for _, sentence := range strings.Split(m.RuleText, ". ") {
			lower := strings.ToLower(sentence)
			if !strings.Contains(lower, "recommend") && !strings.Contains(lower, "should") &&
				!strings.Contains(lower, "consider") && !strings.Contains(lower, "negotiate") {
				continue
			}
			s := strings.TrimSpace(strings.TrimSuffix(sentence, "."))
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
