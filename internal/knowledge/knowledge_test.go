package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const testBase = `# Test knowledge

## KB-001: Liability caps
Risk: high
Category: liability
Keywords: liability, unlimited, cap

Unlimited liability is dangerous. You should negotiate a cap tied to fees paid.

## KB-002: Payment terms
Risk: low
Category: payment
Keywords: payment, net, invoice

Net-90 strains cash flow. We recommend net-30 with late-payment interest.

## KB-003: Termination symmetry
Risk: high
Category: termination
Keywords: terminate, sole discretion

Unilateral termination is one-sided. Consider symmetric notice periods.
`

func mustParse(t *testing.T) *Base {
	t.Helper()
	base, err := ParseBase(testBase)
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}
	return base
}

func TestParseBase(t *testing.T) {
	base := mustParse(t)
	if len(base.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(base.Entries))
	}

	first := base.Entries[0]
	if first.ID != "KB-001" || first.Title != "Liability caps" {
		t.Errorf("unexpected first entry: %+v", first)
	}
	if first.RiskTier != "high" || first.Category != "liability" {
		t.Errorf("metadata not parsed: %+v", first)
	}
	if len(first.Keywords) != 3 || first.Keywords[0] != "liability" {
		t.Errorf("keywords not parsed: %v", first.Keywords)
	}
	if !strings.Contains(first.Content, "negotiate a cap") {
		t.Errorf("content not captured: %q", first.Content)
	}
}

func TestParseBaseRejectsDuplicateIDs(t *testing.T) {
	dup := testBase + "\n## KB-001: Duplicate\nRisk: low\n\nBody.\n"
	if _, err := ParseBase(dup); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestParseBaseRejectsEmpty(t *testing.T) {
	if _, err := ParseBase("# nothing here\n\njust prose\n"); err == nil {
		t.Fatal("expected error for base without entries")
	}
}

func TestKeywordSearcherRanksByOverlap(t *testing.T) {
	s := NewKeywordSearcher(mustParse(t))

	matches, err := s.Search(context.Background(), "the contractor has unlimited liability with no cap on damages", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}
	if matches[0].RuleID != "KB-001" {
		t.Errorf("best match = %s, want KB-001", matches[0].RuleID)
	}
	for _, m := range matches {
		if m.Similarity < 0 || m.Similarity > 1 {
			t.Errorf("similarity %f outside [0,1]", m.Similarity)
		}
	}
}

func TestKeywordSearcherDeterministic(t *testing.T) {
	s := NewKeywordSearcher(mustParse(t))
	query := "payment terms net invoice and liability cap"

	a, err := s.Search(context.Background(), query, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	b, err := s.Search(context.Background(), query, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("result counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].RuleID != b[i].RuleID || a[i].Similarity != b[i].Similarity {
			t.Errorf("result %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

type fakeSearcher struct {
	matches []Match
	err     error
}

func (f fakeSearcher) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	return f.matches, f.err
}

func TestRetrieverNormalizesResults(t *testing.T) {
	r := NewRetriever(fakeSearcher{matches: []Match{
		{RuleID: "KB-002", Similarity: 0.4},
		{RuleID: "KB-001", Similarity: 0.9},
		{RuleID: "KB-002", Similarity: 0.7},
		{RuleID: "KB-003", Similarity: 0.7},
		{RuleID: "KB-004", Similarity: 1.7},
		{RuleID: "", Similarity: 0.99},
	}}, 3)

	matches, err := r.Retrieve(context.Background(), "some clause text")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected top-3, got %d", len(matches))
	}
	// KB-004 clamped to 1.0 sorts first, then KB-001, then the similarity tie
	// between KB-002 (deduped to 0.7) and KB-003 breaks by rule id.
	want := []string{"KB-004", "KB-001", "KB-002"}
	for i, id := range want {
		if matches[i].RuleID != id {
			t.Errorf("position %d = %s, want %s (all: %+v)", i, matches[i].RuleID, id, matches)
		}
	}
	if matches[0].Similarity != 1 {
		t.Errorf("similarity not clamped: %f", matches[0].Similarity)
	}
}

func TestRetrieverDegradesToEmptyOnFailure(t *testing.T) {
	r := NewRetriever(fakeSearcher{err: errors.New("embedding service down")}, 5)

	matches, err := r.Retrieve(context.Background(), "clause")
	if err == nil {
		t.Fatal("expected error to be reported")
	}
	if len(matches) != 0 {
		t.Fatalf("expected empty matches on failure, got %d", len(matches))
	}
}

func TestRetrieverNilSearcher(t *testing.T) {
	r := NewRetriever(nil, 5)
	matches, err := r.Retrieve(context.Background(), "clause")
	if err != nil || matches != nil {
		t.Fatalf("expected nil/nil, got %v / %v", matches, err)
	}
}

func TestRetrieverTruncatesQuery(t *testing.T) {
	long := strings.Repeat("liability clause wording ", 60)
	var captured string
	r := NewRetriever(searchFunc(func(ctx context.Context, query string, topK int) ([]Match, error) {
		captured = query
		return nil, nil
	}), 5)

	if _, err := r.Retrieve(context.Background(), long); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(captured) > queryMaxChars+3 {
		t.Errorf("query not truncated: %d chars", len(captured))
	}
	if !strings.HasSuffix(captured, "...") {
		t.Errorf("truncated query missing ellipsis: %q", captured[len(captured)-20:])
	}
}

type searchFunc func(ctx context.Context, query string, topK int) ([]Match, error)

func (f searchFunc) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	return f(ctx, query, topK)
}

func TestRecommendations(t *testing.T) {
	matches := []Match{
		{RuleID: "KB-001", RuleText: "Unlimited liability is dangerous. You should negotiate a cap tied to fees paid."},
		{RuleID: "KB-002", RuleText: "Background only. Nothing actionable here at all."},
	}
	recs := Recommendations(matches)
	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation, got %v", recs)
	}
	if !strings.Contains(recs[0], "negotiate a cap") {
		t.Errorf("unexpected recommendation: %q", recs[0])
	}
}
