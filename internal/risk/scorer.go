package risk

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"contract-backend/internal/knowledge"
	"contract-backend/internal/normalize"
)

// Recommendation is the verdict derived from the aggregate risk score.
type Recommendation string

const (
	RecommendApprove   Recommendation = "approve"
	RecommendNegotiate Recommendation = "negotiate"
	RecommendReject    Recommendation = "reject"
)

const (
	rejectScoreThreshold    = 80
	negotiateScoreThreshold = 30
	rejectHighFindingCount  = 2
)

// Finding is one triggered risk rule with its supporting evidence.
type Finding struct {
	RuleID        string            `json:"rule_id"`
	Label         string            `json:"label"`
	Severity      Severity          `json:"severity"`
	Weight        int               `json:"weight"`
	Category      string            `json:"category"`
	ClauseHeading string            `json:"clause_heading,omitempty"`
	Excerpt       string            `json:"excerpt,omitempty"`
	Matches       []knowledge.Match `json:"matches,omitempty"`
	Suggestion    string            `json:"suggestion,omitempty"`
}

// Input carries everything the scorer needs for one document.
type Input struct {
	Text            string
	Clauses         []normalize.Clause
	ClauseMatches   [][]knowledge.Match
	ImprovementMode bool
}

// Assessment is the scored result.
type Assessment struct {
	ContractType   ContractType   `json:"contract_type"`
	TypeConfidence float64        `json:"type_confidence"`
	Findings       []Finding      `json:"findings"`
	Score          int            `json:"risk_score"`
	HighCount      int            `json:"high_count"`
	MediumCount    int            `json:"medium_count"`
	LowCount       int            `json:"low_count"`
	Recommendation Recommendation `json:"recommendation"`
}

// Scorer evaluates the rule catalog over a document. Construction validates
// the weight set once; Score is pure and safe for concurrent use.
type Scorer struct {
	weights Weights
	catalog []Rule
}

func NewScorer(weights Weights) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights, catalog: Catalog()}, nil
}

const excerptRadius = 120

// Score runs every catalog rule against the document exactly once, attributes
// each firing rule to the clause containing its first match, and maps the
// summed weights onto a recommendation. In improvement mode, missing expected
// clauses for the identified contract type add medium findings.
func (s *Scorer) Score(in Input) Assessment {
	flat := normalize.Flatten(in.Text)
	ct, ctConfidence := IdentifyContractType(flat)

	var findings []Finding
	for _, rule := range s.catalog {
		f, fired := s.apply(rule, flat, in)
		if fired {
			findings = append(findings, f)
		}
	}

	if in.ImprovementMode {
		findings = append(findings, ExpectedClauseFindings(flat, ct, s.weights)...)
	}

	a := Assessment{
		ContractType:   ct,
		TypeConfidence: ctConfidence,
		Findings:       findings,
	}
	for _, f := range findings {
		a.Score += f.Weight
		switch f.Severity {
		case SeverityHigh:
			a.HighCount++
		case SeverityMedium:
			a.MediumCount++
		default:
			a.LowCount++
		}
	}
	a.Recommendation = Recommend(a.Score, a.HighCount)
	return a
}

func (s *Scorer) apply(rule Rule, flat string, in Input) (Finding, bool) {
	if IsAbsenceRule(rule.ID) {
		if rule.Pattern.MatchString(flat) {
			return Finding{}, false
		}
		return Finding{
			RuleID:   rule.ID,
			Label:    rule.Label,
			Severity: rule.Severity,
			Weight:   s.weights.Of(rule.Severity),
			Category: rule.Category,
		}, true
	}

	loc := rule.Pattern.FindStringIndex(flat)
	if loc == nil {
		return Finding{}, false
	}
	if rule.Except != nil && rule.Except.MatchString(flat) {
		return Finding{}, false
	}

	f := Finding{
		RuleID:   rule.ID,
		Label:    rule.Label,
		Severity: rule.Severity,
		Weight:   s.weights.Of(rule.Severity),
		Category: rule.Category,
		Excerpt:  excerpt(flat, loc[0], loc[1]),
	}

	if idx := attributeClause(rule.Pattern, in.Clauses); idx >= 0 {
		f.ClauseHeading = in.Clauses[idx].Heading
		if idx < len(in.ClauseMatches) {
			f.Matches = capMatches(in.ClauseMatches[idx], 3)
		}
	}
	return f, true
}

// attributeClause returns the index of the first clause the rule matches, or
// -1 when attribution is impossible (e.g. the match spans clause boundaries).
func attributeClause(pattern *regexp.Regexp, clauses []normalize.Clause) int {
	for i, c := range clauses {
		if pattern.MatchString(normalize.Flatten(c.Text)) {
			return i
		}
	}
	return -1
}

func capMatches(matches []knowledge.Match, n int) []knowledge.Match {
	if len(matches) <= n {
		return matches
	}
	return matches[:n]
}

func excerpt(text string, start, end int) string {
	from := start - excerptRadius
	if from < 0 {
		from = 0
	}
	// The radius is in bytes; back the cut points onto rune boundaries so the
	// excerpt stays valid UTF-8.
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	to := end + excerptRadius
	if to > len(text) {
		to = len(text)
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	out := strings.TrimSpace(text[from:to])
	if from > 0 {
		out = "…" + out
	}
	if to < len(text) {
		out = out + "…"
	}
	return out
}

// Recommend maps a risk score and high-severity count onto a verdict. Two or
// more high findings force rejection even when the raw score sits below the
// rejection threshold.
func Recommend(score, highCount int) Recommendation {
	if score >= rejectScoreThreshold || highCount >= rejectHighFindingCount {
		return RecommendReject
	}
	if score >= negotiateScoreThreshold {
		return RecommendNegotiate
	}
	return RecommendApprove
}
