package risk

import "regexp"

// Rule is one red-flag pattern. A rule fires at most once per document. Except
// is an optional counter-pattern: when it matches, the flagged language is
// considered mutual or already mitigated and the rule stays quiet.
type Rule struct {
	ID          string
	Label       string
	Severity    Severity
	Category    string
	Pattern     *regexp.Regexp
	Except      *regexp.Regexp
	Description string
}

// Catalog returns the built-in red-flag rules, in detection order. The slice
// is rebuilt per call so callers can safely append their own rules.
func Catalog() []Rule {
	return []Rule{
		{
			ID:          "RF-001",
			Label:       "Unlimited liability",
			Severity:    SeverityHigh,
			Category:    "liability",
			Pattern:     regexp.MustCompile(`(?i)(unlimited|without\s+limit(ation)?)\s+(liability|liable)|liab(le|ility)[^.]{0,40}without\s+(any\s+)?limit`),
			Description: "Liability exposure has no cap, leaving one party open to unbounded damages.",
		},
		{
			ID:          "RF-002",
			Label:       "One-sided indemnification",
			Severity:    SeverityHigh,
			Category:    "indemnification",
			Pattern:     regexp.MustCompile(`(?i)(shall|will|agrees?\s+to)\s+(fully\s+)?indemnif(y|ies)`),
			Except:      regexp.MustCompile(`(?i)(mutual(ly)?\s+indemnif|each\s+party\s+(shall|will|agrees?\s+to)[^.]{0,60}indemnif)`),
			Description: "Indemnification obligations run in one direction only.",
		},
		{
			ID:          "RF-003",
			Label:       "Unilateral termination",
			Severity:    SeverityHigh,
			Category:    "termination",
			Pattern:     regexp.MustCompile(`(?i)terminat(e|ion)[^.]{0,80}(at\s+(its\s+)?sole\s+discretion|for\s+any\s+reason\s+or\s+no\s+reason|without\s+(cause|notice))`),
			Except:      regexp.MustCompile(`(?i)either\s+party\s+may\s+terminat`),
			Description: "One party can walk away at will while the other is locked in.",
		},
		{
			ID:          "RF-004",
			Label:       "Broad IP assignment",
			Severity:    SeverityHigh,
			Category:    "intellectual_property",
			Pattern:     regexp.MustCompile(`(?i)(assigns?|transfers?)[^.]{0,60}all\s+(right,?\s*title,?\s*and\s+interest|intellectual\s+property)|work\s+(made\s+)?for\s+hire`),
			Description: "All intellectual property is assigned outright, including pre-existing or unrelated work.",
		},
		{
			ID:          "RF-005",
			Label:       "Missing limitation of liability",
			Severity:    SeverityMedium,
			Category:    "liability",
			Pattern:     regexp.MustCompile(`(?i)limitation\s+of\s+liability|liability\s+(is\s+|shall\s+be\s+)?(limited|capped)`),
			Except:      nil,
			Description: "No clause caps either party's damages exposure.",
		},
		{
			ID:          "RF-006",
			Label:       "Automatic renewal",
			Severity:    SeverityMedium,
			Category:    "term",
			Pattern:     regexp.MustCompile(`(?i)automatic(ally)?\s+renew|auto-?renew(al|s)?|renew(s|ed)?\s+automatically`),
			Except:      regexp.MustCompile(`(?i)shall\s+not\s+(automatically\s+)?renew`),
			Description: "The term renews automatically, often with a narrow opt-out window.",
		},
		{
			ID:          "RF-007",
			Label:       "Overbroad non-compete",
			Severity:    SeverityMedium,
			Category:    "restrictive_covenants",
			Pattern:     regexp.MustCompile(`(?i)(non-?compete|not\s+(to\s+)?compete)[^.]{0,120}((\d+|two|three|four|five)\s+years|worldwide|any\s+(business|capacity))`),
			Description: "Non-compete restrictions are broad in duration, geography, or scope.",
		},
		{
			ID:          "RF-008",
			Label:       "Perpetual confidentiality",
			Severity:    SeverityMedium,
			Category:    "confidentiality",
			Pattern:     regexp.MustCompile(`(?i)confidential(ity)?[^.]{0,80}(in\s+perpetuity|perpetual|indefinite(ly)?|survive\s+(indefinitely|forever))`),
			Description: "Confidentiality obligations never expire, even for stale information.",
		},
		{
			ID:          "RF-009",
			Label:       "Liquidated damages",
			Severity:    SeverityMedium,
			Category:    "damages",
			Pattern:     regexp.MustCompile(`(?i)liquidated\s+damages|penalty\s+of\s+\$?\d`),
			Description: "Fixed penalty amounts apply regardless of actual harm.",
		},
		{
			ID:          "RF-010",
			Label:       "Unfavorable governing law",
			Severity:    SeverityLow,
			Category:    "governing_law",
			Pattern:     regexp.MustCompile(`(?i)(exclusive\s+jurisdiction|submit[^.]{0,40}to\s+the\s+courts\s+of|venue\s+shall\s+(be|lie))`),
			Description: "Disputes must be brought in a single fixed forum.",
		},
		{
			ID:          "RF-011",
			Label:       "Extended payment terms",
			Severity:    SeverityLow,
			Category:    "payment",
			Pattern:     regexp.MustCompile(`(?i)net\s+(6\d|7\d|8\d|9\d|\d{3})|within\s+(sixty|ninety|1[0-9]0)\s+.{0,10}days\s+of\s+invoice`),
			Description: "Payment is due far beyond standard net-30 terms.",
		},
		{
			ID:          "RF-012",
			Label:       "Unilateral amendment",
			Severity:    SeverityHigh,
			Category:    "modification",
			Pattern:     regexp.MustCompile(`(?i)(may|reserves?\s+the\s+right\s+to)\s+(amend|modify|change)[^.]{0,60}(at\s+any\s+time|without\s+(prior\s+)?(notice|consent))`),
			Description: "One party can rewrite the terms without agreement from the other.",
		},
		{
			ID:          "RF-013",
			Label:       "Waiver of jury trial",
			Severity:    SeverityLow,
			Category:    "dispute_resolution",
			Pattern:     regexp.MustCompile(`(?i)waives?\s+([a-z]+\s+){0,3}(right\s+to\s+)?(a\s+)?(trial\s+by\s+)?jury|jury\s+trial\s+waiver`),
			Description: "Both parties give up the right to a jury trial.",
		},
		{
			ID:          "RF-014",
			Label:       "Assignment without consent",
			Severity:    SeverityLow,
			Category:    "assignment",
			Pattern:     regexp.MustCompile(`(?i)may\s+assign\s+this\s+agreement[^.]{0,60}without\s+([a-z]+\s+){0,3}consent`),
			Except:      regexp.MustCompile(`(?i)neither\s+party\s+may\s+assign`),
			Description: "The agreement can be handed to an arbitrary successor without approval.",
		},
	}
}

// absenceRules lists catalog rule IDs whose pattern matching is inverted: the
// rule fires when the protective language is missing from the document.
var absenceRules = map[string]bool{
	"RF-005": true,
}

// IsAbsenceRule reports whether the rule fires on missing language rather than
// present language.
func IsAbsenceRule(id string) bool {
	return absenceRules[id]
}
