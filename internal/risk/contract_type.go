package risk

import "regexp"

// ContractType is a coarse classification used to pick the expected-clause set
// in improvement mode.
type ContractType string

const (
	TypeNDA        ContractType = "nda"
	TypeService    ContractType = "service_agreement"
	TypeEmployment ContractType = "employment"
	TypeGeneral    ContractType = "general"
)

var contractTypeSignals = map[ContractType][]*regexp.Regexp{
	TypeNDA: {
		regexp.MustCompile(`(?i)non-?disclosure`),
		regexp.MustCompile(`(?i)confidential\s+information`),
		regexp.MustCompile(`(?i)(disclosing|receiving)\s+party`),
	},
	TypeService: {
		regexp.MustCompile(`(?i)(services?\s+agreement|statement\s+of\s+work|scope\s+of\s+(services|work))`),
		regexp.MustCompile(`(?i)deliverables?`),
		regexp.MustCompile(`(?i)(fees|invoic)`),
	},
	TypeEmployment: {
		regexp.MustCompile(`(?i)(employment|employee|employer)`),
		regexp.MustCompile(`(?i)(salary|compensation|benefits)`),
		regexp.MustCompile(`(?i)(position|duties|job\s+title)`),
	},
}

// IdentifyContractType scores the document against per-type signal sets and
// returns the best type with a confidence in [0, 1]. Documents matching
// nothing strongly come back as general.
func IdentifyContractType(text string) (ContractType, float64) {
	best := TypeGeneral
	bestScore := 0
	bestTotal := 1

	for _, ct := range []ContractType{TypeNDA, TypeService, TypeEmployment} {
		signals := contractTypeSignals[ct]
		hits := 0
		for _, re := range signals {
			if re.MatchString(text) {
				hits++
			}
		}
		if hits > bestScore {
			best, bestScore, bestTotal = ct, hits, len(signals)
		}
	}

	if bestScore < 2 {
		return TypeGeneral, 0
	}
	return best, float64(bestScore) / float64(bestTotal)
}

// expectedClause is protective language a contract of a given type should
// carry. Missing clauses surface as medium findings in improvement mode.
type expectedClause struct {
	ID      string
	Label   string
	Pattern *regexp.Regexp
}

var expectedClauses = map[ContractType][]expectedClause{
	TypeNDA: {
		{"MC-101", "Definition of confidential information", regexp.MustCompile(`(?i)confidential\s+information\s+(means|shall\s+mean|includes)`)},
		{"MC-102", "Term of confidentiality", regexp.MustCompile(`(?i)(term|period)\s+of\s+(this\s+agreement|confidentiality)|for\s+a\s+period\s+of`)},
		{"MC-103", "Return or destruction of materials", regexp.MustCompile(`(?i)(return|destroy)[^.]{0,60}(confidential|materials|information)`)},
	},
	TypeService: {
		{"MC-201", "Scope of services", regexp.MustCompile(`(?i)scope\s+of\s+(services|work)|services\s+to\s+be\s+(provided|performed)`)},
		{"MC-202", "Payment terms", regexp.MustCompile(`(?i)(payment\s+terms|fees\s+(are|shall)|net\s+\d+)`)},
		{"MC-203", "Termination provisions", regexp.MustCompile(`(?i)terminat(e|ion)`)},
		{"MC-204", "Limitation of liability", regexp.MustCompile(`(?i)limitation\s+of\s+liability|liability\s+(is\s+|shall\s+be\s+)?(limited|capped)`)},
	},
	TypeEmployment: {
		{"MC-301", "Compensation terms", regexp.MustCompile(`(?i)(salary|compensation)\s+(of|shall|is)`)},
		{"MC-302", "Termination and notice", regexp.MustCompile(`(?i)terminat(e|ion)[^.]{0,60}notice`)},
		{"MC-303", "Benefits description", regexp.MustCompile(`(?i)benefits`)},
	},
}

// ExpectedClauseFindings returns medium findings for each protective clause
// the document type expects but the text lacks. Only meaningful for documents
// already classified as contracts.
func ExpectedClauseFindings(text string, ct ContractType, weights Weights) []Finding {
	var out []Finding
	for _, ec := range expectedClauses[ct] {
		if ec.Pattern.MatchString(text) {
			continue
		}
		out = append(out, Finding{
			RuleID:   ec.ID,
			Label:    "Missing clause: " + ec.Label,
			Severity: SeverityMedium,
			Weight:   weights.Of(SeverityMedium),
			Category: "missing_clause",
		})
	}
	return out
}
