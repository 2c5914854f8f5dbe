package detect

import (
	"regexp"
	"sort"

	"contract-backend/internal/normalize"
)

// Category is the document class assigned by the detector.
type Category string

const (
	CategoryContract  Category = "contract"
	CategoryLegalForm Category = "legal_form"
	CategoryNonLegal  Category = "non_legal"
	CategoryAmbiguous Category = "ambiguous"
)

// Classification is the detector verdict with the evidence behind it.
type Classification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Rationale  []string `json:"rationale"`
}

// Config holds the detector weights and decision thresholds. Values are fixed
// at construction; the detector itself is stateless and safe for concurrent use.
type Config struct {
	TerminologyWeight float64
	StructureWeight   float64
	NegativePenalty   float64
	FileNameBonus     float64

	ContractThreshold  float64
	LegalFormThreshold float64
	NonLegalThreshold  float64
}

// DefaultConfig returns the production detector tuning.
func DefaultConfig() Config {
	return Config{
		TerminologyWeight:  0.6,
		StructureWeight:    0.4,
		NegativePenalty:    0.65,
		FileNameBonus:      0.1,
		ContractThreshold:  0.75,
		LegalFormThreshold: 0.45,
		NonLegalThreshold:  0.20,
	}
}

// Detector classifies extracted document text before any expensive pipeline
// stage runs.
type Detector struct {
	cfg Config
}

func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

type signal struct {
	re  *regexp.Regexp
	tag string
}

// Terminology signals: contract vocabulary. Score is distinct-hit density, so
// a stray "agreement" in an email does not move the needle much.
var termSignals = []signal{
	{regexp.MustCompile(`(?i)\bagreement\b`), "term:agreement"},
	{regexp.MustCompile(`(?i)\bpart(y|ies)\b`), "term:party"},
	{regexp.MustCompile(`(?i)\bhereinafter\b`), "term:hereinafter"},
	{regexp.MustCompile(`(?i)\bindemnif(y|ies|ication)\b`), "term:indemnify"},
	{regexp.MustCompile(`(?i)\bliabilit(y|ies)\b`), "term:liability"},
	{regexp.MustCompile(`(?i)\bwarrant(y|ies|s)\b`), "term:warranty"},
	{regexp.MustCompile(`(?i)\bgoverning law\b`), "term:governing_law"},
	{regexp.MustCompile(`(?i)\bconfidential(ity)?\b`), "term:confidentiality"},
	{regexp.MustCompile(`(?i)\bterminat(e|ion)\b`), "term:termination"},
	{regexp.MustCompile(`(?i)\bconsideration\b`), "term:consideration"},
	{regexp.MustCompile(`(?i)\bobligations?\b`), "term:obligations"},
	{regexp.MustCompile(`(?i)\bdisclos(e|ure)\b`), "term:disclosure"},
	{regexp.MustCompile(`(?i)\bbreach\b`), "term:breach"},
	{regexp.MustCompile(`(?i)\bremed(y|ies)\b`), "term:remedies"},
	{regexp.MustCompile(`(?i)\bjurisdiction\b`), "term:jurisdiction"},
	{regexp.MustCompile(`(?i)\bseverability\b`), "term:severability"},
}

// termDenominator tunes how many distinct terms count as full density.
const termDenominator = 12.0

// Structure signals: layout markers that distinguish executed contracts and
// legal boilerplate from prose that merely talks about contracts.
var structSignals = []signal{
	{regexp.MustCompile(`(?m)^\s*\d+(\.\d+)*[.)]?\s+[A-Z]`), "structure:numbered_clauses"},
	{regexp.MustCompile(`(?i)\bWHEREAS\b`), "structure:recitals"},
	{regexp.MustCompile(`(?i)IN WITNESS WHEREOF`), "structure:witness_block"},
	{regexp.MustCompile(`(?i)(signature|signed by|^By:)`), "structure:signature_block"},
	{regexp.MustCompile(`(?i)\bby and between\b`), "structure:party_definition"},
	{regexp.MustCompile(`(?i)(?:^|\n)\s*(ARTICLE|Section)\s+[IVXLC\d]`), "structure:sectioning"},
}

const structDenominator = 4.0

// Negative signals: evidence the document is source code, a dependency
// manifest, or coursework. These penalize confidence multiplicatively rather
// than vetoing, so hybrid documents land in ambiguous instead of non_legal.
var negSignals = []signal{
	{regexp.MustCompile(`(?m)^\s*(func|def|class|import|package)\s+\w`), "negative:code_markers"},
	{regexp.MustCompile(`(?m)^\s*[\w.\-]+==\d+[\w.]*\s*$`), "negative:dependency_manifest"},
	{regexp.MustCompile(`(?m)^\s*"dependencies"\s*:`), "negative:dependency_manifest"},
	{regexp.MustCompile(`(?m)^\s*require\s*\(`), "negative:dependency_manifest"},
	{regexp.MustCompile(`[{};]\s*\n\s*[}{]`), "negative:code_markers"},
	{regexp.MustCompile(`(?i)\b(homework|problem set|due date|syllabus|lecture notes)\b`), "negative:coursework"},
	{regexp.MustCompile(`(?i)\b(invoice number|purchase order|qty|unit price)\b`), "negative:billing_document"},
	{regexp.MustCompile(`(?m)^#!/`), "negative:code_markers"},
}

const negDenominator = 3.0

var fileNameHintRe = regexp.MustCompile(`(?i)(contract|agreement|nda|msa|sow|terms)`)

// Classify scores text against the three signal families and maps the combined
// confidence onto a category. fileName is an optional hint; an empty string is
// fine.
func (d *Detector) Classify(text, fileName string) Classification {
	flat := normalize.Flatten(text)

	termScore, termTags := scoreFamily(termSignals, flat, termDenominator)
	// Structure patterns are line-anchored, so they run on the original text.
	structScore, structTags := scoreFamily(structSignals, text, structDenominator)
	negScore, negTags := scoreFamily(negSignals, text, negDenominator)

	tags := append([]string{}, termTags...)
	tags = append(tags, structTags...)
	tags = append(tags, negTags...)

	if fileName != "" && fileNameHintRe.MatchString(fileName) {
		termScore = clamp01(termScore + d.cfg.FileNameBonus)
		tags = append(tags, "hint:file_name")
	}

	confidence := (d.cfg.TerminologyWeight*termScore + d.cfg.StructureWeight*structScore) *
		(1 - d.cfg.NegativePenalty*negScore)
	confidence = clamp01(confidence)

	sort.Strings(tags)
	tags = dedupe(tags)

	return Classification{
		Category:   d.categorize(confidence, len(structTags)),
		Confidence: confidence,
		Rationale:  tags,
	}
}

func (d *Detector) categorize(confidence float64, structuralHits int) Category {
	switch {
	case confidence >= d.cfg.ContractThreshold:
		return CategoryContract
	case confidence < d.cfg.NonLegalThreshold:
		return CategoryNonLegal
	case confidence >= d.cfg.LegalFormThreshold && structuralHits > 0:
		return CategoryLegalForm
	default:
		return CategoryAmbiguous
	}
}

func scoreFamily(signals []signal, text string, denominator float64) (float64, []string) {
	var tags []string
	seen := map[string]bool{}
	hits := 0
	for _, s := range signals {
		if !s.re.MatchString(text) {
			continue
		}
		hits++
		if !seen[s.tag] {
			seen[s.tag] = true
			tags = append(tags, s.tag)
		}
	}
	return clamp01(float64(hits) / denominator), tags
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || sorted[i-1] != s {
			out = append(out, s)
		}
	}
	return out
}
