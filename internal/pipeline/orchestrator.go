package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"contract-backend/internal/detect"
	"contract-backend/internal/knowledge"
	"contract-backend/internal/normalize"
	"contract-backend/internal/risk"
	"contract-backend/internal/shared/telemetry"
	"contract-backend/internal/suggest"
)

// Orchestrator drives a document through detect, retrieve-and-score, and
// suggest. It holds no per-run state; Execute may be called concurrently.
type Orchestrator struct {
	Detector  *detect.Detector
	Retriever *knowledge.Retriever
	Scorer    *risk.Scorer
	Suggester *suggest.Generator

	// RetrievalConcurrency bounds the per-clause retrieval fan-out.
	RetrievalConcurrency int
}

// Execute runs the pipeline for one document. A nil error with a non-nil
// Rejection on the result means the run was rejected at the detection gate.
// Returned errors are run-fatal (extraction never reaches here, so in practice
// that means cancellation).
func (o *Orchestrator) Execute(ctx context.Context, doc Document, opts Options) (*Result, error) {
	result := &Result{
		DocumentID:  doc.ID,
		FileName:    doc.FileName,
		StageErrors: map[string]string{},
	}

	// Stage: detect.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cls := o.Detector.Classify(doc.NormalizedText, doc.FileName)
	result.Classification = cls
	telemetry.Info("pipeline.stage.detect", map[string]any{
		"document_id": doc.ID,
		"category":    string(cls.Category),
		"confidence":  cls.Confidence,
	})

	improvement := false
	switch cls.Category {
	case detect.CategoryContract:
	case detect.CategoryLegalForm, detect.CategoryAmbiguous:
		improvement = true
	case detect.CategoryNonLegal:
		if opts.StrictMode {
			result.Rejection = &Rejection{
				Category:   cls.Category,
				Confidence: cls.Confidence,
				Rationale:  cls.Rationale,
				Message:    "document does not appear to be a contract or legal text",
			}
			result.StageErrors = nil
			return result, nil
		}
		improvement = true
	}
	result.ImprovementMode = improvement

	// Stage: retrieve_and_score. Retrieval fans out per clause and joins
	// before any scoring happens; a failing searcher degrades to no matches.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clauses := normalize.SplitClauses(doc.NormalizedText)
	clauseMatches, retrieveErr := o.retrieveAll(ctx, clauses, opts)
	if retrieveErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.StageErrors[string(StageRetrieveAndScore)] = sanitizeError(retrieveErr)
	}

	assessment := o.Scorer.Score(risk.Input{
		Text:            doc.NormalizedText,
		Clauses:         clauses,
		ClauseMatches:   clauseMatches,
		ImprovementMode: improvement,
	})
	result.ContractType = assessment.ContractType
	result.TypeConfidence = assessment.TypeConfidence
	result.Findings = assessment.Findings
	result.RiskScore = assessment.Score
	result.HighCount = assessment.HighCount
	result.MediumCount = assessment.MediumCount
	result.LowCount = assessment.LowCount
	result.Recommendation = assessment.Recommendation
	telemetry.Info("pipeline.stage.retrieve_and_score", map[string]any{
		"document_id":    doc.ID,
		"clauses":        len(clauses),
		"findings":       len(assessment.Findings),
		"risk_score":     assessment.Score,
		"recommendation": string(assessment.Recommendation),
	})

	// Stage: suggest. Capability failure leaves findings without suggestions
	// and marks the stage degraded; only cancellation aborts.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.Suggester != nil && len(result.Findings) > 0 {
		annotated, err := o.Suggester.Annotate(ctx, result.Findings)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.StageErrors[StageErrorSuggestion] = sanitizeError(err)
		}
		result.Findings = annotated
	}

	result.Summary = buildSummary(result)
	result.NextSteps = buildNextSteps(result)
	result.RedlineSections = redlineSections(result.Findings)

	if len(result.StageErrors) == 0 {
		result.StageErrors = nil
	}
	return result, nil
}

// retrieveAll fetches knowledge matches for every clause with bounded
// concurrency. The returned slice is parallel to clauses. The error is the
// joined set of per-clause retrieval failures; matches for failed clauses stay
// empty.
func (o *Orchestrator) retrieveAll(ctx context.Context, clauses []normalize.Clause, opts Options) ([][]knowledge.Match, error) {
	out := make([][]knowledge.Match, len(clauses))
	if o.Retriever == nil || len(clauses) == 0 {
		return out, nil
	}

	retriever := *o.Retriever
	if opts.TopKPrecedents > 0 {
		retriever.TopK = opts.TopKPrecedents
		if retriever.TopK > knowledge.MaxTopK {
			retriever.TopK = knowledge.MaxTopK
		}
	}

	limit := o.RetrievalConcurrency
	if limit <= 0 {
		limit = 4
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	errs := make([]error, len(clauses))
	for i := range clauses {
		i := i
		group.Go(func() error {
			matches, err := retriever.Retrieve(groupCtx, clauses[i].Text)
			if err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				errs[i] = fmt.Errorf("clause %d: %w", i, err)
				return nil
			}
			out[i] = matches
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return out, err
	}

	var parts []string
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	if len(parts) > 0 {
		return out, fmt.Errorf("retrieval degraded: %s", strings.Join(parts, "; "))
	}
	return out, nil
}

func buildSummary(r *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reviewed %q as %s", r.FileName, r.Classification.Category)
	if r.ContractType != "" && r.ContractType != risk.TypeGeneral {
		fmt.Fprintf(&sb, " (%s)", r.ContractType)
	}
	fmt.Fprintf(&sb, ": %d findings (%d high, %d medium, %d low), risk score %d.",
		len(r.Findings), r.HighCount, r.MediumCount, r.LowCount, r.RiskScore)
	switch r.Recommendation {
	case risk.RecommendReject:
		sb.WriteString(" Recommendation: REJECT — do not sign in current form.")
	case risk.RecommendNegotiate:
		sb.WriteString(" Recommendation: NEGOTIATE — resolve flagged terms before signing.")
	case risk.RecommendApprove:
		sb.WriteString(" Recommendation: APPROVE — acceptable risk profile.")
	}
	return sb.String()
}

func buildNextSteps(r *Result) []string {
	var steps []string
	if r.HighCount > 0 {
		steps = append(steps, fmt.Sprintf("Escalate %d high-severity findings to counsel", r.HighCount))
	}
	if r.MediumCount > 0 {
		steps = append(steps, "Prepare negotiation positions for medium-severity terms")
	}

	var all []knowledge.Match
	for _, f := range r.Findings {
		all = append(all, f.Matches...)
	}
	for _, rec := range knowledge.Recommendations(all) {
		if len(steps) >= 6 {
			break
		}
		steps = append(steps, rec)
	}

	if len(steps) == 0 && r.Recommendation == risk.RecommendApprove {
		steps = append(steps, "Proceed to signature; no blocking terms found")
	}
	return steps
}

// redlineSections lists the clauses to mark up first, driven by high findings.
func redlineSections(findings []risk.Finding) []string {
	var out []string
	seen := map[string]bool{}
	for _, f := range findings {
		if f.Severity != risk.SeverityHigh {
			continue
		}
		section := f.ClauseHeading
		if section == "" {
			section = f.Label
		}
		if seen[section] {
			continue
		}
		seen[section] = true
		out = append(out, section)
	}
	return out
}
