package report

import (
	"fmt"
	"html"
	"strings"

	"contract-backend/internal/pipeline"
	"contract-backend/internal/risk"
)

func badgeColor(rec risk.Recommendation) string {
	switch rec {
	case risk.RecommendReject:
		return "#c0392b"
	case risk.RecommendNegotiate:
		return "#e67e22"
	default:
		return "#27ae60"
	}
}

// HTMLBody renders the emailed report: recommendation badge, finding counts,
// the finding list with suggestions, and next steps.
func HTMLBody(result pipeline.Result) string {
	var sb strings.Builder
	sb.WriteString(`<html><body style="font-family:Arial,sans-serif;color:#2c3e50">`)
	fmt.Fprintf(&sb, `<h2>Contract Review: %s</h2>`, html.EscapeString(result.FileName))

	if result.Rejection != nil {
		fmt.Fprintf(&sb, `<p><b>Not analyzed.</b> %s (category: %s, confidence %.2f)</p>`,
			html.EscapeString(result.Rejection.Message), result.Rejection.Category, result.Rejection.Confidence)
		sb.WriteString(`</body></html>`)
		return sb.String()
	}

	fmt.Fprintf(&sb,
		`<p><span style="background:%s;color:#fff;padding:4px 12px;border-radius:4px;font-weight:bold">%s</span>
		 &nbsp; Risk score: <b>%d</b> &nbsp; Findings: %d high / %d medium / %d low</p>`,
		badgeColor(result.Recommendation), strings.ToUpper(string(result.Recommendation)),
		result.RiskScore, result.HighCount, result.MediumCount, result.LowCount)

	if result.Summary != "" {
		fmt.Fprintf(&sb, `<p>%s</p>`, html.EscapeString(result.Summary))
	}

	if len(result.Findings) > 0 {
		sb.WriteString(`<h3>Findings</h3><ul>`)
		for _, f := range result.Findings {
			fmt.Fprintf(&sb, `<li><b>%s</b> [%s]`, html.EscapeString(f.Label), f.Severity)
			if f.Excerpt != "" {
				fmt.Fprintf(&sb, `<br><i>%s</i>`, html.EscapeString(f.Excerpt))
			}
			if f.Suggestion != "" {
				fmt.Fprintf(&sb, `<br>Suggested: %s`, html.EscapeString(f.Suggestion))
			}
			sb.WriteString(`</li>`)
		}
		sb.WriteString(`</ul>`)
	}

	if len(result.NextSteps) > 0 {
		sb.WriteString(`<h3>Next steps</h3><ol>`)
		for _, step := range result.NextSteps {
			fmt.Fprintf(&sb, `<li>%s</li>`, html.EscapeString(step))
		}
		sb.WriteString(`</ol>`)
	}

	sb.WriteString(`</body></html>`)
	return sb.String()
}
