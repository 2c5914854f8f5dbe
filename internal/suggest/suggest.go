package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"contract-backend/internal/llm"
	"contract-backend/internal/risk"
	"contract-backend/internal/shared/telemetry"
)

const (
	defaultConcurrency = 4
	defaultCallTimeout = 30 * time.Second
	retryBackoff       = 500 * time.Millisecond
)

// Generator drafts replacement clause language for medium and high findings.
// Low findings are left without a suggestion rather than spending an LLM call.
type Generator struct {
	Client      llm.Client
	Concurrency int
	CallTimeout time.Duration
}

func NewGenerator(client llm.Client, concurrency int, callTimeout time.Duration) *Generator {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Generator{Client: client, Concurrency: concurrency, CallTimeout: callTimeout}
}

// Annotate fills the Suggestion field on a copy of findings. Calls fan out
// with bounded concurrency; each call gets a timeout and one retry. Individual
// failures leave the finding without a suggestion and are reported through the
// returned error so the caller can record the stage as degraded. Order is
// preserved.
func (g *Generator) Annotate(ctx context.Context, findings []risk.Finding) ([]risk.Finding, error) {
	out := make([]risk.Finding, len(findings))
	copy(out, findings)

	if g.Client == nil {
		return out, llm.ErrNotConfigured
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.Concurrency)

	failures := make([]error, len(out))
	for i := range out {
		if out[i].Severity == risk.SeverityLow {
			out[i].Suggestion = ""
			continue
		}
		i := i
		group.Go(func() error {
			suggestion, err := g.generateOne(groupCtx, out[i])
			if err != nil {
				// Cancellation must propagate so the whole run can stop;
				// everything else is a degraded finding.
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				failures[i] = fmt.Errorf("%s: %w", out[i].RuleID, err)
				return nil
			}
			out[i].Suggestion = suggestion
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return out, err
	}

	var failed []error
	for _, err := range failures {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		telemetry.Warn("suggest.partial_failure", map[string]any{
			"failed": len(failed), "total": len(findings),
		})
		return out, errors.Join(failed...)
	}
	return out, nil
}

func (g *Generator) generateOne(ctx context.Context, f risk.Finding) (string, error) {
	prompt := BuildPrompt(f)

	suggestion, err := g.callOnce(ctx, prompt)
	if err == nil {
		return suggestion, nil
	}
	if errors.Is(err, llm.ErrNotConfigured) || ctx.Err() != nil {
		return "", err
	}

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.callOnce(ctx, prompt)
}

func (g *Generator) callOnce(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.CallTimeout)
	defer cancel()

	raw, err := g.Client.Complete(callCtx, prompt)
	if err != nil {
		return "", err
	}
	suggestion := strings.TrimSpace(raw)
	if suggestion == "" {
		return "", errors.New("empty suggestion")
	}
	return suggestion, nil
}

// BuildPrompt assembles the drafting prompt for one finding: the flagged
// language, why it was flagged, and the most relevant precedent snippets.
func BuildPrompt(f risk.Finding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A contract review flagged the issue %q (severity: %s, category: %s).\n", f.Label, f.Severity, f.Category)
	if f.ClauseHeading != "" {
		fmt.Fprintf(&sb, "Clause: %s\n", f.ClauseHeading)
	}
	if f.Excerpt != "" {
		fmt.Fprintf(&sb, "Flagged language:\n%s\n", f.Excerpt)
	}
	if len(f.Matches) > 0 {
		sb.WriteString("Relevant guidance:\n")
		for _, m := range f.Matches {
			fmt.Fprintf(&sb, "- [%s] %s\n", m.RuleID, m.RuleText)
		}
	}
	sb.WriteString("Draft a balanced replacement clause that resolves the issue.")
	return sb.String()
}
