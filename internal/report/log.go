package report

import (
	"context"

	"contract-backend/internal/pipeline"
	"contract-backend/internal/shared/telemetry"
)

// LogDispatcher is the local-dev fallback when no email provider is
// configured: it logs the report summary instead of sending it.
type LogDispatcher struct{}

// Send logs the report and reports the dispatch as skipped.
func (LogDispatcher) Send(ctx context.Context, result pipeline.Result, destination string) (pipeline.DispatchStatus, error) {
	_ = ctx
	telemetry.Info("report.dispatch_skipped", map[string]any{
		"destination":    destination,
		"document_id":    result.DocumentID,
		"recommendation": string(result.Recommendation),
		"risk_score":     result.RiskScore,
	})
	return pipeline.DispatchSkipped, nil
}

var _ pipeline.ReportDispatcher = LogDispatcher{}
