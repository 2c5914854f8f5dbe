package pipeline

import (
	"time"

	"contract-backend/internal/detect"
	"contract-backend/internal/risk"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// Stage names the pipeline step a run is in, and keys stage_errors entries.
type Stage string

const (
	StageExtract          Stage = "extract"
	StageDetect           Stage = "detect"
	StageRetrieveAndScore Stage = "retrieve_and_score"
	StageSuggest          Stage = "suggest"
	StageDispatch         Stage = "dispatch"
)

// StageErrorSuggestion keys degraded suggestion generation in
// Result.StageErrors. The run stage itself is named "suggest"; the recorded
// error key uses the longer form consumed by reports and stats.
const StageErrorSuggestion = "suggestion"

// Document is the normalized input to one pipeline run. Immutable after
// creation; exactly one run owns it.
type Document struct {
	ID             string `json:"id"`
	FileName       string `json:"file_name"`
	StorageKey     string `json:"storage_key,omitempty"`
	MimeType       string `json:"mime_type"`
	ByteSize       int64  `json:"byte_size"`
	NormalizedText string `json:"-"`
}

// Rejection explains why a run was rejected at the detection gate.
type Rejection struct {
	Category   detect.Category `json:"category"`
	Confidence float64         `json:"confidence"`
	Rationale  []string        `json:"rationale"`
	Message    string          `json:"message"`
}

// Result is the finalized assessment for one document. Immutable once the run
// completes; this is the unit handed to report dispatch.
type Result struct {
	DocumentID      string                `json:"document_id"`
	FileName        string                `json:"file_name"`
	Classification  detect.Classification `json:"classification"`
	ContractType    risk.ContractType     `json:"contract_type,omitempty"`
	TypeConfidence  float64               `json:"type_confidence,omitempty"`
	ImprovementMode bool                  `json:"improvement_mode,omitempty"`
	Findings        []risk.Finding        `json:"findings"`
	RiskScore       int                   `json:"risk_score"`
	HighCount       int                   `json:"high_count"`
	MediumCount     int                   `json:"medium_count"`
	LowCount        int                   `json:"low_count"`
	Recommendation  risk.Recommendation   `json:"recommendation,omitempty"`
	Summary         string                `json:"summary,omitempty"`
	NextSteps       []string              `json:"next_steps,omitempty"`
	RedlineSections []string              `json:"redline_sections,omitempty"`
	Rejection       *Rejection            `json:"rejection,omitempty"`
	StageErrors     map[string]string     `json:"stage_errors,omitempty"`
}

// Run is the persisted record of one pipeline execution.
type Run struct {
	ID             string              `json:"id"`
	DocumentID     string              `json:"document_id"`
	FileName       string              `json:"file_name"`
	Status         Status              `json:"status"`
	Stage          Stage               `json:"stage,omitempty"`
	Recommendation risk.Recommendation `json:"recommendation,omitempty"`
	RiskScore      *int                `json:"risk_score,omitempty"`
	Result         *Result             `json:"result,omitempty"`
	ErrorCode      string              `json:"error_code,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// Options tunes a single run.
type Options struct {
	StrictMode      bool
	Jurisdiction    string
	TopKPrecedents  int
	RequesterEmail  string
	RequestID       string
}

// DefaultOptions returns the per-run defaults used when the caller supplies
// nothing: strict detection gate, service-level top-k.
func DefaultOptions() Options {
	return Options{StrictMode: true}
}

// Stats is the aggregate view served by pipeline_stats.
type Stats struct {
	TotalRuns        int64               `json:"total_runs"`
	Completed        int64               `json:"completed"`
	Rejected         int64               `json:"rejected"`
	Failed           int64               `json:"failed"`
	ByRecommendation map[string]int64    `json:"by_recommendation"`
	AverageRiskScore float64             `json:"average_risk_score"`
	StageFailures    map[string]int64    `json:"stage_failures"`
}
