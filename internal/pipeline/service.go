package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"contract-backend/internal/extract"
	"contract-backend/internal/normalize"
	"contract-backend/internal/queue"
	"contract-backend/internal/shared/metrics"
	"contract-backend/internal/shared/storage/object"
	"contract-backend/internal/shared/telemetry"
)

// DispatchStatus reports what happened to a run's report.
type DispatchStatus string

const (
	DispatchSent    DispatchStatus = "sent"
	DispatchQueued  DispatchStatus = "queued"
	DispatchFailed  DispatchStatus = "failed"
	DispatchSkipped DispatchStatus = "skipped"
)

// ReportDispatcher delivers a finalized result to a destination address.
type ReportDispatcher interface {
	Send(ctx context.Context, result Result, destination string) (DispatchStatus, error)
}

// Upload is one file received from a client.
type Upload struct {
	FileName string
	MimeType string
	Data     []byte
}

// Service coordinates storage, extraction, the orchestrator, persistence, and
// report dispatch for pipeline runs.
type Service struct {
	Repo         Repo
	Store        object.ObjectStore
	Orchestrator *Orchestrator
	Queue        queue.Client
	Dispatcher   ReportDispatcher
	TopKDefault  int
	Now          func() time.Time
	NewID        func() string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// Analyze runs the full pipeline synchronously for one upload and persists the
// run. The returned run carries the result for completed and rejected runs and
// the error code for failed ones; err is only non-nil for input validation and
// infrastructure failures that prevented a run from being recorded.
func (s *Service) Analyze(ctx context.Context, up Upload, opts Options) (Run, error) {
	if strings.TrimSpace(up.FileName) == "" {
		return Run{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if len(up.Data) == 0 {
		return Run{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}
	if opts.TopKPrecedents <= 0 {
		opts.TopKPrecedents = s.TopKDefault
	}

	docID := s.newID()
	run := Run{
		ID:         s.newID(),
		DocumentID: docID,
		FileName:   up.FileName,
		Status:     StatusPending,
		CreatedAt:  s.now(),
	}
	if err := s.Repo.Insert(ctx, run); err != nil {
		return Run{}, fmt.Errorf("persist run: %w", err)
	}
	metrics.IncRunStarted()

	startedAt := s.now()
	if err := s.Repo.MarkRunning(ctx, run.ID, StageExtract, startedAt); err != nil {
		telemetry.Error("pipeline.mark_running_failed", map[string]any{"run_id": run.ID, "error": err.Error()})
	}
	run.Status = StatusRunning
	run.StartedAt = &startedAt

	doc, err := s.buildDocument(ctx, docID, up)
	if err != nil {
		return s.failRun(ctx, run, err)
	}

	if err := s.Repo.UpdateStage(ctx, run.ID, StageDetect); err != nil {
		telemetry.Error("pipeline.update_stage_failed", map[string]any{"run_id": run.ID, "error": err.Error()})
	}

	result, err := s.Orchestrator.Execute(ctx, doc, opts)
	if err != nil {
		return s.failRun(ctx, run, err)
	}

	return s.finishRun(ctx, run, result, startedAt)
}

// Review runs Analyze and then dispatches the report exactly once. Dispatch
// failure never masks the analysis result; it is surfaced in the returned
// status.
func (s *Service) Review(ctx context.Context, up Upload, opts Options) (Run, DispatchStatus, error) {
	run, err := s.Analyze(ctx, up, opts)
	if err != nil {
		return run, DispatchSkipped, err
	}
	status := s.dispatch(ctx, run, opts)
	return run, status, nil
}

func (s *Service) dispatch(ctx context.Context, run Run, opts Options) DispatchStatus {
	if run.Result == nil || strings.TrimSpace(opts.RequesterEmail) == "" {
		return DispatchSkipped
	}
	if run.Status != StatusCompleted && run.Status != StatusRejected {
		return DispatchSkipped
	}

	if s.Queue != nil {
		msg := queue.Message{
			RunID:       run.ID,
			Destination: opts.RequesterEmail,
			RequestID:   opts.RequestID,
			EnqueuedAt:  s.now().Format(time.RFC3339),
			Version:     1,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			telemetry.Error("pipeline.dispatch_enqueue_failed", map[string]any{"run_id": run.ID, "error": err.Error()})
			metrics.IncStageError(string(StageDispatch))
			return DispatchFailed
		}
		telemetry.Info("pipeline.dispatch_enqueued", map[string]any{"run_id": run.ID})
		return DispatchQueued
	}

	if s.Dispatcher == nil {
		return DispatchSkipped
	}
	status, err := s.Dispatcher.Send(ctx, *run.Result, opts.RequesterEmail)
	if err != nil {
		telemetry.Error("pipeline.dispatch_failed", map[string]any{"run_id": run.ID, "error": err.Error()})
		metrics.IncStageError(string(StageDispatch))
		return DispatchFailed
	}
	telemetry.Info("pipeline.dispatch_done", map[string]any{"run_id": run.ID, "status": string(status)})
	return status
}

// GetRun returns one run by id.
func (s *Service) GetRun(ctx context.Context, id string) (Run, error) {
	if strings.TrimSpace(id) == "" {
		return Run{}, fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}
	return s.Repo.Get(ctx, id)
}

// ListRuns returns recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return s.Repo.List(ctx, limit)
}

// Stats returns pipeline aggregates.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.Repo.Stats(ctx)
}

func (s *Service) buildDocument(ctx context.Context, docID string, up Upload) (Document, error) {
	var storageKey string
	var mimeType = up.MimeType
	var size = int64(len(up.Data))

	if s.Store != nil {
		key, storedSize, sniffed, err := s.Store.Save(ctx, up.FileName, bytes.NewReader(up.Data))
		if err != nil {
			return Document{}, fmt.Errorf("store upload: %w", err)
		}
		storageKey = key
		size = storedSize
		if sniffed != "" && sniffed != "application/octet-stream" {
			mimeType = sniffed
		}
	}

	text, err := extract.ExtractTextFromBytes(ctx, up.Data, mimeType, up.FileName)
	if err != nil {
		return Document{}, err
	}

	return Document{
		ID:             docID,
		FileName:       up.FileName,
		StorageKey:     storageKey,
		MimeType:       mimeType,
		ByteSize:       size,
		NormalizedText: normalize.Clean(text),
	}, nil
}

func (s *Service) failRun(ctx context.Context, run Run, cause error) (Run, error) {
	completedAt := s.now()
	run.Status = StatusFailed
	run.ErrorCode = classifyFailure(cause)
	run.ErrorMessage = sanitizeError(cause)
	run.CompletedAt = &completedAt

	if err := s.Repo.Finish(ctx, run); err != nil {
		telemetry.Error("pipeline.finish_failed", map[string]any{"run_id": run.ID, "error": err.Error()})
	}
	metrics.IncRunFailed()
	telemetry.Error("pipeline.run_failed", map[string]any{
		"run_id":     run.ID,
		"error_code": run.ErrorCode,
		"error":      run.ErrorMessage,
	})
	return run, nil
}

func (s *Service) finishRun(ctx context.Context, run Run, result *Result, startedAt time.Time) (Run, error) {
	completedAt := s.now()
	run.Result = result
	run.CompletedAt = &completedAt
	run.Stage = StageSuggest

	if result.Rejection != nil {
		run.Status = StatusRejected
		run.Stage = StageDetect
		metrics.IncRunRejected()
	} else {
		run.Status = StatusCompleted
		run.Recommendation = result.Recommendation
		score := result.RiskScore
		run.RiskScore = &score
		metrics.IncRunCompleted()
		metrics.IncRecommendation(string(result.Recommendation))
		metrics.ObserveRiskScore(result.RiskScore)
	}
	for stage := range result.StageErrors {
		metrics.IncStageError(stage)
	}
	metrics.ObserveRunDurationMs(float64(completedAt.Sub(startedAt).Milliseconds()))

	if err := s.Repo.Finish(ctx, run); err != nil {
		telemetry.Error("pipeline.finish_failed", map[string]any{"run_id": run.ID, "error": err.Error()})
	}
	telemetry.Info("pipeline.run_finished", map[string]any{
		"run_id":         run.ID,
		"status":         string(run.Status),
		"risk_score":     result.RiskScore,
		"recommendation": string(result.Recommendation),
	})
	return run, nil
}
