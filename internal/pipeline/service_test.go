package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func textUpload(name, body string) Upload {
	return Upload{FileName: name, MimeType: "text/plain", Data: []byte(body)}
}

func TestAnalyzePersistsCompletedRun(t *testing.T) {
	svc, repo := testService(t, nil)

	run, err := svc.Analyze(context.Background(), textUpload("msa.txt", contractFixture), DefaultOptions())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", run.Status)
	}
	if run.Result == nil || run.RiskScore == nil {
		t.Fatal("completed run missing result or score")
	}
	if run.Recommendation == "" {
		t.Error("completed run missing recommendation")
	}
	if run.StartedAt == nil || run.CompletedAt == nil {
		t.Error("timestamps not set")
	}

	stored, err := repo.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get stored run: %v", err)
	}
	if stored.Status != StatusCompleted || stored.Result == nil {
		t.Errorf("persisted run out of sync: %+v", stored)
	}
	if stored.RiskScore == nil || *stored.RiskScore != *run.RiskScore {
		t.Errorf("persisted score mismatch")
	}
}

func TestAnalyzeRejectsManifestInStrictMode(t *testing.T) {
	svc, repo := testService(t, nil)

	run, err := svc.Analyze(context.Background(), textUpload("requirements.txt", manifestFixture), DefaultOptions())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if run.Status != StatusRejected {
		t.Fatalf("status = %s, want rejected", run.Status)
	}
	if run.Result == nil || run.Result.Rejection == nil {
		t.Fatal("rejected run missing rejection payload")
	}
	if run.RiskScore != nil {
		t.Error("rejected run should not carry a risk score")
	}

	stored, _ := repo.Get(context.Background(), run.ID)
	if stored.Status != StatusRejected {
		t.Errorf("persisted status = %s", stored.Status)
	}
}

func TestAnalyzeUnsupportedTypeFailsRun(t *testing.T) {
	svc, repo := testService(t, nil)
	up := Upload{FileName: "photo.png", MimeType: "image/png", Data: []byte{0x89, 0x50, 0x4e, 0x47}}

	run, err := svc.Analyze(context.Background(), up, DefaultOptions())
	if err != nil {
		t.Fatalf("failed runs are recorded, not returned as errors: %v", err)
	}
	if run.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	if run.ErrorCode != CodeUnsupportedType {
		t.Errorf("error code = %s, want %s", run.ErrorCode, CodeUnsupportedType)
	}
	if run.ErrorMessage == "" {
		t.Error("error message missing")
	}

	stored, _ := repo.Get(context.Background(), run.ID)
	if stored.Status != StatusFailed || stored.ErrorCode != CodeUnsupportedType {
		t.Errorf("persisted failure out of sync: %+v", stored)
	}
}

func TestAnalyzeEmptyDocumentFailsRun(t *testing.T) {
	svc, _ := testService(t, nil)

	run, err := svc.Analyze(context.Background(), textUpload("blank.txt", "   \n\n  "), DefaultOptions())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if run.Status != StatusFailed || run.ErrorCode != CodeExtractFailed {
		t.Errorf("got %s/%s, want failed/%s", run.Status, run.ErrorCode, CodeExtractFailed)
	}
}

func TestAnalyzeValidatesInput(t *testing.T) {
	svc, _ := testService(t, nil)

	if _, err := svc.Analyze(context.Background(), Upload{FileName: "", Data: []byte("x")}, DefaultOptions()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing name: err = %v", err)
	}
	if _, err := svc.Analyze(context.Background(), Upload{FileName: "a.txt"}, DefaultOptions()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty data: err = %v", err)
	}
}

func TestReviewDispatchesInlineOnce(t *testing.T) {
	svc, _ := testService(t, nil)
	dispatcher := &stubDispatcher{}
	svc.Dispatcher = dispatcher

	opts := DefaultOptions()
	opts.RequesterEmail = "legal@example.com"

	run, status, err := svc.Review(context.Background(), textUpload("msa.txt", contractFixture), opts)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("status = %s", run.Status)
	}
	if status != DispatchSent {
		t.Errorf("dispatch status = %s, want sent", status)
	}
	if dispatcher.calls != 1 {
		t.Errorf("dispatcher called %d times, want exactly 1", dispatcher.calls)
	}
	if dispatcher.lastTo != "legal@example.com" {
		t.Errorf("dispatched to %q", dispatcher.lastTo)
	}
}

func TestReviewPrefersQueueOverInline(t *testing.T) {
	svc, _ := testService(t, nil)
	dispatcher := &stubDispatcher{}
	q := &stubQueue{}
	svc.Dispatcher = dispatcher
	svc.Queue = q
	svc.Now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) }

	opts := DefaultOptions()
	opts.RequesterEmail = "legal@example.com"
	opts.RequestID = "req-42"

	run, status, err := svc.Review(context.Background(), textUpload("msa.txt", contractFixture), opts)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if status != DispatchQueued {
		t.Fatalf("dispatch status = %s, want queued", status)
	}
	if dispatcher.calls != 0 {
		t.Errorf("inline dispatcher should not run when a queue is configured")
	}
	if len(q.sent) != 1 {
		t.Fatalf("queued %d messages, want 1", len(q.sent))
	}
	msg := q.sent[0]
	if msg.RunID != run.ID || msg.Destination != "legal@example.com" || msg.RequestID != "req-42" {
		t.Errorf("bad queue message: %+v", msg)
	}
}

func TestReviewSkipsDispatchWithoutEmail(t *testing.T) {
	svc, _ := testService(t, nil)
	dispatcher := &stubDispatcher{}
	svc.Dispatcher = dispatcher

	_, status, err := svc.Review(context.Background(), textUpload("msa.txt", contractFixture), DefaultOptions())
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if status != DispatchSkipped || dispatcher.calls != 0 {
		t.Errorf("expected skipped dispatch, got %s with %d calls", status, dispatcher.calls)
	}
}

func TestReviewSkipsDispatchForFailedRun(t *testing.T) {
	svc, _ := testService(t, nil)
	dispatcher := &stubDispatcher{}
	svc.Dispatcher = dispatcher

	opts := DefaultOptions()
	opts.RequesterEmail = "legal@example.com"
	up := Upload{FileName: "photo.png", MimeType: "image/png", Data: []byte{0x89}}

	run, status, err := svc.Review(context.Background(), up, opts)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if run.Status != StatusFailed {
		t.Fatalf("status = %s", run.Status)
	}
	if status != DispatchSkipped || dispatcher.calls != 0 {
		t.Errorf("failed run must not dispatch: %s / %d calls", status, dispatcher.calls)
	}
}

func TestReviewDispatchesRejectedRun(t *testing.T) {
	svc, _ := testService(t, nil)
	dispatcher := &stubDispatcher{}
	svc.Dispatcher = dispatcher

	opts := DefaultOptions()
	opts.RequesterEmail = "legal@example.com"

	run, status, err := svc.Review(context.Background(), textUpload("requirements.txt", manifestFixture), opts)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if run.Status != StatusRejected {
		t.Fatalf("status = %s", run.Status)
	}
	if status != DispatchSent || dispatcher.calls != 1 {
		t.Errorf("rejected runs still get a report: %s / %d calls", status, dispatcher.calls)
	}
}

func TestReviewReportsDispatchFailure(t *testing.T) {
	svc, _ := testService(t, nil)
	svc.Dispatcher = &stubDispatcher{err: errProviderDown}

	opts := DefaultOptions()
	opts.RequesterEmail = "legal@example.com"

	run, status, err := svc.Review(context.Background(), textUpload("msa.txt", contractFixture), opts)
	if err != nil {
		t.Fatalf("dispatch failure must not fail the review: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("analysis result lost: %s", run.Status)
	}
	if status != DispatchFailed {
		t.Errorf("dispatch status = %s, want failed", status)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	svc, _ := testService(t, nil)
	seq := 0
	svc.NewID = func() string { seq++; return string(rune('a'+seq-1)) + "-id" }

	first, _ := svc.Analyze(context.Background(), textUpload("one.txt", contractFixture), DefaultOptions())
	second, _ := svc.Analyze(context.Background(), textUpload("two.txt", contractFixture), DefaultOptions())

	runs, err := svc.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs", len(runs))
	}
	if runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Errorf("runs not newest-first: %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestStatsAggregatesRuns(t *testing.T) {
	svc, _ := testService(t, nil)

	if _, err := svc.Analyze(context.Background(), textUpload("msa.txt", contractFixture), DefaultOptions()); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if _, err := svc.Analyze(context.Background(), textUpload("requirements.txt", manifestFixture), DefaultOptions()); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalRuns != 2 || stats.Completed != 1 || stats.Rejected != 1 {
		t.Errorf("unexpected aggregates: %+v", stats)
	}
	if stats.ByRecommendation["reject"] != 1 {
		t.Errorf("recommendation counts: %v", stats.ByRecommendation)
	}
	if stats.AverageRiskScore <= 0 {
		t.Errorf("average risk score not computed: %f", stats.AverageRiskScore)
	}
}
