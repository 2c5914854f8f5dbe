package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO pipeline_runs").
		WithArgs("run-1", "doc-1", "msa.pdf", "pending", "", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := Run{
		ID:         "run-1",
		DocumentID: "doc-1",
		FileName:   "msa.pdf",
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.Insert(context.Background(), run); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGGetScansRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	completed := created.Add(2 * time.Second)
	resultJSON := `{"document_id":"doc-1","file_name":"msa.pdf","risk_score":65,` +
		`"recommendation":"negotiate","findings":[],"stage_errors":{"suggestion":"provider down"}}`

	rows := sqlmock.NewRows([]string{
		"id", "document_id", "file_name", "status", "stage", "recommendation",
		"risk_score", "result", "error_code", "error_message", "created_at", "started_at", "completed_at",
	}).AddRow("run-1", "doc-1", "msa.pdf", "completed", "suggest", "negotiate",
		65, []byte(resultJSON), nil, nil, created, created, completed)
	mock.ExpectQuery("SELECT (.+) FROM pipeline_runs WHERE id").
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := repo.Get(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run.Status != StatusCompleted || run.Stage != StageSuggest {
		t.Errorf("status/stage = %s/%s", run.Status, run.Stage)
	}
	if run.RiskScore == nil || *run.RiskScore != 65 {
		t.Errorf("risk score = %v", run.RiskScore)
	}
	if run.Result == nil || run.Result.StageErrors["suggestion"] != "provider down" {
		t.Errorf("result not decoded: %+v", run.Result)
	}
	if run.CompletedAt == nil || !run.CompletedAt.Equal(completed) {
		t.Errorf("completed_at = %v", run.CompletedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM pipeline_runs WHERE id").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGMarkRunningMissingRun(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE pipeline_runs SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRunning(context.Background(), "nope", StageExtract, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGFinish(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE pipeline_runs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	score := 40
	now := time.Now().UTC()
	run := Run{
		ID:             "run-1",
		Status:         StatusCompleted,
		Stage:          StageSuggest,
		Recommendation: "negotiate",
		RiskScore:      &score,
		Result:         &Result{DocumentID: "doc-1", RiskScore: 40},
		CompletedAt:    &now,
	}
	if err := repo.Finish(context.Background(), run); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGList(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "document_id", "file_name", "status", "stage", "recommendation",
		"risk_score", "result", "error_code", "error_message", "created_at", "started_at", "completed_at",
	}).
		AddRow("run-2", "doc-2", "b.pdf", "completed", "suggest", "approve", 10, nil, nil, nil, created, nil, nil).
		AddRow("run-1", "doc-1", "a.pdf", "failed", "extract", nil, nil, nil, "extract_failed", "empty document", created, nil, nil)
	mock.ExpectQuery("SELECT (.+) FROM pipeline_runs ORDER BY created_at DESC").
		WithArgs(2).
		WillReturnRows(rows)

	runs, err := repo.List(context.Background(), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[1].ErrorCode != "extract_failed" {
		t.Errorf("error code not scanned: %+v", runs[1])
	}
}

func TestPGStats(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"total", "completed", "rejected", "failed", "avg"}).
			AddRow(10, 6, 2, 2, 42.5))
	mock.ExpectQuery("SELECT recommendation, count").
		WillReturnRows(sqlmock.NewRows([]string{"recommendation", "count"}).
			AddRow("approve", 3).
			AddRow("negotiate", 2).
			AddRow("reject", 1))
	mock.ExpectQuery("jsonb_object_keys").
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).
			AddRow("suggestion", 2))

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalRuns != 10 || stats.Completed != 6 || stats.Rejected != 2 || stats.Failed != 2 {
		t.Errorf("totals: %+v", stats)
	}
	if stats.AverageRiskScore != 42.5 {
		t.Errorf("avg = %f", stats.AverageRiskScore)
	}
	if stats.ByRecommendation["approve"] != 3 || stats.ByRecommendation["reject"] != 1 {
		t.Errorf("recommendations: %v", stats.ByRecommendation)
	}
	if stats.StageFailures["suggestion"] != 2 {
		t.Errorf("stage failures: %v", stats.StageFailures)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
