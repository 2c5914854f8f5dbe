package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contract-backend/internal/risk"
)

// PGRepo is the Postgres-backed Repo.
type PGRepo struct {
	DB *sql.DB
}

const runColumns = `id, document_id, file_name, status, stage, recommendation, risk_score, result, error_code, error_message, created_at, started_at, completed_at`

func (r *PGRepo) Insert(ctx context.Context, run Run) error {
	resultJSON, err := marshalResult(run.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, document_id, file_name, status, stage, recommendation, risk_score, result, error_code, error_message, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, run.DocumentID, run.FileName, string(run.Status), string(run.Stage),
		nullString(string(run.Recommendation)), nullInt(run.RiskScore), resultJSON,
		nullString(run.ErrorCode), nullString(run.ErrorMessage),
		run.CreatedAt, run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *PGRepo) Get(ctx context.Context, id string) (Run, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (r *PGRepo) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func (r *PGRepo) MarkRunning(ctx context.Context, id string, stage Stage, startedAt time.Time) error {
	return r.exec(ctx, `UPDATE pipeline_runs SET status = $2, stage = $3, started_at = $4 WHERE id = $1`,
		id, string(StatusRunning), string(stage), startedAt)
}

func (r *PGRepo) UpdateStage(ctx context.Context, id string, stage Stage) error {
	return r.exec(ctx, `UPDATE pipeline_runs SET stage = $2 WHERE id = $1`, id, string(stage))
}

func (r *PGRepo) Finish(ctx context.Context, run Run) error {
	resultJSON, err := marshalResult(run.Result)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, stage = $3, recommendation = $4, risk_score = $5, result = $6,
		    error_code = $7, error_message = $8, completed_at = $9
		WHERE id = $1`,
		run.ID, string(run.Status), string(run.Stage),
		nullString(string(run.Recommendation)), nullInt(run.RiskScore), resultJSON,
		nullString(run.ErrorCode), nullString(run.ErrorMessage), run.CompletedAt,
	)
}

func (r *PGRepo) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByRecommendation: map[string]int64{},
		StageFailures:    map[string]int64{},
	}

	row := r.DB.QueryRowContext(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'completed'),
		       count(*) FILTER (WHERE status = 'rejected'),
		       count(*) FILTER (WHERE status = 'failed'),
		       COALESCE(avg(risk_score) FILTER (WHERE risk_score IS NOT NULL), 0)
		FROM pipeline_runs`)
	if err := row.Scan(&stats.TotalRuns, &stats.Completed, &stats.Rejected, &stats.Failed, &stats.AverageRiskScore); err != nil {
		return Stats{}, fmt.Errorf("stats totals: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT recommendation, count(*) FROM pipeline_runs
		WHERE recommendation IS NOT NULL GROUP BY recommendation`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats recommendations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec string
		var count int64
		if err := rows.Scan(&rec, &count); err != nil {
			return Stats{}, fmt.Errorf("stats recommendations: %w", err)
		}
		stats.ByRecommendation[rec] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("stats recommendations: %w", err)
	}

	stageRows, err := r.DB.QueryContext(ctx, `
		SELECT key, count(*)
		FROM pipeline_runs, jsonb_object_keys(result->'stage_errors') AS key
		GROUP BY key`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats stage failures: %w", err)
	}
	defer stageRows.Close()
	for stageRows.Next() {
		var stage string
		var count int64
		if err := stageRows.Scan(&stage, &count); err != nil {
			return Stats{}, fmt.Errorf("stats stage failures: %w", err)
		}
		stats.StageFailures[stage] = count
	}
	if err := stageRows.Err(); err != nil {
		return Stats{}, fmt.Errorf("stats stage failures: %w", err)
	}

	return stats, nil
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var status, stage string
	var recommendation, errorCode, errorMessage sql.NullString
	var riskScore sql.NullInt64
	var resultJSON []byte
	var startedAt, completedAt sql.NullTime

	if err := row.Scan(&run.ID, &run.DocumentID, &run.FileName, &status, &stage,
		&recommendation, &riskScore, &resultJSON, &errorCode, &errorMessage,
		&run.CreatedAt, &startedAt, &completedAt); err != nil {
		return Run{}, err
	}

	run.Status = Status(status)
	run.Stage = Stage(stage)
	if recommendation.Valid {
		run.Recommendation = risk.Recommendation(recommendation.String)
	}
	if riskScore.Valid {
		score := int(riskScore.Int64)
		run.RiskScore = &score
	}
	if len(resultJSON) > 0 {
		var result Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return Run{}, fmt.Errorf("decode result json: %w", err)
		}
		run.Result = &result
	}
	if errorCode.Valid {
		run.ErrorCode = errorCode.String
	}
	if errorMessage.Valid {
		run.ErrorMessage = errorMessage.String
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

func marshalResult(result *Result) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result json: %w", err)
	}
	return data, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

var _ Repo = (*PGRepo)(nil)
