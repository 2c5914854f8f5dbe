package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for local development and tests.
type MemoryRepo struct {
	mu    sync.Mutex
	runs  map[string]Run
	order []string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{runs: map[string]Run{}}
}

func (r *MemoryRepo) Insert(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	r.runs[run.ID] = run
	r.order = append(r.order, run.ID)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// List returns runs newest first.
func (r *MemoryRepo) List(ctx context.Context, limit int) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Run, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, r.runs[r.order[i]])
	}
	return out, nil
}

func (r *MemoryRepo) MarkRunning(ctx context.Context, id string, stage Stage, startedAt time.Time) error {
	return r.update(ctx, id, func(run *Run) {
		run.Status = StatusRunning
		run.Stage = stage
		run.StartedAt = &startedAt
	})
}

func (r *MemoryRepo) UpdateStage(ctx context.Context, id string, stage Stage) error {
	return r.update(ctx, id, func(run *Run) {
		run.Stage = stage
	})
}

func (r *MemoryRepo) Finish(ctx context.Context, final Run) error {
	return r.update(ctx, final.ID, func(run *Run) {
		run.Status = final.Status
		run.Stage = final.Stage
		run.Recommendation = final.Recommendation
		run.RiskScore = final.RiskScore
		run.Result = final.Result
		run.ErrorCode = final.ErrorCode
		run.ErrorMessage = final.ErrorMessage
		run.CompletedAt = final.CompletedAt
	})
}

func (r *MemoryRepo) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{
		ByRecommendation: map[string]int64{},
		StageFailures:    map[string]int64{},
	}
	var scoreSum int64
	var scored int64
	for _, run := range r.runs {
		stats.TotalRuns++
		switch run.Status {
		case StatusCompleted:
			stats.Completed++
		case StatusRejected:
			stats.Rejected++
		case StatusFailed:
			stats.Failed++
		}
		if run.Recommendation != "" {
			stats.ByRecommendation[string(run.Recommendation)]++
		}
		if run.RiskScore != nil {
			scoreSum += int64(*run.RiskScore)
			scored++
		}
		if run.Result != nil {
			for stage := range run.Result.StageErrors {
				stats.StageFailures[stage]++
			}
		}
	}
	if scored > 0 {
		stats.AverageRiskScore = float64(scoreSum) / float64(scored)
	}
	return stats, nil
}

func (r *MemoryRepo) update(ctx context.Context, id string, mutate func(*Run)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return ErrNotFound
	}
	mutate(&run)
	r.runs[id] = run
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
