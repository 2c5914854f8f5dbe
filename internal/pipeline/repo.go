package pipeline

import (
	"context"
	"time"
)

// Repo persists pipeline runs.
type Repo interface {
	Insert(ctx context.Context, run Run) error
	Get(ctx context.Context, id string) (Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
	MarkRunning(ctx context.Context, id string, stage Stage, startedAt time.Time) error
	UpdateStage(ctx context.Context, id string, stage Stage) error
	Finish(ctx context.Context, run Run) error
	Stats(ctx context.Context) (Stats, error)
}
