package storage

import (
	"context"
	"time"

	"iconload/pkg/domain"
)

// Runs is a page of runs with the cursor of the next page, nil on the last one.
type Runs struct {
	Runs       []domain.Run
	NextCursor *time.Time
}

// RunStorage keeps the history of finished load runs.
type RunStorage interface {
	// StoreRun saves a run together with its entries, atomically, and returns
	// it as stored.
	StoreRun(ctx context.Context, run domain.Run) (*domain.Run, error)
	// RunByID returns the run with its entries, or nil when it does not exist.
	RunByID(ctx context.Context, id domain.RunID) (*domain.Run, error)
	// Runs returns runs started before cursor, newest first, without their
	// entries. A zero cursor starts from the newest run.
	Runs(ctx context.Context, cursor time.Time, limit uint) (Runs, error)
}
