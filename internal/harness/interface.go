package harness

import (
	"context"
	"math/rand/v2"

	"iconload/internal/icontask"
)

// Task is the unit of work a simulated user repeats. Implementations must be
// safe for concurrent use; rng belongs to the calling user.
//
//go:generate mockgen -package mockharness -source=interface.go -destination=mock/mockharness.go *
type Task interface {
	Do(ctx context.Context, rng *rand.Rand) icontask.Result
}
