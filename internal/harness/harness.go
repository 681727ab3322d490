// Package harness runs simulated users against a Task.
//
// Users are started at a fixed spawn rate. Each user repeats the task,
// hands the result to a stats.Sink and pauses for a random duration between
// WaitMin and WaitMax before the next iteration. A run ends when its
// duration elapses or its context is cancelled; in-flight requests are
// cancelled through the same context and Run returns once every user has
// stopped.
//
// # Pacing
//
// Two token buckets shape the load:
//   - the spawn bucket releases one user every 1/SpawnRate seconds;
//   - the optional global bucket caps requests per second across all users
//     (MaxRPS). Users wait on it before every request, so with a cap the
//     effective pause is max(wait time, time until the next token).
//
// # Failures
//
// A failed request is recorded and logged at debug level; the user keeps
// going. A sink error is logged and ignored. A panicking task aborts only
// the user it happened in.
package harness

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"iconload/internal/stats"
	"iconload/pkg/logger"
	"iconload/pkg/serrors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultWaitMin is the lower bound of the pause between two requests.
	DefaultWaitMin = time.Second
	// DefaultWaitMax is the upper bound of the pause between two requests.
	DefaultWaitMax = 2500 * time.Millisecond
)

// Options configure a Runner.
type Options struct {
	// RunID identifies the run in logs and shared counters; generated when empty.
	RunID string
	// Users is the number of simulated users.
	Users int
	// SpawnRate is the number of users started per second. Zero starts all
	// users at once.
	SpawnRate float64
	// WaitMin and WaitMax bound the pause after every request.
	WaitMin time.Duration
	WaitMax time.Duration
	// Duration is the run length. Zero runs until the context is cancelled.
	Duration time.Duration
	// MaxRPS caps the request rate across all users. Zero disables the cap.
	MaxRPS float64
	// Seed derives every user's random source. Zero seeds from the clock.
	Seed uint64
}

// Summary describes a finished run.
type Summary struct {
	RunID string
	// Seed is the seed the users' random sources were derived from.
	Seed     uint64
	Started  time.Time
	Finished time.Time
	// Users is the number of users that were started.
	Users int
	// Aborted is the number of users stopped by a panicking task.
	Aborted int
	// Iterations is the number of task invocations that were recorded.
	Iterations int64
}

// Runner drives the simulated users of one run.
type Runner struct {
	task    Task
	sink    stats.Sink
	opts    Options
	spawn   *rate.Limiter
	limiter *rate.Limiter

	active     atomic.Int64
	aborted    atomic.Int64
	iterations atomic.Int64
}

// New validates opts and returns a Runner.
func New(task Task, sink stats.Sink, opts Options) (*Runner, error) {
	if task == nil {
		return nil, serrors.With(serrors.ErrInvalidConfig, "task is required")
	}
	if sink == nil {
		return nil, serrors.With(serrors.ErrInvalidConfig, "sink is required")
	}
	if opts.Users < 1 {
		return nil, serrors.With(serrors.ErrInvalidConfig, "users must be at least 1, got %d", opts.Users)
	}
	if opts.SpawnRate < 0 || opts.MaxRPS < 0 || opts.Duration < 0 {
		return nil, serrors.With(serrors.ErrInvalidConfig, "spawn rate, max rps and duration must not be negative")
	}
	if opts.WaitMin < 0 || opts.WaitMax < opts.WaitMin {
		return nil, serrors.With(serrors.ErrInvalidConfig, "wait interval [%s, %s] is invalid", opts.WaitMin, opts.WaitMax)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano()) //nolint: gosec
	}

	r := &Runner{
		task:  task,
		sink:  sink,
		opts:  opts,
		spawn: rate.NewLimiter(rate.Inf, 1),
	}
	if opts.SpawnRate > 0 {
		r.spawn = rate.NewLimiter(rate.Limit(opts.SpawnRate), 1)
	}
	if opts.MaxRPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}

	return r, nil
}

// RunID returns the identifier of the run.
func (r *Runner) RunID() string { return r.opts.RunID }

// ActiveUsers returns the number of users currently running.
func (r *Runner) ActiveUsers() int { return int(r.active.Load()) }

// Run starts the users and blocks until the run is over.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if r.opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Duration)
		defer cancel()
	}
	ctx = logger.WithFields(ctx, zap.String("runID", r.opts.RunID))

	summary := Summary{RunID: r.opts.RunID, Seed: r.opts.Seed, Started: time.Now()}
	logger.Info(ctx, "starting users",
		zap.Int("users", r.opts.Users),
		zap.Float64("spawnRate", r.opts.SpawnRate),
		zap.Duration("waitMin", r.opts.WaitMin),
		zap.Duration("waitMax", r.opts.WaitMax),
		zap.Duration("duration", r.opts.Duration))

	g, gctx := errgroup.WithContext(ctx)
	for i := range r.opts.Users {
		if err := r.spawn.Wait(gctx); err != nil {
			break
		}

		summary.Users++
		rng := rand.New(rand.NewPCG(r.opts.Seed, uint64(i))) //nolint: gosec
		userCtx := logger.WithFields(gctx, zap.Int("user", i))
		g.Go(func() error {
			r.user(userCtx, rng)

			return nil
		})
	}
	if summary.Users == r.opts.Users {
		logger.Info(ctx, "all users started", zap.Int("users", summary.Users))
	}

	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("could not run users: %w", err)
	}

	summary.Finished = time.Now()
	summary.Aborted = int(r.aborted.Load())
	summary.Iterations = r.iterations.Load()
	logger.Info(ctx, "run finished",
		zap.Int("users", summary.Users),
		zap.Int("aborted", summary.Aborted),
		zap.Int64("iterations", summary.Iterations),
		zap.Duration("elapsed", summary.Finished.Sub(summary.Started)))

	return summary, nil
}

// user is the loop of one simulated user.
func (r *Runner) user(ctx context.Context, rng *rand.Rand) {
	r.active.Add(1)
	observer, _ := r.sink.(stats.UserObserver)
	if observer != nil {
		observer.UserStarted(ctx)
	}
	defer func() {
		if p := recover(); p != nil {
			r.aborted.Add(1)
			logger.Error(ctx, "task panicked, stopping user", zap.Any("panic", p))
		}
		if observer != nil {
			observer.UserStopped(ctx)
		}
		r.active.Add(-1)
	}()

	for ctx.Err() == nil {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}
		}

		res := r.task.Do(ctx, rng)
		// a request cut short by the end of the run says nothing about the target
		if ctx.Err() != nil && isCancellation(res.Err) {
			return
		}

		sample := stats.FromResult(res)
		r.iterations.Add(1)
		if err := r.sink.Record(context.WithoutCancel(ctx), sample); err != nil {
			logger.Warn(ctx, "could not record sample", zap.Error(err))
		}
		if sample.Failed() {
			logger.Debug(ctx, "request failed",
				zap.String("url", res.URL),
				zap.Int("status", res.StatusCode),
				zap.Error(res.Err))
		}

		if !sleep(ctx, r.wait(rng)) {
			return
		}
	}
}

// wait returns a uniformly distributed pause in [WaitMin, WaitMax].
func (r *Runner) wait(rng *rand.Rand) time.Duration {
	spread := r.opts.WaitMax - r.opts.WaitMin
	if spread <= 0 {
		return r.opts.WaitMin
	}

	return r.opts.WaitMin + time.Duration(rng.Int64N(int64(spread)+1))
}

// sleep pauses for d and reports whether the context is still alive.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
