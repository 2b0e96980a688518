package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// LocalOptions tunes a LocalRunner.
type LocalOptions struct {
	MaxConcurrent  int64
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// LocalRunner executes tasks in-process on goroutines bounded by a weighted
// semaphore. Failed attempts are retried with exponential backoff up to
// MaxAttempts. Tasks outlive the submitting request's context.
type LocalRunner struct {
	registry    *Registry
	sem         *semaphore.Weighted
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ Runner = (*LocalRunner)(nil)

// NewLocalRunner creates a LocalRunner.
func NewLocalRunner(registry *Registry, opts LocalOptions, logger *slog.Logger) *LocalRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &LocalRunner{
		registry:    registry,
		sem:         semaphore.NewWeighted(opts.MaxConcurrent),
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.RetryBaseDelay,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Submit schedules task and returns immediately.
func (r *LocalRunner) Submit(ctx context.Context, task Task) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRunnerClosed
	}

	r.wg.Add(1)
	go r.run(context.WithoutCancel(ctx), task)
	return nil
}

func (r *LocalRunner) run(ctx context.Context, task Task) {
	defer r.wg.Done()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.logger.ErrorContext(ctx, "task dropped: could not acquire worker slot",
			"task_id", task.ID, "kind", string(task.Kind), "error", err)
		return
	}
	defer r.sem.Release(1)

	logger := r.logger.With("task_id", task.ID, "kind", string(task.Kind), "key", task.Key)
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		task.Attempt = attempt
		err := r.registry.Handle(ctx, task)
		if err == nil {
			if attempt > 1 {
				logger.InfoContext(ctx, "task succeeded after retry", "attempt", attempt)
			}
			return
		}
		if IsPermanent(err) {
			logger.ErrorContext(ctx, "task failed permanently", "attempt", attempt, "error", err)
			return
		}
		if attempt == r.maxAttempts {
			logger.ErrorContext(ctx, "task exhausted retries", "attempts", attempt, "error", err)
			return
		}

		delay := r.baseDelay << (attempt - 1)
		logger.WarnContext(ctx, "task attempt failed; retrying",
			"attempt", attempt, "delay", delay.String(), "error", err)
		if err := r.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// Close stops accepting tasks and waits for in-flight ones until ctx is done.
func (r *LocalRunner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.Warn("task runner drain timed out; abandoning in-flight tasks")
		return ctx.Err()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
