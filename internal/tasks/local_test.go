package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalRunner(reg *Registry, opts LocalOptions) *LocalRunner {
	r := NewLocalRunner(reg, opts, nil)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func closeRunner(t *testing.T, r *LocalRunner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))
}

func TestLocalRunner_RunsTask(t *testing.T) {
	reg := NewRegistry()
	var ran atomic.Int32
	reg.Register(KindAdminAlert, func(ctx context.Context, task Task) error {
		ran.Add(1)
		return nil
	})
	r := newTestLocalRunner(reg, LocalOptions{MaxConcurrent: 2, MaxAttempts: 3})

	require.NoError(t, r.Submit(context.Background(), Task{ID: "t1", Kind: KindAdminAlert}))
	closeRunner(t, r)

	assert.Equal(t, int32(1), ran.Load())
}

func TestLocalRunner_OutlivesRequestContext(t *testing.T) {
	reg := NewRegistry()
	var ctxErr atomic.Value
	reg.Register(KindAdminAlert, func(ctx context.Context, task Task) error {
		ctxErr.Store(ctx.Err() == nil)
		return nil
	})
	r := newTestLocalRunner(reg, LocalOptions{MaxConcurrent: 1, MaxAttempts: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Submit(ctx, Task{Kind: KindAdminAlert}))
	closeRunner(t, r)

	assert.Equal(t, true, ctxErr.Load())
}

func TestLocalRunner_RetriesUntilSuccess(t *testing.T) {
	reg := NewRegistry()
	var attempts []int
	var mu sync.Mutex
	reg.Register(KindPaymentSideEffects, func(ctx context.Context, task Task) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, task.Attempt)
		if task.Attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	r := newTestLocalRunner(reg, LocalOptions{MaxConcurrent: 1, MaxAttempts: 5})

	require.NoError(t, r.Submit(context.Background(), Task{Kind: KindPaymentSideEffects}))
	closeRunner(t, r)

	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestLocalRunner_StopsAtMaxAttempts(t *testing.T) {
	reg := NewRegistry()
	var calls atomic.Int32
	reg.Register(KindPaymentSideEffects, func(ctx context.Context, task Task) error {
		calls.Add(1)
		return errors.New("always")
	})
	r := newTestLocalRunner(reg, LocalOptions{MaxConcurrent: 1, MaxAttempts: 3})

	require.NoError(t, r.Submit(context.Background(), Task{Kind: KindPaymentSideEffects}))
	closeRunner(t, r)

	assert.Equal(t, int32(3), calls.Load())
}

func TestLocalRunner_PermanentErrorIsNotRetried(t *testing.T) {
	reg := NewRegistry()
	var calls atomic.Int32
	reg.Register(KindPaymentSideEffects, func(ctx context.Context, task Task) error {
		calls.Add(1)
		return Permanent(errors.New("bad payload"))
	})
	r := newTestLocalRunner(reg, LocalOptions{MaxConcurrent: 1, MaxAttempts: 3})

	require.NoError(t, r.Submit(context.Background(), Task{Kind: KindPaymentSideEffects}))
	closeRunner(t, r)

	assert.Equal(t, int32(1), calls.Load())
}

func TestLocalRunner_BoundsConcurrency(t *testing.T) {
	reg := NewRegistry()
	var inFlight, peak atomic.Int32
	reg.Register(KindAdminAlert, func(ctx context.Context, task Task) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	r := newTestLocalRunner(reg, LocalOptions{MaxConcurrent: 2, MaxAttempts: 1})

	for i := 0; i < 10; i++ {
		require.NoError(t, r.Submit(context.Background(), Task{Kind: KindAdminAlert}))
	}
	closeRunner(t, r)

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestLocalRunner_RejectsAfterClose(t *testing.T) {
	r := newTestLocalRunner(NewRegistry(), LocalOptions{})
	closeRunner(t, r)

	err := r.Submit(context.Background(), Task{Kind: KindAdminAlert})
	assert.ErrorIs(t, err, ErrRunnerClosed)
}

func TestLocalRunner_CloseTimesOut(t *testing.T) {
	reg := NewRegistry()
	release := make(chan struct{})
	reg.Register(KindAdminAlert, func(ctx context.Context, task Task) error {
		<-release
		return nil
	})
	r := newTestLocalRunner(reg, LocalOptions{MaxConcurrent: 1, MaxAttempts: 1})
	require.NoError(t, r.Submit(context.Background(), Task{Kind: KindAdminAlert}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
	close(release)
}
