package integrate

import (
	"context"
	"errors"
	"sync"
)

var errNotStarted = errors.New("acquisition not started")

// task is one spawned cooperative acquisition. Two completion callbacks
// are attached: onDone runs unconditionally (bookkeeping), onSuccess runs
// only when the run returned without error (result caching).
type task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	value float64
	err   error
}

func spawn(ctx context.Context, run func(ctx context.Context) (float64, error), onDone func(), onSuccess func(float64)) *task {
	ctx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		value, err := run(ctx)
		t.mu.Lock()
		t.value, t.err = value, err
		t.mu.Unlock()
		if onDone != nil {
			onDone()
		}
		if err == nil && onSuccess != nil {
			onSuccess(value)
		}
	}()
	return t
}

// wait blocks until the task completes and returns its outcome.
func (t *task) wait(ctx context.Context) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.done:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.err
}

// kill cancels the in-flight task.
func (t *task) kill() {
	t.cancel()
}
