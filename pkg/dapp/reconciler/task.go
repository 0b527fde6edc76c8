package reconciler

import (
	"context"
	"time"
)

// Task is a cancellable periodic job. The tick function runs once
// immediately and then on every interval until it reports completion
// or the task is stopped.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Every starts a task. tick returns true when the task should end.
func Every(parent context.Context, interval time.Duration, tick func(ctx context.Context) bool) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if tick(ctx) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return t
}

// Stop cancels the task and waits for the running tick to return.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

// Done is closed once the task has ended, by itself or through Stop.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
