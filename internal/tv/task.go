package tv

import "context"

// task is a tracked cancelable background job. Teardown cancels the
// job and waits for it to exit, so no goroutine outlives its session.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newTask(parent context.Context, fn func(ctx context.Context)) *task {
	ctx, cancel := context.WithCancel(parent)
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		fn(ctx)
	}()
	return t
}

// running reports whether the task has not yet finished.
func (t *task) running() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// stop cancels the task and waits for it to exit. Safe on nil.
func (t *task) stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}
