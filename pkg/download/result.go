package download

import (
	"context"
	"sync"
)

// Result is the one-shot outcome of a batch. It completes exactly once.
type Result struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// complete records err, runs notify and then releases waiters. Only the
// first call has effect.
func (r *Result) complete(err error, notify func()) bool {
	fired := false
	r.once.Do(func() {
		r.err = err
		if notify != nil {
			notify()
		}
		close(r.done)
		fired = true
	})
	return fired
}

// Done is closed once the batch reached its terminal state
func (r *Result) Done() <-chan struct{} { return r.done }

// Err returns the batch error, or nil while running or after success.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the batch completes or ctx ends
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
