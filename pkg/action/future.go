package action

import (
	"context"
	"sync"
)

// future is the untyped implementation behind Future and TypedFuture.
type future struct {
	done chan struct{}
	once sync.Once
	val  interface{}
	err  error
}

// NewFuture creates a Future together with the resolve/reject functions that settle it.
// Only the first of resolve/reject to run has any effect.
func NewFuture() (Future, func(interface{}), func(error)) {
	f := &future{done: make(chan struct{})}
	resolve := func(v interface{}) {
		f.once.Do(func() {
			f.val = v
			close(f.done)
		})
	}
	reject := func(err error) {
		f.once.Do(func() {
			f.err = err
			close(f.done)
		})
	}
	return f, resolve, reject
}

func (f *future) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
