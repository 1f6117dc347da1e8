package demo

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/schema"
)

// Ticker exercises the subject (server auto-subscribes, no replay) and latched-subject
// (server auto-subscribes, replays the latest value) branches.
type Ticker struct {
	count atomic.Int64
}

// WatchAction returns a Subject of increasing counts, re-emitted every TickerMillis.
func WatchAction() *controller.Action {
	return &controller.Action{
		Result: &schema.Descriptor{Kind: schema.KindSubject, Of: intDesc()},
		Invoke: func(_ context.Context, instance interface{}, _ []interface{}) (interface{}, error) {
			t := instance.(*Ticker)
			return t.Watch(), nil
		},
	}
}

// Watch returns a Subject emitting an incrementing counter on every tick.
func (t *Ticker) Watch() *action.Subject {
	s, emit, _, _ := action.TypedSubject[int]()
	go func() {
		ticker := time.NewTicker(TickerMillis)
		defer ticker.Stop()
		for range ticker.C {
			emit(int(t.count.Add(1)))
		}
	}()
	return s
}

// WatchLatchedAction returns a LatchedSubject seeded with the current count, so a late subscriber sees the
// last count immediately rather than waiting for the next tick.
func WatchLatchedAction() *controller.Action {
	return &controller.Action{
		Result: &schema.Descriptor{Kind: schema.KindLatchedSubject, Of: intDesc()},
		Invoke: func(_ context.Context, instance interface{}, _ []interface{}) (interface{}, error) {
			t := instance.(*Ticker)
			return t.WatchLatched(), nil
		},
	}
}

// WatchLatched returns a LatchedSubject emitting an incrementing counter on every tick.
func (t *Ticker) WatchLatched() *action.LatchedSubject {
	s, emit, _, _ := action.TypedLatchedSubject[int](int(t.count.Load()))
	go func() {
		ticker := time.NewTicker(TickerMillis)
		defer ticker.Stop()
		for range ticker.C {
			emit(int(t.count.Add(1)))
		}
	}()
	return s
}
