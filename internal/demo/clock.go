package demo

import (
	"context"
	"time"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/schema"
)

// Clock exercises the plain stream branch: client-subscribed only, no server
// auto-subscribe.
type Clock struct{}

// TickerMillis is the interval Clock.Now emits on.
const TickerMillis = 500 * time.Millisecond

// NowAction returns a Stream of RFC3339 timestamps, ticking every TickerMillis.
func NowAction() *controller.Action {
	return &controller.Action{
		Result: &schema.Descriptor{Kind: schema.KindStream, Of: stringDesc()},
		Invoke: func(ctx context.Context, instance interface{}, _ []interface{}) (interface{}, error) {
			c := instance.(*Clock)
			return c.Now(ctx), nil
		},
	}
}

// Now returns a Stream emitting the current time every TickerMillis until ctx is done.
func (*Clock) Now(ctx context.Context) *action.Stream {
	s, emit, _, complete := action.TypedStream[string]()
	go func() {
		ticker := time.NewTicker(TickerMillis)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				complete()
				return
			case t := <-ticker.C:
				emit(t.Format(time.RFC3339))
			}
		}
	}()
	return s
}
