package demo

import (
	"context"
	"time"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/schema"
)

// Calc exercises the plain-value and future branches.
type Calc struct{}

// AddAction returns a+b as a plain int.
func AddAction() *controller.Action {
	return &controller.Action{
		Parameters: []controller.Param{
			{Name: "a", Desc: intDesc()},
			{Name: "b", Desc: intDesc()},
		},
		Result: intDesc(),
		Invoke: func(_ context.Context, instance interface{}, args []interface{}) (interface{}, error) {
			c := instance.(*Calc)
			return c.Add(args[0].(int), args[1].(int)), nil
		},
	}
}

// Add adds two ints.
func (*Calc) Add(a, b int) int { return a + b }

// AddLaterAction resolves a+b on a Future after a short delay, exercising step 4's
// "await before classifying" path.
func AddLaterAction() *controller.Action {
	return &controller.Action{
		Parameters: []controller.Param{
			{Name: "a", Desc: intDesc()},
			{Name: "b", Desc: intDesc()},
		},
		Result: &schema.Descriptor{Kind: schema.KindFuture, Of: intDesc()},
		Invoke: func(_ context.Context, instance interface{}, args []interface{}) (interface{}, error) {
			c := instance.(*Calc)
			return c.AddLater(args[0].(int), args[1].(int)), nil
		},
	}
}

// AddLater returns a Future resolving to a+b after 50ms, simulating a slow computation.
func (*Calc) AddLater(a, b int) action.Future {
	f, resolve, _ := action.TypedFuture[int]()
	go func() {
		time.Sleep(50 * time.Millisecond)
		resolve(a + b)
	}()
	return f
}
