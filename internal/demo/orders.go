package demo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/livedb"
	"github.com/morezero/action-dispatcher/pkg/schema"
)

const ordersLogPrefix = "demo:orders"

// Orders exercises the collection branch against a real mutable external resource: a
// Postgres orders table, kept live via LISTEN/NOTIFY.
type Orders struct {
	repo *livedb.OrdersRepo
}

// NewOrders wraps repo.
func NewOrders(repo *livedb.OrdersRepo) *Orders {
	return &Orders{repo: repo}
}

// ListAction returns a live Collection of every order, kept in sync with the orders
// table via OrdersRepo.Watch.
func ListAction() *controller.Action {
	return &controller.Action{
		Result: &schema.Descriptor{Kind: schema.KindCollection, Of: orderDesc()},
		Invoke: func(ctx context.Context, instance interface{}, _ []interface{}) (interface{}, error) {
			o := instance.(*Orders)
			return o.List(ctx)
		},
	}
}

// trackedCollection adds a Release hook to action.Collection, the duck-typed teardown
// contract the Invoker checks for and hands to collectionbridge.Bridge.Open, which runs it
// when the client unsubscribes.
type trackedCollection struct {
	action.Collection
	release func()
}

func (c *trackedCollection) Release() { c.release() }

// List loads the current orders, wraps them in a live Collection, and starts a
// background watcher that applies every orders_changed notification to it. The returned
// value's Release method (invoked by CollectionBridge on unsubscribe) stops the watcher.
func (o *Orders) List(ctx context.Context) (action.Collection, error) {
	initial, err := o.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	coll, set, remove, _, _ := action.TypedCollection[livedb.Order](nil, nil)
	for id, order := range initial {
		set(id, order)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := o.repo.Watch(watchCtx, func(n livedb.ChangeNotification) {
			switch n.Op {
			case "delete":
				remove(n.ID)
			default:
				order, err := o.repo.Get(watchCtx, n.ID)
				if err != nil {
					slog.Error(fmt.Sprintf("%s - refetch %s after %s failed: %v", ordersLogPrefix, n.ID, n.Op, err))
					return
				}
				set(n.ID, order)
			}
		}); err != nil && watchCtx.Err() == nil {
			slog.Error(fmt.Sprintf("%s - watch stopped: %v", ordersLogPrefix, err))
		}
	}()

	return &trackedCollection{Collection: coll, release: cancel}, nil
}
