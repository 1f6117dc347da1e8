package demo

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/livedb"
)

// Register wires every demo controller into reg. pool may be nil: Orders and Users are
// then skipped, since they need a live Postgres connection to back their collection and
// entity-subject results.
func Register(reg *controller.Registry, pool *pgxpool.Pool) {
	reg.Register("calc", &Calc{}, map[string]*controller.Action{
		"add":      AddAction(),
		"addLater": AddLaterAction(),
	})
	reg.Register("clock", &Clock{}, map[string]*controller.Action{
		"now": NowAction(),
	})
	reg.Register("ticker", &Ticker{}, map[string]*controller.Action{
		"watch":        WatchAction(),
		"watchLatched": WatchLatchedAction(),
	})

	if pool == nil {
		return
	}
	reg.Register("orders", NewOrders(livedb.NewOrdersRepo(pool)), map[string]*controller.Action{
		"list": ListAction(),
	})
	reg.Register("users", NewUsers(livedb.NewUsersRepo(pool)), map[string]*controller.Action{
		"watch": WatchUserAction(),
	})
}
