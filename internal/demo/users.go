package demo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/action-dispatcher/pkg/action"
	"github.com/morezero/action-dispatcher/pkg/controller"
	"github.com/morezero/action-dispatcher/pkg/livedb"
)

const usersLogPrefix = "demo:users"

// Users exercises the entity-subject branch: a single identified row, observed by push,
// backed by a Postgres users table kept live via LISTEN/NOTIFY.
type Users struct {
	repo *livedb.UsersRepo
}

// NewUsers wraps repo.
func NewUsers(repo *livedb.UsersRepo) *Users {
	return &Users{repo: repo}
}

// WatchUserAction returns an EntitySubject for the user identified by id.
func WatchUserAction() *controller.Action {
	return &controller.Action{
		Parameters: []controller.Param{{Name: "id", Desc: stringDesc()}},
		Result:     userDesc(),
		Invoke: func(ctx context.Context, instance interface{}, args []interface{}) (interface{}, error) {
			u := instance.(*Users)
			return u.Watch(ctx, args[0].(string))
		},
	}
}

// Watch loads the current user row and returns an EntitySubject kept in sync by a
// background watcher on users_changed, filtered to this id.
func (u *Users) Watch(ctx context.Context, id string) (action.EntitySubject, error) {
	current, err := u.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	entity, emit, _, _ := action.TypedEntitySubject[livedb.User](id, current)

	go func() {
		if err := u.repo.Watch(ctx, func(n livedb.ChangeNotification) {
			if n.ID != id || n.Op == "delete" {
				return
			}
			row, err := u.repo.Get(ctx, n.ID)
			if err != nil {
				slog.Error(fmt.Sprintf("%s - refetch %s failed: %v", usersLogPrefix, n.ID, err))
				return
			}
			emit(row)
		}); err != nil && ctx.Err() == nil {
			slog.Error(fmt.Sprintf("%s - watch stopped: %v", usersLogPrefix, err))
		}
	}()

	return entity, nil
}
