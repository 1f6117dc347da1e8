package livedb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User is one row of the users table.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status"`
}

// UsersRepo reads the users table and notifies callers when it changes via
// users_changed.
type UsersRepo struct {
	pool *pgxpool.Pool
}

// NewUsersRepo wraps pool for user queries.
func NewUsersRepo(pool *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{pool: pool}
}

// Get returns one user by id, or pgx.ErrNoRows if none exists.
func (r *UsersRepo) Get(ctx context.Context, id string) (User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `SELECT id, display_name, status FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.DisplayName, &u.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return User{}, err
		}
		return User{}, fmt.Errorf("livedb:users - get %s: %w", id, err)
	}
	return u, nil
}

// Watch starts a LISTEN on users_changed and delivers decoded ChangeNotifications to
// onChange until ctx is cancelled. Watch blocks; callers run it in its own goroutine.
func (r *UsersRepo) Watch(ctx context.Context, onChange func(ChangeNotification)) error {
	l, err := ListenChannel(ctx, r.pool, "users_changed")
	if err != nil {
		return err
	}
	defer l.Close()
	return l.Run(ctx, onChange)
}
