package livedb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Order is one row of the orders table.
type Order struct {
	ID         string `json:"id"`
	Customer   string `json:"customer"`
	TotalCents int64  `json:"totalCents"`
	Status     string `json:"status"`
}

// OrdersRepo reads the orders table and notifies callers when it changes via
// orders_changed.
type OrdersRepo struct {
	pool *pgxpool.Pool
}

// NewOrdersRepo wraps pool for order queries.
func NewOrdersRepo(pool *pgxpool.Pool) *OrdersRepo {
	return &OrdersRepo{pool: pool}
}

// List returns every order, keyed by id, for a Collection's initial snapshot or resnap.
func (r *OrdersRepo) List(ctx context.Context) (map[string]Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, customer, total_cents, status FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("livedb:orders - list: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Order)
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Customer, &o.TotalCents, &o.Status); err != nil {
			return nil, fmt.Errorf("livedb:orders - scan: %w", err)
		}
		out[o.ID] = o
	}
	return out, rows.Err()
}

// Get returns one order by id, or pgx.ErrNoRows if it no longer exists (a delete
// notification raced the query).
func (r *OrdersRepo) Get(ctx context.Context, id string) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, `SELECT id, customer, total_cents, status FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.Customer, &o.TotalCents, &o.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Order{}, err
		}
		return Order{}, fmt.Errorf("livedb:orders - get %s: %w", id, err)
	}
	return o, nil
}

// Watch starts a LISTEN on orders_changed and delivers decoded ChangeNotifications to
// onChange until ctx is cancelled. Watch blocks; callers run it in its own goroutine.
func (r *OrdersRepo) Watch(ctx context.Context, onChange func(ChangeNotification)) error {
	l, err := ListenChannel(ctx, r.pool, "orders_changed")
	if err != nil {
		return err
	}
	defer l.Close()
	return l.Run(ctx, onChange)
}
