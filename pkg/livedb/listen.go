package livedb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const listenLogPrefix = "livedb:listen"

// ChangeNotification is the decoded payload of one orders_changed/users_changed
// notification: which row changed and how.
type ChangeNotification struct {
	Op string `json:"op"` // insert | update | delete
	ID string `json:"id"`
}

// Listen holds a dedicated pool connection LISTENing on channel; call Close when done.
type Listen struct {
	conn *pgxpool.Conn
}

// ListenChannel acquires a dedicated connection from pool, issues LISTEN channel on it,
// and returns a Listen handle. The connection is held for the Listen's lifetime: pgx
// notifications only arrive on the connection that issued LISTEN.
func ListenChannel(ctx context.Context, pool *pgxpool.Pool, channel string) (*Listen, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - acquire connection: %w", listenLogPrefix, err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%s - LISTEN %s: %w", listenLogPrefix, channel, err)
	}
	return &Listen{conn: conn}, nil
}

// Run blocks, delivering each decoded ChangeNotification to onChange until ctx is
// cancelled or the underlying connection errors.
func (l *Listen) Run(ctx context.Context, onChange func(ChangeNotification)) error {
	for {
		n, err := l.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var change ChangeNotification
		if err := json.Unmarshal([]byte(n.Payload), &change); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode notification on %s: %v", listenLogPrefix, n.Channel, err))
			continue
		}
		onChange(change)
	}
}

// Close releases the dedicated connection back to the pool.
func (l *Listen) Close() {
	l.conn.Release()
}
