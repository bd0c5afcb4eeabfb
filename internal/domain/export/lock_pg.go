package export

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// runLockKey is the advisory lock key shared by every export process.
const runLockKey int64 = 0x6f6d6f70

// pgRunLock holds a session-level advisory lock on a dedicated connection
// for the length of a run. A process that dies loses its session, and with
// it the lock.
type pgRunLock struct {
	pool *pgxpool.Pool
}

func NewPGRunLock(pool *pgxpool.Pool) RunLock {
	return &pgRunLock{pool: pool}
}

func (l *pgRunLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, runLockKey).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try run lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	release := func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, runLockKey); err != nil {
			// Unlock failed: drop the session so the lock goes with it.
			conn.Conn().Close(context.Background())
		}
		conn.Release()
	}
	return release, true, nil
}

type pgClock struct{ pgBase }

// NewPGClock reads the instant from the database server.
func NewPGClock(pool *pgxpool.Pool) Clock {
	return &pgClock{pgBase{pool}}
}

func (c *pgClock) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := c.conn(ctx).QueryRow(ctx, `SELECT clock_timestamp()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("read database clock: %w", err)
	}
	return now, nil
}
