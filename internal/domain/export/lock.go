package export

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrExportBusy is returned by Run when another export run holds the run
// lock. The job stays pending.
var ErrExportBusy = errors.New("another export run is in progress")

// RunLock admits at most one export run at a time. TryAcquire never blocks:
// it reports false when the lock is held elsewhere. The returned release
// function must be called once the run has finished.
type RunLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// Clock supplies the run start instant. Source rows are stamped by the
// database, so production runs read the database clock.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// LocalRunLock serialises runs inside one process.
type LocalRunLock struct {
	mu sync.Mutex
}

func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{}
}

func (l *LocalRunLock) TryAcquire(context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}
