package engine

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout is returned when the per-lot section could not be
// acquired within the caller's budget.
var ErrLockTimeout = errors.New("timed out acquiring lot section")

// lotLocks hands out one exclusive section per lot id. Different lots
// proceed fully in parallel; acquire is bounded by the context so a
// hot lot degrades to Busy instead of queuing callers indefinitely.
type lotLocks struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
}

func newLotLocks() *lotLocks {
	return &lotLocks{slots: make(map[int64]chan struct{})}
}

func (l *lotLocks) slot(lotID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[lotID]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[lotID] = s
	}
	return s
}

// acquire takes the lot's section, blocking until it is free or the
// context expires. The returned release must be called exactly once.
func (l *lotLocks) acquire(ctx context.Context, lotID int64) (func(), error) {
	s := l.slot(lotID)
	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}
}
