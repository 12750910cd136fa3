package sqlite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hylla/splitledger/internal/app"
)

// workLocks hands out one exclusive slot per work id.
type workLocks struct {
	mu    sync.Mutex
	slots map[string]*workSlot
	wait  time.Duration
}

// workSlot is a single-token semaphore shared by every waiter on one work.
type workSlot struct {
	token   chan struct{}
	holders int
}

// newWorkLocks constructs a lock table whose acquisitions give up after wait.
func newWorkLocks(wait time.Duration) *workLocks {
	return &workLocks{slots: map[string]*workSlot{}, wait: wait}
}

// acquire blocks until workID is free, ctx ends, or the wait elapses.
func (l *workLocks) acquire(ctx context.Context, workID string) (func(), error) {
	slot := l.join(workID)
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.token <- struct{}{}:
		return func() {
			<-slot.token
			l.leave(workID)
		}, nil
	case <-ctx.Done():
		l.leave(workID)
		return nil, ctx.Err()
	case <-timer.C:
		l.leave(workID)
		return nil, fmt.Errorf("%w: %s after %s", app.ErrConcurrentActivation, workID, l.wait)
	}
}

// join registers interest in workID's slot.
func (l *workLocks) join(workID string) *workSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[workID]
	if !ok {
		slot = &workSlot{token: make(chan struct{}, 1)}
		l.slots[workID] = slot
	}
	slot.holders++
	return slot
}

// leave drops interest in workID's slot and forgets it once unused.
func (l *workLocks) leave(workID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[workID]
	if !ok {
		return
	}
	slot.holders--
	if slot.holders <= 0 {
		delete(l.slots, workID)
	}
}
