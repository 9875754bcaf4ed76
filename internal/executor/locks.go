package executor

import (
	"context"
	"sync"
	"time"

	"github.com/openarb/arbd/internal/domain"
)

// LockRegistry is the in-process LockManager. Locks are explicit objects
// keyed by exchange id; Acquire blocks until the lock is free or the context
// ends. The ttl parameter exists for interface compatibility with the
// distributed implementation and is ignored here: an in-process lock cannot
// outlive its holder.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]chan struct{})}
}

func (r *LockRegistry) slot(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[key] = ch
	}
	return ch
}

// Acquire obtains the lock for key, waiting if another holder has it. The
// returned unlock function is safe to call more than once.
func (r *LockRegistry) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	ch := r.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() { <-ch })
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockRegistry)(nil)
