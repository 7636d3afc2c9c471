package consolidate

import (
	"context"
	"sync"
)

// GroupLocker serializes consolidation of one insight group. The
// in-process KeyedMutex is enough for a single runner; deployments
// with several runners sharing a ledger use the Redis lease locker.
type GroupLocker interface {
	// Acquire blocks until the group lock is held or ctx is done.
	// The returned func releases the lock.
	Acquire(ctx context.Context, key string) (func(), error)
}

// KeyedMutex is an in-process GroupLocker with one mutex per key.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

type lockState struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*lockState)}
}

func (k *KeyedMutex) state(key string) *lockState {
	k.mu.Lock()
	defer k.mu.Unlock()
	st, ok := k.locks[key]
	if !ok {
		st = &lockState{ch: make(chan struct{}, 1)}
		k.locks[key] = st
	}
	st.refs++
	return st
}

func (k *KeyedMutex) put(key string, st *lockState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	st.refs--
	if st.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	st := k.state(key)
	select {
	case st.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-st.ch
				k.put(key, st)
			})
		}, nil
	case <-ctx.Done():
		k.put(key, st)
		return nil, ctx.Err()
	}
}
