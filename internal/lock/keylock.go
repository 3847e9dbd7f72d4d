// Package lock provides per-key mutual exclusion with FIFO fairness.
package lock

import (
	"context"
	"sync"
)

type waiter struct {
	ready chan struct{}
}

type keyState struct {
	// queue holds the current holder at index 0 followed by waiters in
	// arrival order.
	queue []*waiter
}

// KeyLock serializes work per key. Callers for the same key run one at a
// time in arrival order; callers for different keys never contend. Idle keys
// hold no state.
type KeyLock struct {
	mu   sync.Mutex
	keys map[string]*keyState
}

func NewKeyLock() *KeyLock {
	return &KeyLock{keys: make(map[string]*keyState)}
}

// RunExclusive runs fn while holding the lock for key. It blocks until every
// earlier caller for the same key has finished, or until ctx is done, in
// which case fn never runs and ctx.Err() is returned.
func (l *KeyLock) RunExclusive(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	w := &waiter{ready: make(chan struct{})}

	l.mu.Lock()
	state, ok := l.keys[key]
	if !ok {
		state = &keyState{}
		l.keys[key] = state
	}
	state.queue = append(state.queue, w)
	if len(state.queue) == 1 {
		close(w.ready)
	}
	l.mu.Unlock()

	select {
	case <-w.ready:
	case <-ctx.Done():
		l.abandon(key, w)
		return ctx.Err()
	}

	defer l.release(key)
	return fn(ctx)
}

// release hands the key to the next waiter, or drops the key entirely when
// the queue drains.
func (l *KeyLock) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.keys[key]
	state.queue = state.queue[1:]
	if len(state.queue) == 0 {
		delete(l.keys, key)
		return
	}
	close(state.queue[0].ready)
}

// abandon removes a waiter that gave up before acquiring. The waiter cannot
// be at the head here unless its ready channel raced with ctx cancellation;
// in that race the slot is surrendered like a release.
func (l *KeyLock) abandon(key string, w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.keys[key]
	if !ok {
		return
	}
	for i, queued := range state.queue {
		if queued != w {
			continue
		}
		if i == 0 {
			// Acquired concurrently with cancellation; pass it on.
			state.queue = state.queue[1:]
			if len(state.queue) == 0 {
				delete(l.keys, key)
				return
			}
			close(state.queue[0].ready)
			return
		}
		state.queue = append(state.queue[:i], state.queue[i+1:]...)
		return
	}
}
