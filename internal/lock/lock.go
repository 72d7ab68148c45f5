// Package lock serialises turns on a conversation so that two in-flight
// replies never interleave their messages.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned by TryAcquire when the key is already held.
var ErrLocked = errors.New("lock: already held")

// Locker grants exclusive, non-blocking ownership of a key. The returned
// release func is idempotent.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (release func(), err error)
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
