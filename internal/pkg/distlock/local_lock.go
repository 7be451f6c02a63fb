package distlock

import (
	"context"
	"sync"
)

// LocalLocker keeps locks in process memory. Used by the CLI and tests when
// no Redis or PostgreSQL is configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

// Lock returns a handle for key.
func (l *LocalLocker) Lock(key string) Lock { return &localLock{owner: l, key: key} }

type localLock struct {
	owner *LocalLocker
	key   string
	held  bool
}

func (l *localLock) Acquire(context.Context) (bool, error) {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if l.owner.held[l.key] {
		return false, nil
	}
	l.owner.held[l.key] = true
	l.held = true
	return true, nil
}

func (l *localLock) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if !l.held {
		return ErrNotHeld
	}
	delete(l.owner.held, l.key)
	l.held = false
	return nil
}
