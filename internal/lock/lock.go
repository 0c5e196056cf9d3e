// Package lock serializes ingestions of the same repository. Ingestions of
// different repositories never wait on each other.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when the context ends before the lock is held.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out named mutual exclusion. Lock blocks until name is held or
// ctx is done; the returned release function must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, name string) (release func(), err error)
}

// Local is an in-process Locker keyed by name.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*localEntry)}
}

// Lock acquires name, waiting for the current holder if there is one.
func (l *Local) Lock(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[name]
	if !ok {
		entry = &localEntry{sem: make(chan struct{}, 1)}
		l.locks[name] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(name, entry)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.unref(name, entry)
		})
	}, nil
}

// unref drops the map entry once nobody holds or waits for it.
func (l *Local) unref(name string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, name)
	}
}
