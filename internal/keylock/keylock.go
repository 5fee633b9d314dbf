// Package keylock serializes work per key. The tracker uses it so that
// concurrent start and stop signals for one (user, game) pair cannot
// interleave their read-check-write sequences.
package keylock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock for a key. The returned unlock func must
// be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Key joins the parts of a composite lock key.
func Key(parts ...string) string {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	b := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			b = append(b, 0x1f)
		}
		b = append(b, p...)
	}
	return string(b)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process Locker. Entries are reference counted and removed
// once no goroutine holds or waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{entries: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// size reports the number of tracked keys.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
