// Package throttle provides the process-wide concurrency primitives shared by
// the fetch pipelines: a per-key mutex registry and a bounded task pool. Both
// are created once at startup and passed to their consumers explicitly.
package throttle

import "sync"

// KeyedMutex provides mutual exclusion per arbitrary string key. Locks are
// created lazily and never removed; growth is bounded by the number of
// distinct feeds, small relative to process lifetime.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex creates an empty registry
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: map[string]*sync.Mutex{}}
}

// Lock acquires the mutex for the given key, creating it on first use.
// The returned func releases it and must be called on every exit path,
// typically via defer.
func (k *KeyedMutex) Lock(key string) (release func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
