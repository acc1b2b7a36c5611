package purchase

import (
	"context"
	"slices"
	"sync"
)

// KeyLocker hands out exclusive locks per key. Locks for several keys are
// always taken in sorted order so overlapping callers cannot deadlock.
type KeyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until every key is held or ctx is done. On error no key is
// held. The returned func releases all keys and must be called exactly once.
func (l *KeyLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]string, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, key := range sorted {
		if err := l.lock(ctx, key); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *KeyLocker) lock(ctx context.Context, key string) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(key, kl)
		return ctx.Err()
	}
}

func (l *KeyLocker) unlock(key string) {
	l.mu.Lock()
	kl := l.locks[key]
	l.mu.Unlock()

	<-kl.sem
	l.drop(key, kl)
}

// drop releases one reference and forgets the key once nobody holds or
// waits for it.
func (l *KeyLocker) drop(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports how many keys are currently tracked.
func (l *KeyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
