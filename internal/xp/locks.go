package xp

import "sync"

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serialises work per member key and forgets idle keys.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	item := k.locks[key]
	if item == nil {
		item = &keyLock{}
		k.locks[key] = item
	}
	item.refs++
	k.mu.Unlock()

	item.mu.Lock()
	return func() {
		item.mu.Unlock()
		k.mu.Lock()
		item.refs--
		if item.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
