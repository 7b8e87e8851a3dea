package gameserver

import "sync"

// Locker serializes work per key within this process. Callers that take
// several keys must take them in a fixed order: race key before user key.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// RaceKey is the lock key for a race.
func RaceKey(raceID string) string { return "race:" + raceID }

// UserKey is the lock key for a user's balance.
func UserKey(userID string) string { return "user:" + userID }

// Lock acquires keys in the order given and returns a function releasing them
// in reverse. Duplicate keys are acquired once.
//
// Postcondition: no other Lock holding any of keys returns until unlock is called.
func (l *Locker) Lock(keys ...string) (unlock func()) {
	held := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		l.acquire(k)
		held = append(held, k)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}
}

func (l *Locker) acquire(key string) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()
	kl.mu.Lock()
}

func (l *Locker) release(key string) {
	l.mu.Lock()
	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
	kl.mu.Unlock()
}

// size reports how many keys are tracked; used by tests.
func (l *Locker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
