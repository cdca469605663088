package reservations

import "sync"

// keyedMutex serializes operations per key. Create/update hold the table's
// key so two requests cannot both pass the availability check and both
// commit; transitions hold the reservation's key. Entries are not reclaimed;
// the key space is bounded by the restaurant's tables and live reservations.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*sync.Mutex{}}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
