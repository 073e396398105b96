package memory

import (
	"sync"
	"time"
)

// BlacklistFallback is the in-process revocation set used while the shared
// backend is unavailable or disabled. Entries whose expiry passed are
// pruned lazily on access and by the owner's periodic sweep.
type BlacklistFallback struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewBlacklistFallback() *BlacklistFallback {
	return &BlacklistFallback{
		entries: make(map[string]time.Time),
	}
}

// Add records the key until expiresAt. Adding an already-expired key is a
// no-op: there is nothing left to revoke.
func (b *BlacklistFallback) Add(key string, expiresAt, now time.Time) {
	if !expiresAt.After(now) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = expiresAt
}

func (b *BlacklistFallback) Has(key string, now time.Time) bool {
	b.mu.RLock()
	expiresAt, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return false
	}
	if !expiresAt.After(now) {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return false
	}
	return true
}

// Sweep removes every entry whose expiry has passed.
func (b *BlacklistFallback) Sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, expiresAt := range b.entries {
		if !expiresAt.After(now) {
			delete(b.entries, key)
		}
	}
}

func (b *BlacklistFallback) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.entries)
}
