package auth

import (
	"sync"
	"time"
)

// InvalidTokenCache remembers credentials that recently failed
// verification so the handshake can reject them without another provider
// round-trip. Bounded; oldest entry is evicted when full.
type InvalidTokenCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time // credential -> expiry
	order   []string
}

// NewInvalidTokenCache constructs the cache. timeSource may be nil.
func NewInvalidTokenCache(ttl time.Duration, maxEntries int, timeSource func() time.Time) *InvalidTokenCache {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &InvalidTokenCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        timeSource,
		entries:    make(map[string]time.Time),
	}
}

// MarkInvalid records a rejected credential for the cache's TTL.
func (c *InvalidTokenCache) MarkInvalid(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[token]; !exists {
		c.order = append(c.order, token)
	}
	c.entries[token] = c.now().Add(c.ttl)

	for len(c.entries) > c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// IsInvalid reports whether the credential was rejected within the TTL
// window. Expired entries are dropped on access.
func (c *InvalidTokenCache) IsInvalid(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.entries[token]
	if !ok {
		return false
	}
	if !c.now().Before(expiry) {
		delete(c.entries, token)
		c.order = dropFromOrder(c.order, token)
		return false
	}
	return true
}
