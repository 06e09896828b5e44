// Package limiter guards the connection-establishment path against
// abusive sources. Unauthenticated upgrade attempts are the abuse
// surface, so the guard runs before any authentication work.
package limiter

import (
	"log/slog"
	"sync"
	"time"
)

type bucket struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Guard counts connection attempts per source address inside a rolling
// window and applies a cool-down block once the window limit is
// exceeded. Expiry is passive: buckets are reset on next access, not by
// a background sweep.
type Guard struct {
	window   time.Duration
	max      int
	blockFor time.Duration
	now      func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New constructs a guard allowing up to max attempts per window, with a
// blockFor cool-down once exceeded. timeSource may be nil, in which case
// time.Now is used; tests inject a fake clock.
func New(window time.Duration, max int, blockFor time.Duration, timeSource func() time.Time) *Guard {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &Guard{
		window:   window,
		max:      max,
		blockFor: blockFor,
		now:      timeSource,
		buckets:  make(map[string]*bucket),
	}
}

// ShouldBlock records one attempt from addr and reports whether it must
// be rejected. Once a block is in force every attempt from that address
// is rejected until the block passes, after which the bucket resets
// fully.
func (g *Guard) ShouldBlock(addr string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	b, ok := g.buckets[addr]
	if !ok {
		g.buckets[addr] = &bucket{count: 1, windowStart: now}
		return false
	}

	if !b.blockedUntil.IsZero() {
		if now.Before(b.blockedUntil) {
			return true
		}
		// Block elapsed: full reset, this attempt starts a new window.
		*b = bucket{count: 1, windowStart: now}
		return false
	}

	if now.Sub(b.windowStart) >= g.window {
		*b = bucket{count: 1, windowStart: now}
		return false
	}

	b.count++
	if b.count > g.max {
		b.blockedUntil = now.Add(g.blockFor)
		slog.Warn("Blocking abusive source address",
			"addr", addr,
			"attempts", b.count,
			"blocked_until", b.blockedUntil)
		return true
	}
	return false
}

// Prune drops buckets whose window and block have both lapsed. Optional;
// the guard is correct without it, this just bounds memory under churn
// from many distinct addresses.
func (g *Guard) Prune() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for addr, b := range g.buckets {
		if now.Sub(b.windowStart) >= g.window && now.After(b.blockedUntil) {
			delete(g.buckets, addr)
		}
	}
}
