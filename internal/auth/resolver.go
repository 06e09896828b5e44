// Package auth resolves bearer credentials to external identities,
// caching positive results with a bounded TTL cache and remembering
// recently rejected credentials so repeated bad retries never reach the
// identity provider.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fitlink/realtime-gateway/internal/domain"
)

// ErrCredentialRejected is returned by verifiers when the provider
// definitively rejected the credential. It is never retried.
var ErrCredentialRejected = errors.New("credential rejected by identity provider")

const providerRetryInterval = 250 * time.Millisecond

type cacheEntry struct {
	identity  domain.ExternalIdentity
	expiresAt time.Time
}

// Resolver validates tokens against the identity provider through a
// bounded TTL cache. Absence of an identity is the only failure signal;
// provider errors never surface to callers.
type Resolver struct {
	verifier   domain.IdentityVerifier
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string // insertion order, for eviction when full
}

// NewResolver constructs a resolver with the given fixed TTL and cache
// bound. timeSource may be nil (time.Now).
func NewResolver(verifier domain.IdentityVerifier, ttl time.Duration, maxEntries int, timeSource func() time.Time) *Resolver {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &Resolver{
		verifier:   verifier,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        timeSource,
		logger:     slog.Default().With("service", "token_resolver"),
		entries:    make(map[string]cacheEntry),
	}
}

// Resolve returns the identity behind token, or nil if the credential
// could not be verified. Cache hits never touch the provider; misses
// call it once, retrying exactly once on a transient failure.
func (r *Resolver) Resolve(ctx context.Context, token string) *domain.ExternalIdentity {
	if identity, ok := r.cached(token); ok {
		return identity
	}

	var identity *domain.ExternalIdentity
	op := func() error {
		ext, err := r.verifier.Verify(ctx, token)
		if err != nil {
			if errors.Is(err, ErrCredentialRejected) {
				return backoff.Permanent(err)
			}
			return err
		}
		identity = ext
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(providerRetryInterval), 1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		r.logger.Debug("Token verification failed", "error", err)
		return nil
	}

	r.store(token, identity)
	return identity
}

func (r *Resolver) cached(token string) (*domain.ExternalIdentity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[token]
	if !ok {
		return nil, false
	}
	if !r.now().Before(entry.expiresAt) {
		delete(r.entries, token)
		r.order = dropFromOrder(r.order, token)
		return nil, false
	}
	identity := entry.identity
	return &identity, true
}

// store caches a verified identity with expiry min(now+ttl, credential
// expiry claim). The claim is read from the token itself when it is a
// JWT, and from the provider's response otherwise.
func (r *Resolver) store(token string, identity *domain.ExternalIdentity) {
	expiresAt := r.now().Add(r.ttl)
	if claim := tokenExpiry(token); !claim.IsZero() && claim.Before(expiresAt) {
		expiresAt = claim
	}
	if !identity.ExpiresAt.IsZero() && identity.ExpiresAt.Before(expiresAt) {
		expiresAt = identity.ExpiresAt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[token]; !exists {
		r.order = append(r.order, token)
	}
	r.entries[token] = cacheEntry{identity: *identity, expiresAt: expiresAt}

	for len(r.entries) > r.maxEntries && len(r.order) > 0 {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.entries, oldest)
	}
}

// dropFromOrder removes token's slot from an insertion-order slice.
// The slice must hold exactly the keys of the entries map; every
// deletion from the map goes through here.
func dropFromOrder(order []string, token string) []string {
	for i, t := range order {
		if t == token {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

// tokenExpiry extracts the exp claim from a JWT-shaped credential
// without verifying the signature (verification is the provider's job).
// Returns the zero time when the credential is opaque or carries no exp.
func tokenExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
