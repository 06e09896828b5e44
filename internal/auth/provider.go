package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fitlink/realtime-gateway/internal/domain"
)

// HTTPVerifier validates credentials against the identity provider's
// introspection endpoint. A definitive rejection (4xx) maps to
// ErrCredentialRejected; anything else is treated as transient and left
// to the resolver's retry policy.
type HTTPVerifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPVerifier builds a verifier for the given introspection URL.
func NewHTTPVerifier(endpoint string) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type identityResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	AvatarURL     string `json:"avatar_url"`
	ExpiresAt     int64  `json:"expires_at"`
}

// Verify implements domain.IdentityVerifier.
func (v *HTTPVerifier) Verify(ctx context.Context, credential string) (*domain.ExternalIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building verification request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("provider returned %d: %w", resp.StatusCode, ErrCredentialRejected)
	default:
		return nil, fmt.Errorf("identity provider error: status %d", resp.StatusCode)
	}

	var body identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding identity response: %w", err)
	}
	if body.ID == "" {
		return nil, fmt.Errorf("identity response missing id: %w", ErrCredentialRejected)
	}

	identity := &domain.ExternalIdentity{
		ID:            body.ID,
		Email:         body.Email,
		EmailVerified: body.EmailVerified,
		Name:          body.Name,
		AvatarURL:     body.AvatarURL,
	}
	if body.ExpiresAt > 0 {
		identity.ExpiresAt = time.Unix(body.ExpiresAt, 0)
	}
	return identity, nil
}
