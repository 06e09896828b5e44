package domain

import "time"

// Role classifies an application user. Trainers and clients are the two
// marketplace sides; managers hold elevated privileges (impersonation,
// operator tooling).
type Role string

const (
	RoleClient  Role = "client"
	RoleTrainer Role = "trainer"
	RoleManager Role = "manager"
)

// Elevated reports whether the role may act on behalf of another user.
func (r Role) Elevated() bool {
	return r == RoleManager
}

// User is the application-side user record. The gateway never creates or
// mutates users directly; it goes through the UserDirectory collaborator.
type User struct {
	ID         string `json:"id"`
	Handle     string `json:"handle"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	Role       Role   `json:"role"`
	ExternalID string `json:"external_id,omitempty"`
}

// ExternalIdentity is the decoded result of verifying a bearer credential
// against the identity provider.
type ExternalIdentity struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`

	// ExpiresAt is the credential's own expiry claim. Zero means the
	// credential carried no expiry.
	ExpiresAt time.Time `json:"-"`
}
