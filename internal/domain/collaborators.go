package domain

import "context"

// IdentityVerifier validates an opaque bearer credential against the
// external identity provider. An error means the credential could not be
// verified, whether because it is invalid or because the provider was
// unreachable; callers that need to distinguish wrap the transport error.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*ExternalIdentity, error)
}

// UserDirectory is the narrow slice of user storage the gateway consumes.
// Lookups return (nil, nil) when no record matches, mirroring the store's
// query helpers; errors are reserved for transport/database failures.
type UserDirectory interface {
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, user *User) (*User, error)
	LinkExternalID(ctx context.Context, userID, externalID string) error
}

// ParticipantsLookup resolves the member set of a conversation. Used by
// the typing tracker and by callers of the dispatcher's notify API.
type ParticipantsLookup interface {
	GetParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
}
