// Package identity maps validated external identities onto application
// user records, provisioning on first sight and supporting operator
// impersonation.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fitlink/realtime-gateway/internal/domain"
)

// Bridge orchestrates the directory lookups. It owns no state of its
// own; idempotency under concurrent duplicate calls rests on the
// directory's external-id uniqueness.
type Bridge struct {
	directory domain.UserDirectory
	logger    *slog.Logger
}

// NewBridge constructs a bridge over the given directory.
func NewBridge(directory domain.UserDirectory) *Bridge {
	return &Bridge{
		directory: directory,
		logger:    slog.Default().With("service", "identity_bridge"),
	}
}

// ResolveOrCreateUser returns the application user for an external
// identity. Resolution order: stored external-id link, then verified
// email match (backfilling the link), then auto-provisioning.
func (b *Bridge) ResolveOrCreateUser(ctx context.Context, ext *domain.ExternalIdentity) (*domain.User, error) {
	user, err := b.directory.FindByExternalID(ctx, ext.ID)
	if err != nil {
		return nil, fmt.Errorf("looking up user by external id: %w", err)
	}
	if user != nil {
		return user, nil
	}

	if ext.EmailVerified && ext.Email != "" {
		user, err = b.directory.FindByEmail(ctx, ext.Email)
		if err != nil {
			return nil, fmt.Errorf("looking up user by email: %w", err)
		}
		if user != nil {
			// Backfill the link so future connections resolve directly.
			// Last writer wins; relinking the same id is a no-op.
			if err := b.directory.LinkExternalID(ctx, user.ID, ext.ID); err != nil {
				return nil, fmt.Errorf("linking external id: %w", err)
			}
			user.ExternalID = ext.ID
			return user, nil
		}
	}

	created, err := b.provision(ctx, ext)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// provision creates a user record for a never-before-seen identity. The
// handle is derived deterministically from the external id so a
// concurrent duplicate call produces the same record, and the directory
// rejects the second create.
func (b *Bridge) provision(ctx context.Context, ext *domain.ExternalIdentity) (*domain.User, error) {
	user := &domain.User{
		Handle:     Handle(ext.ID),
		Email:      ext.Email,
		Name:       ext.Name,
		AvatarURL:  ext.AvatarURL,
		Role:       domain.RoleClient,
		ExternalID: ext.ID,
	}

	created, err := b.directory.CreateUser(ctx, user)
	if errors.Is(err, domain.ErrUserAlreadyExists) {
		// Lost the provisioning race; the winner's record is ours too.
		existing, findErr := b.directory.FindByExternalID(ctx, ext.ID)
		if findErr != nil {
			return nil, fmt.Errorf("refetching user after create race: %w", findErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("user vanished after create race for external id %s", ext.ID)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("provisioning user: %w", err)
	}

	b.logger.Info("Provisioned new user",
		"user_id", created.ID,
		"handle", created.Handle,
		"external_id", ext.ID)
	return created, nil
}

// Impersonate substitutes the target user's record for an elevated
// actor. The impersonated identity flows to the registry and all
// downstream notifications; the acting identity is audit-logged by the
// caller. Non-elevated actors get ErrNotAuthorized.
func (b *Bridge) Impersonate(ctx context.Context, actor *domain.User, targetUserID string) (*domain.User, error) {
	if !actor.Role.Elevated() {
		return nil, domain.ErrNotAuthorized
	}

	target, err := b.directory.FindByID(ctx, targetUserID)
	if err != nil {
		return nil, fmt.Errorf("looking up impersonation target: %w", err)
	}
	if target == nil {
		return nil, domain.ErrUserNotFound
	}
	return target, nil
}

// Handle derives a stable, collision-resistant handle from an external
// identity id.
func Handle(externalID string) string {
	sum := sha256.Sum256([]byte(externalID))
	return "member-" + hex.EncodeToString(sum[:6])
}
