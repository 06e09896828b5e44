package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/fitlink/realtime-gateway/internal/domain"
)

// SurrealUserDirectory implements domain.UserDirectory over SurrealDB.
type SurrealUserDirectory struct {
	db *surrealdb.DB
}

// NewSurrealUserDirectory wraps an authenticated connection.
func NewSurrealUserDirectory(db *surrealdb.DB) *SurrealUserDirectory {
	return &SurrealUserDirectory{db: db}
}

type userRow struct {
	ID         *surrealmodels.RecordID `json:"id,omitempty"`
	Handle     string                  `json:"handle"`
	Email      string                  `json:"email"`
	Name       string                  `json:"name,omitempty"`
	AvatarURL  string                  `json:"avatar_url,omitempty"`
	Role       string                  `json:"role"`
	ExternalID string                  `json:"external_id,omitempty"`
}

func (r *userRow) toDomain() *domain.User {
	user := &domain.User{
		Handle:     r.Handle,
		Email:      r.Email,
		Name:       r.Name,
		AvatarURL:  r.AvatarURL,
		Role:       domain.Role(r.Role),
		ExternalID: r.ExternalID,
	}
	if r.ID != nil {
		user.ID = r.ID.String()
	}
	return user
}

// FindByExternalID looks a user up by their stored identity-provider link.
func (d *SurrealUserDirectory) FindByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	row, err := QueryOne[userRow](ctx, d.db, "SELECT * FROM user WHERE external_id = $external_id",
		map[string]any{"external_id": externalID})
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return row.toDomain(), nil
}

// FindByEmail looks a user up by email address.
func (d *SurrealUserDirectory) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row, err := QueryOne[userRow](ctx, d.db, "SELECT * FROM user WHERE email = $email",
		map[string]any{"email": email})
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return row.toDomain(), nil
}

// FindByID looks a user up by their record id ("user:xyz").
func (d *SurrealUserDirectory) FindByID(ctx context.Context, id string) (*domain.User, error) {
	row, err := QueryOne[userRow](ctx, d.db, "SELECT * FROM type::record($id)",
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return row.toDomain(), nil
}

// CreateUser provisions a new user row. The record id derives from the
// handle, which itself derives deterministically from the external id,
// so concurrent duplicate provisioning collapses onto one row and the
// loser gets domain.ErrUserAlreadyExists.
func (d *SurrealUserDirectory) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	row, err := QueryOne[userRow](ctx, d.db,
		`CREATE type::thing('user', $handle) CONTENT {
			handle: $handle,
			email: $email,
			name: $name,
			avatar_url: $avatar_url,
			role: $role,
			external_id: $external_id
		}`,
		map[string]any{
			"handle":      user.Handle,
			"email":       user.Email,
			"name":        user.Name,
			"avatar_url":  user.AvatarURL,
			"role":        string(user.Role),
			"external_id": user.ExternalID,
		})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil, domain.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("create returned no row for handle %s", user.Handle)
	}
	return row.toDomain(), nil
}

// LinkExternalID backfills the identity-provider link on an existing
// user. Last writer wins; relinking the same id is a no-op.
func (d *SurrealUserDirectory) LinkExternalID(ctx context.Context, userID, externalID string) error {
	err := Execute(ctx, d.db, "UPDATE type::record($id) SET external_id = $external_id",
		map[string]any{"id": userID, "external_id": externalID})
	if err != nil {
		return fmt.Errorf("linking external id: %w", err)
	}
	return nil
}
