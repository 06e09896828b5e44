package database

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// SurrealParticipantsLookup implements domain.ParticipantsLookup over
// the conversation table.
type SurrealParticipantsLookup struct {
	db *surrealdb.DB
}

// NewSurrealParticipantsLookup wraps an authenticated connection.
func NewSurrealParticipantsLookup(db *surrealdb.DB) *SurrealParticipantsLookup {
	return &SurrealParticipantsLookup{db: db}
}

type conversationRow struct {
	ID           *surrealmodels.RecordID  `json:"id,omitempty"`
	Participants []surrealmodels.RecordID `json:"participants"`
}

// GetParticipantIDs returns the member user ids of a conversation. An
// unknown conversation is an error; callers treat it as "suppress the
// broadcast", not as fatal.
func (l *SurrealParticipantsLookup) GetParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	row, err := QueryOne[conversationRow](ctx, l.db,
		"SELECT id, participants FROM type::thing('conversation', $id)",
		map[string]any{"id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	if row == nil {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}

	ids := make([]string, 0, len(row.Participants))
	for _, p := range row.Participants {
		ids = append(ids, p.String())
	}
	return ids, nil
}
