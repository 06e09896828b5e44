// Package typing tracks ephemeral per-conversation typing state. A
// session expires on its own after a fixed silence window, so a client
// that vanishes mid-keystroke cannot leave a stuck indicator behind.
package typing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fitlink/realtime-gateway/internal/domain"
	"github.com/fitlink/realtime-gateway/internal/protocol"
)

// sender is the slice of the connection registry the tracker needs.
type sender interface {
	SendToUser(userID string, ev protocol.ServerEvent) int
}

type pairKey struct {
	conversationID string
	userID         string
}

type session struct {
	timer    *time.Timer
	userName string
	// others is the recipient set captured at start so that stop and
	// expiry broadcasts need no second participants lookup.
	others []string
}

// Tracker holds at most one active session per (conversation, user)
// pair. Starting again within the window supersedes the running timer
// rather than stacking a second one.
type Tracker struct {
	participants domain.ParticipantsLookup
	sender       sender
	expiry       time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[pairKey]*session
	byUser   map[string]map[pairKey]struct{}
}

// NewTracker constructs a tracker broadcasting through the given sender.
func NewTracker(participants domain.ParticipantsLookup, s sender, expiry time.Duration) *Tracker {
	return &Tracker{
		participants: participants,
		sender:       s,
		expiry:       expiry,
		logger:       slog.Default().With("service", "typing_tracker"),
		sessions:     make(map[pairKey]*session),
		byUser:       make(map[string]map[pairKey]struct{}),
	}
}

// Start begins (or refreshes) a typing session and broadcasts
// typing_start to the other participants. Events from non-participants
// are silently dropped; a failed participants lookup suppresses the
// broadcast entirely. Typing indicators are best-effort UX and never
// fail the connection.
func (t *Tracker) Start(ctx context.Context, conversationID, userID, displayName string) {
	ids, err := t.participants.GetParticipantIDs(ctx, conversationID)
	if err != nil {
		t.logger.Debug("Participants lookup failed, suppressing typing broadcast",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	others := make([]string, 0, len(ids))
	member := false
	for _, id := range ids {
		if id == userID {
			member = true
			continue
		}
		others = append(others, id)
	}
	if !member {
		t.logger.Debug("Dropping typing event from non-participant",
			"conversation_id", conversationID,
			"user_id", userID)
		return
	}

	key := pairKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	if existing, ok := t.sessions[key]; ok {
		existing.timer.Stop()
	}
	sess := &session{userName: displayName, others: others}
	sess.timer = time.AfterFunc(t.expiry, func() { t.expire(key, sess) })
	t.sessions[key] = sess
	pairs, ok := t.byUser[userID]
	if !ok {
		pairs = make(map[pairKey]struct{})
		t.byUser[userID] = pairs
	}
	pairs[key] = struct{}{}
	t.mu.Unlock()

	t.broadcast(others, protocol.NewTypingStart(conversationID, userID, displayName))
}

// Stop ends the session and broadcasts typing_stop to the other
// participants. Idempotent: stopping twice, or without a prior start,
// is a no-op producing no broadcast.
func (t *Tracker) Stop(conversationID, userID string) {
	key := pairKey{conversationID: conversationID, userID: userID}

	t.mu.Lock()
	sess, ok := t.sessions[key]
	if ok {
		sess.timer.Stop()
		t.remove(key)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	t.broadcast(sess.others, protocol.NewTypingStop(conversationID, userID))
}

// StopAll ends every session the user has in flight, used when the
// user's last connection closes.
func (t *Tracker) StopAll(userID string) {
	t.mu.Lock()
	var ended []struct {
		key  pairKey
		sess *session
	}
	for key := range t.byUser[userID] {
		if sess, ok := t.sessions[key]; ok {
			sess.timer.Stop()
			t.remove(key)
			ended = append(ended, struct {
				key  pairKey
				sess *session
			}{key, sess})
		}
	}
	t.mu.Unlock()

	for _, e := range ended {
		t.broadcast(e.sess.others, protocol.NewTypingStop(e.key.conversationID, e.key.userID))
	}
}

// expire fires when the silence window lapses with no intervening stop.
// It behaves exactly as if Stop had been called. The session pointer
// check makes a superseded timer's late firing a no-op.
func (t *Tracker) expire(key pairKey, sess *session) {
	t.mu.Lock()
	current, ok := t.sessions[key]
	if !ok || current != sess {
		t.mu.Unlock()
		return
	}
	t.remove(key)
	t.mu.Unlock()

	t.broadcast(sess.others, protocol.NewTypingStop(key.conversationID, key.userID))
}

// remove deletes the session bookkeeping. Caller holds t.mu.
func (t *Tracker) remove(key pairKey) {
	delete(t.sessions, key)
	if pairs, ok := t.byUser[key.userID]; ok {
		delete(pairs, key)
		if len(pairs) == 0 {
			delete(t.byUser, key.userID)
		}
	}
}

func (t *Tracker) broadcast(recipients []string, ev protocol.ServerEvent) {
	for _, id := range recipients {
		t.sender.SendToUser(id, ev)
	}
}
