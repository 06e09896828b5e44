package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlink/realtime-gateway/internal/domain"
	"github.com/fitlink/realtime-gateway/internal/protocol"
	"github.com/fitlink/realtime-gateway/internal/pubsub"
	"github.com/fitlink/realtime-gateway/internal/registry"
	"github.com/fitlink/realtime-gateway/internal/typing"
)

type participantsStub struct {
	ids map[string][]string
}

func (p *participantsStub) GetParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	return p.ids[conversationID], nil
}

type fixture struct {
	dispatcher *Dispatcher
	reg        *registry.Registry
	bus        *pubsub.WatermillBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := pubsub.NewWatermillBus()
	t.Cleanup(func() { bus.Close() })

	reg := registry.New()
	participants := &participantsStub{ids: map[string][]string{
		"c1": {"u1", "u2"},
	}}
	tracker := typing.NewTracker(participants, reg, time.Hour)

	d, err := New(context.Background(), reg, tracker, bus, bus)
	require.NoError(t, err)
	return &fixture{dispatcher: d, reg: reg, bus: bus}
}

func connect(f *fixture, userID string) *registry.Conn {
	c := registry.NewConn("conn-"+userID, userID, nil)
	f.reg.Register(userID, c)
	return c
}

// received drains and decodes every frame buffered on the connection.
func received(c *registry.Conn) []map[string]any {
	var out []map[string]any
	for {
		select {
		case payload := <-c.Outbound():
			var frame map[string]any
			if json.Unmarshal(payload, &frame) == nil {
				out = append(out, frame)
			}
		default:
			return out
		}
	}
}

func frameCount(c *registry.Conn, frameType string) func() bool {
	counted := 0
	return func() bool {
		for _, f := range received(c) {
			if f["type"] == frameType {
				counted++
			}
		}
		return counted > 0
	}
}

func TestDispatcher_NewMessageExcludesSender(t *testing.T) {
	f := newFixture(t)
	sender := connect(f, "u1")
	recipient := connect(f, "u2")

	msg := domain.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Body: "hey"}
	require.NoError(t, f.dispatcher.NotifyNewMessage(context.Background(), "c1", msg, []string{"u1", "u2"}, "u1"))

	assert.Eventually(t, frameCount(recipient, protocol.TypeNewMessage), time.Second, 5*time.Millisecond)
	assert.Empty(t, received(sender), "the excluded sender must receive nothing")
}

func TestDispatcher_NewMessageReachesAllWithoutExclusion(t *testing.T) {
	f := newFixture(t)
	u1 := connect(f, "u1")
	u2 := connect(f, "u2")

	msg := domain.Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Body: "hey"}
	require.NoError(t, f.dispatcher.NotifyNewMessage(context.Background(), "c1", msg, []string{"u1", "u2"}, ""))

	assert.Eventually(t, frameCount(u1, protocol.TypeNewMessage), time.Second, 5*time.Millisecond)
	assert.Eventually(t, frameCount(u2, protocol.TypeNewMessage), time.Second, 5*time.Millisecond)
}

func TestDispatcher_MessageReadTargetsOneUser(t *testing.T) {
	f := newFixture(t)
	author := connect(f, "u1")
	reader := connect(f, "u2")

	require.NoError(t, f.dispatcher.NotifyMessageRead(context.Background(), "c1", "m1", "u2", "u1"))

	assert.Eventually(t, func() bool {
		for _, frame := range received(author) {
			if frame["type"] == protocol.TypeMessageRead &&
				frame["messageId"] == "m1" && frame["conversationId"] == "c1" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, received(reader))
}

func TestDispatcher_ReactionAddedAndRemoved(t *testing.T) {
	f := newFixture(t)
	target := connect(f, "u2")

	require.NoError(t, f.dispatcher.NotifyReaction(context.Background(), "m1", "🔥", "u1", []string{"u2"}, true))
	assert.Eventually(t, frameCount(target, protocol.TypeReactionAdded), time.Second, 5*time.Millisecond)

	require.NoError(t, f.dispatcher.NotifyReaction(context.Background(), "m1", "🔥", "u1", []string{"u2"}, false))
	assert.Eventually(t, frameCount(target, protocol.TypeReactionRemoved), time.Second, 5*time.Millisecond)
}

func TestDispatcher_BadgeCountsNudge(t *testing.T) {
	f := newFixture(t)
	u1 := connect(f, "u1")

	require.NoError(t, f.dispatcher.NotifyBadgeCounts(context.Background(), []string{"u1", "offline-user"}))

	assert.Eventually(t, func() bool {
		frames := received(u1)
		for _, frame := range frames {
			if frame["type"] == protocol.TypeBadgeCountsNudge {
				// Cache-invalidation nudge carries no payload fields.
				assert.Len(t, frame, 1)
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_OfflineRecipientsAreSkipped(t *testing.T) {
	f := newFixture(t)

	msg := domain.Message{ID: "m1", ConversationID: "c1", SenderID: "u1"}
	assert.NoError(t, f.dispatcher.NotifyNewMessage(context.Background(), "c1", msg, []string{"nobody-home"}, ""))
	// Nothing to assert beyond "no panic, no error": events are never
	// queued for users without open connections.
}

func TestDispatcher_InboundTypingFlowsToOtherParticipant(t *testing.T) {
	f := newFixture(t)
	connect(f, "u1")
	peer := connect(f, "u2")

	start, _ := json.Marshal(map[string]string{
		"type":           "typing_start",
		"conversationId": "c1",
		"userName":       "Alex",
	})
	f.dispatcher.HandleInbound(context.Background(), "u1", start)

	frames := received(peer)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.TypeTypingStart, frames[0]["type"])
	assert.Equal(t, "Alex", frames[0]["userName"])

	stop, _ := json.Marshal(map[string]string{
		"type":           "typing_stop",
		"conversationId": "c1",
	})
	f.dispatcher.HandleInbound(context.Background(), "u1", stop)

	frames = received(peer)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.TypeTypingStop, frames[0]["type"])
}

func TestDispatcher_MalformedInboundIsDropped(t *testing.T) {
	f := newFixture(t)
	peer := connect(f, "u2")

	for _, raw := range [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"type":"launch_missiles"}`),
		[]byte(`{"type":"typing_start"}`), // missing conversationId
		[]byte(`{}`),
	} {
		assert.NotPanics(t, func() {
			f.dispatcher.HandleInbound(context.Background(), "u1", raw)
		})
	}
	assert.Empty(t, received(peer))
}

func TestDispatcher_SubscribeIsInert(t *testing.T) {
	f := newFixture(t)
	peer := connect(f, "u2")

	raw, _ := json.Marshal(map[string]any{"type": "subscribe", "conversationId": "c1"})
	assert.NotPanics(t, func() {
		f.dispatcher.HandleInbound(context.Background(), "u1", raw)
	})
	assert.Empty(t, received(peer))
}
