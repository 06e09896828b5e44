package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlink/realtime-gateway/internal/domain"
)

func TestParseClientFrame(t *testing.T) {
	t.Run("typing start", func(t *testing.T) {
		f, err := ParseClientFrame([]byte(`{"type":"typing_start","conversationId":"conv1","userName":"Ada"}`))
		require.NoError(t, err)
		assert.Equal(t, ClientTypingStart{ConversationID: "conv1", UserName: "Ada"}, f)
	})

	t.Run("typing stop", func(t *testing.T) {
		f, err := ParseClientFrame([]byte(`{"type":"typing_stop","conversationId":"conv1"}`))
		require.NoError(t, err)
		assert.Equal(t, ClientTypingStop{ConversationID: "conv1"}, f)
	})

	t.Run("subscribe is accepted", func(t *testing.T) {
		f, err := ParseClientFrame([]byte(`{"type":"subscribe","conversationId":"conv1"}`))
		require.NoError(t, err)
		assert.Equal(t, ClientSubscribe{}, f)
	})

	t.Run("rejects malformed frames", func(t *testing.T) {
		cases := map[string]string{
			"not json":               `{{{`,
			"unknown type":           `{"type":"ping"}`,
			"missing type":           `{"conversationId":"conv1"}`,
			"typing start no conv":   `{"type":"typing_start","userName":"Ada"}`,
			"typing stop no conv":    `{"type":"typing_stop"}`,
			"typing start bad shape": `{"type":"typing_start","conversationId":42}`,
		}
		for name, raw := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := ParseClientFrame([]byte(raw))
				assert.Error(t, err)
			})
		}
	})
}

func TestEncodeTagsEveryEvent(t *testing.T) {
	msg := domain.Message{
		ID:             "msg1",
		ConversationID: "conv1",
		SenderID:       "user:ada",
		Body:           "hello",
		SentAt:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	cases := []struct {
		event    ServerEvent
		wantType string
	}{
		{NewConnected("user:ada"), TypeConnected},
		{NewNewMessage("conv1", msg), TypeNewMessage},
		{NewTypingStart("conv1", "user:ada", "Ada"), TypeTypingStart},
		{NewTypingStop("conv1", "user:ada"), TypeTypingStop},
		{NewMessageRead("msg1", "conv1"), TypeMessageRead},
		{NewReaction("msg1", "👍", "user:ada", true), TypeReactionAdded},
		{NewReaction("msg1", "👍", "user:ada", false), TypeReactionRemoved},
		{NewBadgeCounts(), TypeBadgeCountsNudge},
	}

	for _, tc := range cases {
		raw, err := Encode(tc.event)
		require.NoError(t, err)

		var head struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &head))
		assert.Equal(t, tc.wantType, head.Type)
	}
}

func TestNewMessageEventWireShape(t *testing.T) {
	msg := domain.Message{
		ID:             "msg1",
		ConversationID: "conv1",
		SenderID:       "user:ada",
		Body:           "hello",
		SentAt:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	raw, err := Encode(NewNewMessage("conv1", msg))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "conv1", decoded["conversationId"])

	payload, ok := decoded["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user:ada", payload["senderId"])
	assert.Equal(t, "hello", payload["body"])
}
