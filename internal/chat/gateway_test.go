package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestGateway(started time.Time) *Gateway {
	return &Gateway{
		botUserID: "@tutorbot:ugr.es",
		limiter:   rate.NewLimiter(rate.Limit(100), 10),
		started:   started,
	}
}

type capturedEvents struct {
	messages    []Message
	memberships []Membership
	reactions   []Reaction
}

func (c *capturedEvents) handlers() Handlers {
	return Handlers{
		Message:    func(m Message) { c.messages = append(c.messages, m) },
		Membership: func(m Membership) { c.memberships = append(c.memberships, m) },
		Reaction:   func(r Reaction) { c.reactions = append(c.reactions, r) },
	}
}

func chatJSON(t *testing.T, payload chatPayload) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

func TestGateway_HandleChat_DispatchesMessage(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))
	var captured capturedEvents

	payload := chatPayload{
		ID:        "evt42",
		User:      "@alice:ugr.es",
		Text:      "!tutoria solicitar garcia",
		Timestamp: time.Now().UnixMilli(),
		Room:      "!algebra:ugr.es",
	}
	gw.handleChat("chat.!algebra:ugr.es", chatJSON(t, payload), captured.handlers())

	require.Len(t, captured.messages, 1)
	msg := captured.messages[0]
	assert.Equal(t, "!algebra:ugr.es", msg.RoomID)
	assert.Equal(t, "evt42", msg.EventID)
	assert.Equal(t, "@alice:ugr.es", msg.Sender)
	assert.Equal(t, "!tutoria solicitar garcia", msg.Body)
	assert.Empty(t, captured.reactions)
}

func TestGateway_HandleChat_RoomFallsBackToSubject(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))
	var captured capturedEvents

	payload := chatPayload{
		User:      "@alice:ugr.es",
		Text:      "hola",
		Timestamp: time.Now().UnixMilli(),
	}
	gw.handleChat("chat.!algebra:ugr.es", chatJSON(t, payload), captured.handlers())

	require.Len(t, captured.messages, 1)
	assert.Equal(t, "!algebra:ugr.es", captured.messages[0].RoomID)
}

func TestGateway_HandleChat_SkipsOwnMessages(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))
	var captured capturedEvents

	payload := chatPayload{
		User:      "@tutorbot:ugr.es",
		Text:      "Acceso confirmado.",
		Timestamp: time.Now().UnixMilli(),
		Room:      "!algebra:ugr.es",
	}
	gw.handleChat("chat.!algebra:ugr.es", chatJSON(t, payload), captured.handlers())

	assert.Empty(t, captured.messages)
}

func TestGateway_HandleChat_SkipsEventsFromBeforeStartup(t *testing.T) {
	gw := newTestGateway(time.Now())
	var captured capturedEvents

	payload := chatPayload{
		User:      "@alice:ugr.es",
		Text:      "!ayuda",
		Timestamp: time.Now().Add(-time.Hour).UnixMilli(),
		Room:      "!algebra:ugr.es",
	}
	gw.handleChat("chat.!algebra:ugr.es", chatJSON(t, payload), captured.handlers())

	assert.Empty(t, captured.messages)
}

func TestGateway_HandleChat_ZeroTimestampIsNotStale(t *testing.T) {
	gw := newTestGateway(time.Now())
	var captured capturedEvents

	payload := chatPayload{
		User: "@alice:ugr.es",
		Text: "!ayuda",
		Room: "!algebra:ugr.es",
	}
	gw.handleChat("chat.!algebra:ugr.es", chatJSON(t, payload), captured.handlers())

	assert.Len(t, captured.messages, 1)
}

func TestGateway_HandleChat_DispatchesReaction(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))
	var captured capturedEvents

	payload := chatPayload{
		User:      "@alice:ugr.es",
		Timestamp: time.Now().UnixMilli(),
		Room:      "!algebra:ugr.es",
		Action:    actionReaction,
		TargetID:  "evt123",
		Key:       "👍",
	}
	gw.handleChat("chat.!algebra:ugr.es", chatJSON(t, payload), captured.handlers())

	require.Len(t, captured.reactions, 1)
	reaction := captured.reactions[0]
	assert.Equal(t, "evt123", reaction.TargetID)
	assert.Equal(t, "👍", reaction.Key)
	assert.False(t, reaction.Redacted)
	assert.Empty(t, captured.messages)
}

func TestGateway_HandleChat_RedactionMarksRemoval(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))
	var captured capturedEvents

	payload := chatPayload{
		User:      "@alice:ugr.es",
		Timestamp: time.Now().UnixMilli(),
		Room:      "!algebra:ugr.es",
		Action:    actionRedaction,
		TargetID:  "evt123",
		Key:       "👍",
	}
	gw.handleChat("chat.!algebra:ugr.es", chatJSON(t, payload), captured.handlers())

	require.Len(t, captured.reactions, 1)
	assert.True(t, captured.reactions[0].Redacted)
}

func TestGateway_HandleChat_IgnoresSystemNotices(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))
	var captured capturedEvents

	payload := chatPayload{
		User:      "__system__",
		Text:      "@alice:ugr.es was invited by @tutorbot:ugr.es",
		Timestamp: time.Now().UnixMilli(),
		Room:      "!algebra:ugr.es",
		Action:    actionSystem,
	}
	gw.handleChat("chat.!algebra:ugr.es", chatJSON(t, payload), captured.handlers())

	assert.Empty(t, captured.messages)
	assert.Empty(t, captured.reactions)
}

func TestGateway_HandleChat_InvalidJSON(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))
	var captured capturedEvents

	gw.handleChat("chat.!algebra:ugr.es", []byte("{not json"), captured.handlers())

	assert.Empty(t, captured.messages)
}

func TestGateway_HandleChat_NilHandlerIsSafe(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))

	payload := chatPayload{
		User:      "@alice:ugr.es",
		Text:      "hola",
		Timestamp: time.Now().UnixMilli(),
		Room:      "!algebra:ugr.es",
	}
	gw.handleChat("chat.!algebra:ugr.es", chatJSON(t, payload), Handlers{})
}

func TestGateway_HandleRoomChanged_DispatchesJoinAndLeave(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))
	var captured capturedEvents

	join, err := json.Marshal(RoomChangedEvent{Room: "!tutoria-garcia:ugr.es", Action: "join", UserId: "@alice:ugr.es"})
	require.NoError(t, err)
	leave, err := json.Marshal(RoomChangedEvent{Room: "!tutoria-garcia:ugr.es", Action: "leave", UserId: "@alice:ugr.es"})
	require.NoError(t, err)

	gw.handleRoomChanged("room.changed.!tutoria-garcia:ugr.es", join, captured.handlers())
	gw.handleRoomChanged("room.changed.!tutoria-garcia:ugr.es", leave, captured.handlers())

	require.Len(t, captured.memberships, 2)
	assert.Equal(t, "join", captured.memberships[0].Action)
	assert.Equal(t, "leave", captured.memberships[1].Action)
	assert.Equal(t, "!tutoria-garcia:ugr.es", captured.memberships[0].RoomID)
	assert.Equal(t, "@alice:ugr.es", captured.memberships[0].UserID)
}

func TestGateway_HandleRoomChanged_RoomFallsBackToSubject(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))
	var captured capturedEvents

	evt, err := json.Marshal(RoomChangedEvent{Action: "join", UserId: "@alice:ugr.es"})
	require.NoError(t, err)
	gw.handleRoomChanged("room.changed.!tutoria-garcia:ugr.es", evt, captured.handlers())

	require.Len(t, captured.memberships, 1)
	assert.Equal(t, "!tutoria-garcia:ugr.es", captured.memberships[0].RoomID)
}

func TestGateway_HandleRoomChanged_IgnoresUnknownActions(t *testing.T) {
	gw := newTestGateway(time.Now().Add(-time.Minute))
	var captured capturedEvents

	evt, err := json.Marshal(RoomChangedEvent{Room: "!x:ugr.es", Action: "rename", UserId: "@alice:ugr.es"})
	require.NoError(t, err)
	gw.handleRoomChanged("room.changed.!x:ugr.es", evt, captured.handlers())

	assert.Empty(t, captured.memberships)
}

func TestGateway_NewChatPayload(t *testing.T) {
	gw := newTestGateway(time.Now())

	payload := gw.newChatPayload("!algebra:ugr.es", "hola clase")

	assert.Equal(t, "@tutorbot:ugr.es", payload.User)
	assert.Equal(t, "hola clase", payload.Text)
	assert.Equal(t, "!algebra:ugr.es", payload.Room)
	assert.Equal(t, actionMessage, payload.Action)
	assert.InDelta(t, time.Now().UnixMilli(), payload.Timestamp, 2000)
}

func TestParseMembers(t *testing.T) {
	members, err := parseMembers("room.members.!x:ugr.es", []byte(`["@alice:ugr.es","@tutorbot:ugr.es"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"@alice:ugr.es", "@tutorbot:ugr.es"}, members)

	_, err = parseMembers("room.members.!x:ugr.es", []byte(`{"nope":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode members")
}

func TestParseRoomActionResponse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "ok", data: `{"ok":true}`},
		{name: "fabric error", data: `{"error":"unauthorized"}`, wantErr: "unauthorized"},
		{name: "not ok without error", data: `{"ok":false}`, wantErr: "rejected"},
		{name: "invalid json", data: `nope`, wantErr: "decode response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseRoomActionResponse("room.invite.!x:ugr.es", []byte(tt.data))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
