package chat

import "time"

// Message is an inbound chat message delivered to the bot. EventID is the
// fabric-assigned id other events reference, empty when the sender's client
// did not set one.
type Message struct {
	RoomID    string
	EventID   string
	Sender    string
	Body      string
	Timestamp time.Time
}

// Membership is a join or leave delta for a room.
type Membership struct {
	RoomID string
	UserID string
	Action string // "join" or "leave"
}

// Reaction is an emoji annotation on a prior message, or its removal. For
// redactions TargetID names the redacted reaction event, not a message.
type Reaction struct {
	RoomID   string
	EventID  string
	Sender   string
	TargetID string
	Key      string
	Redacted bool
}

// chatPayload is the wire shape carried on chat.{room} subjects.
type chatPayload struct {
	ID        string `json:"id,omitempty"`
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Room      string `json:"room"`
	Action    string `json:"action,omitempty"`
	TargetID  string `json:"targetId,omitempty"`
	Key       string `json:"key,omitempty"`
}

// RoomChangedEvent is a membership delta published on room.changed.{room}.
type RoomChangedEvent struct {
	Room   string `json:"room"`
	Action string `json:"action"` // "join" or "leave"
	UserId string `json:"userId"`
	Type   string `json:"type,omitempty"`
}

// roomActionRequest is the request payload for room.invite.{room} and
// room.kick.{room}.
type roomActionRequest struct {
	Target string `json:"target"`
	User   string `json:"user"`
	Reason string `json:"reason,omitempty"`
}

type roomActionResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

const (
	actionMessage   = "message"
	actionSystem    = "system"
	actionReaction  = "reaction"
	actionRedaction = "redaction"
)
