package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"

	"github.com/gerlope/ugr-matrix-chatroom-manager/utils"
)

const dashboardChannel = "dashboard"

// Publisher pushes live queue and presence updates to the dashboard over
// PubNub. Payloads carry an HMAC signature so the dashboard can reject
// spoofed messages on a key anyone can subscribe to.
type Publisher struct {
	pn         *pubnub.PubNub
	signingKey string
}

// NewPublisher returns nil when the keys are not configured; a nil
// Publisher drops every publish.
func NewPublisher(publishKey, subscribeKey, secretKey, signingKey string) *Publisher {
	if publishKey == "" || subscribeKey == "" {
		return nil
	}

	config := pubnub.NewConfigWithUserId(pubnub.UserId("tutorbot-backend"))
	config.PublishKey = publishKey
	config.SubscribeKey = subscribeKey
	config.SecretKey = secretKey
	config.Secure = true

	return &Publisher{
		pn:         pubnub.NewPubNub(config),
		signingKey: signingKey,
	}
}

// PublishQueueSnapshot pushes the state of one room queue to its channel.
func (p *Publisher) PublishQueueSnapshot(roomID string, snapshot any) error {
	return p.publish(roomChannel(roomID), "queue_snapshot", map[string]any{
		"room_id":  roomID,
		"snapshot": snapshot,
	})
}

// PublishPresence pushes an occupancy change of a tutoring room.
func (p *Publisher) PublishPresence(roomID, userID string, occupied bool) error {
	return p.publish(dashboardChannel, "presence", map[string]any{
		"room_id":  roomID,
		"user_id":  userID,
		"occupied": occupied,
	})
}

// PublishQuestionAnnounced signals that the bot announced a question.
func (p *Publisher) PublishQuestionAnnounced(questionID, roomID string) error {
	return p.publish(dashboardChannel, "question_announced", map[string]any{
		"question_id": questionID,
		"room_id":     roomID,
	})
}

func (p *Publisher) publish(channel, event string, data any) error {
	if p == nil {
		return nil
	}

	message, err := signedMessage(event, data, p.signingKey)
	if err != nil {
		return err
	}

	_, _, err = p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	if err != nil {
		slog.Warn("PubNub publish failed", "channel", channel, "event", event, "error", err)
		return fmt.Errorf("publish %s to %s: %w", event, channel, err)
	}
	return nil
}

// Close releases the PubNub client.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.pn.Destroy()
}

func roomChannel(roomID string) string {
	return "tutoring." + roomID
}

func signedMessage(event string, data any, signingKey string) (map[string]any, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return map[string]any{
		"event":     event,
		"data":      json.RawMessage(body),
		"signature": utils.Hmac256(body, []byte(signingKey)),
	}, nil
}
