package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"
)

const (
	requestTimeout  = 5 * time.Second
	sendWaitTimeout = 10 * time.Second
)

// Options configures the connection to the chat fabric.
type Options struct {
	URL        string
	ClientName string
	BotUserID  string
	SendRate   float64
	SendBurst  int
}

// Handlers receives decoded inbound events. Nil fields are skipped.
type Handlers struct {
	Message    func(Message)
	Membership func(Membership)
	Reaction   func(Reaction)
}

// Gateway bridges the bot and the NATS chat fabric. Outbound sends go
// through a shared rate limiter so a burst of queue notifications cannot
// flood the rooms.
type Gateway struct {
	nc        *nats.Conn
	botUserID string
	limiter   *rate.Limiter
	started   time.Time

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect establishes the NATS connection. Reconnects are handled by the
// client; only the initial dial can fail here.
func Connect(opts Options) (*Gateway, error) {
	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", opts.URL, err)
	}

	burst := opts.SendBurst
	if burst <= 0 {
		burst = 1
	}

	gw := &Gateway{
		nc:        nc,
		botUserID: opts.BotUserID,
		limiter:   rate.NewLimiter(rate.Limit(opts.SendRate), burst),
		started:   time.Now(),
	}
	slog.Info("Connected to NATS", "url", nc.ConnectedUrl(), "client", opts.ClientName)
	return gw, nil
}

// SendMessage publishes a message to a room as the bot user.
func (g *Gateway) SendMessage(roomID, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendWaitTimeout)
	defer cancel()
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send rate limiter: %w", err)
	}

	data, err := json.Marshal(g.newChatPayload(roomID, text))
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", roomID, err)
	}
	if err := g.nc.Publish("chat."+roomID, data); err != nil {
		return fmt.Errorf("publish to %s: %w", roomID, err)
	}
	return nil
}

// Invite asks the room fabric to add a user to a room.
func (g *Gateway) Invite(roomID, userID string) error {
	return g.roomAction("room.invite."+roomID, roomActionRequest{
		Target: userID,
		User:   g.botUserID,
	})
}

// Kick asks the room fabric to remove a user from a room.
func (g *Gateway) Kick(roomID, userID, reason string) error {
	return g.roomAction("room.kick."+roomID, roomActionRequest{
		Target: userID,
		User:   g.botUserID,
		Reason: reason,
	})
}

// Members asks the room fabric for the current member list of a room.
func (g *Gateway) Members(roomID string) ([]string, error) {
	subject := "room.members." + roomID
	msg, err := g.nc.Request(subject, nil, requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}
	return parseMembers(subject, msg.Data)
}

func (g *Gateway) roomAction(subject string, req roomActionRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request for %s: %w", subject, err)
	}
	msg, err := g.nc.Request(subject, data, requestTimeout)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}
	return parseRoomActionResponse(subject, msg.Data)
}

// Subscribe wires the inbound subjects to the given handlers. Chat
// messages use a queue group so concurrent bot instances split the
// command load; membership deltas go to every instance.
func (g *Gateway) Subscribe(h Handlers) error {
	// Room ids contain dots, so the room is the full subject tail.
	sub, err := g.nc.QueueSubscribe("chat.>", "tutorbot-workers", func(msg *nats.Msg) {
		if strings.HasPrefix(msg.Subject, "chat.history") {
			return
		}
		g.handleChat(msg.Subject, msg.Data, h)
	})
	if err != nil {
		return fmt.Errorf("subscribe to chat.>: %w", err)
	}
	g.trackSub(sub)

	sub, err = g.nc.Subscribe("room.changed.>", func(msg *nats.Msg) {
		g.handleRoomChanged(msg.Subject, msg.Data, h)
	})
	if err != nil {
		return fmt.Errorf("subscribe to room.changed.>: %w", err)
	}
	g.trackSub(sub)

	return nil
}

func (g *Gateway) handleChat(subject string, data []byte, h Handlers) {
	var payload chatPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("Invalid chat payload", "subject", subject, "error", err)
		return
	}

	room := payload.Room
	if room == "" {
		room = strings.TrimPrefix(subject, "chat.")
	}

	if payload.User == g.botUserID {
		return
	}
	if g.stale(payload.Timestamp) {
		slog.Debug("Skipping event from before startup", "room", room, "user", payload.User)
		return
	}

	switch payload.Action {
	case actionReaction, actionRedaction:
		if h.Reaction == nil {
			return
		}
		h.Reaction(Reaction{
			RoomID:   room,
			EventID:  payload.ID,
			Sender:   payload.User,
			TargetID: payload.TargetID,
			Key:      payload.Key,
			Redacted: payload.Action == actionRedaction,
		})
	case "", actionMessage:
		if h.Message == nil {
			return
		}
		h.Message(Message{
			RoomID:    room,
			EventID:   payload.ID,
			Sender:    payload.User,
			Body:      payload.Text,
			Timestamp: time.UnixMilli(payload.Timestamp),
		})
	case actionSystem:
		// Fabric notices are not user input.
	default:
		slog.Debug("Ignoring chat payload with unknown action", "action", payload.Action)
	}
}

func (g *Gateway) handleRoomChanged(subject string, data []byte, h Handlers) {
	if h.Membership == nil {
		return
	}

	var evt RoomChangedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		slog.Warn("Invalid room.changed event", "subject", subject, "error", err)
		return
	}

	room := evt.Room
	if room == "" {
		room = strings.TrimPrefix(subject, "room.changed.")
	}
	if evt.Action != "join" && evt.Action != "leave" {
		return
	}

	h.Membership(Membership{RoomID: room, UserID: evt.UserId, Action: evt.Action})
}

// stale reports whether an event predates gateway startup. Replayed
// history must not retrigger commands.
func (g *Gateway) stale(tsMillis int64) bool {
	if tsMillis == 0 {
		return false
	}
	return time.UnixMilli(tsMillis).Before(g.started)
}

func (g *Gateway) newChatPayload(roomID, text string) chatPayload {
	return chatPayload{
		User:      g.botUserID,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		Room:      roomID,
		Action:    actionMessage,
	}
}

func parseRoomActionResponse(subject string, data []byte) error {
	var resp roomActionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode response from %s: %w", subject, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%s rejected: %s", subject, resp.Error)
	}
	if !resp.Ok {
		return fmt.Errorf("%s rejected", subject)
	}
	return nil
}

func parseMembers(subject string, data []byte) ([]string, error) {
	var members []string
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("decode members from %s: %w", subject, err)
	}
	return members, nil
}

func (g *Gateway) trackSub(sub *nats.Subscription) {
	g.mu.Lock()
	g.subs = append(g.subs, sub)
	g.mu.Unlock()
}

// Connected reports whether the NATS connection is currently up.
func (g *Gateway) Connected() bool {
	return g.nc != nil && g.nc.IsConnected()
}

// Close drains the subscriptions and the connection.
func (g *Gateway) Close() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			slog.Warn("Failed to drain subscription", "error", err)
		}
	}
	if g.nc != nil {
		g.nc.Drain()
	}
}
