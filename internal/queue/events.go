package queue

import "time"

// Notifier delivers queue notices (offers, expiry warnings) to a chat
// destination. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(target, text string) error
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(target, text string) error

func (f NotifierFunc) Notify(target, text string) error {
	return f(target, text)
}

type EventKind string

const (
	EventEnqueued     EventKind = "enqueued"
	EventOfferStarted EventKind = "offer_started"
	EventOfferExpired EventKind = "offer_expired"
	EventConfirmed    EventKind = "confirmed"
	EventReleased     EventKind = "released"
	EventLeft         EventKind = "left"
	EventDeparted     EventKind = "departed"
)

// Event describes a queue state transition after it has been committed.
// Observers run outside the coordinator lock and must not call back into
// mutating operations synchronously from hot paths.
type Event struct {
	Kind   EventKind
	RoomID string
	UserID string
	// Depth is the number of entries remaining after the transition.
	Depth int
	State State
	// WasActive is only set on EventLeft: whether the removed user held
	// the active session, so the leave vacated the room.
	WasActive bool
	// Waited is only set on EventOfferStarted: time between the user's
	// enqueue and the offer reaching them.
	Waited time.Duration
}

// Observer receives queue lifecycle events.
type Observer func(Event)
