package queue

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// State of a tutoring room as tracked by the coordinator.
type State string

const (
	StateFree     State = "free"
	StateOccupied State = "occupied"
)

// Entry statuses as reported in snapshots.
const (
	StatusWaiting              = "waiting"
	StatusAwaitingConfirmation = "awaiting-confirmation"
	StatusActive               = "active"
)

const DefaultConfirmationTimeout = 60 * time.Second

// Entry is a single waiter in a room queue.
type Entry struct {
	UserID       string
	NotifyTarget string
	RequestedAt  time.Time
}

// roomQueue holds the volatile per-room state. All fields are guarded by
// the Coordinator mutex; nothing outside this package touches them.
type roomQueue struct {
	roomID           string
	teacherID        string
	teacherLabel     string
	teacherLocalpart string
	entries          []Entry
	state            State
	pendingUser      string
	pendingTimer     *time.Timer
	activeUser       string
}

// EntryView is the read-only projection of an Entry for status reporting.
type EntryView struct {
	Position    int       `json:"position"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`
}

// Snapshot is the read-only projection of a room queue.
type Snapshot struct {
	State   State       `json:"state"`
	Entries []EntryView `json:"entries"`
}

// EnqueueRequest carries the identifiers needed to join a room queue.
// Teacher metadata is display-only and refreshed on every call: a non-empty
// incoming value overwrites the stored one, an empty value never clears it.
type EnqueueRequest struct {
	RoomID           string
	TeacherID        string
	TeacherLabel     string
	TeacherLocalpart string
	UserID           string
	NotifyTarget     string
}

// Coordinator serializes access to shared tutoring rooms. Each room gets a
// strict FIFO waiting list with a confirm-or-timeout handshake before
// occupancy is granted. All queue state lives in process memory and is lost
// on restart; room membership at the chat layer is the durable truth.
type Coordinator struct {
	mu       sync.Mutex
	queues   map[string]*roomQueue
	window   time.Duration
	notifier Notifier
	observer Observer
}

// NewCoordinator builds a coordinator with the given confirmation window.
// A non-positive window falls back to DefaultConfirmationTimeout.
func NewCoordinator(window time.Duration) *Coordinator {
	if window <= 0 {
		window = DefaultConfirmationTimeout
	}
	return &Coordinator{
		queues: make(map[string]*roomQueue),
		window: window,
	}
}

// ConfigureNotifier injects the outbound message sink. Without one, notices
// are skipped. Send failures are logged and never affect queue state.
func (c *Coordinator) ConfigureNotifier(n Notifier) {
	c.mu.Lock()
	c.notifier = n
	c.mu.Unlock()
}

// ConfigureObserver injects the lifecycle event sink (metrics, presence,
// realtime feeds). Events are delivered outside the lock.
func (c *Coordinator) ConfigureObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

// Enqueue adds userID to the queue for roomID, creating the queue on first
// touch. Re-enqueueing an already queued user is a no-op that reports the
// existing 1-based position with added=false. When the new entry lands at
// the head of a free, un-offered room, the confirm-offer starts immediately.
func (c *Coordinator) Enqueue(req EnqueueRequest) (position int, added bool) {
	c.mu.Lock()
	q, ok := c.queues[req.RoomID]
	if !ok {
		q = &roomQueue{
			roomID:           req.RoomID,
			teacherID:        req.TeacherID,
			teacherLabel:     req.TeacherLabel,
			teacherLocalpart: req.TeacherLocalpart,
			state:            StateFree,
		}
		c.queues[req.RoomID] = q
	} else {
		if req.TeacherLabel != "" {
			q.teacherLabel = req.TeacherLabel
		}
		if req.TeacherLocalpart != "" {
			q.teacherLocalpart = req.TeacherLocalpart
		}
		if req.TeacherID != "" {
			q.teacherID = req.TeacherID
		}
	}

	for idx, entry := range q.entries {
		if entry.UserID == req.UserID {
			c.mu.Unlock()
			return idx + 1, false
		}
	}

	q.entries = append(q.entries, Entry{
		UserID:       req.UserID,
		NotifyTarget: req.NotifyTarget,
		RequestedAt:  time.Now().UTC(),
	})
	position = len(q.entries)
	shouldNotify := q.state == StateFree && q.pendingUser == "" && position == 1
	depth := len(q.entries)
	state := q.state
	c.mu.Unlock()

	c.emit(Event{Kind: EventEnqueued, RoomID: req.RoomID, UserID: req.UserID, Depth: depth, State: state})
	if shouldNotify {
		c.notifyNext(req.RoomID)
	}
	return position, true
}

// ConfirmAccess claims the live offer for userID. It fails without side
// effects when no offer exists or the offer belongs to someone else. On
// success the room becomes occupied and the offer timer is cancelled; the
// cancel happens after the lock is released so a firing timer can never
// wait on us.
func (c *Coordinator) ConfirmAccess(roomID, userID string) (ok bool, detail string) {
	c.mu.Lock()
	q := c.queues[roomID]
	if q == nil || q.pendingUser != userID {
		c.mu.Unlock()
		return false, "No estás al frente de la cola o no tienes una invitación activa."
	}

	q.state = StateOccupied
	q.activeUser = userID
	q.pendingUser = ""
	timer := q.pendingTimer
	q.pendingTimer = nil
	depth := len(q.entries)
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	c.emit(Event{Kind: EventConfirmed, RoomID: roomID, UserID: userID, Depth: depth, State: StateOccupied})
	return true, "Acceso confirmado. ¡Aprovecha tu tutoría!"
}

// ReleaseCurrent vacates the room: the head entry (pending or active) is
// removed, the room returns to free and the next waiter, if any, receives
// the confirm-offer. Returns the released user id. ok is false only when
// the room has no queue at all.
func (c *Coordinator) ReleaseCurrent(roomID string) (releasedUser string, ok bool) {
	c.mu.Lock()
	q := c.queues[roomID]
	if q == nil {
		c.mu.Unlock()
		return "", false
	}

	timer := q.pendingTimer
	if len(q.entries) > 0 {
		releasedUser = q.entries[0].UserID
		q.entries = q.entries[1:]
	}
	q.activeUser = ""
	q.pendingUser = ""
	q.pendingTimer = nil
	q.state = StateFree
	depth := len(q.entries)
	notifyNext := depth > 0
	c.cleanupLocked(roomID)
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	c.emit(Event{Kind: EventReleased, RoomID: roomID, UserID: releasedUser, Depth: depth, State: StateFree})
	if notifyNext {
		c.notifyNext(roomID)
	}
	return releasedUser, true
}

// LeaveQueue removes userID from the queue wherever they sit. Leaving while
// holding the offer cancels it; leaving while occupying frees the room. The
// next waiter is offered the room when the removal leaves it free and
// un-offered. Returns false when the user was not queued.
func (c *Coordinator) LeaveQueue(roomID, userID string) (removed bool) {
	c.mu.Lock()
	q := c.queues[roomID]
	if q == nil {
		c.mu.Unlock()
		return false
	}

	var timer *time.Timer
	var wasActive bool
	for idx, entry := range q.entries {
		if entry.UserID != userID {
			continue
		}
		removed = true
		q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
		if q.pendingUser == userID {
			timer = q.pendingTimer
			q.pendingUser = ""
			q.pendingTimer = nil
		}
		if q.activeUser == userID {
			wasActive = true
			q.activeUser = ""
			q.state = StateFree
		}
		break
	}

	notifyNext := removed && q.state == StateFree && q.pendingUser == "" && len(q.entries) > 0
	depth := len(q.entries)
	state := q.state
	c.cleanupLocked(roomID)
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if removed {
		c.emit(Event{Kind: EventLeft, RoomID: roomID, UserID: userID, Depth: depth, State: state, WasActive: wasActive})
	}
	if notifyNext {
		c.notifyNext(roomID)
	}
	return removed
}

// HandleExternalDeparture reacts to the occupant leaving the tutoring room
// at the chat layer without a release command. Departures of waiters or of
// the pending user are ignored here; they keep their place until they
// confirm, time out or leave explicitly.
func (c *Coordinator) HandleExternalDeparture(roomID, userID string) (affected bool) {
	c.mu.Lock()
	q := c.queues[roomID]
	if q == nil || q.activeUser != userID {
		c.mu.Unlock()
		return false
	}

	timer := q.pendingTimer
	q.pendingTimer = nil
	q.pendingUser = ""
	if len(q.entries) > 0 && q.entries[0].UserID == userID {
		q.entries = q.entries[1:]
	}
	q.activeUser = ""
	q.state = StateFree
	depth := len(q.entries)
	notifyNext := depth > 0
	c.cleanupLocked(roomID)
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	c.emit(Event{Kind: EventDeparted, RoomID: roomID, UserID: userID, Depth: depth, State: StateFree})
	if notifyNext {
		c.notifyNext(roomID)
	}
	return true
}

// GetSnapshot reports the queue for roomID. Unknown rooms report the same
// shape as a room whose queue was garbage collected: free with no entries.
func (c *Coordinator) GetSnapshot(roomID string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queues[roomID]
	if q == nil {
		return Snapshot{State: StateFree, Entries: []EntryView{}}
	}

	entries := make([]EntryView, 0, len(q.entries))
	for idx, entry := range q.entries {
		status := StatusWaiting
		if q.pendingUser == entry.UserID {
			status = StatusAwaitingConfirmation
		}
		if q.activeUser == entry.UserID {
			status = StatusActive
		}
		entries = append(entries, EntryView{
			Position:    idx + 1,
			UserID:      entry.UserID,
			Status:      status,
			RequestedAt: entry.RequestedAt,
		})
	}
	return Snapshot{State: q.state, Entries: entries}
}

// IsActiveUser reports whether userID currently occupies roomID.
func (c *Coordinator) IsActiveUser(roomID, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queues[roomID]
	return q != nil && q.activeUser == userID
}

// Rooms lists the rooms with a live queue, sorted for stable output.
func (c *Coordinator) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]string, 0, len(c.queues))
	for roomID := range c.queues {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// Depths reports the number of entries per live room queue.
func (c *Coordinator) Depths() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	depths := make(map[string]int, len(c.queues))
	for roomID, q := range c.queues {
		depths[roomID] = len(q.entries)
	}
	return depths
}

// Totals reports aggregate counters for monitoring: live room queues,
// waiting entries across all rooms, and occupied rooms.
func (c *Coordinator) Totals() (rooms, waiting, occupied int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms = len(c.queues)
	for _, q := range c.queues {
		waiting += len(q.entries)
		if q.state == StateOccupied {
			occupied++
		}
	}
	return rooms, waiting, occupied
}

// notifyNext starts the confirm-offer for the current head of roomID, if
// the room is free and nobody already holds an offer. The offer notice is
// sent after the lock is released.
func (c *Coordinator) notifyNext(roomID string) {
	c.mu.Lock()
	q := c.queues[roomID]
	if q == nil || q.state != StateFree || len(q.entries) == 0 {
		c.mu.Unlock()
		return
	}
	head := q.entries[0]
	if q.pendingUser == head.UserID || q.activeUser == head.UserID {
		c.mu.Unlock()
		return
	}

	q.pendingUser = head.UserID
	userID := head.UserID
	target := head.NotifyTarget
	label := q.teacherLabel
	localpart := q.teacherLocalpart
	waited := time.Since(head.RequestedAt)
	depth := len(q.entries)
	q.pendingTimer = time.AfterFunc(c.window, func() {
		c.handleTimeout(roomID, userID, target)
	})
	c.mu.Unlock()

	c.emit(Event{Kind: EventOfferStarted, RoomID: roomID, UserID: userID, Depth: depth, State: StateFree, Waited: waited})
	c.safeSend(target, fmt.Sprintf(
		"👋 %s, la sala de tutoría de %s está libre. Responde con `!tutoria confirmar %s` en el próximo minuto para mantener tu turno.",
		userID, label, localpart,
	))
}

// handleTimeout runs when a confirm-offer window elapses. The pending user
// is re-checked under the lock first: a confirm or release that won the
// race leaves a stale timer, and a stale timer must do nothing.
func (c *Coordinator) handleTimeout(roomID, userID, notifyTarget string) {
	c.mu.Lock()
	q := c.queues[roomID]
	if q == nil || q.pendingUser != userID {
		c.mu.Unlock()
		return
	}

	if len(q.entries) > 0 && q.entries[0].UserID == userID {
		q.entries = q.entries[1:]
	}
	q.pendingUser = ""
	q.pendingTimer = nil
	q.activeUser = ""
	q.state = StateFree
	depth := len(q.entries)
	notifyNext := depth > 0
	c.cleanupLocked(roomID)
	c.mu.Unlock()

	c.emit(Event{Kind: EventOfferExpired, RoomID: roomID, UserID: userID, Depth: depth, State: StateFree})
	c.safeSend(notifyTarget, "⏱️ Tiempo agotado. Pasamos al siguiente en la cola.")
	if notifyNext {
		c.notifyNext(roomID)
	}
}

// safeSend delivers a notice through the configured notifier. Failures are
// logged and swallowed: delivery is best-effort and queue state has already
// been committed by the time a notice goes out.
func (c *Coordinator) safeSend(target, text string) {
	c.mu.Lock()
	n := c.notifier
	c.mu.Unlock()

	if n == nil {
		slog.Debug("queue notice skipped, no notifier configured", "target", target)
		return
	}
	if err := n.Notify(target, text); err != nil {
		slog.Warn("failed to send queue notice", "target", target, "error", err)
	}
}

func (c *Coordinator) emit(ev Event) {
	c.mu.Lock()
	o := c.observer
	c.mu.Unlock()

	if o != nil {
		o(ev)
	}
}

// cleanupLocked drops the registry entry for roomID once it is fully idle,
// so an idle room is indistinguishable from one never requested. Caller
// holds the lock.
func (c *Coordinator) cleanupLocked(roomID string) {
	q := c.queues[roomID]
	if q == nil {
		return
	}
	if len(q.entries) == 0 && q.pendingUser == "" && q.activeUser == "" {
		if q.pendingTimer != nil {
			q.pendingTimer.Stop()
		}
		delete(c.queues, roomID)
	}
}
