package bot

import "sync"

const eventCacheSize = 4096

// award records one counted reaction so its redaction can be undone later.
type award struct {
	RoomID  string
	Teacher string
	Student string
	Emoji   string
}

// eventCache is a bounded memory of recent events: message senders, so a
// reaction can be attributed, and counted reactions, so a redaction can
// reverse them. The fabric keeps no queryable event log, this cache is
// the only lookup the bot has. Oldest entries fall out first.
type eventCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	senders  map[string]string
	awards   map[string]award
}

func newEventCache(capacity int) *eventCache {
	return &eventCache{
		capacity: capacity,
		senders:  make(map[string]string),
		awards:   make(map[string]award),
	}
}

func (c *eventCache) rememberMessage(eventID, sender string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(eventID)
	c.senders[eventID] = sender
}

func (c *eventCache) messageSender(eventID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sender, ok := c.senders[eventID]
	return sender, ok
}

func (c *eventCache) rememberReaction(eventID string, a award) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(eventID)
	c.awards[eventID] = a
}

// takeReaction removes and returns the award for a reaction event. A
// second redaction of the same event finds nothing and decrements nothing.
func (c *eventCache) takeReaction(eventID string) (award, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.awards[eventID]
	if ok {
		delete(c.awards, eventID)
	}
	return a, ok
}

func (c *eventCache) insertLocked(eventID string) {
	if _, dup := c.senders[eventID]; dup {
		return
	}
	if _, dup := c.awards[eventID]; dup {
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.senders, oldest)
		delete(c.awards, oldest)
	}
	c.order = append(c.order, eventID)
}
