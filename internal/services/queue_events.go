package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/queue"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/realtime"
	"github.com/gerlope/ugr-matrix-chatroom-manager/monitoring"
)

const presenceKeyPrefix = "tutoring:occupied:"

// SnapshotSource is the coordinator slice the presence refresher reads.
type SnapshotSource interface {
	Rooms() []string
	GetSnapshot(roomID string) queue.Snapshot
}

// QueueEvents fans queue transitions out to the side channels: the Redis
// presence mirror other campus services poll, the dashboard realtime feed
// and the Prometheus counters. It runs outside the coordinator lock.
type QueueEvents struct {
	redis     *redis.Client
	publisher *realtime.Publisher
	monitor   *monitoring.Monitor
	queue     SnapshotSource
	ttl       time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewQueueEvents(redisClient *redis.Client, publisher *realtime.Publisher, monitor *monitoring.Monitor, queue SnapshotSource, presenceTTL time.Duration) *QueueEvents {
	if presenceTTL <= 0 {
		presenceTTL = 2 * time.Minute
	}
	return &QueueEvents{
		redis:     redisClient,
		publisher: publisher,
		monitor:   monitor,
		queue:     queue,
		ttl:       presenceTTL,
		stop:      make(chan struct{}),
	}
}

// Handle is registered as the coordinator's observer.
func (s *QueueEvents) Handle(ev queue.Event) {
	ctx := context.Background()

	switch ev.Kind {
	case queue.EventEnqueued:
		s.track("enqueue", ev.RoomID, "ok")
	case queue.EventOfferStarted:
		s.track("offer", ev.RoomID, "started")
		if s.monitor != nil {
			s.monitor.TrackOfferWait(ev.Waited)
		}
	case queue.EventOfferExpired:
		s.track("offer", ev.RoomID, "expired")
	case queue.EventConfirmed:
		s.track("confirm", ev.RoomID, "ok")
		s.markOccupied(ctx, ev.RoomID, ev.UserID)
	case queue.EventReleased:
		s.track("release", ev.RoomID, "ok")
		s.markFree(ctx, ev.RoomID, ev.UserID)
	case queue.EventLeft:
		s.track("leave", ev.RoomID, "ok")
		if ev.WasActive {
			s.markFree(ctx, ev.RoomID, ev.UserID)
		}
	case queue.EventDeparted:
		s.track("departure", ev.RoomID, "ok")
		if ev.State == queue.StateFree {
			s.markFree(ctx, ev.RoomID, ev.UserID)
		}
	}

	if err := s.publisher.PublishQueueSnapshot(ev.RoomID, s.queue.GetSnapshot(ev.RoomID)); err != nil {
		slog.Warn("Failed to publish queue snapshot", "room", ev.RoomID, "error", err)
	}
}

// Start launches the refresh loop that keeps presence keys from expiring
// while a tutoring session is still running.
func (s *QueueEvents) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.ttl / 2)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.refreshPresence(context.Background())
			}
		}
	}()
}

// Shutdown stops the refresh loop.
func (s *QueueEvents) Shutdown() {
	close(s.stop)
	s.wg.Wait()
}

func (s *QueueEvents) markOccupied(ctx context.Context, roomID, userID string) {
	if s.redis != nil {
		if err := s.redis.Set(ctx, presenceKeyPrefix+roomID, userID, s.ttl).Err(); err != nil {
			slog.Warn("Failed to mirror occupancy", "room", roomID, "error", err)
		}
	}
	if err := s.publisher.PublishPresence(roomID, userID, true); err != nil {
		slog.Warn("Failed to publish presence", "room", roomID, "error", err)
	}
}

func (s *QueueEvents) markFree(ctx context.Context, roomID, userID string) {
	if s.redis != nil {
		if err := s.redis.Del(ctx, presenceKeyPrefix+roomID).Err(); err != nil {
			slog.Warn("Failed to clear occupancy mirror", "room", roomID, "error", err)
		}
	}
	if err := s.publisher.PublishPresence(roomID, userID, false); err != nil {
		slog.Warn("Failed to publish presence", "room", roomID, "error", err)
	}
}

func (s *QueueEvents) refreshPresence(ctx context.Context) {
	if s.redis == nil {
		return
	}

	for _, roomID := range s.queue.Rooms() {
		snapshot := s.queue.GetSnapshot(roomID)
		if snapshot.State != queue.StateOccupied {
			continue
		}
		userID := activeUser(snapshot)
		if userID == "" {
			continue
		}
		if err := s.redis.Set(ctx, presenceKeyPrefix+roomID, userID, s.ttl).Err(); err != nil {
			slog.Warn("Failed to refresh occupancy mirror", "room", roomID, "error", err)
		}
	}
}

func (s *QueueEvents) track(operation, roomID, status string) {
	if s.monitor != nil {
		s.monitor.TrackQueueOperation(operation, roomID, status)
	}
}

func activeUser(snapshot queue.Snapshot) string {
	for _, entry := range snapshot.Entries {
		if entry.Status == queue.StatusActive {
			return entry.UserID
		}
	}
	return ""
}
