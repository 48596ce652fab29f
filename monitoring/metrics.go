package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tutoring_queue_depth",
			Help: "Current number of entries per tutoring room queue",
		},
		[]string{"room_id"},
	)

	liveQueues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tutoring_live_queues_total",
			Help: "Number of rooms with a live queue",
		},
	)

	waitingUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tutoring_waiting_users_total",
			Help: "Waiting entries across all tutoring rooms",
		},
	)

	occupiedRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tutoring_occupied_rooms_total",
			Help: "Tutoring rooms currently occupied",
		},
	)

	presenceMirrorRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tutoring_presence_mirror_rooms",
			Help: "Occupied rooms according to the Redis presence mirror",
		},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutoring_queue_operations_total",
			Help: "Total queue operations",
		},
		[]string{"operation", "room_id", "status"},
	)

	offerWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tutoring_offer_wait_seconds",
			Help:    "Time between enqueue and the confirm-offer reaching the user",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	commandsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Chat commands processed by the bot",
		},
		[]string{"command", "status"},
	)

	gatewaySendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_send_failures_total",
			Help: "Outbound chat messages that failed to send",
		},
	)

	questionsAnnounced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "questions_announced_total",
			Help: "Dashboard questions announced in course rooms",
		},
	)
)

// QueueTotals is the slice of the coordinator the Monitor polls.
type QueueTotals interface {
	Totals() (rooms, waiting, occupied int)
	Depths() map[string]int
}

type Monitor struct {
	redis *redis.Client
	queue QueueTotals
	stop  chan struct{}
}

func NewMonitor(redisClient *redis.Client, queue QueueTotals) *Monitor {
	monitor := &Monitor{redis: redisClient, queue: queue, stop: make(chan struct{})}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			ctx := context.Background()

			m.collectQueueMetrics()
			m.collectPresenceMetrics(ctx)
		}
	}
}

// Shutdown stops the collection loop.
func (m *Monitor) Shutdown() {
	if m == nil {
		return
	}
	close(m.stop)
}

func (m *Monitor) collectQueueMetrics() {
	if m.queue == nil {
		return
	}

	rooms, waiting, occupied := m.queue.Totals()
	liveQueues.Set(float64(rooms))
	waitingUsers.Set(float64(waiting))
	occupiedRooms.Set(float64(occupied))

	// Reset so rooms whose queue was garbage collected drop off.
	queueDepth.Reset()
	for roomID, depth := range m.queue.Depths() {
		queueDepth.WithLabelValues(roomID).Set(float64(depth))
	}
}

func (m *Monitor) collectPresenceMetrics(ctx context.Context) {
	if m.redis == nil {
		return
	}

	keys, err := m.redis.Keys(ctx, "tutoring:occupied:*").Result()
	if err != nil {
		return
	}
	presenceMirrorRooms.Set(float64(len(keys)))
}

// TrackQueueOperation records one coordinator operation outcome.
func (m *Monitor) TrackQueueOperation(operation, roomID, status string) {
	queueOperations.WithLabelValues(operation, roomID, status).Inc()
}

// TrackOfferWait records how long a user waited before receiving an offer.
func (m *Monitor) TrackOfferWait(duration time.Duration) {
	offerWaitSeconds.Observe(duration.Seconds())
}

// TrackCommand records one processed chat command.
func (m *Monitor) TrackCommand(command, status string) {
	commandsProcessed.WithLabelValues(command, status).Inc()
}

// TrackSendFailure records an outbound chat delivery failure.
func (m *Monitor) TrackSendFailure() {
	gatewaySendFailures.Inc()
}

// TrackQuestionAnnounced records one question announcement.
func (m *Monitor) TrackQuestionAnnounced() {
	questionsAnnounced.Inc()
}
