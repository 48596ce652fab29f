package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/realtime"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
	"github.com/gerlope/ugr-matrix-chatroom-manager/monitoring"
)

// announcedSetKey remembers which questions have already been posted so a
// restart does not re-announce the whole backlog.
const announcedSetKey = "questions:announced"

// QuestionSource is the store slice the notifier polls.
type QuestionSource interface {
	OpenQuestions(now time.Time) ([]models.Question, error)
}

// Announcer posts the announcement into the course room.
type Announcer interface {
	SendMessage(roomID, text string) error
}

// QuestionNotifier periodically looks for dashboard questions that have
// opened and announces each one once in its course room.
type QuestionNotifier struct {
	store     QuestionSource
	gateway   Announcer
	redis     *redis.Client
	publisher *realtime.Publisher
	monitor   *monitoring.Monitor
	interval  time.Duration

	now func() time.Time

	// fallback dedup for deployments without Redis
	mu        sync.Mutex
	announced map[string]bool

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewQuestionNotifier(store QuestionSource, gateway Announcer, redisClient *redis.Client, publisher *realtime.Publisher, monitor *monitoring.Monitor, interval time.Duration) *QuestionNotifier {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &QuestionNotifier{
		store:     store,
		gateway:   gateway,
		redis:     redisClient,
		publisher: publisher,
		monitor:   monitor,
		interval:  interval,
		now:       time.Now,
		announced: map[string]bool{},
		stop:      make(chan struct{}),
	}
}

// Start launches the polling loop.
func (n *QuestionNotifier) Start() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()

		for {
			select {
			case <-n.stop:
				return
			case <-ticker.C:
				n.announceDue(context.Background())
			}
		}
	}()
	slog.Info("Question notifier started", "interval", n.interval)
}

// Shutdown stops the polling loop and waits for an in-flight pass.
func (n *QuestionNotifier) Shutdown() {
	close(n.stop)
	n.wg.Wait()
}

func (n *QuestionNotifier) announceDue(ctx context.Context) {
	questions, err := n.store.OpenQuestions(n.now())
	if err != nil {
		slog.Error("Failed to load open questions", "error", err)
		return
	}

	for _, question := range questions {
		seen, err := n.alreadyAnnounced(ctx, question.ID)
		if err != nil {
			// Redis down: skip rather than risk spamming the room on
			// every tick until it recovers.
			slog.Warn("Announcement dedup check failed", "question", question.ID, "error", err)
			continue
		}
		if seen {
			continue
		}

		if err := n.gateway.SendMessage(question.RoomID, announcementText(question)); err != nil {
			slog.Error("Failed to announce question", "question", question.ID, "room", question.RoomID, "error", err)
			continue
		}

		if err := n.markAnnounced(ctx, question.ID); err != nil {
			slog.Warn("Failed to record announcement", "question", question.ID, "error", err)
		}
		if n.monitor != nil {
			n.monitor.TrackQuestionAnnounced()
		}
		if err := n.publisher.PublishQuestionAnnounced(question.ID, question.RoomID); err != nil {
			slog.Warn("Failed to publish question announcement", "question", question.ID, "error", err)
		}
		slog.Info("Question announced", "question", question.ID, "room", question.RoomID)
	}
}

func (n *QuestionNotifier) alreadyAnnounced(ctx context.Context, questionID string) (bool, error) {
	if n.redis == nil {
		n.mu.Lock()
		defer n.mu.Unlock()
		return n.announced[questionID], nil
	}
	return n.redis.SIsMember(ctx, announcedSetKey, questionID).Result()
}

func (n *QuestionNotifier) markAnnounced(ctx context.Context, questionID string) error {
	if n.redis == nil {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.announced[questionID] = true
		return nil
	}
	return n.redis.SAdd(ctx, announcedSetKey, questionID).Err()
}

func announcementText(q models.Question) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📢 Nueva pregunta: %s (#%s)\n", q.Title, q.ID)
	if q.Body != "" {
		b.WriteString(q.Body)
		b.WriteString("\n")
	}
	if len(q.Options) > 0 {
		b.WriteString("Opciones:\n")
		for _, key := range sortedOptionKeys(q.Options) {
			fmt.Fprintf(&b, "  %s) %s\n", key, q.Options[key])
		}
	}
	if !q.EndAt.IsZero() {
		fmt.Fprintf(&b, "Disponible hasta el %s.\n", q.EndAt.Format("02/01/2006 15:04"))
	}
	fmt.Fprintf(&b, "Responde con: !responder %s <respuesta>", q.ID)

	return b.String()
}

func sortedOptionKeys(options map[string]string) []string {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
