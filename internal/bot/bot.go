package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/chat"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/moodle"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/queue"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
	"github.com/gerlope/ugr-matrix-chatroom-manager/monitoring"
)

const commandTimeout = 30 * time.Second

// Gateway is the slice of the chat layer the bot drives.
type Gateway interface {
	SendMessage(roomID, text string) error
	Invite(roomID, userID string) error
	Kick(roomID, userID, reason string) error
	Members(roomID string) ([]string, error)
}

// Directory is the slice of the store the commands read and write.
type Directory interface {
	UserByMatrixID(matrixID string) (*models.User, error)
	UserByMoodleID(moodleID int) (*models.User, error)
	RoomByRoomID(roomID string) (*models.Room, error)
	TutoringRoomOf(teacherID string) (*models.Room, error)
	CourseRooms() ([]models.Room, error)
	RoomsForCourseAndTeacher(courseID int, teacherID string) ([]models.Room, error)
	AvailabilityOf(teacherID string) ([]models.AvailabilityWindow, error)
	BumpReaction(roomID, teacherID, studentID, emoji string, delta int) error
	ReactionsGivenBy(teacherID string) ([]models.Reaction, error)
	ReactionsReceivedBy(studentID string) ([]models.Reaction, error)
	OpenQuestions(now time.Time) ([]models.Question, error)
	QuestionByID(id string) (*models.Question, error)
	AnswersBy(questionID, userID string) ([]models.Answer, error)
	SaveAnswer(question models.Question, userID, response string) error
	SetAccessCodeHash(userID, hash string) error
}

// Moodle is the slice of the Moodle client the commands consult.
type Moodle interface {
	GetUserCourses(ctx context.Context, userID int) ([]moodle.Course, error)
	TeachersOf(ctx context.Context, courseID int) ([]moodle.EnrolledUser, error)
}

// Limiter throttles command execution per user.
type Limiter interface {
	AllowCommand(ctx context.Context, userID string) bool
}

// Options wires the bot's collaborators.
type Options struct {
	BotUserID     string
	ServerName    string
	CommandPrefix string

	Gateway Gateway
	Store   Directory
	Moodle  Moodle
	Queue   *queue.Coordinator
	Limiter Limiter
	Monitor *monitoring.Monitor
}

// Bot interprets chat events as classroom commands. It owns no state of
// its own beyond a short-lived event cache for reaction bookkeeping; the
// queue coordinator and the store hold everything durable.
type Bot struct {
	gateway Gateway
	store   Directory
	moodle  Moodle
	queue   *queue.Coordinator
	limiter Limiter
	monitor *monitoring.Monitor

	botUserID  string
	serverName string
	prefix     string

	now func() time.Time

	commands map[string]Command
	events   *eventCache
}

func New(opts Options) *Bot {
	prefix := opts.CommandPrefix
	if prefix == "" {
		prefix = "!"
	}
	b := &Bot{
		gateway:    opts.Gateway,
		store:      opts.Store,
		moodle:     opts.Moodle,
		queue:      opts.Queue,
		limiter:    opts.Limiter,
		monitor:    opts.Monitor,
		botUserID:  opts.BotUserID,
		serverName: opts.ServerName,
		prefix:     prefix,
		now:        time.Now,
		commands:   make(map[string]Command),
		events:     newEventCache(eventCacheSize),
	}
	b.registerCommands()
	return b
}

// Handlers exposes the bot as a set of chat event handlers.
func (b *Bot) Handlers() chat.Handlers {
	return chat.Handlers{
		Message:    b.handleMessage,
		Membership: b.handleMembership,
		Reaction:   b.handleReaction,
	}
}

func (b *Bot) handleMessage(msg chat.Message) {
	// Remember who said what; reactions arrive referencing event ids.
	if msg.EventID != "" {
		b.events.rememberMessage(msg.EventID, msg.Sender)
	}

	body := strings.TrimSpace(msg.Body)
	if !strings.HasPrefix(body, b.prefix) {
		return
	}
	b.dispatch(msg.RoomID, msg.Sender, body)
}

func (b *Bot) handleMembership(m chat.Membership) {
	if m.UserID == b.botUserID {
		if m.Action == "join" {
			slog.Info("Bot added to room", "room", m.RoomID)
		}
		return
	}

	switch m.Action {
	case "join":
		b.send(m.RoomID, fmt.Sprintf("🎓 ¡Bienvenido/a %s a la sala!", m.UserID))
	case "leave":
		b.send(m.RoomID, fmt.Sprintf("👋 %s ha salido de la sala.", m.UserID))
		b.handleDeparture(m.RoomID, m.UserID)
	}
}

// handleDeparture frees a tutoring room when its occupant leaves at the
// chat layer instead of running `!tutoria acabar`.
func (b *Bot) handleDeparture(roomID, userID string) {
	room, err := b.store.RoomByRoomID(roomID)
	if err != nil {
		if !errors.Is(err, status.ErrRoomNotFound) {
			slog.Warn("Failed to resolve room on departure", "room", roomID, "error", err)
		}
		return
	}
	if room.Kind != models.RoomKindTutoring {
		return
	}
	if b.queue.HandleExternalDeparture(roomID, userID) {
		slog.Info("Occupant left tutoring room, queue advanced", "room", roomID, "user", userID)
	}
}

// handleReaction keeps the per-student emoji tallies. Only reactions from
// registered teachers to messages of registered users in managed rooms
// count; a redaction of a counted reaction takes the point back.
func (b *Bot) handleReaction(r chat.Reaction) {
	if r.Redacted {
		a, ok := b.events.takeReaction(r.TargetID)
		if !ok {
			slog.Debug("Redaction of unknown reaction", "target", r.TargetID)
			return
		}
		if err := b.store.BumpReaction(a.RoomID, a.Teacher, a.Student, a.Emoji, -1); err != nil {
			slog.Warn("Failed to decrement reaction tally", "room", a.RoomID, "error", err)
		}
		return
	}

	teacher, err := b.store.UserByMatrixID(r.Sender)
	if err != nil || !teacher.IsTeacher {
		return
	}
	student, ok := b.events.messageSender(r.TargetID)
	if !ok {
		slog.Debug("Reaction to unknown event", "target", r.TargetID)
		return
	}
	if _, err := b.store.UserByMatrixID(student); err != nil {
		return
	}
	if _, err := b.store.RoomByRoomID(r.RoomID); err != nil {
		return
	}

	emoji := r.Key
	if emoji == "" {
		emoji = "❓"
	}
	if err := b.store.BumpReaction(r.RoomID, r.Sender, student, emoji, 1); err != nil {
		slog.Warn("Failed to increment reaction tally", "room", r.RoomID, "error", err)
		return
	}
	if r.EventID != "" {
		b.events.rememberReaction(r.EventID, award{
			RoomID:  r.RoomID,
			Teacher: r.Sender,
			Student: student,
			Emoji:   emoji,
		})
	}
}

// send delivers a message and logs instead of failing; chat output is
// best-effort once the underlying state change has happened.
func (b *Bot) send(roomID, text string) {
	if err := b.gateway.SendMessage(roomID, text); err != nil {
		slog.Error("Failed to send message", "room", roomID, "error", err)
		if b.monitor != nil {
			b.monitor.TrackSendFailure()
		}
	}
}

func matrixToLink(roomID string) string {
	return "https://matrix.to/#/" + roomID
}
