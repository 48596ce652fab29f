package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/queue"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
	"github.com/gerlope/ugr-matrix-chatroom-manager/utils"
)

// Directory is the store slice the dashboard reads and writes.
type Directory interface {
	UserByMatrixID(matrixID string) (*models.User, error)
	UserByEmail(email string) (*models.User, error)
	TutoringRoomOf(teacherID string) (*models.Room, error)
	RoomByRoomID(roomID string) (*models.Room, error)
	QuestionByID(questionID string) (*models.Question, error)
	AnswersFor(questionID string) ([]models.Answer, error)
	AvailabilityOf(teacherID string) ([]models.AvailabilityWindow, error)
	ReplaceAvailability(teacherID string, windows []models.AvailabilityWindow) error
	ReactionTotals(roomID string) ([]models.Reaction, error)
}

// Queue is the coordinator slice the dashboard drives.
type Queue interface {
	GetSnapshot(roomID string) queue.Snapshot
	ReleaseCurrent(roomID string) (releasedUser string, ok bool)
	LeaveQueue(roomID, userID string) bool
}

// Sessions mints and resolves dashboard bearer tokens.
type Sessions interface {
	Create(ctx context.Context, matrixID string) (string, error)
	Lookup(ctx context.Context, token string) (string, error)
	Destroy(ctx context.Context, token string) error
}

// Gateway covers the admin actions that touch the chat room itself.
type Gateway interface {
	Kick(roomID, userID, reason string) error
}

// DashboardHandler serves the teacher dashboard API. Teachers authenticate
// with the access code the bot handed them over chat; every other endpoint
// requires the resulting bearer token.
type DashboardHandler struct {
	store      Directory
	queue      Queue
	sessions   Sessions
	gateway    Gateway
	serverName string
}

func NewDashboardHandler(store Directory, queueSvc Queue, sessions Sessions, gateway Gateway, serverName string) *DashboardHandler {
	return &DashboardHandler{
		store:      store,
		queue:      queueSvc,
		sessions:   sessions,
		gateway:    gateway,
		serverName: serverName,
	}
}

// Login exchanges a teacher's access code for a session token. The teacher
// field takes a Matrix id, a bare localpart, or the account email.
func (h *DashboardHandler) Login(e *core.RequestEvent) error {
	var req struct {
		Teacher    string `json:"teacher"`
		AccessCode string `json:"access_code"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Teacher == "" || req.AccessCode == "" {
		return apis.NewBadRequestError("Teacher and access code required", nil)
	}

	user, err := h.lookupTeacher(req.Teacher)
	if err != nil {
		if errors.Is(err, status.ErrUserNotRegistered) {
			return apis.NewUnauthorizedError("Invalid credentials", nil)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Login failed", err)
	}
	if !user.IsTeacher || user.AccessCodeHash == "" {
		return apis.NewUnauthorizedError("Invalid credentials", nil)
	}
	if !utils.VerifyAccessCode(user.AccessCodeHash, req.AccessCode) {
		slog.Warn("Dashboard login rejected", "teacher", user.MatrixID)
		return apis.NewUnauthorizedError("Invalid credentials", nil)
	}

	token, err := h.sessions.Create(e.Request.Context(), user.MatrixID)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Login failed", err)
	}

	slog.Info("Dashboard login", "teacher", user.MatrixID)
	return e.JSON(http.StatusOK, map[string]any{
		"token":   token,
		"teacher": user,
	})
}

// lookupTeacher resolves the login identifier. Anything with an "@" in the
// middle is an email; everything else is normalized into a Matrix id.
func (h *DashboardHandler) lookupTeacher(identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") && !strings.HasPrefix(identifier, "@") {
		return h.store.UserByEmail(identifier)
	}
	return h.store.UserByMatrixID(models.NormalizeMXID(identifier, h.serverName))
}

// Logout destroys the caller's session token.
func (h *DashboardHandler) Logout(e *core.RequestEvent) error {
	token := bearerToken(e)
	if token != "" {
		if err := h.sessions.Destroy(e.Request.Context(), token); err != nil {
			slog.Warn("Failed to destroy session", "error", err)
		}
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Sesión cerrada"})
}

// Overview returns the teacher's tutoring room with its live queue.
func (h *DashboardHandler) Overview(e *core.RequestEvent) error {
	user, err := h.authTeacher(e)
	if err != nil {
		return err
	}

	response := map[string]any{
		"teacher": user,
		"room":    nil,
	}

	room, err := h.store.TutoringRoomOf(user.ID)
	if err != nil {
		if !errors.Is(err, status.ErrNoTutoringRoom) {
			return apis.NewApiError(http.StatusInternalServerError, "Failed to load room", err)
		}
		return e.JSON(http.StatusOK, response)
	}

	windows, err := h.store.AvailabilityOf(user.ID)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load availability", err)
	}

	response["room"] = room
	response["queue"] = h.queue.GetSnapshot(room.RoomID)
	response["availability"] = windows
	return e.JSON(http.StatusOK, response)
}

// RoomDetail returns one room's queue plus its reaction tallies.
func (h *DashboardHandler) RoomDetail(e *core.RequestEvent) error {
	user, room, err := h.authRoomOwner(e)
	if err != nil {
		return err
	}

	reactions, err := h.store.ReactionTotals(room.RoomID)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load reactions", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"teacher":   user.MatrixID,
		"room":      room,
		"queue":     h.queue.GetSnapshot(room.RoomID),
		"reactions": reactions,
	})
}

// QuestionDetail returns one question together with every answer submitted
// so far, for the teacher that owns the question's room.
func (h *DashboardHandler) QuestionDetail(e *core.RequestEvent) error {
	user, err := h.authTeacher(e)
	if err != nil {
		return err
	}

	questionID := e.Request.PathValue("questionId")
	question, err := h.store.QuestionByID(questionID)
	if err != nil {
		if errors.Is(err, status.ErrQuestionNotFound) {
			return apis.NewNotFoundError("Question not found", nil)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load question", err)
	}

	room, err := h.store.RoomByRoomID(question.RoomID)
	if err != nil {
		if errors.Is(err, status.ErrRoomNotFound) {
			return apis.NewForbiddenError("Not your question", nil)
		}
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load room", err)
	}
	if room.TeacherID != user.ID {
		return apis.NewForbiddenError("Not your question", nil)
	}

	answers, err := h.store.AnswersFor(question.ID)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load answers", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"question": question,
		"answers":  answers,
	})
}

// ReleaseCurrent ends the running tutoring session from the dashboard,
// kicking the student out of the room so the next one can enter.
func (h *DashboardHandler) ReleaseCurrent(e *core.RequestEvent) error {
	_, room, err := h.authRoomOwner(e)
	if err != nil {
		return err
	}

	released, ok := h.queue.ReleaseCurrent(room.RoomID)
	if !ok {
		return e.JSON(http.StatusOK, map[string]any{"released": nil})
	}

	if err := h.gateway.Kick(room.RoomID, released, "La tutoría ha terminado. ¡Gracias por venir!"); err != nil {
		slog.Warn("Failed to kick released student", "room", room.RoomID, "user", released, "error", err)
	}

	slog.Info("Session released from dashboard", "room", room.RoomID, "user", released)
	return e.JSON(http.StatusOK, map[string]any{"released": released})
}

// RemoveWaiter drops one user from the room's queue.
func (h *DashboardHandler) RemoveWaiter(e *core.RequestEvent) error {
	_, room, err := h.authRoomOwner(e)
	if err != nil {
		return err
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.UserID == "" {
		return apis.NewBadRequestError("User id required", nil)
	}

	userID := models.NormalizeMXID(req.UserID, h.serverName)
	removed := h.queue.LeaveQueue(room.RoomID, userID)
	if removed {
		slog.Info("Waiter removed from dashboard", "room", room.RoomID, "user", userID)
	}
	return e.JSON(http.StatusOK, map[string]any{"removed": removed, "user_id": userID})
}

// GetAvailability returns the teacher's weekly tutoring schedule.
func (h *DashboardHandler) GetAvailability(e *core.RequestEvent) error {
	user, err := h.authTeacher(e)
	if err != nil {
		return err
	}

	windows, err := h.store.AvailabilityOf(user.ID)
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to load availability", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"windows": windows})
}

// UpdateAvailability replaces the teacher's weekly tutoring schedule.
func (h *DashboardHandler) UpdateAvailability(e *core.RequestEvent) error {
	user, err := h.authTeacher(e)
	if err != nil {
		return err
	}

	var req struct {
		Windows []models.AvailabilityWindow `json:"windows"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	for _, window := range req.Windows {
		if err := window.Validate(); err != nil {
			return apis.NewBadRequestError("Invalid availability window", err)
		}
	}

	if err := h.store.ReplaceAvailability(user.ID, req.Windows); err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to save availability", err)
	}

	slog.Info("Availability updated", "teacher", user.MatrixID, "windows", len(req.Windows))
	return e.JSON(http.StatusOK, map[string]any{"windows": req.Windows})
}

// authTeacher resolves the bearer token to a registered teacher.
func (h *DashboardHandler) authTeacher(e *core.RequestEvent) (*models.User, error) {
	token := bearerToken(e)
	if token == "" {
		return nil, apis.NewUnauthorizedError("Missing session token", nil)
	}

	matrixID, err := h.sessions.Lookup(e.Request.Context(), token)
	if err != nil {
		if errors.Is(err, status.ErrSessionNotFound) {
			return nil, apis.NewUnauthorizedError("Session expired", nil)
		}
		return nil, apis.NewApiError(http.StatusInternalServerError, "Session lookup failed", err)
	}

	user, err := h.store.UserByMatrixID(matrixID)
	if err != nil || !user.IsTeacher {
		return nil, apis.NewUnauthorizedError("Session expired", nil)
	}
	return user, nil
}

// authRoomOwner additionally checks that {roomId} belongs to the caller.
func (h *DashboardHandler) authRoomOwner(e *core.RequestEvent) (*models.User, *models.Room, error) {
	user, err := h.authTeacher(e)
	if err != nil {
		return nil, nil, err
	}

	roomID := e.Request.PathValue("roomId")
	room, err := h.store.RoomByRoomID(roomID)
	if err != nil {
		if errors.Is(err, status.ErrRoomNotFound) {
			return nil, nil, apis.NewNotFoundError("Room not found", nil)
		}
		return nil, nil, apis.NewApiError(http.StatusInternalServerError, "Failed to load room", err)
	}
	if room.TeacherID != user.ID {
		return nil, nil, apis.NewForbiddenError("Not your room", nil)
	}
	return user, room, nil
}

func bearerToken(e *core.RequestEvent) string {
	header := e.Request.Header.Get("Authorization")
	const scheme = "Bearer "
	if !strings.HasPrefix(header, scheme) {
		return ""
	}
	return strings.TrimSpace(header[len(scheme):])
}
