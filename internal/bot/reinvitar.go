package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
)

// cmdReinvitar re-invites the sender to the general rooms of their Moodle
// courses and lists the room links. Teacher-only rooms (shortcode ending
// in "_teachers") are held back from students.
func (b *Bot) cmdReinvitar(ctx context.Context, req Request) error {
	user, err := b.store.UserByMatrixID(req.Sender)
	if err != nil {
		if errors.Is(err, status.ErrUserNotRegistered) {
			b.send(req.RoomID, "❌ No estás registrado en la base de datos.")
			return nil
		}
		return err
	}
	if user.MoodleID <= 0 {
		b.send(req.RoomID, "❌ Tu registro no tiene un Moodle ID válido.")
		return nil
	}

	courses, err := b.moodle.GetUserCourses(ctx, user.MoodleID)
	if err != nil {
		return err
	}
	if len(courses) == 0 {
		b.send(req.RoomID, "❌ No se encontraron asignaturas en Moodle para tu usuario.")
		return nil
	}

	courseNames := make(map[int]string)
	for _, course := range courses {
		if course.ID == 0 {
			continue
		}
		name := course.FullName
		if name == "" {
			name = course.ShortName
		}
		if name == "" {
			name = fmt.Sprintf("Curso %d", course.ID)
		}
		courseNames[course.ID] = name
	}
	if len(courseNames) == 0 {
		b.send(req.RoomID, "❌ No se encontraron cursos válidos en Moodle.")
		return nil
	}

	allRooms, err := b.store.CourseRooms()
	if err != nil {
		return err
	}
	var generalRooms []models.Room
	for _, room := range allRooms {
		if _, enrolled := courseNames[room.MoodleCourseID]; enrolled {
			generalRooms = append(generalRooms, room)
		}
	}
	if len(generalRooms) == 0 {
		b.send(req.RoomID, "ℹ️ No hay salas generales registradas para tus cursos de Moodle.")
		return nil
	}

	if !user.IsTeacher {
		kept := generalRooms[:0]
		for _, room := range generalRooms {
			if !strings.HasSuffix(room.Shortcode, "_teachers") {
				kept = append(kept, room)
			}
		}
		generalRooms = kept
		if len(generalRooms) == 0 {
			b.send(req.RoomID, "ℹ️ No hay salas generales (no de profesores) registradas para tus cursos.")
			return nil
		}
	}

	invited := 0
	alreadyIn := 0
	var inviteErrors []string
	var roomLinks []string

	for _, room := range generalRooms {
		shortcode := room.Shortcode
		if shortcode == "" {
			shortcode = "Sala general"
		}
		courseLabel := shortcode
		if room.MoodleCourseID != 0 {
			courseLabel = courseNames[room.MoodleCourseID]
			if courseLabel == "" {
				courseLabel = fmt.Sprintf("Curso %d", room.MoodleCourseID)
			}
		}
		roomLinks = append(roomLinks, fmt.Sprintf("• %s: %s", courseLabel, matrixToLink(room.RoomID)))

		if b.isMember(room.RoomID, req.Sender) {
			alreadyIn++
			continue
		}

		if err := b.gateway.Invite(room.RoomID, req.Sender); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "already in the room") {
				alreadyIn++
			} else {
				inviteErrors = append(inviteErrors, fmt.Sprintf("%s: %v", shortcode, err))
			}
			continue
		}
		invited++
	}

	var summary []string
	if invited > 0 {
		summary = append(summary, fmt.Sprintf("✅ Se enviaron %d invitación(es) nueva(s).", invited))
	}
	if alreadyIn > 0 {
		summary = append(summary, fmt.Sprintf("ℹ️ Ya estabas en %d sala(s).", alreadyIn))
	}
	if len(inviteErrors) > 0 {
		shown := inviteErrors
		if len(shown) > 3 {
			shown = shown[:3]
		}
		summary = append(summary, fmt.Sprintf("⚠️ Errores en %d sala(s): %s", len(inviteErrors), strings.Join(shown, "; ")))
	}

	b.send(req.RoomID, fmt.Sprintf(
		"📋 Salas generales de tus cursos:\n%s\n\n%s",
		strings.Join(roomLinks, "\n"),
		strings.Join(summary, "\n"),
	))
	return nil
}

// isMember checks current room membership, treating a failed lookup as
// not joined so the invite is still attempted.
func (b *Bot) isMember(roomID, userID string) bool {
	members, err := b.gateway.Members(roomID)
	if err != nil {
		slog.Debug("Failed to fetch room members", "room", roomID, "error", err)
		return false
	}
	for _, member := range members {
		if member == userID {
			return true
		}
	}
	return false
}
