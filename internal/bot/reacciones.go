package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
)

// cmdReacciones shows the emoji tallies of the sender: given ones for
// teachers, received ones for students.
func (b *Bot) cmdReacciones(ctx context.Context, req Request) error {
	user, err := b.store.UserByMatrixID(req.Sender)
	if err != nil {
		if errors.Is(err, status.ErrUserNotRegistered) {
			b.send(req.RoomID, "❌ No estás registrado en el sistema.")
			return nil
		}
		return err
	}

	if user.IsTeacher {
		reactions, err := b.store.ReactionsGivenBy(user.MatrixID)
		if err != nil {
			return err
		}
		if len(reactions) == 0 {
			b.send(req.RoomID, "❌ No has puesto ninguna reacción aún.")
			return nil
		}
		b.send(req.RoomID, b.formatReactions("❤️ Reacciones puestas:", "Alumno", reactions, func(r models.Reaction) string {
			return r.StudentID
		}))
		return nil
	}

	reactions, err := b.store.ReactionsReceivedBy(user.MatrixID)
	if err != nil {
		return err
	}
	if len(reactions) == 0 {
		b.send(req.RoomID, "❌ No has recibido reacciones aún.")
		return nil
	}
	b.send(req.RoomID, b.formatReactions("❤️ Reacciones recibidas:", "Profesor", reactions, func(r models.Reaction) string {
		return r.TeacherID
	}))
	return nil
}

// formatReactions renders tallies grouped by room and then by the person
// on the other side of the reaction.
func (b *Bot) formatReactions(header, role string, reactions []models.Reaction, counterpart func(models.Reaction) string) string {
	var sb strings.Builder
	sb.WriteString(header + "\n\n")

	roomLabels := make(map[string]string)
	moodleIDs := make(map[string]int)

	lastRoom := ""
	lastPerson := ""
	for _, r := range reactions {
		if r.RoomID != lastRoom {
			if lastRoom != "" {
				sb.WriteString("\n")
			}
			lastRoom = r.RoomID
			lastPerson = ""
			sb.WriteString(fmt.Sprintf("📚 Sala: %s\n", b.roomLabel(roomLabels, r.RoomID)))
		}
		person := counterpart(r)
		if person != lastPerson {
			if lastPerson != "" {
				sb.WriteString("\n")
			}
			lastPerson = person
			sb.WriteString(fmt.Sprintf("    👤 %s: %s (Moodle ID: %d)\n", role, person, b.moodleIDOf(moodleIDs, person)))
		}
		sb.WriteString(fmt.Sprintf("        • %s - %d\n", r.Emoji, r.Count))
	}
	return sb.String()
}

func (b *Bot) roomLabel(cache map[string]string, roomID string) string {
	if label, ok := cache[roomID]; ok {
		return label
	}
	label := roomID
	if room, err := b.store.RoomByRoomID(roomID); err == nil && room.Shortcode != "" {
		label = room.Shortcode
	}
	cache[roomID] = label
	return label
}

func (b *Bot) moodleIDOf(cache map[string]int, matrixID string) int {
	if id, ok := cache[matrixID]; ok {
		return id
	}
	id := 0
	if user, err := b.store.UserByMatrixID(matrixID); err == nil {
		id = user.MoodleID
	}
	cache[matrixID] = id
	return id
}
