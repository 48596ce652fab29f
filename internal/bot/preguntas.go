package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
)

var qtypeLabels = map[string]string{
	models.QuestionTypeMultipleChoice: "📝 Test/Multiple selección",
	models.QuestionTypePoll:           "📊 Encuesta",
	models.QuestionTypeTrueFalse:      "✅ Verdadero/Falso",
	models.QuestionTypeText:           "✍️ Respuesta corta",
}

func qtypeLabel(qtype string) string {
	if label, ok := qtypeLabels[qtype]; ok {
		return label
	}
	return "📌 " + qtype
}

// cmdPreguntas lists the open questions of the sender's Moodle courses,
// grouped by course room.
func (b *Bot) cmdPreguntas(ctx context.Context, req Request) error {
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
	enrolled := make(map[int]bool, len(courses))
	for _, course := range courses {
		if course.ID != 0 {
			enrolled[course.ID] = true
		}
	}
	if len(enrolled) == 0 {
		b.send(req.RoomID, "❌ No se encontraron cursos válidos en Moodle.")
		return nil
	}

	questions, err := b.store.OpenQuestions(b.now())
	if err != nil {
		return err
	}

	roomCache := make(map[string]*models.Room)
	var roomOrder []string
	byRoom := make(map[string][]models.Question)
	total := 0

	for _, question := range questions {
		room, cached := roomCache[question.RoomID]
		if !cached {
			room, err = b.store.RoomByRoomID(question.RoomID)
			if err != nil {
				if !errors.Is(err, status.ErrRoomNotFound) {
					return err
				}
				room = nil
			}
			roomCache[question.RoomID] = room
		}
		if room == nil || !enrolled[room.MoodleCourseID] {
			continue
		}

		key := room.Shortcode
		if key == "" {
			key = room.RoomID
		}
		if key == "" {
			key = "Sala desconocida"
		}
		if _, seen := byRoom[key]; !seen {
			roomOrder = append(roomOrder, key)
		}
		byRoom[key] = append(byRoom[key], question)
		total++
	}

	if total == 0 {
		b.send(req.RoomID, "ℹ️ No hay preguntas activas en tus cursos.")
		return nil
	}

	lines := []string{fmt.Sprintf("📋 Preguntas activas (%d)\n", total)}
	divider := strings.Repeat("─", 25)

	for _, roomName := range roomOrder {
		lines = append(lines, divider, fmt.Sprintf("🏠 %s", roomName), divider)

		for _, q := range byRoom[roomName] {
			title := q.Title
			if title == "" {
				title = "(Sin título)"
			}
			lines = append(lines, fmt.Sprintf("\n  🔹 #%s │ %s", q.ID, title))

			flags := []string{qtypeLabel(q.QType)}
			if q.AllowMultipleSelections {
				flags = append(flags, "✅ Multiple selección")
			}
			if q.AllowMultipleSubmissions {
				flags = append(flags, "🔁 Permite múltiples envíos")
			}
			lines = append(lines, "     "+strings.Join(flags, " · "))

			if !q.EndAt.IsZero() {
				lines = append(lines, fmt.Sprintf("     ⏰ Cierre: %s", q.EndAt.Format("2006-01-02 15:04")))
			}

			if body := strings.TrimSpace(q.Body); body != "" {
				lines = append(lines, "\n     📄 Enunciado:")
				for _, bodyLine := range strings.Split(body, "\n") {
					lines = append(lines, "     "+bodyLine)
				}
			}

			if len(q.Options) > 0 {
				lines = append(lines, "")
				for _, key := range sortedOptionKeys(q.Options) {
					lines = append(lines, fmt.Sprintf("       %s) %s", key, q.Options[key]))
				}
			}
			lines = append(lines, "")
		}
	}

	lines = append(lines,
		strings.Repeat("━", 30),
		"💡 Responde por mensaje directo al bot con !responder <ID> <respuesta>|<opcion 1> [<opcion 2> ...].",
	)
	b.send(req.RoomID, strings.Join(lines, "\n"))
	return nil
}

func sortedOptionKeys(options map[string]string) []string {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
