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

const responderUsage = "!responder <id_pregunta> <respuesta>|<opciones separadas por espacios>"

// cmdResponder records the sender's answer to an open question. Choice
// questions take option keys, text questions take the rest of the line.
func (b *Bot) cmdResponder(ctx context.Context, req Request) error {
	if len(req.Args) < 2 {
		b.send(req.RoomID, "⚠️ Uso: "+responderUsage)
		return nil
	}

	questionID := req.Args[0]
	answerParts := req.Args[1:]
	answerText := strings.Join(answerParts, " ")

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

	question, err := b.store.QuestionByID(questionID)
	if err != nil {
		if errors.Is(err, status.ErrQuestionNotFound) {
			b.send(req.RoomID, fmt.Sprintf("❌ No se encontró la pregunta #%s.", questionID))
			return nil
		}
		return err
	}
	title := question.Title
	if title == "" {
		title = "Pregunta #" + question.ID
	}

	if !question.OpenAt(b.now()) {
		b.send(req.RoomID, fmt.Sprintf("❌ La pregunta #%s no está activa en este momento.", question.ID))
		return nil
	}

	if ok, err := b.enrolledInQuestionCourse(ctx, user.MoodleID, question.RoomID); err != nil {
		return err
	} else if !ok {
		b.send(req.RoomID, "❌ No estás matriculado en el curso de esta pregunta.")
		return nil
	}

	previous, err := b.store.AnswersBy(question.ID, req.Sender)
	if err != nil {
		return err
	}
	if len(previous) > 0 && !question.AllowMultipleSubmissions {
		b.send(req.RoomID, fmt.Sprintf(
			"❌ Ya has respondido a la pregunta #%s y no se permiten múltiples envíos.", question.ID,
		))
		return nil
	}

	response := answerText
	if question.QType != models.QuestionTypeText {
		selected, rejection := selectOptions(question, answerParts)
		if rejection != "" {
			b.send(req.RoomID, rejection)
			return nil
		}
		response = strings.Join(selected, " ")
	}

	if err := b.store.SaveAnswer(*question, req.Sender, response); err != nil {
		slog.Error("Failed to save answer", "question", question.ID, "user", req.Sender, "error", err)
		b.send(req.RoomID, "❌ Error al guardar la respuesta. Inténtalo de nuevo.")
		return nil
	}

	attemptNote := ""
	if question.AllowMultipleSubmissions && len(previous) > 0 {
		attemptNote = fmt.Sprintf(" (🔄 Intento #%d)", len(previous)+1)
	}
	b.send(req.RoomID, fmt.Sprintf("✅ Tu respuesta a '%s' ha sido registrada.%s", title, attemptNote))
	return nil
}

// enrolledInQuestionCourse checks the sender against the Moodle course of
// the question's room. Questions in unmanaged rooms are open to everyone.
func (b *Bot) enrolledInQuestionCourse(ctx context.Context, moodleID int, roomID string) (bool, error) {
	room, err := b.store.RoomByRoomID(roomID)
	if err != nil {
		if errors.Is(err, status.ErrRoomNotFound) {
			return true, nil
		}
		return false, err
	}
	return b.enrolledInCourse(ctx, moodleID, room.MoodleCourseID)
}

// enrolledInCourse checks one Moodle enrollment. Rooms without a course and
// users without a Moodle account are not gated.
func (b *Bot) enrolledInCourse(ctx context.Context, moodleID, courseID int) (bool, error) {
	if courseID == 0 || moodleID <= 0 {
		return true, nil
	}

	courses, err := b.moodle.GetUserCourses(ctx, moodleID)
	if err != nil {
		return false, err
	}
	for _, course := range courses {
		if course.ID == courseID {
			return true, nil
		}
	}
	return false, nil
}

// selectOptions validates the given keys against the question's options,
// case-insensitively, and returns them in stored form. A non-empty
// rejection is the message to send back instead of saving.
func selectOptions(question *models.Question, given []string) (selected []string, rejection string) {
	available := strings.Join(sortedOptionKeys(question.Options), ", ")

	if question.QType == models.QuestionTypePoll {
		for _, key := range given {
			if canonical, ok := canonicalOptionKey(question.Options, key); ok {
				selected = append(selected, canonical)
			}
		}
		if len(selected) == 0 {
			return nil, fmt.Sprintf("❌ Opción(es) no válida(s). Opciones disponibles: %s", available)
		}
		return selected, ""
	}

	var invalid []string
	for _, key := range given {
		canonical, ok := canonicalOptionKey(question.Options, key)
		if !ok {
			invalid = append(invalid, key)
			continue
		}
		selected = append(selected, canonical)
	}
	if len(invalid) > 0 {
		return nil, fmt.Sprintf(
			"❌ Opción(es) no válida(s): %s. Opciones disponibles: %s",
			strings.Join(invalid, ", "), available,
		)
	}
	if len(selected) > 1 && !question.AllowMultipleSelections {
		return nil, "❌ Esta pregunta solo permite seleccionar una opción."
	}
	return selected, ""
}

func canonicalOptionKey(options map[string]string, given string) (string, bool) {
	for key := range options {
		if strings.EqualFold(key, given) {
			return key, true
		}
	}
	return "", false
}
