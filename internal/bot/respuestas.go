package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
)

const respuestasUsage = "!respuestas <id_pregunta>"

// cmdRespuestas shows the sender their own submissions to one question.
func (b *Bot) cmdRespuestas(ctx context.Context, req Request) error {
	if len(req.Args) < 1 {
		b.send(req.RoomID, "⚠️ Uso: "+respuestasUsage)
		return nil
	}
	questionID := req.Args[0]

	if _, err := b.store.UserByMatrixID(req.Sender); err != nil {
		if errors.Is(err, status.ErrUserNotRegistered) {
			b.send(req.RoomID, "❌ No estás registrado en la base de datos.")
			return nil
		}
		return err
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

	answers, err := b.store.AnswersBy(question.ID, req.Sender)
	if err != nil {
		return err
	}
	if len(answers) == 0 {
		b.send(req.RoomID, fmt.Sprintf("ℹ️ No tienes respuestas para la pregunta #%s (%s).", question.ID, title))
		return nil
	}

	lines := []string{
		fmt.Sprintf("📋 Tus respuestas a: #%s │ %s", question.ID, title),
		"   Tipo: " + qtypeLabel(question.QType),
	}
	if question.AllowMultipleSubmissions {
		lines = append(lines, "   🔁 Permite múltiples envíos")
	}
	lines = append(lines, strings.Repeat("─", 35))

	for idx, answer := range answers {
		version := idx + 1
		attempt := fmt.Sprintf("🔄 Intento #%d", version)
		if version == len(answers) && question.AllowMultipleSubmissions {
			attempt += " (✓ Última)"
		}
		lines = append(lines, "\n"+attempt)

		if !answer.SubmittedAt.IsZero() {
			lines = append(lines, fmt.Sprintf("   📅 Enviado: %s", answer.SubmittedAt.Format("2006-01-02 15:04")))
		}

		if question.QType == models.QuestionTypeText {
			lines = append(lines, fmt.Sprintf("   📝 Respuesta: %s", answer.Response))
			continue
		}

		keys := strings.Fields(answer.Response)
		switch {
		case len(keys) > 1:
			lines = append(lines, "   📝 Opciones seleccionadas:")
			for _, key := range keys {
				lines = append(lines, fmt.Sprintf("      • %s) %s", key, question.Options[key]))
			}
		case len(keys) == 1:
			lines = append(lines, fmt.Sprintf("   📝 Opción: %s) %s", keys[0], question.Options[keys[0]]))
		}
	}

	lines = append(lines, "\n"+strings.Repeat("━", 35))
	b.send(req.RoomID, strings.Join(lines, "\n"))
	return nil
}
