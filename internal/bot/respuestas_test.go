package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
)

func TestRespuestas_ListsAttemptsNewestMarked(t *testing.T) {
	b, gw, st, md := newTestBot(t)
	seedStudent(st, md)
	seedQuestion(st, models.Question{
		ID: "q1", RoomID: "!aula:ugr.es", Title: "Borrador", QType: models.QuestionTypeText,
		AllowMultipleSubmissions: true,
		StartAt:                  testNow.Add(-time.Hour),
	})
	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!responder q1 primera")
	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!responder q1 segunda")

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!respuestas q1")

	text := gw.lastText(t)
	assert.Contains(t, text, "📋 Tus respuestas a: #q1 │ Borrador")
	assert.Contains(t, text, "🔁 Permite múltiples envíos")
	assert.Contains(t, text, "🔄 Intento #1")
	assert.Contains(t, text, "🔄 Intento #2 (✓ Última)")
	assert.Contains(t, text, "📝 Respuesta: primera")
	assert.Contains(t, text, "📝 Respuesta: segunda")
	assert.Contains(t, text, "📅 Enviado: 2025-03-04 10:00")
}

func TestRespuestas_RendersSelectedOptionText(t *testing.T) {
	b, gw, st, md := newTestBot(t)
	seedStudent(st, md)
	seedQuestion(st, models.Question{
		ID: "q1", RoomID: "!aula:ugr.es", Title: "Tema 3", QType: models.QuestionTypeMultipleChoice,
		Options:                 map[string]string{"a": "No existe", "b": "La traspuesta"},
		AllowMultipleSelections: true,
		StartAt:                 testNow.Add(-time.Hour),
	})
	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!responder q1 a b")

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!respuestas q1")

	text := gw.lastText(t)
	assert.Contains(t, text, "📝 Opciones seleccionadas:")
	assert.Contains(t, text, "• a) No existe")
	assert.Contains(t, text, "• b) La traspuesta")
}

func TestRespuestas_SingleOptionOnOneLine(t *testing.T) {
	b, gw, st, md := newTestBot(t)
	seedStudent(st, md)
	seedQuestion(st, models.Question{
		ID: "q1", RoomID: "!aula:ugr.es", QType: models.QuestionTypeTrueFalse,
		Options: map[string]string{"v": "Verdadero", "f": "Falso"},
		StartAt: testNow.Add(-time.Hour),
	})
	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!responder q1 v")

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!respuestas q1")

	assert.Contains(t, gw.lastText(t), "📝 Opción: v) Verdadero")
}

func TestRespuestas_NoAnswersYet(t *testing.T) {
	b, gw, st, md := newTestBot(t)
	seedStudent(st, md)
	seedQuestion(st, models.Question{
		ID: "q1", RoomID: "!aula:ugr.es", Title: "Tema 3", QType: models.QuestionTypeText,
		StartAt: testNow.Add(-time.Hour),
	})

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!respuestas q1")

	assert.Equal(t, "ℹ️ No tienes respuestas para la pregunta #q1 (Tema 3).", gw.lastText(t))
}

func TestRespuestas_UnknownQuestion(t *testing.T) {
	b, gw, st, md := newTestBot(t)
	seedStudent(st, md)

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!respuestas zz")

	assert.Equal(t, "❌ No se encontró la pregunta #zz.", gw.lastText(t))
}

func TestRespuestas_Usage(t *testing.T) {
	b, gw, st, md := newTestBot(t)
	seedStudent(st, md)

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!respuestas")

	assert.Equal(t, "⚠️ Uso: "+respuestasUsage, gw.lastText(t))
}
