package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Command is one chat command with its help text.
type Command struct {
	Name        string
	Usage       string
	Description string
	Run         func(ctx context.Context, req Request) error
}

// Request carries where a command came from and its arguments.
type Request struct {
	RoomID string
	Sender string
	Args   []string
}

func (b *Bot) registerCommands() {
	for _, cmd := range []Command{
		{
			Name:        "tutoria",
			Usage:       "!tutoria [confirmar|acabar|salir|estado] <profesor>",
			Description: "Gestiona tutorías individuales. Encuentra <profesor> en el comando !profesores",
			Run:         b.cmdTutoria,
		},
		{
			Name:        "ayuda",
			Usage:       "!ayuda",
			Description: "Muestra esta lista de comandos disponibles.",
			Run:         b.cmdAyuda,
		},
		{
			Name:        "profesores",
			Usage:       "!profesores",
			Description: "Lista tus profesores con sus salas y datos de tutoria.",
			Run:         b.cmdProfesores,
		},
		{
			Name:        "reinvitar",
			Usage:       "!reinvitar",
			Description: "Te invita a las salas generales de tus cursos de Moodle y muestra enlaces.",
			Run:         b.cmdReinvitar,
		},
		{
			Name:        "preguntas",
			Usage:       "!preguntas",
			Description: "Muestra las preguntas activas de tus cursos.",
			Run:         b.cmdPreguntas,
		},
		{
			Name:        "responder",
			Usage:       "!responder <id_pregunta> <respuesta>|<opciones separadas por espacios>",
			Description: "Responde a una pregunta activa. Para preguntas de selección múltiple, separa las opciones con espacios.",
			Run:         b.cmdResponder,
		},
		{
			Name:        "respuestas",
			Usage:       "!respuestas <id_pregunta>",
			Description: "Muestra tus respuestas a una pregunta específica.",
			Run:         b.cmdRespuestas,
		},
		{
			Name:        "reacciones",
			Usage:       "!reacciones",
			Description: "Muestra las reacciones dadas (profesores) o recibidas (alumnos).",
			Run:         b.cmdReacciones,
		},
		{
			Name:        "codigo",
			Usage:       "!codigo",
			Description: "Genera tu código de acceso al panel de profesores. Solo profesores, en chat privado.",
			Run:         b.cmdCodigo,
		},
	} {
		b.commands[cmd.Name] = cmd
	}
}

// dispatch parses and runs one command message. Commands send their own
// user-level rejections and return nil; a returned error means something
// actually broke and is reported into the room.
func (b *Bot) dispatch(roomID, sender, body string) {
	parts := strings.Fields(strings.TrimPrefix(body, b.prefix))
	if len(parts) == 0 {
		b.send(roomID, "⚠️ No has introducido ningún comando.")
		return
	}
	name := parts[0]
	cmd, ok := b.commands[name]
	if !ok {
		b.send(roomID, fmt.Sprintf("❌ Comando desconocido: %s", name))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if b.limiter != nil && !b.limiter.AllowCommand(ctx, sender) {
		b.send(roomID, "⏳ Estás enviando comandos demasiado rápido. Espera un momento e inténtalo de nuevo.")
		b.track(name, "rate_limited")
		return
	}

	req := Request{RoomID: roomID, Sender: sender, Args: parts[1:]}
	if err := cmd.Run(ctx, req); err != nil {
		slog.Error("Command failed", "command", name, "sender", sender, "error", err)
		b.send(roomID, fmt.Sprintf("⚠️ Error ejecutando comando `%s`: %v", name, err))
		b.track(name, "error")
		return
	}
	b.track(name, "ok")
}

func (b *Bot) track(command, result string) {
	if b.monitor != nil {
		b.monitor.TrackCommand(command, result)
	}
}
