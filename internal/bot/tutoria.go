package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/queue"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
)

const tutoriaUsage = "!tutoria [confirmar|acabar|salir|estado] <profesor>"

var tutoriaSubcommands = map[string]bool{
	"confirmar": true,
	"acabar":    true,
	"salir":     true,
	"estado":    true,
}

var weekdayLabelsES = map[string]string{
	"Monday":    "lunes",
	"Tuesday":   "martes",
	"Wednesday": "miércoles",
	"Thursday":  "jueves",
	"Friday":    "viernes",
	"Saturday":  "sábado",
	"Sunday":    "domingo",
}

// cmdTutoria manages the per-teacher tutoring queues. Without a known
// subcommand the first argument is read as the teacher to request, so
// `!tutoria garcia` queues the sender for garcia's room.
func (b *Bot) cmdTutoria(ctx context.Context, req Request) error {
	if len(req.Args) == 0 {
		b.send(req.RoomID, "⚠️ Uso: "+tutoriaUsage)
		return nil
	}

	action := strings.ToLower(req.Args[0])
	implicitTeacher := false
	var teacherArg string
	if tutoriaSubcommands[action] {
		switch {
		case len(req.Args) >= 2:
			teacherArg = req.Args[1]
		case action == "acabar" || action == "estado" || action == "confirmar":
			teacherArg = models.Localpart(req.Sender)
			implicitTeacher = true
		default:
			b.send(req.RoomID, "⚠️ Debes indicar el profesor: "+tutoriaUsage)
			return nil
		}
	} else {
		teacherArg = action
		action = "solicitar"
	}

	teacherMxid, teacherLocal := b.normalizeTeacherID(teacherArg)
	if teacherMxid == "" {
		b.send(req.RoomID, "❌ Identificador de profesor inválido.")
		return nil
	}

	teacher, err := b.store.UserByMatrixID(teacherMxid)
	if err != nil && !errors.Is(err, status.ErrUserNotRegistered) {
		return err
	}
	if teacher == nil || !teacher.IsTeacher {
		if implicitTeacher {
			b.send(req.RoomID, "❌ Solo un profesor registrado puede usar ese comando sin especificar a quién se refiere.")
		} else {
			b.send(req.RoomID, "❌ No se encontró un profesor con ese Matrix ID.")
		}
		return nil
	}

	tutoringRoom, err := b.store.TutoringRoomOf(teacher.ID)
	if err != nil {
		if errors.Is(err, status.ErrNoTutoringRoom) {
			b.send(req.RoomID, "❌ Ese profesor no tiene una sala de tutoría registrada.")
			return nil
		}
		return err
	}

	targetRoomID := tutoringRoom.RoomID
	roomLabel := tutoringRoom.Shortcode
	if roomLabel == "" {
		roomLabel = "Sala de tutoría"
	}

	switch action {
	case "solicitar":
		return b.tutoriaSolicitar(ctx, req, teacher, teacherMxid, teacherLocal, tutoringRoom, roomLabel)
	case "confirmar":
		b.tutoriaConfirmar(req, teacherLocal, targetRoomID)
	case "acabar":
		b.tutoriaAcabar(req, teacherMxid, targetRoomID)
	case "salir":
		b.tutoriaSalir(req, targetRoomID, roomLabel)
	case "estado":
		b.tutoriaEstado(req, targetRoomID, roomLabel)
	default:
		b.send(req.RoomID, "⚠️ Uso: "+tutoriaUsage)
	}
	return nil
}

func (b *Bot) tutoriaSolicitar(ctx context.Context, req Request, teacher *models.User, teacherMxid, teacherLocal string, tutoringRoom *models.Room, roomLabel string) error {
	if req.Sender == teacherMxid {
		b.send(req.RoomID, "❌ Un profesor no puede solicitarse a sí mismo. Usa \"acabar\" si necesitas liberar la sala.")
		return nil
	}

	requester, err := b.store.UserByMatrixID(req.Sender)
	if err != nil {
		if errors.Is(err, status.ErrUserNotRegistered) {
			b.send(req.RoomID, "❌ No estás registrado en la base de datos.")
			return nil
		}
		return err
	}

	if enrolled, err := b.enrolledInCourse(ctx, requester.MoodleID, tutoringRoom.MoodleCourseID); err != nil {
		// Moodle down: let the request through, the availability gate and
		// the teacher themselves still control access to the room.
		slog.Warn("Enrollment check failed, allowing request", "user", req.Sender, "error", err)
	} else if !enrolled {
		b.send(req.RoomID, "❌ No estás matriculado en la asignatura de ese profesor.")
		return nil
	}

	windows, err := b.store.AvailabilityOf(teacher.ID)
	if err != nil {
		return err
	}
	if warning := availabilityWarning(windows, b.now()); warning != "" {
		b.send(req.RoomID, warning)
		return nil
	}

	position, added := b.queue.Enqueue(queue.EnqueueRequest{
		RoomID:           tutoringRoom.RoomID,
		TeacherID:        teacherMxid,
		TeacherLabel:     roomLabel,
		TeacherLocalpart: teacherLocal,
		UserID:           req.Sender,
		NotifyTarget:     req.RoomID,
	})
	if added {
		b.send(req.RoomID, fmt.Sprintf(
			"✅ Te has unido a la cola de %s. Posición actual: %d.\nRecibirás un aviso cuando la sala esté libre.",
			roomLabel, position,
		))
	} else {
		b.send(req.RoomID, fmt.Sprintf("ℹ️ Ya estabas en la cola de %s. Posición actual: %d.", roomLabel, position))
	}
	return nil
}

func (b *Bot) tutoriaConfirmar(req Request, teacherLocal, targetRoomID string) {
	ok, detail := b.queue.ConfirmAccess(targetRoomID, req.Sender)
	if !ok {
		b.send(req.RoomID, "❌ "+detail)
		return
	}

	b.send(req.RoomID, "✅ "+detail)
	if err := b.gateway.Invite(targetRoomID, req.Sender); err != nil {
		b.send(req.RoomID, fmt.Sprintf("⚠️ No se pudo enviar la invitación automática: %v", err))
	}
	b.send(req.RoomID, fmt.Sprintf(
		"👨‍🏫 %s, el profesor %s te ha invitado a la sala de tutoría. %s Por favor, únete cuando puedas.",
		models.Localpart(req.Sender), teacherLocal, matrixToLink(targetRoomID),
	))
}

func (b *Bot) tutoriaAcabar(req Request, teacherMxid, targetRoomID string) {
	if req.Sender != teacherMxid && !b.queue.IsActiveUser(targetRoomID, req.Sender) {
		b.send(req.RoomID, "❌ Solo el profesor o la persona atendida pueden acabar la tutoria.")
		return
	}

	released, ok := b.queue.ReleaseCurrent(targetRoomID)
	if !ok {
		b.send(req.RoomID, "❌ No existe una cola para esta sala.")
		return
	}

	kickNote := ""
	if released != "" {
		if err := b.gateway.Kick(targetRoomID, released, "Sala liberada via !tutoria acabar"); err != nil {
			kickNote = fmt.Sprintf("\n⚠️ No se pudo expulsar automáticamente a %s: %v", released, err)
		}
	}

	tail := "Cola vacía por ahora."
	if released != "" {
		tail = fmt.Sprintf("Se notificará a la siguiente persona (sale %s).", models.Localpart(released))
	}
	b.send(req.RoomID, fmt.Sprintf("✅ Sala liberada. %s%s", tail, kickNote))
}

func (b *Bot) tutoriaSalir(req Request, targetRoomID, roomLabel string) {
	if b.queue.LeaveQueue(targetRoomID, req.Sender) {
		b.send(req.RoomID, fmt.Sprintf("✅ Saliste de la cola de %s.", roomLabel))
	} else {
		b.send(req.RoomID, "ℹ️ No estabas en la cola de esa sala.")
	}
}

func (b *Bot) tutoriaEstado(req Request, targetRoomID, roomLabel string) {
	snapshot := b.queue.GetSnapshot(targetRoomID)
	if len(snapshot.Entries) == 0 {
		b.send(req.RoomID, fmt.Sprintf("📊 Cola vacía para %s (estado: %s).", roomLabel, snapshot.State))
		return
	}

	lines := []string{fmt.Sprintf("📊 Estado de %s: %s", roomLabel, snapshot.State)}
	for _, entry := range snapshot.Entries {
		lines = append(lines, fmt.Sprintf("  • %d. %s — %s", entry.Position, models.Localpart(entry.UserID), entry.Status))
	}
	b.send(req.RoomID, strings.Join(lines, "\n"))
}

// normalizeTeacherID turns a raw teacher argument into a full user id plus
// its localpart. Bare names are completed with the bot's homeserver.
func (b *Bot) normalizeTeacherID(raw string) (mxid, local string) {
	mxid = models.NormalizeMXID(raw, b.serverName)
	return mxid, models.Localpart(mxid)
}

// availabilityWarning renders the rejection for a closed schedule, or ""
// when the teacher attends right now.
func availabilityWarning(windows []models.AvailabilityWindow, now time.Time) string {
	if len(windows) == 0 {
		return "❌ Este profesor no ha configurado un horario para tutorías"
	}

	availability := models.EvaluateAvailability(windows, now)
	if availability.OpenNow {
		return ""
	}

	if len(availability.Today) > 0 {
		slots := make([]string, 0, len(availability.Today))
		for _, w := range availability.Today {
			slots = append(slots, w.Slot())
		}
		return fmt.Sprintf(
			"❌ Ese profesor solo atiende hoy entre %s. Intenta dentro de su horario disponible.",
			strings.Join(slots, ", "),
		)
	}

	if next := availability.Next; next != nil {
		var dayHint string
		label, okLabel := weekdayLabelsES[next.Window.DayOfWeek]
		if !okLabel {
			label = next.Window.DayOfWeek
		}
		switch {
		case next.DaysAhead == 0:
			dayHint = "hoy"
		case next.DaysAhead == 1:
			dayHint = "mañana"
		case next.DaysAhead >= 7:
			dayHint = fmt.Sprintf("el %s de la proxima semana", label)
		default:
			dayHint = fmt.Sprintf("el %s", label)
		}
		return fmt.Sprintf("❌ El profesor no está disponible ahora. Próxima franja %s: %s.", dayHint, next.Window.Slot())
	}

	return "❌ No fue posible comprobar la disponibilidad del profesor."
}
