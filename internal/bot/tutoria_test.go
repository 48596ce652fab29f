package bot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/chat"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/moodle"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/queue"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
)

// newTutoriaBot wires the queue notifier onto the fake gateway, the same
// hookup the server does, so confirm-offers land in gw.sent() like any
// other outbound message.
func newTutoriaBot(t *testing.T) (*Bot, *fakeGateway, *fakeStore, *fakeMoodle) {
	t.Helper()
	b, gw, st, md := newTestBot(t)
	b.queue.ConfigureNotifier(queue.NotifierFunc(gw.SendMessage))
	return b, gw, st, md
}

// seedEnrolled registers a student enrolled in garcia's course 101.
func seedEnrolled(st *fakeStore, md *fakeMoodle, id, matrixID string, moodleID int) {
	st.addUser(models.User{ID: id, MatrixID: matrixID, MoodleID: moodleID})
	md.courses[moodleID] = []moodle.Course{{ID: 101, ShortName: "ALG1"}}
}

func say(b *Bot, roomID, sender, body string) {
	b.handleMessage(chat.Message{RoomID: roomID, Sender: sender, Body: body})
}

func TestTutoria_SolicitarQueuesAndOffers(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	room := seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")

	// The room is free, so the confirm-offer fires from inside the enqueue,
	// before the join acknowledgement goes out.
	msgs := gw.sent()
	require.Len(t, msgs, 2)
	assert.Equal(t, "!aula:ugr.es", msgs[0].RoomID)
	assert.Contains(t, msgs[0].Text, "la sala de tutoría de TUT-GARCIA está libre")
	assert.Contains(t, msgs[0].Text, "!tutoria confirmar garcia")
	assert.Contains(t, msgs[1].Text, "✅ Te has unido a la cola de TUT-GARCIA. Posición actual: 1.")

	snapshot := b.queue.GetSnapshot(room.RoomID)
	require.Len(t, snapshot.Entries, 1)
	assert.Equal(t, "@alice:ugr.es", snapshot.Entries[0].UserID)
	assert.Equal(t, queue.StatusAwaitingConfirmation, snapshot.Entries[0].Status)
}

func TestTutoria_SolicitarSecondStudentWaitsSilently(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	room := seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	seedEnrolled(st, md, "u-bob", "@bob:ugr.es", 43)

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")
	say(b, "!aula:ugr.es", "@bob:ugr.es", "!tutoria garcia")

	// Bob gets the ack but no offer: alice still holds it.
	assert.Contains(t, gw.lastText(t), "✅ Te has unido a la cola de TUT-GARCIA. Posición actual: 2.")

	snapshot := b.queue.GetSnapshot(room.RoomID)
	require.Len(t, snapshot.Entries, 2)
	assert.Equal(t, queue.StatusAwaitingConfirmation, snapshot.Entries[0].Status)
	assert.Equal(t, queue.StatusWaiting, snapshot.Entries[1].Status)
}

func TestTutoria_SolicitarTwiceKeepsPosition(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")

	assert.Equal(t, "ℹ️ Ya estabas en la cola de TUT-GARCIA. Posición actual: 1.", gw.lastText(t))
}

func TestTutoria_SolicitarAcceptsFullMatrixID(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria @garcia:ugr.es")

	assert.Contains(t, gw.lastText(t), "✅ Te has unido a la cola de TUT-GARCIA.")
}

func TestTutoria_SolicitarUnregisteredRequester(t *testing.T) {
	b, gw, st, _ := newTutoriaBot(t)
	seedTeacher(st)

	say(b, "!aula:ugr.es", "@stranger:ugr.es", "!tutoria garcia")

	assert.Equal(t, "❌ No estás registrado en la base de datos.", gw.lastText(t))
	assert.Empty(t, b.queue.GetSnapshot("!tut-garcia:ugr.es").Entries)
}

func TestTutoria_SolicitarNotEnrolled(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	seedTeacher(st)
	st.addUser(models.User{ID: "u-alice", MatrixID: "@alice:ugr.es", MoodleID: 42})
	md.courses[42] = []moodle.Course{{ID: 999, ShortName: "OTRA"}}

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")

	assert.Equal(t, "❌ No estás matriculado en la asignatura de ese profesor.", gw.lastText(t))
	assert.Empty(t, b.queue.GetSnapshot("!tut-garcia:ugr.es").Entries)
}

func TestTutoria_SolicitarMoodleOutageFailsOpen(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	seedTeacher(st)
	st.addUser(models.User{ID: "u-alice", MatrixID: "@alice:ugr.es", MoodleID: 42})
	md.err = errors.New("circuit breaker is open")

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")

	// The enrollment check cannot run; availability and the teacher still
	// gate access, so the request goes through.
	assert.Contains(t, gw.lastText(t), "✅ Te has unido a la cola de TUT-GARCIA. Posición actual: 1.")
}

func TestTutoria_TeacherCannotRequestOwnRoom(t *testing.T) {
	b, gw, st, _ := newTutoriaBot(t)
	seedTeacher(st)

	say(b, "!aula:ugr.es", "@garcia:ugr.es", "!tutoria garcia")

	assert.Contains(t, gw.lastText(t), "❌ Un profesor no puede solicitarse a sí mismo.")
	assert.Empty(t, b.queue.GetSnapshot("!tut-garcia:ugr.es").Entries)
}

func TestTutoria_UnknownTeacherIsRejected(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	seedTeacher(st)
	seedEnrolled(st, md, "u-bob", "@bob:ugr.es", 43)

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria nadie")
	assert.Equal(t, "❌ No se encontró un profesor con ese Matrix ID.", gw.lastText(t))

	// A registered student is not a valid target either.
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria bob")
	assert.Equal(t, "❌ No se encontró un profesor con ese Matrix ID.", gw.lastText(t))
}

func TestTutoria_TeacherWithoutTutoringRoom(t *testing.T) {
	b, gw, st, _ := newTutoriaBot(t)
	st.addUser(models.User{ID: "u-lopez", MatrixID: "@lopez:ugr.es", MoodleID: 8, IsTeacher: true})

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria lopez")

	assert.Equal(t, "❌ Ese profesor no tiene una sala de tutoría registrada.", gw.lastText(t))
}

func TestTutoria_SolicitarWithoutSchedule(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	st.availability["u-garcia"] = nil

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")

	assert.Equal(t, "❌ Este profesor no ha configurado un horario para tutorías", gw.lastText(t))
	assert.Empty(t, b.queue.GetSnapshot("!tut-garcia:ugr.es").Entries)
}

func TestTutoria_SolicitarClosedUntilLaterToday(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	// testNow is Tuesday 10:00; the only window opens at 14:00.
	st.availability["u-garcia"] = []models.AvailabilityWindow{
		{TeacherID: "u-garcia", DayOfWeek: "Tuesday", StartTime: "14:00", EndTime: "16:00"},
	}

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")

	assert.Equal(t, "❌ Ese profesor solo atiende hoy entre 14:00-16:00. Intenta dentro de su horario disponible.", gw.lastText(t))
}

func TestTutoria_SolicitarClosedUntilTomorrow(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	st.availability["u-garcia"] = []models.AvailabilityWindow{
		{TeacherID: "u-garcia", DayOfWeek: "Wednesday", StartTime: "09:00", EndTime: "13:00"},
	}

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")

	assert.Equal(t, "❌ El profesor no está disponible ahora. Próxima franja mañana: 09:00-13:00.", gw.lastText(t))
}

func TestTutoria_SolicitarClosedUntilWeekday(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	st.availability["u-garcia"] = []models.AvailabilityWindow{
		{TeacherID: "u-garcia", DayOfWeek: "Thursday", StartTime: "11:00", EndTime: "12:30"},
	}

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")

	assert.Equal(t, "❌ El profesor no está disponible ahora. Próxima franja el jueves: 11:00-12:30.", gw.lastText(t))
}

func TestTutoria_ConfirmarClaimsOfferAndInvites(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	room := seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria confirmar garcia")

	assert.True(t, b.queue.IsActiveUser(room.RoomID, "@alice:ugr.es"))
	require.Len(t, gw.invites, 1)
	assert.Equal(t, roomUser{RoomID: room.RoomID, UserID: "@alice:ugr.es"}, gw.invites[0])

	msgs := gw.sent()
	require.GreaterOrEqual(t, len(msgs), 4)
	assert.Equal(t, "✅ Acceso confirmado. ¡Aprovecha tu tutoría!", msgs[len(msgs)-2].Text)
	assert.Contains(t, msgs[len(msgs)-1].Text, "👨‍🏫 alice, el profesor garcia te ha invitado a la sala de tutoría.")
	assert.Contains(t, msgs[len(msgs)-1].Text, "https://matrix.to/#/"+room.RoomID)
}

func TestTutoria_ConfirmarWithoutOffer(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	room := seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	seedEnrolled(st, md, "u-bob", "@bob:ugr.es", 43)
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")

	// Bob is second; the offer belongs to alice.
	say(b, "!aula:ugr.es", "@bob:ugr.es", "!tutoria garcia")
	say(b, "!aula:ugr.es", "@bob:ugr.es", "!tutoria confirmar garcia")

	assert.Equal(t, "❌ No estás al frente de la cola o no tienes una invitación activa.", gw.lastText(t))
	assert.Empty(t, gw.invites)
	assert.False(t, b.queue.IsActiveUser(room.RoomID, "@bob:ugr.es"))
}

func TestTutoria_ConfirmarReportsInviteFailure(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	room := seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")
	gw.inviteErr = errors.New("forbidden")

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria confirmar garcia")

	// Confirmation still holds; only the courtesy invite failed.
	assert.True(t, b.queue.IsActiveUser(room.RoomID, "@alice:ugr.es"))
	msgs := gw.sent()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Contains(t, msgs[len(msgs)-2].Text, "⚠️ No se pudo enviar la invitación automática: forbidden")
}

func TestTutoria_AcabarByTeacherAdvancesQueue(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	room := seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	seedEnrolled(st, md, "u-bob", "@bob:ugr.es", 43)
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria confirmar garcia")
	say(b, "!aula:ugr.es", "@bob:ugr.es", "!tutoria garcia")

	// Bare `acabar` from the teacher resolves to their own room.
	say(b, room.RoomID, "@garcia:ugr.es", "!tutoria acabar")

	assert.False(t, b.queue.IsActiveUser(room.RoomID, "@alice:ugr.es"))
	require.Len(t, gw.kicks, 1)
	assert.Equal(t, kickCall{RoomID: room.RoomID, UserID: "@alice:ugr.es", Reason: "Sala liberada via !tutoria acabar"}, gw.kicks[0])

	msgs := gw.sent()
	// The release frees the room, so bob's offer fires before the summary.
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Contains(t, msgs[len(msgs)-2].Text, "@bob:ugr.es, la sala de tutoría de TUT-GARCIA está libre")
	assert.Contains(t, msgs[len(msgs)-1].Text, "✅ Sala liberada. Se notificará a la siguiente persona (sale alice).")
}

func TestTutoria_AcabarByActiveStudent(t *testing.T) {
	b, _, st, md := newTutoriaBot(t)
	room := seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria confirmar garcia")

	say(b, room.RoomID, "@alice:ugr.es", "!tutoria acabar garcia")

	assert.False(t, b.queue.IsActiveUser(room.RoomID, "@alice:ugr.es"))
	assert.Equal(t, queue.StateFree, b.queue.GetSnapshot(room.RoomID).State)
}

func TestTutoria_AcabarDeniedForBystander(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	room := seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	seedEnrolled(st, md, "u-bob", "@bob:ugr.es", 43)
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria confirmar garcia")

	say(b, "!aula:ugr.es", "@bob:ugr.es", "!tutoria acabar garcia")

	assert.Equal(t, "❌ Solo el profesor o la persona atendida pueden acabar la tutoria.", gw.lastText(t))
	assert.True(t, b.queue.IsActiveUser(room.RoomID, "@alice:ugr.es"))
}

func TestTutoria_AcabarWithoutQueue(t *testing.T) {
	b, gw, st, _ := newTutoriaBot(t)
	room := seedTeacher(st)

	say(b, room.RoomID, "@garcia:ugr.es", "!tutoria acabar")

	assert.Equal(t, "❌ No existe una cola para esta sala.", gw.lastText(t))
	assert.Empty(t, gw.kicks)
}

func TestTutoria_SalirLeavesQueue(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	room := seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	seedEnrolled(st, md, "u-bob", "@bob:ugr.es", 43)
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")
	say(b, "!aula:ugr.es", "@bob:ugr.es", "!tutoria garcia")

	say(b, "!aula:ugr.es", "@bob:ugr.es", "!tutoria salir garcia")

	assert.Equal(t, "✅ Saliste de la cola de TUT-GARCIA.", gw.lastText(t))
	snapshot := b.queue.GetSnapshot(room.RoomID)
	require.Len(t, snapshot.Entries, 1)
	assert.Equal(t, "@alice:ugr.es", snapshot.Entries[0].UserID)
}

func TestTutoria_SalirWhenNotQueued(t *testing.T) {
	b, gw, st, _ := newTutoriaBot(t)
	seedTeacher(st)

	say(b, "!aula:ugr.es", "@bob:ugr.es", "!tutoria salir garcia")

	assert.Equal(t, "ℹ️ No estabas en la cola de esa sala.", gw.lastText(t))
}

func TestTutoria_SalirRequiresTeacherArgument(t *testing.T) {
	b, gw, st, _ := newTutoriaBot(t)
	seedTeacher(st)

	say(b, "!aula:ugr.es", "@bob:ugr.es", "!tutoria salir")

	assert.Contains(t, gw.lastText(t), "⚠️ Debes indicar el profesor:")
}

func TestTutoria_EstadoEmptyQueue(t *testing.T) {
	b, gw, st, _ := newTutoriaBot(t)
	room := seedTeacher(st)

	say(b, room.RoomID, "@garcia:ugr.es", "!tutoria estado")

	assert.Equal(t, "📊 Cola vacía para TUT-GARCIA (estado: free).", gw.lastText(t))
}

func TestTutoria_EstadoListsEntries(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	room := seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)
	seedEnrolled(st, md, "u-bob", "@bob:ugr.es", 43)
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria garcia")
	say(b, "!aula:ugr.es", "@bob:ugr.es", "!tutoria garcia")

	say(b, room.RoomID, "@garcia:ugr.es", "!tutoria estado")

	text := gw.lastText(t)
	assert.Contains(t, text, "📊 Estado de TUT-GARCIA: free")
	assert.Contains(t, text, "1. alice — awaiting-confirmation")
	assert.Contains(t, text, "2. bob — waiting")
}

func TestTutoria_ImplicitTeacherRequiresTeacherSender(t *testing.T) {
	b, gw, st, md := newTutoriaBot(t)
	seedTeacher(st)
	seedEnrolled(st, md, "u-alice", "@alice:ugr.es", 42)

	// Bare `acabar` from a student resolves to the student themselves,
	// who is no teacher.
	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria acabar")

	assert.Equal(t, "❌ Solo un profesor registrado puede usar ese comando sin especificar a quién se refiere.", gw.lastText(t))
}

func TestTutoria_WithoutArguments(t *testing.T) {
	b, gw, st, _ := newTutoriaBot(t)
	seedTeacher(st)

	say(b, "!aula:ugr.es", "@alice:ugr.es", "!tutoria")

	assert.Equal(t, "⚠️ Uso: "+tutoriaUsage, gw.lastText(t))
}
