package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/moodle"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
)

func TestProfesores_ListsTeachersWithRoomsAndSchedule(t *testing.T) {
	b, gw, st, md := newTestBot(t)
	seedTeacher(st)
	st.addUser(models.User{ID: "u-alice", MatrixID: "@alice:ugr.es", MoodleID: 42})
	st.addRoom(models.Room{ID: "r-aula", RoomID: "!aula:ugr.es", Kind: models.RoomKindCourse, MoodleCourseID: 101, TeacherID: "u-garcia", Shortcode: "ALG1", Active: true})
	md.courses[42] = []moodle.Course{{ID: 101, ShortName: "ALG1", FullName: "Álgebra I"}}
	md.teachers[101] = []moodle.EnrolledUser{{ID: 7, FullName: "María García"}}

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!profesores")

	text := gw.lastText(t)
	assert.Contains(t, text, "📋 Profesores matriculados:")
	assert.Contains(t, text, "📚 Álgebra I")
	assert.Contains(t, text, "• María García")
	assert.Contains(t, text, "▹ Salas: TUT-GARCIA, ALG1")
	assert.Contains(t, text, "▹ Tutorías: garcia")
	assert.Contains(t, text, "-Mar: 09:00-13:00")
}

func TestProfesores_TeacherNotOnMatrix(t *testing.T) {
	b, gw, st, md := newTestBot(t)
	st.addUser(models.User{ID: "u-alice", MatrixID: "@alice:ugr.es", MoodleID: 42})
	md.courses[42] = []moodle.Course{{ID: 101, FullName: "Álgebra I"}}
	md.teachers[101] = []moodle.EnrolledUser{{ID: 99, FullName: "Profesor Fantasma"}}

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!profesores")

	text := gw.lastText(t)
	assert.Contains(t, text, "• Profesor Fantasma")
	assert.Contains(t, text, "▹ Salas: Ninguna sala activa asociada.")
	assert.Contains(t, text, "▹ Tutorías: No registrado en Matrix.")
}

func TestProfesores_TeacherWithoutSchedule(t *testing.T) {
	b, gw, st, md := newTestBot(t)
	seedTeacher(st)
	st.availability["u-garcia"] = nil
	st.addUser(models.User{ID: "u-alice", MatrixID: "@alice:ugr.es", MoodleID: 42})
	md.courses[42] = []moodle.Course{{ID: 101, FullName: "Álgebra I"}}
	md.teachers[101] = []moodle.EnrolledUser{{ID: 7, FullName: "María García"}}

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!profesores")

	assert.Contains(t, gw.lastText(t), "-sin horario publicado")
}

func TestProfesores_CourseWithoutTeachers(t *testing.T) {
	b, gw, st, md := newTestBot(t)
	st.addUser(models.User{ID: "u-alice", MatrixID: "@alice:ugr.es", MoodleID: 42})
	md.courses[42] = []moodle.Course{{ID: 101, FullName: "Álgebra I"}}

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!profesores")

	text := gw.lastText(t)
	assert.Contains(t, text, "📚 Álgebra I")
	assert.Contains(t, text, "• Sin profesores disponibles.")
}

func TestProfesores_NoMoodleCourses(t *testing.T) {
	b, gw, st, _ := newTestBot(t)
	st.addUser(models.User{ID: "u-alice", MatrixID: "@alice:ugr.es", MoodleID: 42})

	say(b, "!dm-alice:ugr.es", "@alice:ugr.es", "!profesores")

	assert.Equal(t, "❌ No se encontraron asignaturas en Moodle para tu usuario.", gw.lastText(t))
}

func TestProfesores_Unregistered(t *testing.T) {
	b, gw, _, _ := newTestBot(t)

	say(b, "!dm:ugr.es", "@stranger:ugr.es", "!profesores")

	assert.Equal(t, "❌ No estás registrado en la base de datos.", gw.lastText(t))
}
