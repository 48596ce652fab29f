package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
)

var shortDayLabels = map[string]string{
	"Monday":    "Lun",
	"Tuesday":   "Mar",
	"Wednesday": "Mie",
	"Thursday":  "Jue",
	"Friday":    "Vie",
	"Saturday":  "Sab",
	"Sunday":    "Dom",
}

// cmdProfesores lists the sender's Moodle teachers per course, with the
// rooms they run and their tutoring schedule.
func (b *Bot) cmdProfesores(ctx context.Context, req Request) error {
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

	teacherCache := make(map[int]*models.User)
	availabilityCache := make(map[string][]models.AvailabilityWindow)

	var lines []string
	teachersListed := false

	for _, course := range courses {
		courseName := course.FullName
		if courseName == "" {
			courseName = course.ShortName
		}
		if courseName == "" {
			courseName = fmt.Sprintf("Curso %d", course.ID)
		}
		courseLines := []string{fmt.Sprintf("📚 %s", courseName)}

		teachers, err := b.moodle.TeachersOf(ctx, course.ID)
		if err != nil {
			return err
		}
		if len(teachers) == 0 {
			courseLines = append(courseLines, "    • Sin profesores disponibles.")
			lines = append(lines, courseLines...)
			lines = append(lines, "")
			continue
		}

		seen := make(map[int]bool)
		for _, teacher := range teachers {
			if teacher.ID == 0 || seen[teacher.ID] {
				continue
			}
			seen[teacher.ID] = true

			name := teacher.FullName
			if name == "" {
				name = fmt.Sprintf("Profesor %d", teacher.ID)
			}
			courseLines = append(courseLines, fmt.Sprintf("  • %s", name))
			teachersListed = true

			record, cached := teacherCache[teacher.ID]
			if !cached {
				record, err = b.store.UserByMoodleID(teacher.ID)
				if err != nil {
					if !errors.Is(err, status.ErrUserNotRegistered) {
						return err
					}
					record = nil
				}
				teacherCache[teacher.ID] = record
			}

			roomsSummary := "Ninguna sala activa asociada."
			if record != nil {
				rooms, err := b.store.RoomsForCourseAndTeacher(course.ID, record.ID)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(rooms))
				for _, room := range rooms {
					if room.Shortcode != "" {
						names = append(names, room.Shortcode)
					}
				}
				if len(names) > 0 {
					roomsSummary = strings.Join(names, ", ")
				}
			}
			courseLines = append(courseLines, "      ▹ Salas: "+roomsSummary)

			if record == nil || record.MatrixID == "" {
				courseLines = append(courseLines, "      ▹ Tutorías: No registrado en Matrix.")
				continue
			}
			courseLines = append(courseLines, "      ▹ Tutorías: "+models.Localpart(record.MatrixID))

			windows, ok := availabilityCache[record.ID]
			if !ok {
				windows, err = b.store.AvailabilityOf(record.ID)
				if err != nil {
					return err
				}
				availabilityCache[record.ID] = windows
			}
			for _, segment := range availabilitySegments(windows) {
				courseLines = append(courseLines, "               -"+segment)
			}
		}

		lines = append(lines, courseLines...)
		lines = append(lines, "")
	}

	if !teachersListed && len(lines) == 0 {
		b.send(req.RoomID, "❌ No se encontraron profesores para tus asignaturas.")
		return nil
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	b.send(req.RoomID, strings.Join(append([]string{"📋 Profesores matriculados:"}, lines...), "\n"))
	return nil
}

// availabilitySegments renders a weekly schedule as one "Lun: 09:30-11:00"
// segment per day, week-ordered.
func availabilitySegments(windows []models.AvailabilityWindow) []string {
	if len(windows) == 0 {
		return []string{"sin horario publicado"}
	}

	byLabel := make(map[string][]string)
	for _, w := range windows {
		label, ok := shortDayLabels[w.DayOfWeek]
		if !ok {
			continue
		}
		byLabel[label] = append(byLabel[label], w.Slot())
	}

	var segments []string
	for _, day := range models.WeekdayNames {
		label := shortDayLabels[day]
		if slots, ok := byLabel[label]; ok {
			segments = append(segments, fmt.Sprintf("%s: %s", label, strings.Join(slots, "; ")))
		}
	}
	if len(segments) == 0 {
		return []string{"sin horario publicado"}
	}
	return segments
}
