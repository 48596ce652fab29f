package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/status"
	"github.com/gerlope/ugr-matrix-chatroom-manager/models"
)

// Store is the typed access layer over the PocketBase collections.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

// UserByMatrixID looks a user up by their chat id.
func (s *Store) UserByMatrixID(matrixID string) (*models.User, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"members",
		"matrix_id = {:matrixId}",
		dbx.Params{"matrixId": matrixID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrUserNotRegistered
		}
		return nil, fmt.Errorf("find user %s: %w", matrixID, err)
	}
	return userFromRecord(record), nil
}

// UserByEmail looks a user up by email, for dashboard logins.
func (s *Store) UserByEmail(email string) (*models.User, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"members",
		"email = {:email}",
		dbx.Params{"email": email},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrUserNotRegistered
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return userFromRecord(record), nil
}

// UserByMoodleID looks a user up by their Moodle account id.
func (s *Store) UserByMoodleID(moodleID int) (*models.User, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"members",
		"moodle_id = {:moodleId}",
		dbx.Params{"moodleId": moodleID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrUserNotRegistered
		}
		return nil, fmt.Errorf("find user by moodle id %d: %w", moodleID, err)
	}
	return userFromRecord(record), nil
}

// SetAccessCodeHash stores a new dashboard access code hash for a user.
func (s *Store) SetAccessCodeHash(userID, hash string) error {
	record, err := s.app.FindRecordById("members", userID)
	if err != nil {
		return fmt.Errorf("find user %s: %w", userID, err)
	}
	record.Set("access_code_hash", hash)
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("save access code for %s: %w", userID, err)
	}
	return nil
}

// RoomByRoomID resolves a chat room id to its managed room entry.
func (s *Store) RoomByRoomID(roomID string) (*models.Room, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"rooms",
		"room_id = {:roomId}",
		dbx.Params{"roomId": roomID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrRoomNotFound
		}
		return nil, fmt.Errorf("find room %s: %w", roomID, err)
	}
	return roomFromRecord(record), nil
}

// TutoringRoomOf returns the active tutoring room owned by a teacher.
func (s *Store) TutoringRoomOf(teacherID string) (*models.Room, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"rooms",
		"kind = {:kind} && teacher = {:teacher} && active = true",
		dbx.Params{"kind": models.RoomKindTutoring, "teacher": teacherID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNoTutoringRoom
		}
		return nil, fmt.Errorf("find tutoring room of %s: %w", teacherID, err)
	}
	return roomFromRecord(record), nil
}

// CourseRooms lists the active course rooms the bot manages.
func (s *Store) CourseRooms() ([]models.Room, error) {
	records, err := s.app.FindRecordsByFilter(
		"rooms",
		"kind = {:kind} && active = true",
		"shortcode",
		0,
		0,
		dbx.Params{"kind": models.RoomKindCourse},
	)
	if err != nil {
		return nil, fmt.Errorf("list course rooms: %w", err)
	}

	rooms := make([]models.Room, 0, len(records))
	for _, record := range records {
		rooms = append(rooms, *roomFromRecord(record))
	}
	return rooms, nil
}

// RoomsForCourseAndTeacher lists the active rooms a teacher runs for one
// Moodle course, tutoring rooms included.
func (s *Store) RoomsForCourseAndTeacher(courseID int, teacherID string) ([]models.Room, error) {
	records, err := s.app.FindRecordsByFilter(
		"rooms",
		"moodle_course_id = {:course} && teacher = {:teacher} && active = true",
		"shortcode",
		0,
		0,
		dbx.Params{"course": courseID, "teacher": teacherID},
	)
	if err != nil {
		return nil, fmt.Errorf("rooms for course %d: %w", courseID, err)
	}

	rooms := make([]models.Room, 0, len(records))
	for _, record := range records {
		rooms = append(rooms, *roomFromRecord(record))
	}
	return rooms, nil
}

// AvailabilityOf returns a teacher's weekly tutoring windows in week order.
func (s *Store) AvailabilityOf(teacherID string) ([]models.AvailabilityWindow, error) {
	type availabilityRow struct {
		ID        string `db:"id"`
		Teacher   string `db:"teacher"`
		DayOfWeek string `db:"day_of_week"`
		StartTime string `db:"start_time"`
		EndTime   string `db:"end_time"`
	}

	rows := []availabilityRow{}
	err := s.app.DB().
		Select("id", "teacher", "day_of_week", "start_time", "end_time").
		From("teacher_availability").
		Where(dbx.HashExp{"teacher": teacherID}).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("availability of %s: %w", teacherID, err)
	}

	windows := make([]models.AvailabilityWindow, 0, len(rows))
	for _, row := range rows {
		windows = append(windows, models.AvailabilityWindow{
			ID:        row.ID,
			TeacherID: row.Teacher,
			DayOfWeek: row.DayOfWeek,
			StartTime: row.StartTime,
			EndTime:   row.EndTime,
		})
	}
	sort.SliceStable(windows, func(i, j int) bool {
		di, dj := models.WeekdayIndex(windows[i].DayOfWeek), models.WeekdayIndex(windows[j].DayOfWeek)
		if di != dj {
			return di < dj
		}
		return windows[i].StartTime < windows[j].StartTime
	})
	return windows, nil
}

// ReplaceAvailability swaps a teacher's whole weekly schedule.
func (s *Store) ReplaceAvailability(teacherID string, windows []models.AvailabilityWindow) error {
	existing, err := s.app.FindRecordsByFilter(
		"teacher_availability",
		"teacher = {:teacher}",
		"",
		0,
		0,
		dbx.Params{"teacher": teacherID},
	)
	if err != nil {
		return fmt.Errorf("load availability of %s: %w", teacherID, err)
	}
	for _, record := range existing {
		if err := s.app.Delete(record); err != nil {
			return fmt.Errorf("clear availability of %s: %w", teacherID, err)
		}
	}

	collection, err := s.app.FindCollectionByNameOrId("teacher_availability")
	if err != nil {
		return fmt.Errorf("teacher_availability collection: %w", err)
	}
	for _, window := range windows {
		record := core.NewRecord(collection)
		record.Set("teacher", teacherID)
		record.Set("day_of_week", window.DayOfWeek)
		record.Set("start_time", window.StartTime)
		record.Set("end_time", window.EndTime)
		if err := s.app.Save(record); err != nil {
			return fmt.Errorf("save availability window %s %s: %w", window.DayOfWeek, window.Slot(), err)
		}
	}
	return nil
}

// BumpReaction adjusts the tally for one teacher-awarded emoji. Negative
// deltas come from redactions and never take the count below zero.
func (s *Store) BumpReaction(roomID, teacherID, studentID, emoji string, delta int) error {
	record, err := s.app.FindFirstRecordByFilter(
		"reactions",
		"room_id = {:room} && teacher_id = {:teacher} && student_id = {:student} && emoji = {:emoji}",
		dbx.Params{"room": roomID, "teacher": teacherID, "student": studentID, "emoji": emoji},
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find reaction tally: %w", err)
		}
		if delta <= 0 {
			return nil
		}
		collection, err := s.app.FindCollectionByNameOrId("reactions")
		if err != nil {
			return fmt.Errorf("reactions collection: %w", err)
		}
		record = core.NewRecord(collection)
		record.Set("room_id", roomID)
		record.Set("teacher_id", teacherID)
		record.Set("student_id", studentID)
		record.Set("emoji", emoji)
		record.Set("count", delta)
		if err := s.app.Save(record); err != nil {
			return fmt.Errorf("save reaction tally: %w", err)
		}
		return nil
	}

	count := record.GetInt("count") + delta
	if count < 0 {
		count = 0
	}
	record.Set("count", count)
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("save reaction tally: %w", err)
	}
	return nil
}

// ReactionTotals aggregates the per-student emoji tallies of a room.
func (s *Store) ReactionTotals(roomID string) ([]models.Reaction, error) {
	query := `
		SELECT student_id, emoji, SUM(count) AS total
		FROM reactions
		WHERE room_id = {:roomId}
		GROUP BY student_id, emoji
		HAVING SUM(count) > 0
		ORDER BY total DESC, student_id ASC
	`

	type totalRow struct {
		StudentID string `db:"student_id"`
		Emoji     string `db:"emoji"`
		Total     int    `db:"total"`
	}

	rows := []totalRow{}
	err := s.app.DB().NewQuery(query).Bind(dbx.Params{"roomId": roomID}).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("reaction totals for %s: %w", roomID, err)
	}

	totals := make([]models.Reaction, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, models.Reaction{
			RoomID:    roomID,
			StudentID: row.StudentID,
			Emoji:     row.Emoji,
			Count:     row.Total,
		})
	}
	return totals, nil
}

// ReactionsGivenBy lists the positive tallies a teacher has awarded,
// grouped by room for display.
func (s *Store) ReactionsGivenBy(teacherID string) ([]models.Reaction, error) {
	return s.reactionsByFilter("teacher_id = {:who} && count > 0", "room_id,student_id,emoji", teacherID)
}

// ReactionsReceivedBy lists the positive tallies a student has received.
func (s *Store) ReactionsReceivedBy(studentID string) ([]models.Reaction, error) {
	return s.reactionsByFilter("student_id = {:who} && count > 0", "room_id,teacher_id,emoji", studentID)
}

func (s *Store) reactionsByFilter(filter, sortBy, who string) ([]models.Reaction, error) {
	records, err := s.app.FindRecordsByFilter(
		"reactions",
		filter,
		sortBy,
		0,
		0,
		dbx.Params{"who": who},
	)
	if err != nil {
		return nil, fmt.Errorf("reactions of %s: %w", who, err)
	}

	reactions := make([]models.Reaction, 0, len(records))
	for _, record := range records {
		reactions = append(reactions, models.Reaction{
			ID:          record.Id,
			TeacherID:   record.GetString("teacher_id"),
			StudentID:   record.GetString("student_id"),
			RoomID:      record.GetString("room_id"),
			Emoji:       record.GetString("emoji"),
			Count:       record.GetInt("count"),
			LastUpdated: record.GetDateTime("updated").Time(),
		})
	}
	return reactions, nil
}

// OpenQuestions returns the questions accepting answers at the given moment.
func (s *Store) OpenQuestions(now time.Time) ([]models.Question, error) {
	records, err := s.app.FindAllRecords("questions")
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	open := make([]models.Question, 0, len(records))
	for _, record := range records {
		question, err := questionFromRecord(record)
		if err != nil {
			return nil, err
		}
		if question.OpenAt(now) {
			open = append(open, question)
		}
	}
	return open, nil
}

// QuestionByID loads one question.
func (s *Store) QuestionByID(id string) (*models.Question, error) {
	record, err := s.app.FindRecordById("questions", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("find question %s: %w", id, err)
	}
	question, err := questionFromRecord(record)
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// SaveAnswer records a submission. When the question forbids resubmission
// an existing answer is overwritten instead of duplicated.
func (s *Store) SaveAnswer(question models.Question, userID, response string) error {
	if !question.AllowMultipleSubmissions {
		record, err := s.app.FindFirstRecordByFilter(
			"answers",
			"question = {:question} && user_id = {:user}",
			dbx.Params{"question": question.ID, "user": userID},
		)
		if err == nil {
			record.Set("response", response)
			if err := s.app.Save(record); err != nil {
				return fmt.Errorf("update answer: %w", err)
			}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find previous answer: %w", err)
		}
	}

	collection, err := s.app.FindCollectionByNameOrId("answers")
	if err != nil {
		return fmt.Errorf("answers collection: %w", err)
	}
	record := core.NewRecord(collection)
	record.Set("question", question.ID)
	record.Set("user_id", userID)
	record.Set("response", response)
	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

// AnswersBy lists one user's submissions to a question, oldest first.
func (s *Store) AnswersBy(questionID, userID string) ([]models.Answer, error) {
	records, err := s.app.FindRecordsByFilter(
		"answers",
		"question = {:question} && user_id = {:user}",
		"created",
		0,
		0,
		dbx.Params{"question": questionID, "user": userID},
	)
	if err != nil {
		return nil, fmt.Errorf("answers of %s for %s: %w", userID, questionID, err)
	}

	answers := make([]models.Answer, 0, len(records))
	for _, record := range records {
		answers = append(answers, answerFromRecord(record))
	}
	return answers, nil
}

// AnswersFor lists the submissions of a question, oldest first.
func (s *Store) AnswersFor(questionID string) ([]models.Answer, error) {
	records, err := s.app.FindRecordsByFilter(
		"answers",
		"question = {:question}",
		"created",
		0,
		0,
		dbx.Params{"question": questionID},
	)
	if err != nil {
		return nil, fmt.Errorf("answers for %s: %w", questionID, err)
	}

	answers := make([]models.Answer, 0, len(records))
	for _, record := range records {
		answers = append(answers, answerFromRecord(record))
	}
	return answers, nil
}

func answerFromRecord(r *core.Record) models.Answer {
	return models.Answer{
		ID:          r.Id,
		QuestionID:  r.GetString("question"),
		UserID:      r.GetString("user_id"),
		Response:    r.GetString("response"),
		SubmittedAt: r.GetDateTime("created").Time(),
	}
}

func userFromRecord(r *core.Record) *models.User {
	return &models.User{
		ID:             r.Id,
		MatrixID:       r.GetString("matrix_id"),
		MoodleID:       r.GetInt("moodle_id"),
		FullName:       r.GetString("full_name"),
		Email:          r.GetString("email"),
		IsTeacher:      r.GetBool("is_teacher"),
		RegisteredAt:   r.GetDateTime("created").Time(),
		AccessCodeHash: r.GetString("access_code_hash"),
	}
}

func roomFromRecord(r *core.Record) *models.Room {
	return &models.Room{
		ID:             r.Id,
		RoomID:         r.GetString("room_id"),
		Kind:           r.GetString("kind"),
		MoodleCourseID: r.GetInt("moodle_course_id"),
		TeacherID:      r.GetString("teacher"),
		Shortcode:      r.GetString("shortcode"),
		MoodleGroup:    r.GetString("moodle_group"),
		Active:         r.GetBool("active"),
		CreatedAt:      r.GetDateTime("created").Time(),
	}
}

func questionFromRecord(r *core.Record) (models.Question, error) {
	question := models.Question{
		ID:                       r.Id,
		RoomID:                   r.GetString("room_id"),
		Title:                    r.GetString("title"),
		Body:                     r.GetString("body"),
		QType:                    r.GetString("qtype"),
		AllowMultipleSelections:  r.GetBool("allow_multiple_selections"),
		AllowMultipleSubmissions: r.GetBool("allow_multiple_submissions"),
		StartAt:                  r.GetDateTime("start_at").Time(),
		EndAt:                    r.GetDateTime("end_at").Time(),
	}
	if raw := r.GetString("options"); raw != "" {
		if err := r.UnmarshalJSONField("options", &question.Options); err != nil {
			return question, fmt.Errorf("decode options of question %s: %w", r.Id, err)
		}
	}
	return question, nil
}
