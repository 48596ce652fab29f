package models

import (
	"time"
)

// Room kinds. Tutoring rooms belong to a single teacher; course rooms are
// the general per-course chats where commands usually arrive.
const (
	RoomKindCourse   = "course"
	RoomKindTutoring = "tutoring"
)

type Room struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"room_id"`
	Kind           string    `json:"kind"` // course, tutoring
	MoodleCourseID int       `json:"moodle_course_id"`
	TeacherID      string    `json:"teacher_id"`
	Shortcode      string    `json:"shortcode"`
	MoodleGroup    string    `json:"moodle_group"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}
