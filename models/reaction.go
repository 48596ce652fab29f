package models

import (
	"time"
)

// Reaction is the running tally of one emoji a teacher has awarded to a
// student in a room. Redacted reactions decrement the count, floored at 0.
type Reaction struct {
	ID          string    `json:"id"`
	TeacherID   string    `json:"teacher_id"`
	StudentID   string    `json:"student_id"`
	RoomID      string    `json:"room_id"`
	Emoji       string    `json:"emoji"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"last_updated"`
}
