package models

import (
	"time"
)

type User struct {
	ID           string    `json:"id"`
	MatrixID     string    `json:"matrix_id"`
	MoodleID     int       `json:"moodle_id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	IsTeacher    bool      `json:"is_teacher"`
	RegisteredAt time.Time `json:"registered_at"`

	// AccessCodeHash holds the bcrypt hash of the teacher's dashboard
	// access code. Never serialized outward.
	AccessCodeHash string `json:"-"`
}
