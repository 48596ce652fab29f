package models

import (
	"time"
)

// Question types supported by the dashboard.
const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeTrueFalse      = "true_false"
	QuestionTypePoll           = "poll"
	QuestionTypeText           = "text"
)

// Question is a dashboard-created prompt announced in a course room by the
// bot and answered over private chat commands.
type Question struct {
	ID                       string            `json:"id"`
	RoomID                   string            `json:"room_id"`
	Title                    string            `json:"title"`
	Body                     string            `json:"body"`
	QType                    string            `json:"qtype"` // multiple_choice, true_false, poll, text
	Options                  map[string]string `json:"options,omitempty"`
	AllowMultipleSelections  bool              `json:"allow_multiple_selections"`
	AllowMultipleSubmissions bool              `json:"allow_multiple_submissions"`
	StartAt                  time.Time         `json:"start_at"`
	EndAt                    time.Time         `json:"end_at"`
}

// OpenAt reports whether the question accepts answers at the given moment.
// A zero EndAt means the question never closes on its own.
func (q Question) OpenAt(now time.Time) bool {
	if now.Before(q.StartAt) {
		return false
	}
	if q.EndAt.IsZero() {
		return true
	}
	return now.Before(q.EndAt)
}

// HasOption reports whether key is a valid selection for choice questions.
func (q Question) HasOption(key string) bool {
	_, ok := q.Options[key]
	return ok
}

// Answer is one submission to a question. Response holds the free text or
// the selected option keys joined by spaces.
type Answer struct {
	ID          string    `json:"id"`
	QuestionID  string    `json:"question_id"`
	UserID      string    `json:"user_id"`
	Response    string    `json:"response"`
	SubmittedAt time.Time `json:"submitted_at"`
}
