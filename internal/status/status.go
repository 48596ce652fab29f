package status

import "errors"

var (
	ErrUserNotRegistered = errors.New("user: not registered")
	ErrRoomNotFound      = errors.New("room: room not found")
	ErrNoTutoringRoom    = errors.New("room: teacher has no tutoring room")
	ErrQuestionNotFound  = errors.New("question: question not found")
	ErrSessionNotFound   = errors.New("auth: session expired or unknown")
)
