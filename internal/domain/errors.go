package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when a live session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionFinished is returned for commands against a finished session.
	// The transport treats it as a stale event: logged, never surfaced.
	ErrSessionFinished = errors.New("quiz session already finished")
	// ErrSessionNotStarted is returned when a command needs a running session.
	ErrSessionNotStarted = errors.New("quiz session not started")
	// ErrQuestionOutOfRange indicates a question index outside the quiz, or a
	// pointer advance that is not exactly one step forward.
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrAttemptNotFound is returned when no attempt exists for a (quiz, student) pair.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrTeacherOnly is returned when a student issues a teacher command.
	ErrTeacherOnly = errors.New("command restricted to the session teacher")
	// ErrInvalidBonus is returned when a time bonus is zero or negative.
	ErrInvalidBonus = errors.New("time bonus must be positive")
)
