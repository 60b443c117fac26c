package app

import (
	"context"

	"classquiz-service/internal/domain"
)

// QuizStore abstracts quiz persistence (in-memory, Postgres, Redis-cached).
type QuizStore interface {
	FindQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	FindQuizByCode(ctx context.Context, code string) (domain.Quiz, error)
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
	// FinishLiveByOwner force-finishes every other live quiz owned by
	// ownerID that is still waiting or started. At most one live session
	// per owner may be active at a time.
	FinishLiveByOwner(ctx context.Context, ownerID, exceptQuizID string) error
}

// AttemptStore persists per-student attempt records.
type AttemptStore interface {
	// FindAttempt returns domain.ErrAttemptNotFound when the student has
	// not answered anything yet.
	FindAttempt(ctx context.Context, quizID, studentID string) (domain.Attempt, error)
	// UpsertAttempt writes the full attempt, replacing any prior record
	// for the same (quiz, student) pair.
	UpsertAttempt(ctx context.Context, attempt domain.Attempt) error
	ListAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error)
}

// SessionRepository tracks live session actors (in-memory, optionally with
// Redis liveness markers).
type SessionRepository interface {
	GetOrCreate(quizID string) *Session
	Get(quizID string) (*Session, bool)
	DeleteIfEmpty(quizID string)
}
