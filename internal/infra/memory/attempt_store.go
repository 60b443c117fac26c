package memory

import (
	"context"
	"sync"

	"classquiz-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]map[string]domain.Attempt // quizID -> studentID -> attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string]map[string]domain.Attempt)}
}

func (s *AttemptStore) FindAttempt(_ context.Context, quizID, studentID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[quizID][studentID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) UpsertAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts[attempt.QuizID] == nil {
		s.attempts[attempt.QuizID] = make(map[string]domain.Attempt)
	}
	s.attempts[attempt.QuizID][attempt.StudentID] = attempt
	return nil
}

func (s *AttemptStore) ListAttempts(_ context.Context, quizID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0, len(s.attempts[quizID]))
	for _, attempt := range s.attempts[quizID] {
		out = append(out, attempt)
	}
	return out, nil
}
