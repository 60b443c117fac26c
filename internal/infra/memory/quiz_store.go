package memory

import (
	"context"
	"sync"

	"classquiz-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizStore, used in tests
// and for running without Postgres.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewQuizStore(seed map[string]domain.Quiz) *QuizStore {
	quizzes := make(map[string]domain.Quiz, len(seed))
	for id, quiz := range seed {
		quizzes[id] = quiz
	}
	return &QuizStore{quizzes: quizzes}
}

func (s *QuizStore) FindQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *QuizStore) FindQuizByCode(_ context.Context, code string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, quiz := range s.quizzes {
		if quiz.JoinCode == code {
			return quiz, nil
		}
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (s *QuizStore) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
	return nil
}

func (s *QuizStore) FinishLiveByOwner(_ context.Context, ownerID, exceptQuizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, quiz := range s.quizzes {
		if id == exceptQuizID || quiz.OwnerID != ownerID || !quiz.IsLive {
			continue
		}
		if quiz.Status != domain.StatusFinished {
			quiz.Status = domain.StatusFinished
			quiz.IsLive = false
			s.quizzes[id] = quiz
		}
	}
	return nil
}
