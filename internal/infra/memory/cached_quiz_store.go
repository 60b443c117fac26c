package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CachedQuizStore caches quiz reads with a TTL to avoid repeated store hits
// while the live loop is hot. Writes pass through and invalidate.
type CachedQuizStore struct {
	backend app.QuizStore
	ttl     time.Duration
	clock   func() time.Time
	sf      singleflight.Group
	rnd     *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewCachedQuizStore(backend app.QuizStore, ttl time.Duration) *CachedQuizStore {
	return &CachedQuizStore{
		backend: backend,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:   make(map[string]cachedQuiz),
	}
}

func (s *CachedQuizStore) FindQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	now := s.clock()

	s.mu.RLock()
	if entry, ok := s.cache[quizID]; ok && entry.expiresAt.After(now) {
		s.mu.RUnlock()
		return entry.quiz, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do(quizID, func() (interface{}, error) {
		now := s.clock()
		s.mu.RLock()
		if entry, ok := s.cache[quizID]; ok && entry.expiresAt.After(now) {
			s.mu.RUnlock()
			return entry.quiz, nil
		}
		s.mu.RUnlock()

		quiz, err := s.backend.FindQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		s.mu.Lock()
		s.cache[quizID] = cachedQuiz{quiz: quiz, expiresAt: now.Add(s.ttlWithJitter())}
		s.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// FindQuizByCode is not cached: code lookups happen once per client at join
// time, not in the hot loop.
func (s *CachedQuizStore) FindQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	return s.backend.FindQuizByCode(ctx, code)
}

func (s *CachedQuizStore) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := s.backend.SaveQuiz(ctx, quiz); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, quiz.ID)
	s.mu.Unlock()
	return nil
}

// FinishLiveByOwner can touch quizzes this cache never saw, so the whole
// cache is dropped.
func (s *CachedQuizStore) FinishLiveByOwner(ctx context.Context, ownerID, exceptQuizID string) error {
	if err := s.backend.FinishLiveByOwner(ctx, ownerID, exceptQuizID); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache = make(map[string]cachedQuiz)
	s.mu.Unlock()
	return nil
}

func (s *CachedQuizStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
