package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizCache caches whole quiz documents in Redis and falls back to the
// backing store on a miss. The live engine reads the question list, status
// and final leaderboard, so the full JSON document is cached, not just
// answer keys. Saves write through and invalidate.
type QuizCache struct {
	client  *redis.Client
	backend app.QuizStore
	ttl     time.Duration
	sf      singleflight.Group
	rnd     *rand.Rand
}

func NewQuizCache(client *redis.Client, backend app.QuizStore, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client:  client,
		backend: backend,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) FindQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := c.backend.FindQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		if data, err := json.Marshal(quiz); err == nil {
			_ = c.client.Set(ctx, c.key(quizID), data, c.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) FindQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	return c.backend.FindQuizByCode(ctx, code)
}

func (c *QuizCache) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := c.backend.SaveQuiz(ctx, quiz); err != nil {
		return err
	}
	_ = c.client.Del(ctx, c.key(quiz.ID)).Err()
	return nil
}

// FinishLiveByOwner may touch quizzes whose cache keys are unknown here, so
// only the exempted quiz stays warm; everything else expires by TTL. The
// force-finished quizzes are no longer read on the hot path.
func (c *QuizCache) FinishLiveByOwner(ctx context.Context, ownerID, exceptQuizID string) error {
	return c.backend.FinishLiveByOwner(ctx, ownerID, exceptQuizID)
}

func (c *QuizCache) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	data, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (c *QuizCache) key(quizID string) string {
	return "quiz:" + quizID + ":doc"
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
