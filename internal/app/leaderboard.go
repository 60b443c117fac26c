package app

import (
	"context"
	"sort"

	"classquiz-service/internal/domain"
)

// Aggregator recomputes ranked standings from the attempt records. Ranks
// are a pure function of the attempt set at call time.
type Aggregator struct {
	attempts AttemptStore
}

func NewAggregator(attempts AttemptStore) *Aggregator {
	return &Aggregator{attempts: attempts}
}

// Compute sorts attempts by score descending, then by who reached the score
// earlier, then by name, and assigns 1-based ranks.
func (a *Aggregator) Compute(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	attempts, err := a.attempts.ListAttempts(ctx, quizID)
	if err != nil {
		return nil, err
	}

	sort.Slice(attempts, func(i, j int) bool {
		if attempts[i].Score != attempts[j].Score {
			return attempts[i].Score > attempts[j].Score
		}
		if !attempts[i].CompletedAt.Equal(attempts[j].CompletedAt) {
			return attempts[i].CompletedAt.Before(attempts[j].CompletedAt)
		}
		return attempts[i].Username < attempts[j].Username
	})

	entries := make([]domain.LeaderboardEntry, 0, len(attempts))
	for i, at := range attempts {
		entries = append(entries, domain.LeaderboardEntry{
			StudentID:     at.StudentID,
			Username:      at.Username,
			CurrentScore:  at.Score,
			AnsweredCount: len(at.Answers),
			Rank:          i + 1,
		})
	}
	return entries, nil
}

// TopScorer is the cheap live insight used for in-progress broadcasts: the
// head of an already sorted leaderboard, no extra passes.
func TopScorer(entries []domain.LeaderboardEntry) (domain.LeaderboardEntry, bool) {
	if len(entries) == 0 {
		return domain.LeaderboardEntry{}, false
	}
	return entries[0], true
}
