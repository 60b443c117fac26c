package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"classquiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizStore persists quiz JSONB documents in Postgres. Owner, join code and
// status are denormalized into columns so the force-finish sweep and code
// lookups stay single statements.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) FindQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.scanQuiz(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID)
}

func (s *QuizStore) FindQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	return s.scanQuiz(ctx, `SELECT data FROM quizzes WHERE join_code=$1`, code)
}

func (s *QuizStore) scanQuiz(ctx context.Context, query, arg string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, query, arg).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

func (s *QuizStore) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quizzes (id, owner_id, join_code, status, is_live, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET owner_id=EXCLUDED.owner_id,
		    join_code=EXCLUDED.join_code,
		    status=EXCLUDED.status,
		    is_live=EXCLUDED.is_live,
		    data=EXCLUDED.data`,
		quiz.ID, quiz.OwnerID, quiz.JoinCode, string(quiz.Status), quiz.IsLive, data)
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}
	return nil
}

// FinishLiveByOwner marks every other live quiz of the owner finished. The
// embedded document is patched in place so column and JSONB state agree.
func (s *QuizStore) FinishLiveByOwner(ctx context.Context, ownerID, exceptQuizID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE quizzes
		SET status=$1,
		    is_live=false,
		    data=jsonb_set(jsonb_set(data, '{status}', to_jsonb($1::text)), '{isLive}', 'false')
		WHERE owner_id=$2 AND id<>$3 AND is_live AND status<>$1`,
		string(domain.StatusFinished), ownerID, exceptQuizID)
	if err != nil {
		return fmt.Errorf("finish live quizzes: %w", err)
	}
	return nil
}
