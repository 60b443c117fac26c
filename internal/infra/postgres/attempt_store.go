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

// AttemptStore persists one attempt document per (quiz, student).
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) FindAttempt(ctx context.Context, quizID, studentID string) (domain.Attempt, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM attempts WHERE quiz_id=$1 AND student_id=$2`,
		quizID, studentID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	var attempt domain.Attempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return attempt, nil
}

func (s *AttemptStore) UpsertAttempt(ctx context.Context, attempt domain.Attempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO attempts (quiz_id, student_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (quiz_id, student_id) DO UPDATE SET data=EXCLUDED.data`,
		attempt.QuizID, attempt.StudentID, data)
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM attempts WHERE quiz_id=$1`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.Attempt
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		var attempt domain.Attempt
		if err := json.Unmarshal(raw, &attempt); err != nil {
			return nil, fmt.Errorf("unmarshal attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}
