package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AttemptStore persists attempts and answers in Postgres. Writes that must
// observe the attempt status lock its row with SELECT ... FOR UPDATE.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

const attemptColumns = `id, quiz_id, user_id, status, start_time, end_time, deadline, score, max_score, question_order`

const answerColumns = `id, attempt_id, question_id, option_id, answer_content, is_correct, points_awarded, updated_at`

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	order, err := json.Marshal(orderOrEmpty(attempt.QuestionOrder))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO quiz_attempts (`+attemptColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		attempt.ID, attempt.QuizID, attempt.UserID, string(attempt.Status), attempt.StartTime,
		attempt.EndTime, attempt.Deadline, attempt.Score, attempt.MaxScore, string(order))
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1`, attemptID)
	return scanAttempt(row)
}

func (s *AttemptStore) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	if _, err := s.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return listAnswers(ctx, s.pool, attemptID)
}

func (s *AttemptStore) SaveAnswer(ctx context.Context, answer domain.Answer, check func(domain.Attempt) error) (domain.Answer, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Answer{}, err
	}
	defer tx.Rollback(ctx)

	attempt, err := lockAttempt(ctx, tx, answer.AttemptID)
	if err != nil {
		return domain.Answer{}, err
	}
	if check != nil {
		if err := check(attempt); err != nil {
			return domain.Answer{}, err
		}
	}

	row := tx.QueryRow(ctx, `
INSERT INTO question_answers (`+answerColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (attempt_id, question_id) DO UPDATE SET
    option_id = EXCLUDED.option_id,
    answer_content = EXCLUDED.answer_content,
    updated_at = EXCLUDED.updated_at
RETURNING `+answerColumns,
		answer.ID, answer.AttemptID, answer.QuestionID, answer.OptionID, answer.AnswerContent,
		answer.IsCorrect, answer.PointsAwarded, answer.UpdatedAt)
	saved, err := scanAnswer(row)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("save answer: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Answer{}, err
	}
	return saved, nil
}

func (s *AttemptStore) UpdateAttempt(ctx context.Context, attemptID string, mutate app.AttemptMutation) (domain.Attempt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Attempt{}, err
	}
	defer tx.Rollback(ctx)

	attempt, err := lockAttempt(ctx, tx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	answers, err := listAnswers(ctx, tx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}

	updated, graded, err := mutate(attempt, answers)
	if err != nil {
		return domain.Attempt{}, err
	}

	order, err := json.Marshal(orderOrEmpty(updated.QuestionOrder))
	if err != nil {
		return domain.Attempt{}, err
	}
	_, err = tx.Exec(ctx, `
UPDATE quiz_attempts
SET status = $2, end_time = $3, deadline = $4, score = $5, max_score = $6, question_order = $7
WHERE id = $1`,
		attemptID, string(updated.Status), updated.EndTime, updated.Deadline, updated.Score,
		updated.MaxScore, string(order))
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("update attempt: %w", err)
	}

	for _, a := range graded {
		_, err := tx.Exec(ctx, `
UPDATE question_answers SET is_correct = $2, points_awarded = $3
WHERE id = $1`, a.ID, a.IsCorrect, a.PointsAwarded)
		if err != nil {
			return domain.Attempt{}, fmt.Errorf("update answer: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Attempt{}, err
	}
	return updated, nil
}

func (s *AttemptStore) ListCompleted(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+attemptColumns+` FROM quiz_attempts
WHERE quiz_id = $1 AND status = $2 AND score IS NOT NULL`, quizID, string(domain.AttemptCompleted))
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Attempt, 0)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func lockAttempt(ctx context.Context, tx pgx.Tx, attemptID string) (domain.Attempt, error) {
	row := tx.QueryRow(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = $1 FOR UPDATE`, attemptID)
	return scanAttempt(row)
}

func listAnswers(ctx context.Context, q querier, attemptID string) ([]domain.Answer, error) {
	rows, err := q.Query(ctx, `
SELECT `+answerColumns+` FROM question_answers
WHERE attempt_id = $1 ORDER BY updated_at, id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := make([]domain.Answer, 0)
	for rows.Next() {
		answer, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}
	return answers, rows.Err()
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var (
		attempt domain.Attempt
		order   []byte
	)
	err := row.Scan(&attempt.ID, &attempt.QuizID, &attempt.UserID, &attempt.Status, &attempt.StartTime,
		&attempt.EndTime, &attempt.Deadline, &attempt.Score, &attempt.MaxScore, &order)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	if len(order) > 0 {
		if err := json.Unmarshal(order, &attempt.QuestionOrder); err != nil {
			return domain.Attempt{}, fmt.Errorf("decode question order: %w", err)
		}
	}
	return attempt, nil
}

func scanAnswer(row pgx.Row) (domain.Answer, error) {
	var a domain.Answer
	err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.OptionID, &a.AnswerContent,
		&a.IsCorrect, &a.PointsAwarded, &a.UpdatedAt)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("scan answer: %w", err)
	}
	return a, nil
}

func orderOrEmpty(order []string) []string {
	if order == nil {
		return []string{}
	}
	return order
}
