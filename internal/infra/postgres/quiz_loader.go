package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader loads quiz snapshots from the relational catalog tables.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

const selectQuiz = `
SELECT q.id, q.title, q.status, q.type, q.author_id, q.deleted_at,
       s.quiz_id, s.time_limit, s.passing_score, s.shuffle_questions, s.show_results,
       s.access_mode, s.access_code, s.start_at, s.end_at
FROM quizzes q
LEFT JOIN quiz_settings s ON s.quiz_id = q.id
WHERE q.id = $1`

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz       domain.Quiz
		settingsID *string
		timeLimit  *int
		passing    *float64
		shuffle    *bool
		show       *bool
		mode       *string
		code       *string
		startAt    *time.Time
		endAt      *time.Time
	)
	err := l.pool.QueryRow(ctx, selectQuiz, quizID).Scan(
		&quiz.ID, &quiz.Title, &quiz.Status, &quiz.Type, &quiz.AuthorID, &quiz.DeletedAt,
		&settingsID, &timeLimit, &passing, &shuffle, &show, &mode, &code, &startAt, &endAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if settingsID != nil {
		quiz.Settings = &domain.QuizSettings{
			TimeLimit:        timeLimit,
			PassingScore:     passing,
			ShuffleQuestions: deref(shuffle),
			ShowResults:      deref(show),
			AccessMode:       domain.AccessMode(deref(mode)),
			AccessCode:       deref(code),
			StartAt:          startAt,
			EndAt:            endAt,
		}
	}

	questions, err := l.loadQuestions(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = questions
	return quiz, nil
}

func (l *QuizLoader) loadQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
SELECT id, quiz_id, type, content, points, position
FROM questions WHERE quiz_id = $1 ORDER BY position, id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	index := make(map[string]int)
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Type, &q.Content, &q.Points, &q.Position); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	optRows, err := l.pool.Query(ctx, `
SELECT o.id, o.question_id, o.content, o.is_correct, o.position
FROM question_options o
JOIN questions q ON q.id = o.question_id
WHERE q.quiz_id = $1
ORDER BY o.position, o.id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var o domain.QuestionOption
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Content, &o.IsCorrect, &o.Position); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	return questions, nil
}

// SaveQuiz upserts a quiz with its settings, questions, and options in one
// transaction. Questions and options missing from quiz are removed.
func (l *QuizLoader) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO quizzes (id, title, status, type, author_id, deleted_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title, status = EXCLUDED.status, type = EXCLUDED.type,
    author_id = EXCLUDED.author_id, deleted_at = EXCLUDED.deleted_at`,
		quiz.ID, quiz.Title, string(quiz.Status), string(quiz.Type), quiz.AuthorID, quiz.DeletedAt)
	if err != nil {
		return fmt.Errorf("save quiz: %w", err)
	}

	if quiz.Settings == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM quiz_settings WHERE quiz_id = $1`, quiz.ID); err != nil {
			return fmt.Errorf("clear settings: %w", err)
		}
	} else {
		s := quiz.Settings
		_, err = tx.Exec(ctx, `
INSERT INTO quiz_settings (quiz_id, time_limit, passing_score, shuffle_questions, show_results, access_mode, access_code, start_at, end_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (quiz_id) DO UPDATE SET
    time_limit = EXCLUDED.time_limit, passing_score = EXCLUDED.passing_score,
    shuffle_questions = EXCLUDED.shuffle_questions, show_results = EXCLUDED.show_results,
    access_mode = EXCLUDED.access_mode, access_code = EXCLUDED.access_code,
    start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at`,
			quiz.ID, s.TimeLimit, s.PassingScore, s.ShuffleQuestions, s.ShowResults,
			string(s.AccessMode), s.AccessCode, s.StartAt, s.EndAt)
		if err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE quiz_id = $1`, quiz.ID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	batch := &pgx.Batch{}
	for i, q := range quiz.Questions {
		position := q.Position
		if position == 0 {
			position = i
		}
		batch.Queue(`INSERT INTO questions (id, quiz_id, type, content, points, position) VALUES ($1, $2, $3, $4, $5, $6)`,
			q.ID, quiz.ID, string(q.Type), q.Content, q.Points, position)
		for j, o := range q.Options {
			optPosition := o.Position
			if optPosition == 0 {
				optPosition = j
			}
			batch.Queue(`INSERT INTO question_options (id, question_id, content, is_correct, position) VALUES ($1, $2, $3, $4, $5)`,
				o.ID, q.ID, o.Content, o.IsCorrect, optPosition)
		}
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("save questions: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("save questions: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
