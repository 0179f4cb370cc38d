package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// A single mutex serializes every write, which gives SaveAnswer and
// UpdateAttempt their compare-and-set semantics.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
	answers  map[string][]domain.Answer // by attempt ID, one per question
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.Attempt),
		answers:  make(map[string][]domain.Answer),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

func (s *AttemptStore) ListAnswers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return nil, domain.ErrAttemptNotFound
	}
	return cloneAnswers(s.answers[attemptID]), nil
}

func (s *AttemptStore) SaveAnswer(_ context.Context, answer domain.Answer, check func(domain.Attempt) error) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[answer.AttemptID]
	if !ok {
		return domain.Answer{}, domain.ErrAttemptNotFound
	}
	if check != nil {
		if err := check(attempt); err != nil {
			return domain.Answer{}, err
		}
	}

	answers := s.answers[answer.AttemptID]
	for i := range answers {
		if answers[i].QuestionID != answer.QuestionID {
			continue
		}
		answers[i].OptionID = answer.OptionID
		answers[i].AnswerContent = answer.AnswerContent
		answers[i].UpdatedAt = answer.UpdatedAt
		return cloneAnswer(answers[i]), nil
	}
	s.answers[answer.AttemptID] = append(answers, cloneAnswer(answer))
	return cloneAnswer(answer), nil
}

func (s *AttemptStore) UpdateAttempt(_ context.Context, attemptID string, mutate app.AttemptMutation) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	updated, answers, err := mutate(cloneAttempt(attempt), cloneAnswers(s.answers[attemptID]))
	if err != nil {
		return domain.Attempt{}, err
	}
	s.attempts[attemptID] = cloneAttempt(updated)
	if answers != nil {
		s.answers[attemptID] = cloneAnswers(answers)
	}
	return cloneAttempt(updated), nil
}

func (s *AttemptStore) ListCompleted(_ context.Context, quizID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.Status == domain.AttemptCompleted {
			out = append(out, cloneAttempt(attempt))
		}
	}
	return out, nil
}

func cloneAttempt(a domain.Attempt) domain.Attempt {
	if a.QuestionOrder != nil {
		a.QuestionOrder = append([]string(nil), a.QuestionOrder...)
	}
	if a.Score != nil {
		score := *a.Score
		a.Score = &score
	}
	if a.EndTime != nil {
		end := *a.EndTime
		a.EndTime = &end
	}
	return a
}

func cloneAnswer(a domain.Answer) domain.Answer {
	if a.OptionID != nil {
		v := *a.OptionID
		a.OptionID = &v
	}
	if a.AnswerContent != nil {
		v := *a.AnswerContent
		a.AnswerContent = &v
	}
	if a.IsCorrect != nil {
		v := *a.IsCorrect
		a.IsCorrect = &v
	}
	return a
}

func cloneAnswers(in []domain.Answer) []domain.Answer {
	out := make([]domain.Answer, len(in))
	for i, a := range in {
		out[i] = cloneAnswer(a)
	}
	return out
}
