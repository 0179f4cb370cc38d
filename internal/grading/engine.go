package grading

import (
	"quiz-attempt-service/internal/domain"
)

// Outcome is the result of grading a single answer. A nil Correct means the
// answer is pending manual review.
type Outcome struct {
	Correct *bool
	Points  int
}

// Strategy grades answers for one question type.
type Strategy interface {
	Grade(q domain.Question, a domain.Answer) Outcome
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(q domain.Question, a domain.Answer) Outcome

func (f StrategyFunc) Grade(q domain.Question, a domain.Answer) Outcome { return f(q, a) }

// Result is a fully graded answer set.
type Result struct {
	Answers  []domain.Answer
	Score    int
	MaxScore int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithStrategy installs or replaces the strategy for a question type.
func WithStrategy(t domain.QuestionType, s Strategy) Option {
	return func(e *Engine) { e.strategies[t] = s }
}

// Engine routes answers to the strategy for their question type.
// It is safe for concurrent use once constructed.
type Engine struct {
	strategies map[domain.QuestionType]Strategy
}

// NewEngine installs the built-in strategies.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		strategies: map[domain.QuestionType]Strategy{
			domain.QuestionMCQ:       choiceStrategy{},
			domain.QuestionTrueFalse: choiceStrategy{},
			domain.QuestionOpen:      pendingStrategy{},
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Grade scores every answer independently against the quiz snapshot and sums
// the awarded points. The input slice is not modified; running Grade twice on
// the same input yields the same Result.
func (e *Engine) Grade(quiz domain.Quiz, answers []domain.Answer) Result {
	graded := make([]domain.Answer, len(answers))
	total := 0
	for i, answer := range answers {
		outcome := Outcome{}
		if question, ok := quiz.Question(answer.QuestionID); ok {
			s, ok := e.strategies[question.Type]
			if !ok {
				s = pendingStrategy{}
			}
			outcome = s.Grade(question, answer)
		}
		answer.IsCorrect = outcome.Correct
		answer.PointsAwarded = outcome.Points
		graded[i] = answer
		total += outcome.Points
	}
	return Result{
		Answers:  graded,
		Score:    total,
		MaxScore: quiz.MaxScore(),
	}
}

// choiceStrategy awards full points when the selected option exists on the
// question and is flagged correct. Missing or foreign options score zero.
type choiceStrategy struct{}

func (choiceStrategy) Grade(q domain.Question, a domain.Answer) Outcome {
	correct := false
	if a.OptionID != nil {
		if opt, ok := q.Option(*a.OptionID); ok && opt.IsCorrect {
			correct = true
		}
	}
	if correct {
		return Outcome{Correct: &correct, Points: q.Points}
	}
	return Outcome{Correct: &correct}
}

// pendingStrategy leaves the answer ungraded.
type pendingStrategy struct{}

func (pendingStrategy) Grade(domain.Question, domain.Answer) Outcome { return Outcome{} }
