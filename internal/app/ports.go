package app

import (
	"context"
	"errors"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/policy"
)

// QuizCatalog supplies read-only quiz snapshots (from cache/backing store).
type QuizCatalog interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptMutation runs against a locked attempt and its answers and returns
// the values to persist. Returning an error aborts without writing anything.
type AttemptMutation func(attempt domain.Attempt, answers []domain.Answer) (domain.Attempt, []domain.Answer, error)

// AttemptRepository persists attempts and their answers. Implementations must
// serialize SaveAnswer and UpdateAttempt per attempt so that the check or
// mutation observes the latest committed status.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error)
	// SaveAnswer upserts the answer keyed by (attempt, question). On conflict the
	// existing row keeps its ID and grading fields; option and content are replaced.
	SaveAnswer(ctx context.Context, answer domain.Answer, check func(domain.Attempt) error) (domain.Answer, error)
	UpdateAttempt(ctx context.Context, attemptID string, mutate AttemptMutation) (domain.Attempt, error)
	ListCompleted(ctx context.Context, quizID string) ([]domain.Attempt, error)
}

// CertificateRepository stores certificates, unique per attempt and per code.
type CertificateRepository interface {
	GetCertificateByAttempt(ctx context.Context, attemptID string) (domain.Certificate, error)
	GetCertificateByCode(ctx context.Context, code string) (domain.Certificate, error)
	// CreateCertificate returns the stored certificate for the attempt, which is
	// the argument unless another one was created first. A code collision
	// returns domain.ErrCertificateCodeTaken.
	CreateCertificate(ctx context.Context, cert domain.Certificate) (domain.Certificate, error)
}

// MembershipChecker answers whether a user belongs to a group linked to a quiz.
type MembershipChecker interface {
	IsMember(ctx context.Context, quizID, userID string) (bool, error)
}

// Authorizer is the capability check invoked by every operation.
type Authorizer interface {
	Authorize(actor domain.Actor, c policy.Capability, res policy.Resource) error
}

// Notifier receives attempt events. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// Notifiers fans an event out to every notifier.
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type denyAllMembers struct{}

func (denyAllMembers) IsMember(context.Context, string, string) (bool, error) { return false, nil }
