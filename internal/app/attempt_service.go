package app

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/grading"
	"quiz-attempt-service/internal/logging"
	"quiz-attempt-service/internal/metrics"
	"quiz-attempt-service/internal/policy"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Option configures an AttemptService.
type Option func(*AttemptService)

func WithAuthorizer(a Authorizer) Option        { return func(s *AttemptService) { s.authz = a } }
func WithGrader(g *grading.Engine) Option       { return func(s *AttemptService) { s.grader = g } }
func WithMembership(m MembershipChecker) Option { return func(s *AttemptService) { s.members = m } }
func WithNotifier(n Notifier) Option            { return func(s *AttemptService) { s.notifier = n } }
func WithLogger(l logrus.FieldLogger) Option    { return func(s *AttemptService) { s.log = l } }
func WithMetrics(m *metrics.Metrics) Option     { return func(s *AttemptService) { s.metrics = m } }

// WithIDGenerator overrides entity ID generation (tests).
func WithIDGenerator(f func() string) Option { return func(s *AttemptService) { s.newID = f } }

// WithCodeGenerator overrides certificate code generation (tests).
func WithCodeGenerator(f func() (string, error)) Option {
	return func(s *AttemptService) { s.newCode = f }
}

// AttemptService contains the attempt lifecycle and grading use cases. Every
// operation takes the current time explicitly.
type AttemptService struct {
	catalog  QuizCatalog
	attempts AttemptRepository
	certs    CertificateRepository

	authz    Authorizer
	grader   *grading.Engine
	members  MembershipChecker
	notifier Notifier
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	newID    func() string
	newCode  func() (string, error)
}

func NewAttemptService(catalog QuizCatalog, attempts AttemptRepository, certs CertificateRepository, opts ...Option) *AttemptService {
	s := &AttemptService{
		catalog:  catalog,
		attempts: attempts,
		certs:    certs,
		authz:    policy.New(nil),
		grader:   grading.NewEngine(),
		members:  denyAllMembers{},
		notifier: Notifiers(nil),
		log:      logging.Discard(),
		newID:    uuid.NewString,
		newCode:  CertificateCodeGenerator(DefaultCertificatePrefix),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StartAttempt checks eligibility in a fixed order and creates an in-progress
// attempt. Multiple attempts per user and quiz are allowed.
func (s *AttemptService) StartAttempt(ctx context.Context, actor domain.Actor, quizID, accessCode string, now time.Time) (domain.Attempt, error) {
	if err := s.authz.Authorize(actor, policy.StartAttempt, policy.Resource{}); err != nil {
		return domain.Attempt{}, err
	}
	quiz, err := s.catalog.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := s.checkEligibility(ctx, quiz, actor, accessCode, now); err != nil {
		return domain.Attempt{}, err
	}

	attempt := domain.Attempt{
		ID:        s.newID(),
		QuizID:    quiz.ID,
		UserID:    actor.UserID,
		Status:    domain.AttemptInProgress,
		StartTime: now,
		MaxScore:  quiz.MaxScore(),
	}
	attempt.QuestionOrder = questionOrder(quiz, attempt.ID)
	if quiz.Settings != nil && quiz.Settings.TimeLimit != nil && *quiz.Settings.TimeLimit > 0 {
		deadline := now.Add(time.Duration(*quiz.Settings.TimeLimit) * time.Minute)
		attempt.Deadline = &deadline
	}

	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return domain.Attempt{}, fmt.Errorf("create attempt: %w", err)
	}
	if s.metrics != nil {
		s.metrics.AttemptsStarted.Inc()
	}
	s.log.WithFields(logrus.Fields{"attempt_id": attempt.ID, "quiz_id": quiz.ID, "user_id": actor.UserID}).Info("attempt started")
	s.notify(ctx, domain.Event{Type: domain.EventQuizStarted, QuizID: quiz.ID, AttemptID: attempt.ID, UserID: actor.UserID, OccurredAt: now})
	return attempt, nil
}

func (s *AttemptService) checkEligibility(ctx context.Context, quiz domain.Quiz, actor domain.Actor, accessCode string, now time.Time) error {
	if quiz.Status != domain.QuizPublished || quiz.DeletedAt != nil {
		return domain.ErrNotAvailable
	}
	settings := quiz.Settings
	if settings == nil {
		return nil
	}
	if settings.StartAt != nil && now.Before(*settings.StartAt) {
		return domain.ErrNotYetOpen
	}
	if settings.EndAt != nil && now.After(*settings.EndAt) {
		return domain.ErrClosed
	}
	switch settings.AccessMode {
	case domain.AccessPassword:
		if settings.AccessCode == "" || accessCode != settings.AccessCode {
			return domain.ErrInvalidAccessCode
		}
	case domain.AccessPrivate:
		ok, err := s.members.IsMember(ctx, quiz.ID, actor.UserID)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if !ok {
			return domain.ErrPrivateAccess
		}
	}
	return nil
}

// SubmitAnswer upserts the caller's answer for one question. Option IDs are
// not validated here; grading treats unknown options as incorrect.
func (s *AttemptService) SubmitAnswer(ctx context.Context, actor domain.Actor, attemptID, questionID string, optionID, content *string, now time.Time) (domain.Answer, error) {
	if strings.TrimSpace(questionID) == "" {
		return domain.Answer{}, fmt.Errorf("%w: question_id is required", domain.ErrValidation)
	}
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Answer{}, err
	}
	if err := s.authz.Authorize(actor, policy.SubmitAnswer, policy.Resource{OwnerID: attempt.UserID}); err != nil {
		return domain.Answer{}, err
	}
	if err := requireInProgress(attempt); err != nil {
		return domain.Answer{}, err
	}

	quiz, err := s.catalog.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Answer{}, err
	}
	if _, ok := quiz.Question(questionID); !ok {
		return domain.Answer{}, domain.ErrQuestionNotInQuiz
	}

	answer := domain.Answer{
		ID:            s.newID(),
		AttemptID:     attempt.ID,
		QuestionID:    questionID,
		OptionID:      optionID,
		AnswerContent: content,
		UpdatedAt:     now,
	}
	return s.attempts.SaveAnswer(ctx, answer, requireInProgress)
}

// CloseAttempt ends the attempt and grades it. The status compare-and-set
// happens inside the repository lock, so grading runs at most once.
func (s *AttemptService) CloseAttempt(ctx context.Context, actor domain.Actor, attemptID string, now time.Time) (domain.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := s.authz.Authorize(actor, policy.CloseAttempt, policy.Resource{OwnerID: attempt.UserID}); err != nil {
		return domain.Attempt{}, err
	}
	if err := requireInProgress(attempt); err != nil {
		return domain.Attempt{}, err
	}
	quiz, err := s.catalog.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}

	closed, err := s.attempts.UpdateAttempt(ctx, attemptID, func(a domain.Attempt, answers []domain.Answer) (domain.Attempt, []domain.Answer, error) {
		if err := requireInProgress(a); err != nil {
			return a, nil, err
		}
		end := now
		a.EndTime = &end
		graded := s.grade(quiz, &a, answers)
		return a, graded, nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}

	s.log.WithFields(logrus.Fields{"attempt_id": closed.ID, "quiz_id": closed.QuizID, "score": *closed.Score}).Info("attempt graded")
	s.notify(ctx, domain.Event{Type: domain.EventQuizCompleted, QuizID: closed.QuizID, AttemptID: closed.ID, UserID: closed.UserID, OccurredAt: now})
	s.notify(ctx, domain.Event{Type: domain.EventQuizGraded, QuizID: closed.QuizID, AttemptID: closed.ID, UserID: closed.UserID, Score: closed.Score, OccurredAt: now})
	return closed, nil
}

// RegradeAttempt re-runs grading on a completed attempt against the current
// catalog snapshot, overwriting only the grading fields.
func (s *AttemptService) RegradeAttempt(ctx context.Context, actor domain.Actor, attemptID string, now time.Time) (domain.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	quiz, err := s.catalog.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := s.authz.Authorize(actor, policy.RegradeAttempt, policy.Resource{OwnerID: attempt.UserID, AuthorID: quiz.AuthorID}); err != nil {
		return domain.Attempt{}, err
	}

	regraded, err := s.attempts.UpdateAttempt(ctx, attemptID, func(a domain.Attempt, answers []domain.Answer) (domain.Attempt, []domain.Answer, error) {
		if a.Status != domain.AttemptCompleted {
			return a, nil, domain.ErrAttemptNotCompleted
		}
		graded := s.grade(quiz, &a, answers)
		return a, graded, nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	s.notify(ctx, domain.Event{Type: domain.EventQuizGraded, QuizID: regraded.QuizID, AttemptID: regraded.ID, UserID: regraded.UserID, Score: regraded.Score, OccurredAt: now})
	return regraded, nil
}

// GetAttempt returns the caller's own attempt.
func (s *AttemptService) GetAttempt(ctx context.Context, actor domain.Actor, attemptID string) (domain.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := s.authz.Authorize(actor, policy.ViewAttempt, policy.Resource{OwnerID: attempt.UserID}); err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

// grade applies the engine result to a and returns the graded answers.
func (s *AttemptService) grade(quiz domain.Quiz, a *domain.Attempt, answers []domain.Answer) []domain.Answer {
	res := s.grader.Grade(quiz, answers)
	score := res.Score
	a.Score = &score
	a.MaxScore = res.MaxScore
	a.Status = domain.AttemptCompleted
	if s.metrics != nil {
		s.metrics.AttemptsGraded.Inc()
	}
	return res.Answers
}

func (s *AttemptService) notify(ctx context.Context, event domain.Event) {
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.log.WithError(err).WithField("event", event.Type).Warn("notify attempt event")
	}
}

func requireInProgress(a domain.Attempt) error {
	if a.Status != domain.AttemptInProgress {
		return domain.ErrAttemptNotInProgress
	}
	return nil
}

// questionOrder snapshots the quiz's question IDs in catalog order, shuffled
// with a seed derived from the attempt ID when the quiz asks for it.
func questionOrder(quiz domain.Quiz, attemptID string) []string {
	ids := make([]string, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		ids = append(ids, q.ID)
	}
	if quiz.Settings == nil || !quiz.Settings.ShuffleQuestions {
		return ids
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(attemptID))
	rnd := rand.New(rand.NewSource(int64(h.Sum64())))
	rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}
