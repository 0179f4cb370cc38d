package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/policy"

	"github.com/sirupsen/logrus"
)

// DefaultCertificatePrefix prefixes generated certificate codes.
const DefaultCertificatePrefix = "CERT-"

const (
	codeLength   = 12
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts = 3
)

// CertificateCodeGenerator returns a generator of prefix + 12 uppercase alphanumerics.
func CertificateCodeGenerator(prefix string) func() (string, error) {
	limit := big.NewInt(int64(len(codeAlphabet)))
	return func() (string, error) {
		buf := make([]byte, codeLength)
		for i := range buf {
			n, err := rand.Int(rand.Reader, limit)
			if err != nil {
				return "", err
			}
			buf[i] = codeAlphabet[n.Int64()]
		}
		return prefix + string(buf), nil
	}
}

// IssueCertificate returns the certificate of a completed attempt, creating it
// on first call. A nil certificate with a nil error means the attempt did not
// reach the passing score.
func (s *AttemptService) IssueCertificate(ctx context.Context, actor domain.Actor, attemptID string, now time.Time) (*domain.Certificate, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(actor, policy.IssueCertificate, policy.Resource{OwnerID: attempt.UserID}); err != nil {
		return nil, err
	}
	if attempt.Status != domain.AttemptCompleted || attempt.Score == nil {
		return nil, domain.ErrAttemptNotCompleted
	}

	existing, err := s.certs.GetCertificateByAttempt(ctx, attempt.ID)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, domain.ErrCertificateNotFound) {
		return nil, err
	}

	quiz, err := s.catalog.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	if !Passed(quiz, attempt) {
		return nil, nil
	}

	for i := 0; i < codeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate certificate code: %w", err)
		}
		cert, err := s.certs.CreateCertificate(ctx, domain.Certificate{
			ID:        s.newID(),
			AttemptID: attempt.ID,
			UserID:    attempt.UserID,
			QuizID:    attempt.QuizID,
			Code:      code,
			Score:     *attempt.Score,
			IssuedAt:  now,
		})
		if errors.Is(err, domain.ErrCertificateCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if cert.Code == code {
			if s.metrics != nil {
				s.metrics.CertificatesIssued.Inc()
			}
			s.log.WithFields(logrus.Fields{"attempt_id": attempt.ID, "code": code}).Info("certificate issued")
		}
		return &cert, nil
	}
	return nil, fmt.Errorf("issue certificate: %w", domain.ErrCertificateCodeTaken)
}

// VerifyCertificate looks a certificate up by its public code.
func (s *AttemptService) VerifyCertificate(ctx context.Context, actor domain.Actor, code string) (domain.Certificate, error) {
	if err := s.authz.Authorize(actor, policy.VerifyCertificate, policy.Resource{}); err != nil {
		return domain.Certificate{}, err
	}
	return s.certs.GetCertificateByCode(ctx, code)
}

// Passed compares the attempt's normalized score against the quiz's passing
// percentage. Quizzes without a passing score pass every completed attempt.
func Passed(quiz domain.Quiz, attempt domain.Attempt) bool {
	if quiz.Settings == nil || quiz.Settings.PassingScore == nil {
		return true
	}
	return attempt.Percent() >= *quiz.Settings.PassingScore
}
