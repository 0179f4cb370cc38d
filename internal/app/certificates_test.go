package app_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

func passingQuiz(percent float64) domain.Quiz {
	return withSettings(publishedQuiz(), domain.QuizSettings{AccessMode: domain.AccessPublic, ShowResults: true, PassingScore: &percent})
}

// completeWith starts an attempt, answers q1 with optionID, and closes it.
func completeWith(t *testing.T, f *fixture, actor domain.Actor, optionID string) domain.Attempt {
	t.Helper()
	ctx := context.Background()
	attempt := mustStart(t, f, actor)
	if _, err := f.service.SubmitAnswer(ctx, actor, attempt.ID, "q1", strPtr(optionID), nil, baseTime); err != nil {
		t.Fatalf("submit: %v", err)
	}
	closed, err := f.service.CloseAttempt(ctx, actor, attempt.ID, baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	return closed
}

func TestIssueCertificateBelowPassingScoreReturnsNil(t *testing.T) {
	f := newFixture(t)
	f.catalog.Put(passingQuiz(50))
	attempt := completeWith(t, f, alice, "O2") // 0 of 4

	for i := 0; i < 3; i++ {
		cert, err := f.service.IssueCertificate(context.Background(), alice, attempt.ID, baseTime)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if cert != nil {
			t.Fatalf("expected no certificate, got %+v", cert)
		}
	}
	if _, err := f.certs.GetCertificateByAttempt(context.Background(), attempt.ID); !errors.Is(err, domain.ErrCertificateNotFound) {
		t.Fatalf("expected nothing persisted, got %v", err)
	}
}

func TestIssueCertificateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.catalog.Put(passingQuiz(50))
	attempt := completeWith(t, f, alice, "O1") // 2 of 4 = 50%

	first, err := f.service.IssueCertificate(context.Background(), alice, attempt.ID, baseTime)
	if err != nil || first == nil {
		t.Fatalf("expected certificate, got %v %v", first, err)
	}
	if first.Score != 2 || first.UserID != alice.UserID || first.QuizID != "quiz-1" || !first.IssuedAt.Equal(baseTime) {
		t.Fatalf("unexpected certificate %+v", first)
	}

	second, err := f.service.IssueCertificate(context.Background(), alice, attempt.ID, baseTime.Add(time.Hour))
	if err != nil || second == nil {
		t.Fatalf("expected certificate again, got %v %v", second, err)
	}
	if second.Code != first.Code || !second.IssuedAt.Equal(first.IssuedAt) {
		t.Fatalf("expected the same certificate, got %+v vs %+v", second, first)
	}
}

func TestIssueCertificatePassingScoreIsPercentage(t *testing.T) {
	f := newFixture(t)
	f.catalog.Put(passingQuiz(60))
	attempt := completeWith(t, f, alice, "O1") // 2 of 4 = 50%, raw 2 would pass a points threshold

	cert, err := f.service.IssueCertificate(context.Background(), alice, attempt.ID, baseTime)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if cert != nil {
		t.Fatalf("expected 50%% to fail a 60%% threshold")
	}
}

func TestIssueCertificateWithoutPassingScore(t *testing.T) {
	f := newFixture(t)
	attempt := completeWith(t, f, alice, "O2")

	cert, err := f.service.IssueCertificate(context.Background(), alice, attempt.ID, baseTime)
	if err != nil || cert == nil {
		t.Fatalf("expected certificate for quiz without threshold, got %v %v", cert, err)
	}
}

func TestIssueCertificateRequiresCompletedOwnAttempt(t *testing.T) {
	f := newFixture(t)
	attempt := mustStart(t, f, alice)

	if _, err := f.service.IssueCertificate(context.Background(), alice, attempt.ID, baseTime); !errors.Is(err, domain.ErrAttemptNotCompleted) {
		t.Fatalf("expected not completed, got %v", err)
	}
	if _, err := f.service.IssueCertificate(context.Background(), bob, attempt.ID, baseTime); !errors.Is(err, domain.ErrAttemptNotOwned) {
		t.Fatalf("expected not owned, got %v", err)
	}
}

func TestIssueCertificateConcurrentCallsCreateOne(t *testing.T) {
	f := newFixture(t)
	attempt := completeWith(t, f, alice, "O1")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[string]struct{}{}
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cert, err := f.service.IssueCertificate(context.Background(), alice, attempt.ID, baseTime)
			if err != nil || cert == nil {
				t.Errorf("issue: %v %v", cert, err)
				return
			}
			mu.Lock()
			codes[cert.Code] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(codes) != 1 {
		t.Fatalf("expected a single certificate code, got %v", codes)
	}
}

func TestIssueCertificateRetriesCodeCollision(t *testing.T) {
	codes := []string{"CERT-AAAAAAAAAAAA", "CERT-AAAAAAAAAAAA", "CERT-BBBBBBBBBBBB"}
	var mu sync.Mutex
	next := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}
	f := newFixture(t, app.WithCodeGenerator(next))
	first := completeWith(t, f, alice, "O1")
	second := completeWith(t, f, bob, "O1")

	c1, err := f.service.IssueCertificate(context.Background(), alice, first.ID, baseTime)
	if err != nil {
		t.Fatalf("issue first: %v", err)
	}
	c2, err := f.service.IssueCertificate(context.Background(), bob, second.ID, baseTime)
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}
	if c1.Code == c2.Code || c2.Code != "CERT-BBBBBBBBBBBB" {
		t.Fatalf("expected retry to a fresh code, got %s and %s", c1.Code, c2.Code)
	}
}

func TestVerifyCertificate(t *testing.T) {
	f := newFixture(t)
	attempt := completeWith(t, f, alice, "O1")
	cert, _ := f.service.IssueCertificate(context.Background(), alice, attempt.ID, baseTime)

	got, err := f.service.VerifyCertificate(context.Background(), bob, cert.Code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.AttemptID != attempt.ID {
		t.Fatalf("expected certificate of %s, got %+v", attempt.ID, got)
	}
	if _, err := f.service.VerifyCertificate(context.Background(), bob, "CERT-NOPE"); !errors.Is(err, domain.ErrCertificateNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCertificateCodeGeneratorFormat(t *testing.T) {
	gen := app.CertificateCodeGenerator(app.DefaultCertificatePrefix)
	pattern := regexp.MustCompile(`^CERT-[A-Z0-9]{12}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := gen()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !pattern.MatchString(code) {
			t.Fatalf("unexpected code format %q", code)
		}
		seen[code] = true
	}
	if len(seen) < 100 {
		t.Fatalf("expected unique codes, got %d distinct", len(seen))
	}
}

func TestPassedZeroMaxScore(t *testing.T) {
	threshold := 0.0
	quiz := domain.Quiz{Settings: &domain.QuizSettings{PassingScore: &threshold}}
	score := 0
	if !app.Passed(quiz, domain.Attempt{Score: &score}) {
		t.Fatalf("a zero threshold must pass")
	}
	threshold = 1
	if app.Passed(quiz, domain.Attempt{Score: &score}) {
		t.Fatalf("zero max score normalizes to 0%%")
	}
}
