package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-attempt-service/internal/domain"
)

func TestAttemptStoreUpsertKeepsOneRowPerQuestion(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	mustCreate(t, store, "a1")

	first, err := store.SaveAnswer(ctx, domain.Answer{ID: "ans-1", AttemptID: "a1", QuestionID: "q1", OptionID: ptr("o1")}, nil)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := store.SaveAnswer(ctx, domain.Answer{ID: "ans-2", AttemptID: "a1", QuestionID: "q1", OptionID: ptr("o2")}, nil)
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected upsert to keep row id %s, got %s", first.ID, second.ID)
	}

	answers, _ := store.ListAnswers(ctx, "a1")
	if len(answers) != 1 || *answers[0].OptionID != "o2" {
		t.Fatalf("expected single latest answer, got %+v", answers)
	}
}

func TestAttemptStoreConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	mustCreate(t, store, "a1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.SaveAnswer(ctx, domain.Answer{
				ID:         fmt.Sprintf("ans-%d", i),
				AttemptID:  "a1",
				QuestionID: "q1",
				OptionID:   ptr(fmt.Sprintf("o%d", i)),
			}, nil)
		}(i)
	}
	wg.Wait()

	answers, _ := store.ListAnswers(ctx, "a1")
	if len(answers) != 1 {
		t.Fatalf("expected exactly one answer row, got %d", len(answers))
	}
}

func TestAttemptStoreSaveAnswerCheckRejects(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	mustCreate(t, store, "a1")

	sentinel := errors.New("closed")
	_, err := store.SaveAnswer(ctx, domain.Answer{AttemptID: "a1", QuestionID: "q1"}, func(domain.Attempt) error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected check error, got %v", err)
	}
	answers, _ := store.ListAnswers(ctx, "a1")
	if len(answers) != 0 {
		t.Fatalf("expected no answer persisted, got %d", len(answers))
	}
}

func TestAttemptStoreUpdateIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	mustCreate(t, store, "a1")

	var runs atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.UpdateAttempt(ctx, "a1", func(a domain.Attempt, answers []domain.Answer) (domain.Attempt, []domain.Answer, error) {
				if a.Status != domain.AttemptInProgress {
					return a, nil, domain.ErrAttemptNotInProgress
				}
				runs.Add(1)
				a.Status = domain.AttemptCompleted
				return a, answers, nil
			})
		}()
	}
	wg.Wait()

	if runs.Load() != 1 {
		t.Fatalf("expected mutation to run once, ran %d times", runs.Load())
	}
}

func TestAttemptStoreUpdateErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	mustCreate(t, store, "a1")

	_, err := store.UpdateAttempt(ctx, "a1", func(a domain.Attempt, answers []domain.Answer) (domain.Attempt, []domain.Answer, error) {
		a.Status = domain.AttemptCompleted
		return a, answers, errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	got, _ := store.GetAttempt(ctx, "a1")
	if got.Status != domain.AttemptInProgress {
		t.Fatalf("expected status unchanged, got %s", got.Status)
	}
}

func TestAttemptStoreListCompleted(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	mustCreate(t, store, "a1")
	mustCreate(t, store, "a2")
	_, _ = store.UpdateAttempt(ctx, "a2", func(a domain.Attempt, answers []domain.Answer) (domain.Attempt, []domain.Answer, error) {
		a.Status = domain.AttemptCompleted
		return a, answers, nil
	})

	done, err := store.ListCompleted(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(done) != 1 || done[0].ID != "a2" {
		t.Fatalf("expected only a2, got %+v", done)
	}
}

func TestAttemptStoreUnknownAttempt(t *testing.T) {
	_, err := NewAttemptStore().GetAttempt(context.Background(), "missing")
	if !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func mustCreate(t *testing.T, store *AttemptStore, id string) {
	t.Helper()
	err := store.CreateAttempt(context.Background(), domain.Attempt{
		ID:        id,
		QuizID:    "quiz-1",
		UserID:    "u1",
		Status:    domain.AttemptInProgress,
		StartTime: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create attempt: %v", err)
	}
}

func ptr(s string) *string { return &s }
