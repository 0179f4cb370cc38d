package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz snapshots from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches quiz snapshots with TTL to avoid repeated DB hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.cached(quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		r.mu.Lock()
		r.cache[quizID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached snapshot so the next read reloads it.
func (r *QuizRepository) Invalidate(quizID string) {
	r.mu.Lock()
	delete(r.cache, quizID)
	r.mu.Unlock()
}

func (r *QuizRepository) cached(quizID string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	copied := make(map[string]domain.Quiz, len(quizzes))
	for id, quiz := range quizzes {
		copied[id] = quiz
	}
	return &StaticQuizLoader{quizzes: copied}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// GetQuiz lets the loader serve as an uncached catalog.
func (l *StaticQuizLoader) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return l.LoadQuiz(ctx, quizID)
}

// Put replaces a quiz snapshot, standing in for catalog edits.
func (l *StaticQuizLoader) Put(quiz domain.Quiz) {
	l.mu.Lock()
	l.quizzes[quiz.ID] = quiz
	l.mu.Unlock()
}
