package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"quiz-attempt-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz snapshots from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizRepository caches full quiz snapshots in Redis as JSON and falls back
// to a loader on cache miss. Snapshots live at quiz:{quizID}:snapshot.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	log    logrus.FieldLogger
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration, log logrus.FieldLogger) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		raw, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, err
		}
		// a failed write only costs a reload on the next read
		if err := r.client.Set(ctx, snapshotKey(quizID), raw, r.ttlWithJitter()).Err(); err != nil {
			r.log.WithError(err).WithField("quiz_id", quizID).Warn("cache quiz snapshot")
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached snapshot so edits to the catalog show up on the next read.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) error {
	return r.client.Del(ctx, snapshotKey(quizID)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, snapshotKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.WithError(err).WithField("quiz_id", quizID).Warn("read quiz snapshot")
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func snapshotKey(quizID string) string {
	return "quiz:" + quizID + ":snapshot"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
