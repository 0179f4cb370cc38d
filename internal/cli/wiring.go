package cli

import (
	"context"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	redisstore "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/metrics"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// deps holds the wired service and the resources it owns.
type deps struct {
	service   *app.AttemptService
	hub       *app.Hub
	publisher *redisstore.EventPublisher
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	closers   []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDeps picks Postgres or in-memory storage and Redis or in-process
// caching depending on which connection settings are present.
func buildDeps(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*deps, error) {
	d := &deps{hub: app.NewHub(), registry: prometheus.NewRegistry()}
	d.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	d.metrics = metrics.New(d.registry)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, func() { _ = redisClient.Close() })
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return nil, err
		}
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, pool.Close)
	}

	var (
		loader   memory.QuizLoader
		attempts app.AttemptRepository
		certs    app.CertificateRepository
		members  app.MembershipChecker
	)
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
		attempts = pgstore.NewAttemptStore(pool)
		certs = pgstore.NewCertificateStore(pool)
		members = pgstore.NewMembership(pool)
	} else {
		log.Warn("postgres not configured, using in-memory stores with sample quizzes")
		loader = memory.NewStaticQuizLoader(sampleQuizzes())
		attempts = memory.NewAttemptStore()
		certs = memory.NewCertificateStore()
		members = memory.NewMembership()
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.QuizCatalog
	notifiers := app.Notifiers{}
	if redisClient != nil {
		catalog = redisstore.NewQuizRepository(redisClient, loader, catalogTTL, log)
		d.publisher = redisstore.NewEventPublisher(redisClient)
		notifiers = append(notifiers, d.publisher)
	} else {
		catalog = memory.NewQuizRepository(loader, catalogTTL)
		notifiers = append(notifiers, d.hub)
	}

	prefix := cfg.Certificate.Prefix
	if prefix == "" {
		prefix = app.DefaultCertificatePrefix
	}

	d.service = app.NewAttemptService(catalog, attempts, certs,
		app.WithMembership(members),
		app.WithNotifier(notifiers),
		app.WithLogger(log),
		app.WithMetrics(d.metrics),
		app.WithCodeGenerator(app.CertificateCodeGenerator(prefix)),
	)
	return d, nil
}

// sampleQuizzes seeds the in-memory catalog for local runs.
func sampleQuizzes() map[string]domain.Quiz {
	passing := 50.0
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:       "quiz-1",
			Title:    "Warm-up",
			Status:   domain.QuizPublished,
			Type:     domain.QuizClassic,
			AuthorID: "teacher-1",
			Settings: &domain.QuizSettings{
				PassingScore: &passing,
				ShowResults:  true,
				AccessMode:   domain.AccessPublic,
			},
			Questions: []domain.Question{
				{
					ID:      "q1",
					QuizID:  "quiz-1",
					Type:    domain.QuestionMCQ,
					Content: "What is 2 + 2?",
					Points:  2,
					Options: []domain.QuestionOption{
						{ID: "o1", QuestionID: "q1", Content: "3"},
						{ID: "o2", QuestionID: "q1", Content: "4", IsCorrect: true, Position: 1},
						{ID: "o3", QuestionID: "q1", Content: "5", Position: 2},
					},
				},
				{
					ID:       "q2",
					QuizID:   "quiz-1",
					Type:     domain.QuestionTrueFalse,
					Content:  "Go has generics.",
					Points:   1,
					Position: 1,
					Options: []domain.QuestionOption{
						{ID: "t", QuestionID: "q2", Content: "true", IsCorrect: true},
						{ID: "f", QuestionID: "q2", Content: "false", Position: 1},
					},
				},
				{
					ID:       "q3",
					QuizID:   "quiz-1",
					Type:     domain.QuestionOpen,
					Content:  "Explain a goroutine in one sentence.",
					Points:   2,
					Position: 2,
				},
			},
		},
	}
}
