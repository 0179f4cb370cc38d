package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/postgres"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/logging"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

var (
	alice  = domain.Actor{UserID: "u1", Role: domain.RoleStudent}
	bob    = domain.Actor{UserID: "u2", Role: domain.RoleStudent}
	author = domain.Actor{UserID: "t1", Role: domain.RoleTeacher}
)

type env struct {
	service *app.AttemptService
	loader  *postgres.QuizLoader
	members *postgres.Membership
	certs   *postgres.CertificateStore
	hub     *app.Hub
}

func setup(t *testing.T, ctx context.Context) *env {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	loader := postgres.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	e := &env{
		loader:  loader,
		members: postgres.NewMembership(pool),
		certs:   postgres.NewCertificateStore(pool),
		hub:     app.NewHub(),
	}
	publisher := infraredis.NewEventPublisher(redisClient)
	fwdCtx, stop := context.WithCancel(ctx)
	t.Cleanup(stop)
	go func() { _ = publisher.Forward(fwdCtx, e.hub) }()

	catalog := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute, logging.Discard())
	e.service = app.NewAttemptService(catalog, postgres.NewAttemptStore(pool), e.certs,
		app.WithMembership(e.members),
		app.WithNotifier(publisher),
	)
	return e
}

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := setup(t, ctx)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	updates, cancel := e.hub.Subscribe("quiz-1")
	defer cancel()

	attempt, err := e.service.StartAttempt(ctx, alice, "quiz-1", "", now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if attempt.MaxScore != 3 || len(attempt.QuestionOrder) != 2 {
		t.Fatalf("unexpected attempt %+v", attempt)
	}

	// Concurrent submissions for the same question keep a single row.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.service.SubmitAnswer(ctx, alice, attempt.ID, "q1", strPtr("o2"), nil, now); err != nil {
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()
	if _, err := e.service.SubmitAnswer(ctx, alice, attempt.ID, "q2", strPtr("t"), nil, now); err != nil {
		t.Fatalf("submit q2: %v", err)
	}

	// Exactly one of the concurrent closes wins.
	var (
		mu       sync.Mutex
		winners  int
		rejected int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.service.CloseAttempt(ctx, alice, attempt.ID, now.Add(time.Minute))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, domain.ErrAttemptNotInProgress):
				rejected++
			default:
				t.Errorf("close: %v", err)
			}
		}()
	}
	wg.Wait()
	if winners != 1 || rejected != 4 {
		t.Fatalf("expected one winning close, got %d winners %d rejected", winners, rejected)
	}

	closed, err := e.service.GetAttempt(ctx, alice, attempt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if closed.Score == nil || *closed.Score != 3 || closed.EndTime == nil {
		t.Fatalf("expected score 3, got %+v", closed)
	}

	// Late answers are rejected once the attempt is closed.
	if _, err := e.service.SubmitAnswer(ctx, alice, attempt.ID, "q1", strPtr("o1"), nil, now); !errors.Is(err, domain.ErrAttemptNotInProgress) {
		t.Fatalf("expected closed attempt to reject answers, got %v", err)
	}

	// Certificate issuance is idempotent under concurrency.
	codes := make(chan string, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cert, err := e.service.IssueCertificate(ctx, alice, attempt.ID, now)
			if err != nil || cert == nil {
				t.Errorf("issue: %v %v", cert, err)
				return
			}
			codes <- cert.Code
		}()
	}
	wg.Wait()
	close(codes)
	first := ""
	for code := range codes {
		if first == "" {
			first = code
		}
		if code != first {
			t.Fatalf("expected a single certificate, got %s and %s", first, code)
		}
	}
	verified, err := e.service.VerifyCertificate(ctx, bob, first)
	if err != nil || verified.AttemptID != attempt.ID {
		t.Fatalf("verify: %+v %v", verified, err)
	}

	lb, err := e.service.Leaderboard(ctx, bob, "quiz-1", now)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != alice.UserID || lb.Entries[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", lb.Entries)
	}

	// Events travel through redis pub/sub back into the hub.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event := <-updates:
			if event.Type == domain.EventQuizGraded && event.AttemptID == attempt.ID {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for graded event")
		}
	}
}

func TestPrivateQuizUsesGroupMembership(t *testing.T) {
	ctx := context.Background()
	e := setup(t, ctx)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	quiz := sampleQuiz()
	quiz.ID = "quiz-private"
	for i := range quiz.Questions {
		quiz.Questions[i].ID = "p" + quiz.Questions[i].ID
		for j := range quiz.Questions[i].Options {
			quiz.Questions[i].Options[j].ID = "p" + quiz.Questions[i].Options[j].ID
		}
	}
	quiz.Settings.AccessMode = domain.AccessPrivate
	if err := e.loader.SaveQuiz(ctx, quiz); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := e.members.AddMember(ctx, quiz.ID, "g1", alice.UserID); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if _, err := e.service.StartAttempt(ctx, bob, quiz.ID, "", now); !errors.Is(err, domain.ErrPrivateAccess) {
		t.Fatalf("expected private access denial, got %v", err)
	}
	if _, err := e.service.StartAttempt(ctx, alice, quiz.ID, "", now); err != nil {
		t.Fatalf("expected member to start, got %v", err)
	}
}

func TestCatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := setup(t, ctx)

	quiz, err := e.loader.LoadQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if quiz.AuthorID != author.UserID || quiz.Settings == nil || *quiz.Settings.PassingScore != 60 {
		t.Fatalf("unexpected quiz %+v", quiz)
	}
	if len(quiz.Questions) != 2 || len(quiz.Questions[0].Options) != 3 {
		t.Fatalf("unexpected questions %+v", quiz.Questions)
	}
	if opt, ok := quiz.Questions[0].Option("o2"); !ok || !opt.IsCorrect {
		t.Fatalf("expected o2 to be correct")
	}
	if _, err := e.loader.LoadQuiz(ctx, "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	passing := 60.0
	return domain.Quiz{
		ID:       "quiz-1",
		Title:    "Arithmetic",
		Status:   domain.QuizPublished,
		Type:     domain.QuizClassic,
		AuthorID: "t1",
		Settings: &domain.QuizSettings{PassingScore: &passing, ShowResults: true, AccessMode: domain.AccessPublic},
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
				Content:  "Postgres supports JSONB.",
				Points:   1,
				Position: 1,
				Options: []domain.QuestionOption{
					{ID: "t", QuestionID: "q2", Content: "true", IsCorrect: true},
					{ID: "f", QuestionID: "q2", Content: "false", Position: 1},
				},
			},
		},
	}
}

func strPtr(s string) *string { return &s }

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
