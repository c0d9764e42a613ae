package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-arena/internal/app"
	"quiz-arena/internal/deadline"
	"quiz-arena/internal/domain"
	pgloader "quiz-arena/internal/infra/postgres"
	pgmigrations "quiz-arena/internal/infra/postgres/migrations"
	infraredis "quiz-arena/internal/infra/redis"
)

func TestStandardSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuizLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	summaryStore := infraredis.NewSummaryStore(redisClient, 5*time.Minute)

	deadlines := deadline.NewService(clockwork.NewRealClock(), zerolog.Nop())
	defer deadlines.Shutdown()

	service := app.NewSessionService(sessionStore, quizRepo, deadlines,
		app.WithSummarySink(summaryStore))

	id, err := service.Create(ctx, "quiz-1", domain.ModeStandard, domain.SessionConfig{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Join(ctx, id, "u1", "Alice"); err != nil {
		t.Fatalf("join u1: %v", err)
	}
	if _, err := service.Join(ctx, id, "u2", "Bob"); err != nil {
		t.Fatalf("join u2: %v", err)
	}

	sub, cancel, err := service.Subscribe(ctx, id, 256)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := service.Start(ctx, id); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Both answer immediately; everyone-answered closes the window without
	// waiting out the time limit.
	if err := service.SubmitAnswer(ctx, id, "u1", domain.AnswerSubmission{
		QuestionIndex: 0, AnswerIDs: []string{"o2"},
	}); err != nil {
		t.Fatalf("u1 submit: %v", err)
	}
	if err := service.SubmitAnswer(ctx, id, "u2", domain.AnswerSubmission{
		QuestionIndex: 0, AnswerIDs: []string{"o1"},
	}); err != nil {
		t.Fatalf("u2 submit: %v", err)
	}

	completed := awaitEvent(t, sub.Events(), domain.EventSessionCompleted)
	cp, ok := completed.Payload.(domain.SessionCompletedPayload)
	if !ok {
		t.Fatalf("unexpected completion payload %T", completed.Payload)
	}
	if cp.WinnerID != "u1" {
		t.Fatalf("expected u1 to win, got %s", cp.WinnerID)
	}

	summary := awaitSummary(t, ctx, summaryStore, id)
	if summary.WinnerID != "u1" || len(summary.Ranking) != 2 {
		t.Fatalf("unexpected persisted summary: %+v", summary)
	}
	if summary.Ranking[0].ParticipantID != "u1" || summary.Ranking[0].Score != 100 {
		t.Fatalf("expected full marks for the instant correct answer, got %+v", summary.Ranking[0])
	}
}

func awaitEvent(t *testing.T, events <-chan domain.Event, want domain.EventType) domain.Event {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("stream closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

// awaitSummary polls because persistence runs off the session's completion
// hook, concurrently with event delivery.
func awaitSummary(t *testing.T, ctx context.Context, store *infraredis.SummaryStore, sessionID string) domain.SessionSummary {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		summary, err := store.LoadSummary(ctx, sessionID)
		if err == nil {
			return summary
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("summary never persisted")
	return domain.SessionSummary{}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "arena", "POSTGRES_PASSWORD": "arenapass", "POSTGRES_DB": "arenadb"},
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
	dsn := fmt.Sprintf("postgres://arena:arenapass@%s:%s/arenadb?sslmode=disable", host, port.Port())
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

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
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

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Warm-up",
		Questions: []domain.Question{
			{
				ID:           "q1",
				Prompt:       "What is 2 + 2?",
				Type:         domain.QuestionSingle,
				TimeLimitSec: 30,
				Points:       100,
				Answers: []domain.Answer{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", Correct: true},
					{ID: "o3", Text: "5"},
				},
			},
		},
	}
}

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
