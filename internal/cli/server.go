package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quiz-arena/internal/app"
	"quiz-arena/internal/config"
	"quiz-arena/internal/deadline"
	"quiz-arena/internal/domain"
	"quiz-arena/internal/infra/memory"
	pgloader "quiz-arena/internal/infra/postgres"
	redisinfra "quiz-arena/internal/infra/redis"
	transport "quiz-arena/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the arena server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	clock := clockwork.NewRealClock()
	deadlines := deadline.NewService(clock, logger)
	defer deadlines.Shutdown()

	var loader redisinfra.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL, clock)
	}

	var store app.SessionStore
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithSessionDefaults(sessionDefaults(cfg)),
	}
	if redisClient != nil {
		opts = append(opts, app.WithSummarySink(redisinfra.NewSummaryStore(redisClient, redisTTL)))
	}
	service := app.NewSessionService(store, quizRepo, deadlines, opts...)

	wsHandler := transport.NewWSHandler(service, logger)
	sessionsHandler := transport.NewSessionsHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.Handle("/sessions", sessionsHandler)
	mux.Handle("/sessions/", sessionsHandler)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting arena server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sessionDefaults maps the engine config section onto the defaults applied to
// session creation requests. Absent durations fall back to the built-ins.
func sessionDefaults(cfg config.Config) domain.SessionConfig {
	def := domain.SessionConfig{
		SpeedFloor:          cfg.Engine.SpeedFloor,
		EliminationFraction: cfg.Engine.EliminationFraction,
		QuestionsPerMatch:   cfg.Engine.MatchQuestions,
		PresentDelay:        -1,
		Retention:           config.TTLDuration(cfg.Engine.Retention, 0),
	}
	if cfg.Engine.PresentDelay != "" {
		def.PresentDelay = config.TTLDuration(cfg.Engine.PresentDelay, -1)
	}
	return def
}

// sampleQuizzes provides a minimal quiz set for running without Postgres;
// production deployments load quizzes through the database loader.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
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
				{
					ID:           "q2",
					Prompt:       "Which of these are prime?",
					Type:         domain.QuestionMultiple,
					TimeLimitSec: 45,
					Points:       200,
					Answers: []domain.Answer{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "7", Correct: true},
						{ID: "o4", Text: "9"},
					},
				},
			},
		},
	}
}
