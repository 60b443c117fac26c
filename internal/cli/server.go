package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/config"
	"classquiz-service/internal/domain"
	"classquiz-service/internal/infra/memory"
	pgstore "classquiz-service/internal/infra/postgres"
	redisinfra "classquiz-service/internal/infra/redis"
	transport "classquiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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
	}

	var backend app.QuizStore = memory.NewQuizStore(sampleQuizzes())
	var attempts app.AttemptStore = memory.NewAttemptStore()
	if pool != nil {
		backend = pgstore.NewQuizStore(pool)
		attempts = pgstore.NewAttemptStore(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizStore
	if redisClient != nil {
		quizzes = redisinfra.NewQuizCache(redisClient, backend, quizTTL)
	} else {
		quizzes = memory.NewCachedQuizStore(backend, quizTTL)
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisinfra.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	ctrl := app.NewController(sessions, quizzes, attempts, app.Settings{
		DefaultTimerSeconds: cfg.Quiz.DefaultTimerSeconds,
		HeartbeatSeconds:    cfg.Live.HeartbeatSeconds,
	})
	wsHandler := transport.NewWSHandler(ctrl)
	apiHandler := transport.NewAPIHandler(ctrl, quizzes, wsHandler)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      apiHandler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting classquiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory store so the server is usable without
// Postgres; production deployments load quizzes from the database.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:       "quiz-1",
			Title:    "Arithmetic warm-up",
			OwnerID:  "teacher-1",
			JoinCode: "123456",
			Status:   domain.StatusWaiting,
			Questions: []domain.Question{
				{
					Text:          "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectAnswer: "4",
					Points:        10,
				},
				{
					Text:          "What is 6 * 7?",
					Options:       []string{"42", "36", "48"},
					CorrectAnswer: "42",
					Points:        10,
				},
			},
			TimerPerQuestion: 30,
		},
	}
}
