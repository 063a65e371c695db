package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"live-session-service/internal/config"
	"live-session-service/internal/domain"
	"live-session-service/internal/engine"
	"live-session-service/internal/infra/memory"
	pgloader "live-session-service/internal/infra/postgres"
	redisinfra "live-session-service/internal/infra/redis"
	transport "live-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live session server",
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
	redisTTL := config.Duration(cfg.Redis.TTL, 12*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.ExamLoader = memory.NewStaticExamLoader(sampleExams())
	if pool != nil {
		loader = pgloader.NewExamLoader(pool)
	}

	examTTL := config.Duration(cfg.Exam.TTL, 10*time.Minute)
	var examRepo engine.ExamRepository
	if redisClient != nil {
		examRepo = redisinfra.NewExamRepository(redisClient, loader, examTTL)
	} else {
		examRepo = memory.NewExamRepository(loader, examTTL)
	}

	var store engine.EngineStore
	if redisClient != nil {
		store = redisinfra.NewEngineStore(redisClient, redisTTL)
	} else {
		store = memory.NewEngineStore()
	}

	service := engine.NewEngineService(store, examRepo, engine.Options{
		PresenterPoll:   config.Duration(cfg.Engine.PresenterPoll, engine.DefaultPresenterPoll),
		ParticipantPoll: config.Duration(cfg.Engine.ParticipantPoll, engine.DefaultParticipantPoll),
	})

	handler := transport.NewHandler(service)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting live session service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleExams provides minimal demo content; swap the loader for the
// Postgres-backed one in production.
func sampleExams() map[string]domain.Exam {
	return map[string]domain.Exam{
		"exam-1": {
			ID:           "exam-1",
			WrongPenalty: 0.25,
			Questions: []domain.Question{
				{
					Stem: "What is 2 + 2?",
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", Correct: true},
						{Text: "5"},
					},
					Shuffle: []int{2, 0, 1},
					Points:  1,
				},
				{
					Stem: "Which planet is closest to the sun?",
					Options: []domain.Option{
						{Text: "Mercury", Correct: true},
						{Text: "Venus"},
						{Text: "Mars"},
					},
					Shuffle: []int{1, 2, 0},
					Points:  1,
				},
			},
		},
	}
}
