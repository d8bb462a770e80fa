package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

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
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = openBunDB(cfg.Postgres.URL)
		defer db.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	deps := app.Dependencies{
		Hasher: auth.NewPasscodeHasher(cfg.Auth.BcryptCost),
		Logger: logger,
	}
	var mirror *redisinfra.EventMirror
	if redisClient != nil {
		deps.Quizzes = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
		deps.Directory = redisinfra.NewDirectory(redisClient, redisTTL)
		mirror = redisinfra.NewEventMirror(redisClient, instanceID(), 256, logger)
		deps.Mirror = mirror
	} else {
		deps.Quizzes = memory.NewQuizRepository(loader, quizTTL)
	}
	if db != nil {
		deps.Rooms = postgres.NewRoomStore(db)
		deps.Ledger = postgres.NewScoreLedger(db)
	} else {
		logger.Warn("postgres not configured, rooms and scores are kept in memory")
		deps.Rooms = memory.NewRoomStore()
		deps.Ledger = memory.NewScoreLedger()
	}

	hub := transport.NewHub(logger)
	deps.Sink = hub
	service := app.NewService(deps, app.Options{
		StoreTimeout:  config.TTLDuration(cfg.Room.StoreTimeout, 3*time.Second),
		IdleTTL:       config.TTLDuration(cfg.Room.IdleTTL, 30*time.Minute),
		SweepInterval: config.TTLDuration(cfg.Room.SweepInterval, time.Minute),
		TopN:          cfg.Room.TopN,
	})

	var tokens *auth.TokenService
	if cfg.Auth.JWTSecret != "" {
		tokens = auth.NewTokenService(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))
	} else {
		logger.Warn("jwt secret not configured, trusting userId query parameter")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", transport.NewWSHandler(service, hub, tokens, logger).ServeWS)
	mux.HandleFunc("GET /rooms/{name}", transport.NewRoomsHandler(service, logger).ServeRoom)
	if mirror != nil {
		mux.HandleFunc("GET /rooms/{name}/watch", transport.NewWatchHandler(mirror, logger).ServeWatch)
	}

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return service.Run(gctx)
	})
	if mirror != nil {
		g.Go(func() error {
			return mirror.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func instanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}

// sampleQuizzes is served when no Postgres is configured and is what `seed` writes.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:            "q1",
					Type:          domain.QuestionSingleChoice,
					Text:          "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectAnswer: domain.AnswerValue{"4"},
				},
				{
					ID:            "q2",
					Type:          domain.QuestionTrueFalse,
					Text:          "The Pacific is the largest ocean.",
					Options:       []string{"true", "false"},
					CorrectAnswer: domain.AnswerValue{"true"},
				},
				{
					ID:            "q3",
					Type:          domain.QuestionMultipleChoice,
					Text:          "Which of these are prime?",
					Options:       []string{"2", "4", "7", "9"},
					CorrectAnswer: domain.AnswerValue{"2", "7"},
				},
				{
					ID:            "q4",
					Type:          domain.QuestionShortAnswer,
					Text:          "Capital of France?",
					CorrectAnswer: domain.AnswerValue{"Paris"},
				},
			},
		},
	}
}
