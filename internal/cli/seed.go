package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
)

// NewSeedCmd writes the sample quizzes to Postgres and drops their cached copies.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample quizzes into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
		return err
	}
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	loader := postgres.NewQuizLoader(pool)

	var cache *redisinfra.QuizRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cache = redisinfra.NewQuizRepository(client, loader, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
	}

	for id, quiz := range sampleQuizzes() {
		if err := loader.SaveQuiz(ctx, quiz); err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, id); err != nil {
				logger.Warn("cache invalidate failed", zap.String("quiz_id", id), zap.Error(err))
			}
		}
		logger.Info("quiz seeded", zap.String("quiz_id", id), zap.Int("questions", len(quiz.Questions)))
	}
	return nil
}
