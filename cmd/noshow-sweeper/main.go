package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling-engine/internal/config"
	"github.com/clinicore/scheduling-engine/internal/db"
	redisclient "github.com/clinicore/scheduling-engine/internal/redis"
	"github.com/clinicore/scheduling-engine/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "noshow-sweeper").Logger()
	if cfg.Env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("component", "noshow-sweeper").Logger()
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.SweepInterval).
		Dur("grace_period", cfg.NoShowGracePeriod).
		Msg("noshow-sweeper starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	repo := schedule.NewPgRepository(pgPool)
	locker := redisclient.NewRedisScheduleLocker(rdb, cfg.LockTTL)
	clock := schedule.SystemClock()
	reminders := schedule.NewReminderScheduler(repo, redisclient.NewReminderQueue(rdb), clock, cfg.SameDayReminderHour, logger)
	svc := schedule.NewService(repo, locker, reminders, clock, cfg, logger)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *schedule.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	swept, err := svc.MarkNoShows(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("sweep run error")
		return
	}
	logger.Info().Int("swept", swept).Dur("elapsed", time.Since(start)).Msg("sweep run complete")
}
