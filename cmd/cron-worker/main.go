package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/volna-retail/loyalty-backend/internal/audit"
	"github.com/volna-retail/loyalty-backend/internal/cron"
	"github.com/volna-retail/loyalty-backend/internal/idempotency"
	"github.com/volna-retail/loyalty-backend/pkg/config"
	"github.com/volna-retail/loyalty-backend/pkg/db"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
	"github.com/volna-retail/loyalty-backend/pkg/metrics"
	"github.com/volna-retail/loyalty-backend/pkg/migrate"
	pkgredis "github.com/volna-retail/loyalty-backend/pkg/redis"
)

const lockKeyFormat = "loyalty:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := pkgredis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	sweepMetrics := metrics.NewSweepJobMetrics(registry)
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	auditService, err := audit.NewService(dbClient.DB(), audit.NewRepository(dbClient.DB()), logg, ledgerMetrics, audit.Options{
		Chain:          cfg.Audit.Chain,
		VerifyPageSize: cfg.Audit.VerifyPageSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	purgeJob, err := cron.NewIdempotencyPurgeJob(cron.IdempotencyPurgeJobParams{
		Logger: logg,
		Store:  idempotency.NewStore(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create purge job", err)
		os.Exit(1)
	}

	verifyJob, err := cron.NewAuditVerifyJob(cron.AuditVerifyJobParams{
		Logger:  logg,
		Auditor: auditService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create verify job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(purgeJob, verifyJob),
		Lock:     lock,
		Metrics:  sweepMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting sweep worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweep worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
