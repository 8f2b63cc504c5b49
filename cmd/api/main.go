package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/volna-retail/loyalty-backend/api/routes"
	"github.com/volna-retail/loyalty-backend/internal/audit"
	"github.com/volna-retail/loyalty-backend/internal/coupons"
	"github.com/volna-retail/loyalty-backend/internal/idempotency"
	"github.com/volna-retail/loyalty-backend/internal/orders"
	"github.com/volna-retail/loyalty-backend/internal/points"
	"github.com/volna-retail/loyalty-backend/internal/scans"
	"github.com/volna-retail/loyalty-backend/pkg/config"
	"github.com/volna-retail/loyalty-backend/pkg/db"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
	"github.com/volna-retail/loyalty-backend/pkg/metrics"
	"github.com/volna-retail/loyalty-backend/pkg/migrate"
	pkgredis "github.com/volna-retail/loyalty-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	idemStore := idempotency.NewStore(dbClient.DB())

	auditService, err := audit.NewService(dbClient.DB(), audit.NewRepository(dbClient.DB()), logg, ledgerMetrics, audit.Options{
		Chain:          cfg.Audit.Chain,
		VerifyPageSize: cfg.Audit.VerifyPageSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	pointsService, err := points.NewService(dbClient.DB(), points.NewRepository(dbClient.DB()), idemStore, auditService, logg, ledgerMetrics, points.Options{
		KeyTTL: cfg.Idempotency.KeyTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create points service", err)
		os.Exit(1)
	}

	couponsService, err := coupons.NewService(coupons.NewRepository(dbClient.DB()), auditService, logg, ledgerMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create coupons service", err)
		os.Exit(1)
	}

	scansService, err := scans.NewService(dbClient.DB(), scans.NewRepository(dbClient.DB()), auditService, logg, ledgerMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create scans service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(dbClient.DB(), orders.NewRepository(dbClient.DB()), points.NewRepository(dbClient.DB()), coupons.NewRepository(dbClient.DB()), idemStore, auditService, logg, ledgerMetrics, orders.Options{
		DeliveryFee:   cfg.Checkout.DeliveryFee,
		PointsPerUnit: cfg.Checkout.PointsPerUnit,
		KeyTTL:        cfg.Idempotency.KeyTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Gatherer: registry,
			Points:   pointsService,
			Coupons:  couponsService,
			Scans:    scansService,
			Orders:   ordersService,
			Audit:    auditService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
