// Package main is the entry point for the evetabi settlement back-office
// server. Runs on port 8081 and exposes admin endpoints protected by RBAC.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evetabi/settlement/internal/backoffice"
	rediscache "github.com/evetabi/settlement/internal/cache/redis"
	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/curve"
	"github.com/evetabi/settlement/internal/repository"
	"github.com/evetabi/settlement/internal/service"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting evetabi backoffice server",
		"env", cfg.Server.Env, "port", cfg.Server.BackofficePort)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.PingContext(ctx); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── Repositories ──────────────────────────────────────────────────────────
	marketRepo := repository.NewMarketRepository(db)
	liquidityRepo := repository.NewLiquidityRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	resolutionRepo := repository.NewResolutionRepository(db)
	disputeRepo := repository.NewDisputeRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)

	// ── Services ──────────────────────────────────────────────────────────────
	pricer := curve.NewPricer(cfg.Curve.K)

	authSvc := service.NewAuthService(cfg)
	marketSvc := service.NewMarketService(db, marketRepo, pricer, cfg)
	liquiditySvc := service.NewLiquidityService(db, marketRepo, liquidityRepo, walletRepo, pricer)
	resolutionSvc := service.NewResolutionService(db, marketRepo, resolutionRepo, disputeRepo, settlementRepo, cfg)
	disputeSvc := service.NewDisputeService(db, marketRepo, disputeRepo, walletRepo, cfg)
	settlementSvc := service.NewSettlementService(settlementRepo, cfg.S3.Prefix)

	// Admin decisions reach API clients through the Redis event bus; the
	// backoffice does not serve WS itself.
	if cfg.RedisEnabled() {
		rdb, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			logger.Error("redis connection failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		bus := rediscache.NewEventBus(rdb, cfg.Redis.Channel, cfg.Redis.Stream)
		resolutionSvc.SetPublisher(bus)
		disputeSvc.SetPublisher(bus)
	}

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		AuthSvc:       authSvc,
		MarketSvc:     marketSvc,
		LiquiditySvc:  liquiditySvc,
		ResolutionSvc: resolutionSvc,
		DisputeSvc:    disputeSvc,
		SettlementSvc: settlementSvc,
		Cfg:           cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("backoffice http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}

	db.Close()
	logger.Info("backoffice server stopped cleanly")
}
