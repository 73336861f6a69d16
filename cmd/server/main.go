// Package main is the entry point for the evetabi settlement API server.
// It wires together all services and starts the HTTP server alongside the
// WebSocket hub and the settlement archive loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/evetabi/settlement/internal/api"
	"github.com/evetabi/settlement/internal/api/middleware"
	s3blob "github.com/evetabi/settlement/internal/blob/s3"
	rediscache "github.com/evetabi/settlement/internal/cache/redis"
	"github.com/evetabi/settlement/internal/config"
	"github.com/evetabi/settlement/internal/curve"
	"github.com/evetabi/settlement/internal/repository"
	"github.com/evetabi/settlement/internal/scheduler"
	"github.com/evetabi/settlement/internal/service"
	"github.com/evetabi/settlement/internal/ws"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"golang.org/x/sync/errgroup"
)

func main() {
	// ── 1. Logger ─────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting evetabi settlement server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Database ───────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.PingContext(ctx); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── 4. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 5. Redis (optional) ───────────────────────────────────────────────────
	var rdb *rediscache.Client
	if cfg.RedisEnabled() {
		rdb, err = rediscache.New(ctx, rediscache.ClientConfig{
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
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	// ── 6. Repositories ───────────────────────────────────────────────────────
	marketRepo := repository.NewMarketRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	liquidityRepo := repository.NewLiquidityRepository(db)
	resolutionRepo := repository.NewResolutionRepository(db)
	disputeRepo := repository.NewDisputeRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)

	// ── 7. Services ───────────────────────────────────────────────────────────
	pricer := curve.NewPricer(cfg.Curve.K)

	authSvc := service.NewAuthService(cfg)
	marketSvc := service.NewMarketService(db, marketRepo, pricer, cfg)
	tradeSvc := service.NewTradeService(db, marketRepo, tradeRepo, walletRepo, pricer, cfg)
	liquiditySvc := service.NewLiquidityService(db, marketRepo, liquidityRepo, walletRepo, pricer)
	resolutionSvc := service.NewResolutionService(db, marketRepo, resolutionRepo, disputeRepo, settlementRepo, cfg)
	disputeSvc := service.NewDisputeService(db, marketRepo, disputeRepo, walletRepo, cfg)
	settlementSvc := service.NewSettlementService(settlementRepo, cfg.S3.Prefix)

	// ── 8. WebSocket hub + event fan-out ──────────────────────────────────────
	hub := ws.NewHub(func(token string) (uuid.UUID, error) {
		claims, err := authSvc.ParseAccessToken(token)
		if err != nil {
			return uuid.Nil, err
		}
		actor, err := authSvc.Actor(claims)
		return actor.UserID, err
	}, cfg.Server.AllowedOrigins)

	publishers := service.Publishers{hub}
	if rdb != nil {
		publishers = append(publishers, rediscache.NewEventBus(rdb, cfg.Redis.Channel, cfg.Redis.Stream))
	}
	tradeSvc.SetPublisher(publishers)
	liquiditySvc.SetPublisher(publishers)
	resolutionSvc.SetPublisher(publishers)
	disputeSvc.SetPublisher(publishers)

	// ── 9. Rate limiter ───────────────────────────────────────────────────────
	var limiter middleware.Limiter
	switch {
	case cfg.Server.RateLimitRPS == 0:
		logger.Warn("rate limiting disabled")
	case rdb != nil:
		limiter = rediscache.NewRateLimiter(rdb, cfg.Server.RateLimitRPS, time.Second)
	default:
		limiter = middleware.NewMemoryLimiter(ctx, cfg.Server.RateLimitRPS)
	}

	// ── 10. Settlement archive (optional) ─────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.ArchiveEnabled() {
		blob, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			logger.Error("s3 client failed", "err", err)
			os.Exit(1)
		}
		if err = blob.Health(ctx); err != nil {
			logger.Warn("s3 bucket not reachable yet", "bucket", blob.Bucket(), "err", err)
		}
		settlementSvc.SetArchiver(s3blob.NewWriter(blob))

		var locker scheduler.Locker
		if rdb != nil {
			locker = rediscache.NewLockManager(rdb)
		}
		sched = scheduler.NewScheduler(settlementSvc, locker, cfg.Archive, logger)
	}

	// ── 11. HTTP router ───────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		AuthSvc:       authSvc,
		MarketSvc:     marketSvc,
		TradeSvc:      tradeSvc,
		LiquiditySvc:  liquiditySvc,
		ResolutionSvc: resolutionSvc,
		DisputeSvc:    disputeSvc,
		SettlementSvc: settlementSvc,
		Hub:           hub,
		Limiter:       limiter,
		Cfg:           cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 12. Run ───────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ── 13. Graceful shutdown ─────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, draining connections…")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err = g.Wait(); err != nil {
		logger.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped cleanly")
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially.  Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}
