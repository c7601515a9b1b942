package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"activity-xp/internal/analytics"
	"activity-xp/internal/bot"
	"activity-xp/internal/config"
	"activity-xp/internal/modules/audit"
	"activity-xp/internal/retry"
	"activity-xp/internal/storage"
	"activity-xp/internal/xp"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	auditLogger := audit.NewLogger(store, logger.Named("audit"))
	analyticsSvc := analytics.New(store)
	engine := xp.NewEngine(store, xp.Config{
		Cooldown:     cfg.XP.Cooldown(),
		StoreTimeout: cfg.XP.StoreTimeout(),
		Retry:        retry.DefaultPolicy(cfg.XP.RetryAttempts),
	}, logger.Named("xp"))

	botSvc, err := bot.New(cfg, logger, store, engine, auditLogger, analyticsSvc)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}
	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return botSvc.Run(gctx)
	})

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/", botSvc.HealthHandler())
		mux.Handle("/health", botSvc.HealthHandler())
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux}
		g.Go(func() error {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	<-gctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	if err := g.Wait(); err != nil {
		logger.Error("background task failed", zap.Error(err))
	}
	botSvc.Close()
}
