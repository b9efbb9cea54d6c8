package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/users-service/internal/app"
	"github.com/odyssey-erp/users-service/internal/platform/cache"
	"github.com/odyssey-erp/users-service/internal/platform/db"
	"github.com/odyssey-erp/users-service/internal/shared"
	"github.com/odyssey-erp/users-service/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)
	workers := app.ApplyWorkers(cfg)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store",
			slog.String("driver", cfg.StoreDriver),
			slog.String("error", shared.RedactCredentials(err.Error())))
		os.Exit(1)
	}

	service := users.NewService(store, logger)
	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		UsersHandler: users.NewHandler(logger, service),
		RequestLog:   true,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server",
			slog.String("addr", cfg.Addr()),
			slog.String("store", cfg.StoreDriver),
			slog.Int("workers", workers))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	closeStore()
	if err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// openStore connects the configured backend. Connection failure is fatal to
// the caller; the service never serves without its store.
func openStore(ctx context.Context, cfg *app.Config, logger *slog.Logger) (users.Store, func(), error) {
	switch cfg.StoreDriver {
	case app.StoreMemory:
		return users.NewMemoryStore(), func() {}, nil

	case app.StoreRedis:
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, nil, err
		}
		return users.NewRedisStore(client, cfg.RedisPrefix), func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}, nil

	default:
		logger.Info("connecting to postgres", slog.String("dsn", cfg.RedactedDSN()))
		pool, err := db.New(ctx, cfg.DSN(), db.Options{MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, nil, err
		}
		if cfg.DBBootstrapSchema {
			if err := db.Bootstrap(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return users.NewRepository(pool), pool.Close, nil
	}
}
