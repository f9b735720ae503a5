// Package main запускает HTTP-сервер сервиса аренды автомобилей.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/carrental-system/internal/auth"
	"github.com/mmeshcher/carrental-system/internal/config"
	"github.com/mmeshcher/carrental-system/internal/events"
	"github.com/mmeshcher/carrental-system/internal/handler"
	"github.com/mmeshcher/carrental-system/internal/jobs"
	"github.com/mmeshcher/carrental-system/internal/middleware"
	"github.com/mmeshcher/carrental-system/internal/repository"
	"github.com/mmeshcher/carrental-system/internal/service"
)

type publisher interface {
	service.EventPublisher
	Close() error
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store      service.Store
		purger     jobs.SessionPurger
		sessionsDB *sql.DB
	)
	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI, cfg.StorageTimeout)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		store = repo
		sessionsDB = repo.OpenDB()
		defer sessionsDB.Close()
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		store = repository.NewMemoryRepository(cfg.StorageTimeout)
	}

	var sessionStore auth.SessionStore
	switch {
	case cfg.RedisAddress != "":
		rs, err := auth.NewRedisSessionStore(ctx, cfg.RedisAddress)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer rs.Close()
		sessionStore = rs
	case sessionsDB != nil:
		ss := repository.NewSQLSessionStore(sessionsDB)
		sessionStore = ss
		purger = ss
	default:
		sessionStore = auth.NewMemorySessionStore()
	}
	sessions := auth.NewManager(auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL), sessionStore, cfg.StorageTimeout)

	var pub publisher
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		kp, err := events.NewKafkaPublisher(brokers, cfg.KafkaTopic, logger)
		if err != nil {
			sugar.Fatalw("kafka initialization error", "error", err.Error())
		}
		pub = kp
	} else {
		pub = events.NewLogPublisher(logger)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			sugar.Errorw("close event publisher", "error", err.Error())
		}
	}()

	svc := service.NewService(store, sessions, pub, logger)
	defer svc.Close()

	scheduler, err := jobs.NewScheduler(cfg.ReconcileSchedule, svc, purger, logger)
	if err != nil {
		sugar.Fatalw("scheduler initialization error", "error", err.Error())
	}

	authMiddleware := middleware.NewAuthMiddleware(svc, logger)
	h := handler.NewHandler(svc, logger, authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting carrental server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
