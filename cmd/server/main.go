package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/config"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/db"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/logging"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/migrations"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/permissions"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/quotepdf"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/seed"
)

const sessionSweepInterval = time.Minute

type server struct {
	db       *sqlx.DB
	auth     *authService
	sessions *permissions.Registry
	pdf      *quotepdf.Generator
	currency string
}

func newServer(database *sqlx.DB, cfg config.Config, sessions *permissions.Registry) *server {
	return &server{
		db:       database,
		auth:     newAuthService(database, cfg.SessionSecret, cfg.TokenTTL),
		sessions: sessions,
		pdf:      quotepdf.New(),
		currency: cfg.Currency,
	}
}

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	if cfg.SessionSecret == "" {
		logger.Error("SESSION_SECRET is required outside dev", "env", cfg.Env)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := migrations.Up(ctx, database, cfg.DBDriver); err != nil {
		logger.Error("failed to run database migrations", "err", err)
		os.Exit(1)
	}

	stats, err := seed.Run(ctx, database, seed.Config{
		AdminEmail:        cfg.AdminEmail,
		AdminPassword:     cfg.AdminPassword,
		AdminOrganization: cfg.AdminOrganization,
	})
	if err != nil {
		logger.Error("failed to seed database", "err", err)
		os.Exit(1)
	}
	logger.Info("seed complete", "inserts", stats.Inserts)

	sessions := permissions.NewRegistry()
	go sweepSessions(ctx, sessions, logger)

	srv := newServer(database, cfg, sessions)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "err", err)
		}
	}()

	logger.Info("listening", "addr", httpServer.Addr, "env", cfg.Env, "db_driver", cfg.DBDriver)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func sweepSessions(ctx context.Context, sessions *permissions.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(); n > 0 {
				logger.Debug("expired sessions closed", "count", n)
			}
		}
	}
}
