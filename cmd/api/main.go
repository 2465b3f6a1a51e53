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

	"github.com/joho/godotenv"
	"github.com/mcclellann/snpLoans/pkg/access"
	"github.com/mcclellann/snpLoans/pkg/config"
	"github.com/mcclellann/snpLoans/pkg/models"
	"github.com/mcclellann/snpLoans/pkg/store"
)

const purgeInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	users, err := store.LoadUsers(cfg.UsersFile)
	if err != nil {
		return err
	}
	slog.Info("roster loaded", "file", cfg.UsersFile, "users", len(users))

	ctx := context.Background()
	roster, sessions, closeStores, err := openStores(ctx, cfg, users)
	if err != nil {
		return err
	}
	defer closeStores()

	gate := access.NewGate(roster, sessions, cfg.SessionTTL)
	server := NewServer(gate, cfg.CookieSecure)

	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go purgeSessions(purgeCtx, gate)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.routes(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Addr, "sessions", cfg.SessionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// openStores builds the roster and session backends selected by cfg.
func openStores(ctx context.Context, cfg *config.Config, users []*models.User) (store.Roster, store.SessionStore, func(), error) {
	switch cfg.SessionBackend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		if err := s.ReplaceUsers(ctx, users); err != nil {
			s.Close()
			return nil, nil, nil, err
		}
		return s, s, func() { s.Close() }, nil
	case config.BackendRedis:
		sessions, err := store.NewRedisSessionStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return store.NewMemoryStore(users), sessions, func() { sessions.Close() }, nil
	default:
		m := store.NewMemoryStore(users)
		return m, m, func() {}, nil
	}
}

func purgeSessions(ctx context.Context, gate *access.Gate) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := gate.PurgeExpired(ctx)
			if err != nil {
				slog.Error("failed to purge sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged expired sessions", "count", n)
			}
		}
	}
}
