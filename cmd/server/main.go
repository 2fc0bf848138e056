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

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/posrecon/internal/api"
	"github.com/mmynk/posrecon/internal/auth"
	"github.com/mmynk/posrecon/internal/config"
	"github.com/mmynk/posrecon/internal/service"
	"github.com/mmynk/posrecon/internal/storage/journal"
	"github.com/mmynk/posrecon/internal/storage/sqlite"
	"github.com/mmynk/posrecon/pkg/logging"
)

const (
	tokenDuration   = 24 * time.Hour
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("failed to open audit journal: %w", err)
	}
	defer j.Close()
	slog.Info("Audit journal opened", "path", cfg.JournalPath)

	audit := service.WithAuditLog(j)
	services := api.Services{
		AutoMatch:  service.NewAutoMatchService(store, cfg.Criteria, audit),
		Manual:     service.NewManualMatchService(store, cfg.Criteria, audit),
		MultiMatch: service.NewMultiMatchService(store, cfg.Criteria, cfg.Limits, audit),
		Settlement: service.NewSettlementService(store, cfg.Limits, audit),
		Report:     service.NewReportService(store, cfg.Criteria, audit),
	}

	opts := api.Options{
		Paging: api.Paging{DefaultLimit: cfg.DefaultPageSize, MaxLimit: cfg.MaxPageSize},
	}
	if cfg.JWTSecret != "" {
		opts.JWT = auth.NewJWTManager(cfg.JWTSecret, tokenDuration)
	} else {
		slog.Warn("JWT_SECRET not set; trusting operator headers")
	}

	handler := corsMiddleware(api.NewRouter(services, opts))

	// h2c serves HTTP/2 without TLS alongside HTTP/1.1.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", server.Addr, "url", fmt.Sprintf("http://localhost%s", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Operator-ID, X-Company-ID, X-Branch-ID")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
