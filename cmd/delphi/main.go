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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/Szazlo/delphi/internal/adapter/driven/editor"
	sqliteadapter "github.com/Szazlo/delphi/internal/adapter/driven/sqlite"
	httphandler "github.com/Szazlo/delphi/internal/adapter/driving/http"
	"github.com/Szazlo/delphi/internal/application"
	"github.com/Szazlo/delphi/internal/config"
	"github.com/Szazlo/delphi/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"read_only", cfg.CommentsReadOnly,
		"render_mode", cfg.RenderMode,
		"admins", len(cfg.AdminUsers),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "schema_version", version)

	// 5. Wire the event log and session service.
	eventStore := sqliteadapter.NewEventRepo(db)

	formatDate := application.LayoutDateFormatter(cfg.DateFormat)
	if cfg.RelativeDates() {
		formatDate = application.RelativeDateFormatter
	}

	sessions := application.NewSessionService(
		eventStore,
		func() driven.RenderedSurface { return editor.NewSurface() },
		application.ManagerConfig{
			EditButtonEnableRemove: cfg.EnableRemove,
			FormatDate:             formatDate,
			ReadOnly:               cfg.CommentsReadOnly,
			VerticalOffset:         cfg.VerticalOffset,
			CommentIndentOffset:    cfg.CommentIndentOffset,
			Admins:                 cfg.AdminUsers,
		},
		application.RenderMode(cfg.RenderMode),
		slog.Default(),
	)

	// 6. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(sessions, db, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("delphi started", "listen_addr", cfg.ListenAddr)

	// 7. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 8. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	sessions.CloseAll(shutdownCtx)

	slog.Info("shutdown complete")
	return nil
}
