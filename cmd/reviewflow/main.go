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

	githubadapter "github.com/ericfisherdev/reviewflow/internal/adapter/driven/github"
	sqliteadapter "github.com/ericfisherdev/reviewflow/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/reviewflow/internal/adapter/driving/http"
	"github.com/ericfisherdev/reviewflow/internal/application"
	"github.com/ericfisherdev/reviewflow/internal/config"
	"github.com/ericfisherdev/reviewflow/internal/domain/workhours"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"repositories", len(cfg.Repos),
		"reconcile_interval", cfg.ReconcileInterval,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
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
	if err := sqliteadapter.Migrate(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	prStore := sqliteadapter.NewPRRepo(db)
	reviewStore := sqliteadapter.NewReviewRepo(db)

	// 6. Create GitHub client. App credentials take priority over a token.
	var ghClient *githubadapter.Client
	if cfg.HasAppCredentials() {
		ghClient, err = githubadapter.NewAppClient(ctx, cfg.GitHubAppID, cfg.GitHubAppKeyPath)
		if err != nil {
			return err
		}
		slog.Info("github client created", "auth", "app", "app_id", cfg.GitHubAppID)
	} else {
		ghClient = githubadapter.NewClient(cfg.GitHubToken)
		slog.Info("github client created", "auth", "token")
	}

	// 7. Build the business-hours calendar from configured reviewer timezones.
	calendar, err := workhours.NewCalendar(cfg.Timezones, cfg.DefaultTimezone)
	if err != nil {
		return err
	}

	// 8. Create services.
	selector := application.NewSelector(reviewStore)
	eventSvc := application.NewEventService(prStore, reviewStore, ghClient, calendar, cfg)
	reconcileSvc := application.NewReconcileService(prStore, reviewStore, ghClient, selector, calendar, cfg)
	statsSvc := application.NewStatsService(prStore, reviewStore)

	// 9. Reconcile local state with GitHub before accepting traffic, then
	// start the periodic sweep.
	if err := reconcileSvc.SyncRepositories(ctx); err != nil {
		return err
	}
	slog.Info("startup sync complete")
	go reconcileSvc.Start(ctx)

	// 10. Create HTTP handler and server.
	apiHandler := httphandler.NewHandler(eventSvc, reconcileSvc, statsSvc, cfg.WebhookSecret, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("reviewflow started",
		"listen_addr", cfg.ListenAddr,
		"repositories", len(cfg.Repos),
	)

	// 11. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
