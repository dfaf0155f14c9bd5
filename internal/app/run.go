package app

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"places-cache/internal/common/logging"
	"places-cache/internal/config"
)

// shutdownTimeout bounds how long in-flight lookups get to finish
const shutdownTimeout = 30 * time.Second

// Run loads .env and the environment, builds the app and serves until
// SIGINT or SIGTERM.
func Run() error {
	_ = godotenv.Load()

	logging.InitGlobalLogger("places-cache")
	defer logging.MustSync()

	logging.Info("Starting places cache",
		logging.Field{Key: "cpus", Value: runtime.NumCPU()},
		logging.Field{Key: "version", Value: Version},
	)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Serve(ctx)
}

// Serve schedules the purge job, starts the HTTP server and blocks until
// ctx is cancelled, then shuts the server down gracefully. The caller still
// owns Cleanup.
func (app *App) Serve(ctx context.Context) error {
	if err := app.startPurgeJob(); err != nil {
		app.Logger.Error("Failed to schedule purge job", err)
		return err
	}

	srv, _ := app.RunServer()
	if err := srv.Start(); err != nil {
		app.Logger.Error("Server failed to start", err)
		return err
	}

	app.Logger.Info("Places cache ready",
		logging.Field{Key: "addr", Value: srv.Addr()},
		logging.Field{Key: "durable_tier", Value: durableName(app.Durable)},
		logging.Field{Key: "coalesce", Value: app.Config.CacheCoalesce},
		logging.Field{Key: "distributed_locks", Value: app.Locker != nil},
	)

	<-ctx.Done()
	app.Logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("Server forced to shutdown", err)
		return err
	}

	app.Logger.Info("Server exited")
	return nil
}
