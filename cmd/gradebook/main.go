// main is the entry point of the gradebook service.
//
// COMMANDS:
//
//	gradebook serve             run the HTTP API until SIGINT/SIGTERM
//	gradebook migrate up|down   apply or roll back the schema
//	gradebook fixture load|clear run the configured fixture scripts
//	gradebook report            print students and averages as a table
//
// The config file comes from --config or CONFIG_PATH; a .env file in the
// working directory is loaded first if present:
//
//	go run ./cmd/gradebook --config=config/local.yaml serve
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

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/aanand-mishra/gradebook-api/internal/config"
	"github.com/aanand-mishra/gradebook-api/internal/fixture"
	"github.com/aanand-mishra/gradebook-api/internal/http/router"
	"github.com/aanand-mishra/gradebook-api/internal/metrics"
	"github.com/aanand-mishra/gradebook-api/internal/report"
	"github.com/aanand-mishra/gradebook-api/internal/service/gradebook"
	"github.com/aanand-mishra/gradebook-api/internal/storage"
	"github.com/aanand-mishra/gradebook-api/internal/storage/migrations"
	"github.com/aanand-mishra/gradebook-api/internal/storage/postgres"
	"github.com/aanand-mishra/gradebook-api/internal/storage/sqlite"
)

const version = "1.0.0"

func main() {
	// A missing .env is normal; anything else is worth failing for.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:    "gradebook",
		Usage:   "student gradebook API",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the configuration YAML file",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"s"},
				Usage:   "start the HTTP server",
				Action:  serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back schema migrations",
				Subcommands: []*cli.Command{
					{Name: "up", Usage: "apply all pending migrations", Action: migrateAction(migrations.Up)},
					{Name: "down", Usage: "roll back all migrations", Action: migrateAction(migrations.Down)},
				},
			},
			{
				Name:  "fixture",
				Usage: "run the fixture SQL scripts from the config file",
				Subcommands: []*cli.Command{
					{Name: "load", Usage: "insert the fixture rows", Action: fixtureAction(true)},
					{Name: "clear", Usage: "delete the fixture rows", Action: fixtureAction(false)},
				},
			},
			{
				Name:   "report",
				Usage:  "print every student with per-subject averages",
				Action: printReport,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serve runs the startup sequence:
//  1. Load configuration
//  2. Initialise the logger
//  3. Open (and migrate) the database
//  4. Build the service and the router
//  5. Start the HTTP server in a separate goroutine
//  6. Block until an OS signal arrives, then shut down gracefully
func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting gradebook",
		slog.String("env", cfg.Env),
		slog.String("version", version),
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		log.Error("failed to initialise storage", slog.String("error", err.Error()))
		return err
	}
	defer store.Close()

	log.Info("storage initialised", slog.String("driver", cfg.Storage.Driver))

	m := metrics.NewMetrics()
	svc := gradebook.New(store, log, m)

	server := &http.Server{
		Addr:    cfg.HTTPServer.Addr,
		Handler: router.New(svc, store, m, cfg.HTTPServer, log),

		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	// ListenAndServe blocks, so it runs in its own goroutine and reports
	// a startup failure through errCh.
	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))

		// ErrServerClosed is the expected result of Shutdown.
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping server...")
	case err := <-errCh:
		log.Error("server encountered an error", slog.String("error", err.Error()))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	// Shutdown stops accepting connections and waits for in-flight
	// requests until shutdownCtx expires.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server gracefully", slog.String("error", err.Error()))
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

func migrateAction(dir migrations.Direction) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		log := setupLogger(cfg.Env)

		dsn := cfg.Storage.DSN
		if cfg.Storage.Driver == "sqlite" {
			dsn = sqlite.DSN(dsn)
		}

		if err := migrations.Run(cfg.Storage.Driver, dsn, dir); err != nil {
			log.Error("migration failed", slog.String("direction", string(dir)), slog.String("error", err.Error()))
			return err
		}

		log.Info("migrations applied", slog.String("direction", string(dir)))
		return nil
	}
}

func fixtureAction(load bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		log := setupLogger(cfg.Env)

		store, err := openStorage(c.Context, cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close()

		f := fixture.New(store, cfg.Fixtures)
		if load {
			err = f.Setup(c.Context)
		} else {
			err = f.Teardown(c.Context)
		}
		if err != nil {
			log.Error("fixture failed", slog.Bool("load", load), slog.String("error", err.Error()))
			return err
		}

		log.Info("fixture done", slog.Bool("load", load))
		return nil
	}
}

func printReport(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	store, err := openStorage(c.Context, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	// Report output goes to stdout; keep logs off it.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	return report.Write(c.Context, os.Stdout, gradebook.New(store, log, nil))
}

// openStorage returns the configured backend as the storage.Storage
// interface, so nothing past this point knows which database it talks to.
func openStorage(ctx context.Context, cfg config.Storage) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "postgres":
		return postgres.New(ctx, cfg.DSN)
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Staging: JSON at DEBUG level.
// Production (prod): JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	case "staging":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	default: // "dev" and anything unrecognised
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
}
