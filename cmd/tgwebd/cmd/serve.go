package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okulovsky/tgweb-automation/internal/api"
	"github.com/okulovsky/tgweb-automation/internal/browser"
	"github.com/okulovsky/tgweb-automation/internal/config"
	"github.com/okulovsky/tgweb-automation/internal/orchestrator"
	"github.com/okulovsky/tgweb-automation/internal/runlog"
	"github.com/okulovsky/tgweb-automation/internal/sessionstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the login orchestration daemon",
	Long: `Starts the HTTP API, the browser job manager, and the expiry supervisor.

Configuration is read from --config (YAML), with TGWEB_* environment
variables taking precedence. Without a config file, defaults apply:
listen on 127.0.0.1:8484, sessions under $XDG_STATE_HOME/tgwebd.

Examples:
  tgwebd serve
  tgwebd serve --config /etc/tgwebd/config.yaml
  TGWEB_LISTEN=:9000 TGWEB_HEADLESS=false tgwebd serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	store, err := sessionstore.New(cfg.SessionsDir,
		sessionstore.WithEncryptionKey(cfg.EncryptionKey),
		sessionstore.WithStoreLogger(logger))
	if err != nil {
		return err
	}

	watcher, err := sessionstore.Watch(store)
	if err != nil {
		logger.Warn("session directory watch unavailable", "error", err)
	} else {
		defer watcher.Close()
	}

	var runs *runlog.Store
	if cfg.DBPath != "" {
		runs, err = runlog.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer runs.Close()
	}

	driverOpts := []browser.ChromeOption{browser.WithLogger(logger)}
	if cfg.LoginURL != "" {
		driverOpts = append(driverOpts, browser.WithLoginURL(cfg.LoginURL))
	}
	driver := browser.NewChromeDriver(driverOpts...)

	mgr := orchestrator.NewManager(driver, store, orchestrator.Config{
		MaxConcurrent:   cfg.MaxConcurrent,
		InputDeadline:   cfg.InputDeadline,
		MaxCodeAttempts: cfg.MaxCodeAttempts,
		LaunchRetries:   cfg.LaunchRetries,
		LaunchTimeout:   cfg.LaunchTimeout,
		DefaultHeadless: cfg.Headless,
		Logger:          logger,
	})
	mgr.OnTerminal = func(snap orchestrator.Snapshot) {
		a := runlog.Attempt{
			JobID:    snap.JobID,
			Phone:    snap.Phone,
			Outcome:  snap.Status,
			Duration: snap.UpdatedAt.Sub(snap.CreatedAt),
		}
		if snap.Err != nil {
			a.Error = snap.Err.Error()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := runs.RecordAttempt(ctx, a); err != nil {
			logger.Warn("record login attempt", "job_id", snap.JobID, "error", err)
		}
	}

	sup := orchestrator.NewSupervisor(mgr, cfg.SweepInterval, cfg.JobRetention, logger)
	sup.Start()

	srv := api.NewServer(cfg.Listen, mgr, store, runs, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("daemon started",
		"addr", cfg.Listen,
		"sessions_dir", cfg.SessionsDir,
		"max_concurrent", cfg.MaxConcurrent)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown", "error", err)
	}
	sup.Stop()
	mgr.Drain()
	return nil
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
