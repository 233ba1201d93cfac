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

	"github.com/spf13/cobra"

	"github.com/capigrid/capigrid/internal/api"
	"github.com/capigrid/capigrid/internal/auth"
	"github.com/capigrid/capigrid/internal/config"
	"github.com/capigrid/capigrid/internal/db"
	"github.com/capigrid/capigrid/internal/mailer"
	"github.com/capigrid/capigrid/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the platform server",
	RunE:  runServe,
}

var configFile string

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/capigrid/capigrid.yaml", "Path to configuration file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	google, err := auth.NewGoogleProvider(ctx, &cfg.Auth.Google)
	if err != nil {
		return err
	}
	if google != nil {
		logger.Info("google sign-in enabled", "client_id", cfg.Auth.Google.ClientID)
	}

	var mail *mailer.Mailer
	var processor *mailer.Processor
	if cfg.Mail.Enabled {
		queue, err := mailer.OpenQueue(cfg.Mail.QueuePath)
		if err != nil {
			return err
		}
		defer queue.Close()

		sender := mailer.NewRelaySender(&cfg.Mail, logger)
		processor = mailer.NewProcessor(queue, sender, mailer.ProcessorConfig{
			Workers:       cfg.Mail.Workers,
			RetryInterval: cfg.Mail.RetryInterval.Std(),
			MaxRetries:    cfg.Mail.MaxRetries,
			PollInterval:  cfg.Mail.PollInterval.Std(),
		}, logger)
		processor.Start(ctx)
		defer processor.Stop()

		mail = mailer.New(queue, cfg.Server.BaseURL)
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		metricsSrv = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	srv := api.NewServer(cfg, database, google, mail, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown failed", "error", err)
		}
	}

	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
