// server is the station daemon. It serves the local station API and,
// with --stdin, also reads scans from a keyboard-wedge scanner on
// standard input.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/harrylevesque/scanfulfill/internal/app"
	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/metrics"
	"github.com/harrylevesque/scanfulfill/internal/models"
	"github.com/harrylevesque/scanfulfill/internal/scanner"
	"github.com/harrylevesque/scanfulfill/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		listen     string
		logLevel   string
		readStdin  bool
	)
	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "deployment config file (default $STATION_CONFIG)")
	flagSet.StringVar(&listen, "listen", "", "override the listen address from the config")
	flagSet.StringVar(&logLevel, "log-level", "", "override the log level from the config")
	flagSet.BoolVar(&readStdin, "stdin", false, "read scans from standard input, one per line")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, closer, err := utils.NewLogger(utils.LogOptions{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	metrics.Register()

	station, err := app.New(cfg, app.Options{Logger: logger, Notifier: logNotifier{logger}})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if readStdin {
		events := make(chan models.ScanEvent)
		go func() {
			defer close(events)
			if err := scanner.New(os.Stdin, nil).Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("reading scans from stdin", "error", err)
			}
		}()
		go station.Station.Consume(ctx, events)
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           station.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,

		// Status streams end on the signal instead of holding Shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("station API listening", "addr", cfg.Listen, "mode", string(cfg.Mode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving %s: %w", cfg.Listen, err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	station.Close()
	logger.Info("shutdown complete")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// logNotifier reports failures in the log; API clients see them as the
// error status.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Failure(title, message string) {
	n.logger.Warn(title, "message", message)
}

func (n logNotifier) SettingsRequired(missing []string) {
	n.logger.Warn("settings required", "missing", missing)
}
