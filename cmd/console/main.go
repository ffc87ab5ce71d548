// console is a station run from a terminal: a keyboard-wedge scanner
// (or the operator) types codes on standard input, the status shows as
// a colored dot and deliveries are confirmed with y/n.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/harrylevesque/scanfulfill/internal/app"
	"github.com/harrylevesque/scanfulfill/internal/config"
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
		mode       string
		logFile    string
	)
	flagSet := pflag.NewFlagSet("console", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "deployment config file (default $STATION_CONFIG)")
	flagSet.StringVar(&mode, "mode", "", "override the protocol mode: single-step or two-step")
	flagSet.StringVar(&logFile, "log-file", "", "write logs to this file (default: discard below warn)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	// Logs share the terminal with the operator, so only warnings go to
	// stderr unless a file is given.
	logOpts := utils.LogOptions{Level: "warn", Format: "text"}
	if logFile != "" {
		logOpts = utils.LogOptions{Level: cfg.Log.Level, Format: cfg.Log.Format, File: logFile}
	}
	logger, closer, err := utils.NewLogger(logOpts)
	if err != nil {
		return err
	}
	defer closer.Close()

	console := NewConsole(os.Stdout)
	station, err := app.New(cfg, app.Options{Logger: logger, Notifier: console})
	if err != nil {
		return err
	}
	defer station.Close()
	console.Bind(station.Station, station.Queue, station.Settings)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan models.ScanEvent)
	go func() {
		defer close(lines)
		scanner.New(os.Stdin, nil).Run(ctx, lines)
	}()

	statuses, cancelStatus := station.Station.Subscribe()
	defer cancelStatus()
	prompts, cancelPrompts := station.Queue.Subscribe()
	defer cancelPrompts()

	if missing := station.Settings.Settings().Missing(station.Strategy.Required()...); len(missing) > 0 {
		console.SettingsRequired(missing)
	}

	err = console.Run(ctx, lines, statuses, prompts)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
