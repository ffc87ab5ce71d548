// stubservice runs an in-memory fulfillment service for trying a
// station without the real backend. Orders come from a JSON seed file:
//
//	[{"code":"ABC123","id":"o1","size":"M","participantEmail":"a@b.com"}]
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/stub"
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
		listen     string
		seedPath   string
		token      string
		configPath string
	)
	flagSet := pflag.NewFlagSet("stubservice", pflag.ContinueOnError)
	flagSet.StringVar(&listen, "listen", "127.0.0.1:8090", "listen address")
	flagSet.StringVar(&seedPath, "seed", "", "JSON file of orders to serve")
	flagSet.StringVar(&token, "token", os.Getenv("STUB_TOKEN"), "bearer token callers must send")
	flagSet.StringVar(&configPath, "config", "", "station config whose service paths and fields to mirror")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return err
		}
	}

	logger, closer, err := utils.NewLogger(utils.LogOptions{Level: "info", Format: "text"})
	if err != nil {
		return err
	}
	defer closer.Close()

	svc := stub.New(stub.Options{
		Paths:  cfg.Service.Paths,
		Fields: cfg.Service.Fields,
		Token:  token,
		Logger: logger,
	})
	if seedPath != "" {
		f, err := os.Open(seedPath)
		if err != nil {
			return err
		}
		n, err := svc.LoadSeed(f)
		f.Close()
		if err != nil {
			return err
		}
		logger.Info("seeded orders", "count", n, "file", seedPath)
	}

	server := &http.Server{Addr: listen, Handler: svc.Handler(), ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("stub fulfillment service listening", "addr", listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
