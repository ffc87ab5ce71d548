// Package app wires a station together from its deployment config.
// The daemon and the console build the same graph and differ only in
// the operator surface they put on top.
package app

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/harrylevesque/scanfulfill/internal/api"
	"github.com/harrylevesque/scanfulfill/internal/certs"
	"github.com/harrylevesque/scanfulfill/internal/clock"
	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/confirm"
	"github.com/harrylevesque/scanfulfill/internal/files"
	"github.com/harrylevesque/scanfulfill/internal/fulfill"
	"github.com/harrylevesque/scanfulfill/internal/gate"
	"github.com/harrylevesque/scanfulfill/internal/service"
	"github.com/harrylevesque/scanfulfill/internal/station"
	"github.com/harrylevesque/scanfulfill/internal/status"
	"github.com/harrylevesque/scanfulfill/internal/utils"
)

type Options struct {
	Logger   *slog.Logger
	Notifier fulfill.Notifier
	Clock    clock.Clock

	// Provider replaces the encrypted settings file, e.g. in tests.
	Provider config.Provider
}

type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Settings     *config.Live
	Status       *status.Tracker
	Queue        *confirm.Queue
	Strategy     fulfill.Strategy
	Orchestrator *fulfill.Orchestrator
	Station      *station.Controller
}

// New builds the station. Relative storage paths are resolved against
// the data directory.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := opts.Clock
	if c == nil {
		c = clock.Real()
	}

	fingerprint, err := utils.DeviceFingerprint()
	if err != nil {
		return nil, fmt.Errorf("device fingerprint: %w", err)
	}

	provider := opts.Provider
	if provider == nil {
		keyPath := utils.DataPath(cfg.Storage.KeyFile)
		masterKey, err := files.LoadOrCreateMasterKey(keyPath)
		if err != nil {
			return nil, fmt.Errorf("master key %s: %w", keyPath, err)
		}
		store, err := files.NewSettingsStore(utils.DataPath(cfg.Storage.SettingsFile), masterKey, fingerprint)
		if err != nil {
			return nil, err
		}
		provider = store
	}
	live, err := config.NewLive(provider)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	var roots *x509.CertPool
	if cfg.Service.CAFile != "" {
		roots, err = certs.NewCertManager(cfg.Service.CAFile).Pool()
		if err != nil {
			return nil, fmt.Errorf("ca_file: %w", err)
		}
	}
	client := service.New(service.Options{
		Paths:    cfg.Service.Paths,
		Fields:   cfg.Service.Fields,
		Timeout:  cfg.Service.RequestTimeout,
		RootCAs:  roots,
		DeviceID: deviceID(fingerprint),
		Logger:   logger.With("component", "service"),
	})

	queue := confirm.NewQueue()
	strategy, err := fulfill.NewStrategy(cfg.Mode, client, queue)
	if err != nil {
		return nil, err
	}

	tracker := status.New(status.Options{Clock: c, RevertDelay: cfg.Timing.RevertDelay})
	orch := fulfill.New(fulfill.Options{
		Strategy: strategy,
		Status:   tracker,
		Settings: live,
		Notifier: opts.Notifier,
		Clock:    c,
		Logger:   logger.With("component", "fulfill"),
	})
	ctrl := station.New(station.Options{
		Gate:         gate.New(gate.Options{Clock: c, Cooldown: cfg.Timing.Cooldown, Status: tracker}),
		Orchestrator: orch,
		Status:       tracker,
		Logger:       logger.With("component", "station"),
	})

	missing := live.Settings().Missing(strategy.Required()...)
	logger.Info("station ready", "mode", string(cfg.Mode), "missing_settings", missing)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Settings:     live,
		Status:       tracker,
		Queue:        queue,
		Strategy:     strategy,
		Orchestrator: orch,
		Station:      ctrl,
	}, nil
}

// Handler is the local station API.
func (a *App) Handler() http.Handler {
	return api.NewRouter(api.Options{
		Station:       a.Station,
		Confirmations: a.Queue,
		Settings:      a.Settings,
		Mode:          a.Config.Mode,
		Required:      a.Strategy.Required(),
		Token:         a.Config.APIToken,
		Logger:        a.Logger.With("component", "api"),
	})
}

// Close abandons running transactions and waits for them to settle.
func (a *App) Close() {
	a.Station.Close()
}

// deviceID is a stable identifier for the X-Device-Id header that does
// not reveal the hardware id itself.
func deviceID(fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:8])
}
