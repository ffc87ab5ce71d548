// Package api is the station's local HTTP surface: scan intake for
// external scan sources, and status, confirmations and settings for
// operator UIs.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harrylevesque/scanfulfill/internal/auth"
	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/confirm"
	"github.com/harrylevesque/scanfulfill/internal/models"
)

// Station is the controller the API drives; *station.Controller
// implements it.
type Station interface {
	Scan(ctx context.Context, ev models.ScanEvent) models.Decision
	Reset()
	Status() models.Status
	Subscribe() (<-chan models.Status, func())
	Active() (models.PendingTransaction, bool)
}

// Confirmations lists and answers open prompts.
type Confirmations interface {
	Pending() []confirm.Prompt
	Resolve(id string, v models.Verdict) error
}

// SettingsStore is the operator settings; *config.Live implements it.
type SettingsStore interface {
	Settings() config.Settings
	Save(s config.Settings) error
}

type Options struct {
	Station       Station
	Confirmations Confirmations
	Settings      SettingsStore
	Mode          config.Mode

	// Required lists the settings keys the mode needs, reported back
	// as "missing" by GET /settings.
	Required []string

	Token  string
	Logger *slog.Logger
}

type server struct {
	station       Station
	confirmations Confirmations
	settings      SettingsStore
	mode          config.Mode
	required      []string
	logger        *slog.Logger
}

// NewRouter returns the API handler. Every route but /health needs
// the bearer token when one is configured.
func NewRouter(opts Options) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{
		station:       opts.Station,
		confirmations: opts.Confirmations,
		settings:      opts.Settings,
		mode:          opts.Mode,
		required:      opts.Required,
		logger:        logger,
	}

	r := mux.NewRouter()
	r.Use(instrument(logger))
	r.Use(auth.NewGuard(opts.Token, "/health").Middleware())

	r.HandleFunc("/health", s.health).Methods(http.MethodGet).Name("health")
	r.HandleFunc("/scan", s.scan).Methods(http.MethodPost).Name("scan")
	r.HandleFunc("/reset", s.reset).Methods(http.MethodPost).Name("reset")
	r.HandleFunc("/status", s.status).Methods(http.MethodGet).Name("status")
	r.HandleFunc("/status/stream", s.statusStream).Methods(http.MethodGet).Name("status_stream")
	r.HandleFunc("/confirmations", s.listConfirmations).Methods(http.MethodGet).Name("confirmations")
	r.HandleFunc("/confirmations/{id}", s.resolveConfirmation).Methods(http.MethodPost).Name("confirmation")
	r.HandleFunc("/settings", s.getSettings).Methods(http.MethodGet).Name("settings")
	r.HandleFunc("/settings", s.putSettings).Methods(http.MethodPut).Name("settings")
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet).Name("metrics")
	return r
}
