// Package fulfill drives one admitted scan through the fulfillment
// service: the configuration check, the calls of the deployment's
// protocol shape and the Status transitions around them.
package fulfill

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/harrylevesque/scanfulfill/internal/clock"
	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/metrics"
	"github.com/harrylevesque/scanfulfill/internal/models"
	"github.com/harrylevesque/scanfulfill/internal/status"
	"github.com/harrylevesque/scanfulfill/internal/utils"
)

// ErrCancelled ends a transaction the operator declined. It is not a
// failure and is never shown as one.
var ErrCancelled = errors.New("fulfill: cancelled by operator")

// FailureTitle heads every failure notification.
const FailureTitle = "API Request Failed"

// StatusDriver is the part of the status tracker the orchestrator moves.
type StatusDriver interface {
	Begin() status.Generation
	Settle(g status.Generation, s models.Status) bool
	Flash(s models.Status)
}

// SettingsSource returns the latest saved settings.
type SettingsSource interface {
	Settings() config.Settings
}

// Notifier is the operator surface for failures.
type Notifier interface {
	Failure(title, message string)

	// SettingsRequired asks the operator to fill in the missing keys.
	SettingsRequired(missing []string)
}

type Options struct {
	Strategy Strategy
	Status   StatusDriver
	Settings SettingsSource
	Notifier Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
}

type Orchestrator struct {
	strategy Strategy
	status   StatusDriver
	settings SettingsSource
	notifier Notifier
	clock    clock.Clock
	logger   *slog.Logger

	mu     sync.Mutex
	active *Transaction
}

func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	return &Orchestrator{
		strategy: opts.Strategy,
		status:   opts.Status,
		settings: opts.Settings,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		logger:   opts.Logger.With("mode", string(opts.Strategy.Mode())),
	}
}

func (o *Orchestrator) Mode() config.Mode { return o.strategy.Mode() }

// Begin checks the settings and, when they are complete, enters loading
// and returns the new transaction. Incomplete settings flash error and
// return a configuration_incomplete error without touching the network.
func (o *Orchestrator) Begin(code string) (*Transaction, error) {
	s := o.settings.Settings()
	if missing := s.Missing(o.strategy.Required()...); len(missing) > 0 {
		o.logger.Warn("configuration incomplete", "missing", missing)
		metrics.TransactionsTotal.WithLabelValues(string(o.Mode()), string(utils.KindConfigurationIncomplete)).Inc()
		o.status.Flash(models.StatusError)
		err := &utils.Error{
			Kind:    utils.KindConfigurationIncomplete,
			Message: "Missing settings: " + strings.Join(missing, ", "),
		}
		if o.Mode() == config.SingleStep {
			o.notifier.SettingsRequired(missing)
		} else {
			o.notifier.Failure("Configuration incomplete", err.Message)
		}
		return nil, err
	}

	tx := newTransaction(o.status.Begin(), s, models.PendingTransaction{
		ID:        uuid.NewString(),
		Code:      code,
		Stage:     o.strategy.FirstStage(),
		CreatedAt: o.clock.Now(),
	})
	o.mu.Lock()
	o.active = tx
	o.mu.Unlock()
	o.logger.Info("transaction started", "tx", tx.ID(), "code", code)
	return tx, nil
}

// Run executes tx to a terminal stage and settles Status. It returns
// the failure, or nil on success and operator cancellation.
func (o *Orchestrator) Run(ctx context.Context, tx *Transaction) error {
	defer o.release(tx)
	err := o.strategy.Execute(ctx, tx)

	logger := o.logger.With("tx", tx.ID(), "code", tx.Code())
	var (
		next    models.Status
		outcome string
	)
	switch {
	case err == nil:
		tx.SetStage(models.StageDelivered)
		next, outcome = models.StatusSuccess, "delivered"
		logger.Info("transaction delivered")
	case errors.Is(err, ErrCancelled):
		tx.SetStage(models.StageRejected)
		next, outcome = models.StatusIdle, "cancelled"
		if tx.Abandoned() {
			logger.Info("transaction abandoned")
		} else {
			logger.Info("operator cancelled")
		}
		err = nil
	default:
		tx.SetStage(models.StageFailed)
		next = models.StatusError
		kind := utils.KindOf(err)
		if kind == "" {
			kind = utils.KindTransportFailure
			err = utils.Wrap(kind, err)
		}
		outcome = string(kind)
		logger.Error(strings.ReplaceAll(outcome, "_", " "), "error", err)
	}
	metrics.TransactionsTotal.WithLabelValues(string(o.Mode()), outcome).Inc()

	o.release(tx)
	if !o.status.Settle(tx.gen, next) {
		logger.Info("status already moved on, not settling", "wanted", string(next))
	}
	if err != nil {
		o.notifier.Failure(FailureTitle, utils.OperatorMessage(err))
	}
	return err
}

// Handle runs a whole transaction for code.
func (o *Orchestrator) Handle(ctx context.Context, code string) error {
	tx, err := o.Begin(code)
	if err != nil {
		return err
	}
	return o.Run(ctx, tx)
}

// Active returns the transaction in flight, if any.
func (o *Orchestrator) Active() (models.PendingTransaction, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return models.PendingTransaction{}, false
	}
	return o.active.Snapshot(), true
}

// Abandon gives up the active transaction. Its pending confirmation is
// withdrawn and it takes no further step once an in-flight call returns.
func (o *Orchestrator) Abandon() (models.PendingTransaction, bool) {
	o.mu.Lock()
	tx := o.active
	o.active = nil
	o.mu.Unlock()
	if tx == nil {
		return models.PendingTransaction{}, false
	}
	tx.Abandon()
	return tx.Snapshot(), true
}

func (o *Orchestrator) release(tx *Transaction) {
	o.mu.Lock()
	if o.active == tx {
		o.active = nil
	}
	o.mu.Unlock()
}

type nopNotifier struct{}

func (nopNotifier) Failure(string, string)    {}
func (nopNotifier) SettingsRequired([]string) {}
