// Package station composes the gate, the orchestrator and the status
// tracker into the controller every scan source and operator surface
// talks to.
//
// Scan and Reset are serialized, so the gate and the start of a
// transaction are a single step: by the time Scan returns an admission
// the Status is already loading and the next event is dropped as busy.
// The transaction itself runs in its own goroutine.
package station

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harrylevesque/scanfulfill/internal/fulfill"
	"github.com/harrylevesque/scanfulfill/internal/gate"
	"github.com/harrylevesque/scanfulfill/internal/models"
	"github.com/harrylevesque/scanfulfill/internal/status"
)

type Options struct {
	Gate         *gate.Gate
	Orchestrator *fulfill.Orchestrator
	Status       *status.Tracker
	Logger       *slog.Logger
}

type Controller struct {
	gate   *gate.Gate
	orch   *fulfill.Orchestrator
	status *status.Tracker
	logger *slog.Logger

	// base outlives any single request; Close cancels it.
	base   context.Context
	cancel context.CancelFunc

	mu sync.Mutex
	wg sync.WaitGroup
}

func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		gate:   opts.Gate,
		orch:   opts.Orchestrator,
		status: opts.Status,
		logger: logger,
		base:   base,
		cancel: cancel,
	}
}

// Scan offers one raw event to the gate and starts a transaction when
// it is admitted. The transaction keeps ctx's values but not its
// deadline, so it survives the HTTP request that delivered the scan.
func (c *Controller) Scan(ctx context.Context, ev models.ScanEvent) models.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.gate.Accept(ev)
	if !d.Admit {
		c.logger.Debug("scan dropped", "reason", string(d.Reason))
		return d
	}
	tx, err := c.orch.Begin(d.Text)
	if err != nil {
		return models.Drop(models.DropUnconfigured)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.base, cancel)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer stop()
		c.orch.Run(runCtx, tx)
	}()
	return d
}

// Reset is the operator's way out of a stuck or unwanted state: it
// abandons the active transaction, forgets the last admitted code, ends
// the cooldown and forces idle. An open confirmation is withdrawn as
// cancel. A call already in flight is not cancelled; its outcome no
// longer moves the Status.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pt, ok := c.orch.Abandon(); ok {
		c.logger.Info("abandoning transaction", "tx", pt.ID, "code", pt.Code, "stage", string(pt.Stage))
	}
	c.gate.Reset()
	c.status.Reset()
	c.logger.Info("station reset")
}

func (c *Controller) Status() models.Status { return c.status.Current() }

func (c *Controller) Subscribe() (<-chan models.Status, func()) { return c.status.Subscribe() }

// Active returns the transaction in flight, if any.
func (c *Controller) Active() (models.PendingTransaction, bool) { return c.orch.Active() }

// Consume feeds events to Scan until events is closed or ctx is done.
func (c *Controller) Consume(ctx context.Context, events <-chan models.ScanEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.Scan(ctx, ev)
		}
	}
}

// Wait blocks until every started transaction has finished.
func (c *Controller) Wait() { c.wg.Wait() }

// Close cancels running transactions, which resolves any open
// confirmation as cancel, and waits for them.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}
