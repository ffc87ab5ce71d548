// Package gate turns a raw stream of scan events, which repeats the
// same text for as long as a code stays in frame, into admissions that
// may start a transaction.
package gate

import (
	"time"

	"github.com/harrylevesque/scanfulfill/internal/clock"
	"github.com/harrylevesque/scanfulfill/internal/metrics"
	"github.com/harrylevesque/scanfulfill/internal/models"
)

// DefaultCooldown is the pause after an admission during which every
// event is dropped.
const DefaultCooldown = 100 * time.Millisecond

// StatusReader reports whether a transaction is active.
type StatusReader interface {
	Current() models.Status
}

type Options struct {
	Clock    clock.Clock
	Cooldown time.Duration
	Status   StatusReader
}

// Gate is not safe for concurrent use; the station serializes calls.
type Gate struct {
	clock    clock.Clock
	cooldown time.Duration
	status   StatusReader

	lastAdmitted  string
	hasLast       bool
	cooldownUntil time.Time
}

func New(opts Options) *Gate {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	return &Gate{
		clock:    opts.Clock,
		cooldown: opts.Cooldown,
		status:   opts.Status,
	}
}

// Accept applies the admission rules in order: busy, cooldown,
// duplicate of the last admitted text. Empty text never starts a
// transaction.
func (g *Gate) Accept(ev models.ScanEvent) models.Decision {
	d := g.decide(ev)
	if d.Admit {
		metrics.ScanEventsTotal.WithLabelValues("admit").Inc()
	} else {
		metrics.ScanEventsTotal.WithLabelValues(string(d.Reason)).Inc()
	}
	return d
}

func (g *Gate) decide(ev models.ScanEvent) models.Decision {
	if g.status != nil && g.status.Current() != models.StatusIdle {
		return models.Drop(models.DropBusy)
	}
	now := g.clock.Now()
	if now.Before(g.cooldownUntil) {
		return models.Drop(models.DropCooldown)
	}
	if ev.Text == "" {
		return models.Drop(models.DropEmpty)
	}
	if g.hasLast && ev.Text == g.lastAdmitted {
		return models.Drop(models.DropDuplicate)
	}
	g.lastAdmitted = ev.Text
	g.hasLast = true
	g.cooldownUntil = now.Add(g.cooldown)
	return models.Admit(ev.Text)
}

// LastAdmitted returns the text of the most recent admission, if any.
func (g *Gate) LastAdmitted() (string, bool) {
	return g.lastAdmitted, g.hasLast
}

// Reset forgets the last admitted text and ends any cooldown so the
// same code can be scanned again immediately.
func (g *Gate) Reset() {
	g.lastAdmitted = ""
	g.hasLast = false
	g.cooldownUntil = time.Time{}
}
