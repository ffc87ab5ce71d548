// Package status holds the single process-wide Status value, its timed
// revert to idle and the subscriptions that let a UI follow it.
package status

import (
	"sync"
	"time"

	"github.com/harrylevesque/scanfulfill/internal/clock"
	"github.com/harrylevesque/scanfulfill/internal/models"
)

// DefaultRevertDelay keeps a terminal status visible long enough for
// the operator to notice it.
const DefaultRevertDelay = 500 * time.Millisecond

// Generation identifies one entry into loading or a terminal status.
// Any transition bumps it, so work holding an older Generation can tell
// that it has been overtaken.
type Generation uint64

type Options struct {
	Clock       clock.Clock
	RevertDelay time.Duration
}

// Tracker owns the Status value.
type Tracker struct {
	clock       clock.Clock
	revertDelay time.Duration

	mu          sync.Mutex
	current     models.Status
	generation  Generation
	revert      *clock.Timer
	subscribers map[int]chan models.Status
	nextID      int
}

// New returns a Tracker in the idle state.
func New(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.RevertDelay <= 0 {
		opts.RevertDelay = DefaultRevertDelay
	}
	return &Tracker{
		clock:       opts.Clock,
		revertDelay: opts.RevertDelay,
		current:     models.StatusIdle,
		subscribers: make(map[int]chan models.Status),
	}
}

// Current returns the latest Status.
func (t *Tracker) Current() models.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Begin enters loading for a new transaction and returns its
// generation. A pending revert from an earlier terminal status becomes
// stale.
func (t *Tracker) Begin() Generation {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advanceLocked(models.StatusLoading)
	return t.generation
}

// Settle ends the transaction that owns g. A terminal status schedules
// the revert to idle; idle is used for operator cancellation. It
// returns false, changing nothing, when g is no longer current.
func (t *Tracker) Settle(g Generation, s models.Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if g != t.generation || t.current != models.StatusLoading {
		return false
	}
	t.enterLocked(s)
	return true
}

// Flash enters a terminal status without a transaction, e.g. to signal
// a configuration problem before any request was made.
func (t *Tracker) Flash(s models.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enterLocked(s)
}

// Reset forces idle and cancels any pending revert.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advanceLocked(models.StatusIdle)
}

// Subscribe returns a channel that always holds the most recent status
// change not yet received. Call cancel to stop delivery; the channel is
// closed.
func (t *Tracker) Subscribe() (<-chan models.Status, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	ch := make(chan models.Status, 1)
	ch <- t.current
	t.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subscribers, id)
			close(ch)
		})
	}
}

func (t *Tracker) enterLocked(s models.Status) {
	t.advanceLocked(s)
	if !s.Terminal() {
		return
	}
	g := t.generation
	t.revert = t.clock.AfterFunc(t.revertDelay, func() { t.expire(g) })
}

func (t *Tracker) advanceLocked(s models.Status) {
	if t.revert != nil {
		t.revert.Stop()
		t.revert = nil
	}
	t.generation++
	t.current = s
	t.publishLocked()
}

// expire is the revert callback. A late firing against a newer
// generation is ignored.
func (t *Tracker) expire(g Generation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if g != t.generation || !t.current.Terminal() {
		return
	}
	t.revert = nil
	t.generation++
	t.current = models.StatusIdle
	t.publishLocked()
}

func (t *Tracker) publishLocked() {
	for _, ch := range t.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- t.current
	}
}
