package fulfill

import (
	"context"
	"sync"

	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/models"
	"github.com/harrylevesque/scanfulfill/internal/status"
)

// Transaction is the orchestrator's handle on one admitted scan. The
// settings are the snapshot taken when it began; a save during the
// transaction applies to the next one.
type Transaction struct {
	gen      status.Generation
	settings config.Settings

	mu sync.Mutex
	pt models.PendingTransaction

	abandon     chan struct{}
	abandonOnce sync.Once
}

func newTransaction(gen status.Generation, s config.Settings, pt models.PendingTransaction) *Transaction {
	return &Transaction{gen: gen, settings: s, pt: pt, abandon: make(chan struct{})}
}

func (tx *Transaction) ID() string   { return tx.pt.ID }
func (tx *Transaction) Code() string { return tx.pt.Code }

func (tx *Transaction) Settings() config.Settings { return tx.settings }

// Snapshot returns a copy safe to hand to other goroutines.
func (tx *Transaction) Snapshot() models.PendingTransaction {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	pt := tx.pt
	if pt.OrderRef != nil {
		ref := *pt.OrderRef
		pt.OrderRef = &ref
	}
	return pt
}

func (tx *Transaction) SetStage(s models.Stage) {
	tx.mu.Lock()
	tx.pt.Stage = s
	tx.mu.Unlock()
}

func (tx *Transaction) SetOrder(o models.OrderRef) {
	tx.mu.Lock()
	tx.pt.OrderRef = &o
	tx.mu.Unlock()
}

// Abandon marks the transaction as given up by the operator. A call
// already in flight still completes, but no further step is taken.
func (tx *Transaction) Abandon() {
	tx.abandonOnce.Do(func() { close(tx.abandon) })
}

func (tx *Transaction) Abandoned() bool {
	select {
	case <-tx.abandon:
		return true
	default:
		return false
	}
}

// bind returns a context that is also cancelled when tx is abandoned.
func (tx *Transaction) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-tx.abandon:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
