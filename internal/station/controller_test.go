package station

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/harrylevesque/scanfulfill/internal/clock"
	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/confirm"
	"github.com/harrylevesque/scanfulfill/internal/fulfill"
	"github.com/harrylevesque/scanfulfill/internal/gate"
	"github.com/harrylevesque/scanfulfill/internal/models"
	"github.com/harrylevesque/scanfulfill/internal/status"
	"github.com/harrylevesque/scanfulfill/internal/utils"
)

const (
	cooldown    = 100 * time.Millisecond
	revertDelay = 500 * time.Millisecond
)

type countingService struct {
	mu        sync.Mutex
	lookups   int
	delivered []string
	lookupErr error

	// hold, when set, blocks each lookup until it is closed.
	hold chan struct{}
}

func (s *countingService) Lookup(context.Context, config.Settings, string) ([]models.OrderRef, error) {
	s.mu.Lock()
	s.lookups++
	hold, err := s.hold, s.lookupErr
	s.mu.Unlock()
	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}
	return []models.OrderRef{{ID: "o1", Size: "M", ParticipantEmail: "a@b.com"}}, nil
}

func (s *countingService) set(fn func(*countingService)) {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
}

func (s *countingService) Deliver(_ context.Context, _ config.Settings, o models.OrderRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, o.ID)
	return nil
}

func (s *countingService) Submit(context.Context, config.Settings, string) error { return nil }

func (s *countingService) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups, len(s.delivered)
}

type fixture struct {
	ctrl    *Controller
	clock   *clock.FakeClock
	queue   *confirm.Queue
	svc     *countingService
	prompts <-chan confirm.Prompt
}

func newFixture(t *testing.T, s config.Settings) *fixture {
	t.Helper()
	c := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := status.New(status.Options{Clock: c, RevertDelay: revertDelay})
	live, err := config.NewLive(config.NewMemoryProvider(s))
	if err != nil {
		t.Fatal(err)
	}
	svc := &countingService{}
	queue := confirm.NewQueue()
	prompts, cancel := queue.Subscribe()
	t.Cleanup(cancel)

	ctrl := New(Options{
		Gate: gate.New(gate.Options{Clock: c, Cooldown: cooldown, Status: tracker}),
		Orchestrator: fulfill.New(fulfill.Options{
			Strategy: fulfill.NewTwoStep(svc, queue),
			Status:   tracker,
			Settings: live,
			Clock:    c,
			Logger:   logger,
		}),
		Status: tracker,
		Logger: logger,
	})
	t.Cleanup(ctrl.Close)
	return &fixture{ctrl: ctrl, clock: c, queue: queue, svc: svc, prompts: prompts}
}

func (f *fixture) scan(text string) models.Decision {
	return f.ctrl.Scan(context.Background(), models.ScanEvent{Text: text, ObservedAt: f.clock.Now()})
}

func (f *fixture) confirmNext(t *testing.T, v models.Verdict) {
	t.Helper()
	select {
	case p := <-f.prompts:
		if err := f.queue.Resolve(p.ID, v); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no confirmation prompt")
	}
}

var settings = config.Settings{EndpointURL: "http://service.test", VolunteerCode: "V42"}

func TestDoubleScanMakesOneLookup(t *testing.T) {
	f := newFixture(t, settings)

	if d := f.scan("ABC123"); !d.Admit {
		t.Fatalf("first scan dropped: %+v", d)
	}
	if got := f.ctrl.Status(); got != models.StatusLoading {
		t.Fatalf("status after admission = %s", got)
	}
	if d := f.scan("ABC123"); d.Admit || d.Reason != models.DropBusy {
		t.Fatalf("second scan = %+v, want busy drop", d)
	}

	f.confirmNext(t, models.VerdictConfirm)
	f.ctrl.Wait()

	lookups, deliveries := f.svc.counts()
	if lookups != 1 || deliveries != 1 {
		t.Fatalf("lookups = %d, deliveries = %d", lookups, deliveries)
	}
	if got := f.ctrl.Status(); got != models.StatusSuccess {
		t.Fatalf("status = %s", got)
	}
	f.clock.Advance(revertDelay)
	if got := f.ctrl.Status(); got != models.StatusIdle {
		t.Fatalf("status after revert = %s", got)
	}

	// Same code still in frame.
	if d := f.scan("ABC123"); d.Reason != models.DropDuplicate {
		t.Fatalf("rescan = %+v, want duplicate", d)
	}
}

func (f *fixture) awaitPrompt(t *testing.T) confirm.Prompt {
	t.Helper()
	select {
	case p := <-f.prompts:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no confirmation prompt")
	}
	return confirm.Prompt{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestResetAllowsRescan(t *testing.T) {
	f := newFixture(t, settings)

	f.scan("ABC123")
	f.awaitPrompt(t)
	f.ctrl.Reset()
	if got := f.ctrl.Status(); got != models.StatusIdle {
		t.Fatalf("status after reset = %s", got)
	}
	if _, ok := f.ctrl.Active(); ok {
		t.Fatal("transaction still active after reset")
	}
	waitFor(t, "the abandoned prompt to be withdrawn", func() bool { return len(f.queue.Pending()) == 0 })

	if d := f.scan("ABC123"); !d.Admit {
		t.Fatalf("scan after reset = %+v", d)
	}
	f.confirmNext(t, models.VerdictConfirm)
	f.ctrl.Wait()

	if _, deliveries := f.svc.counts(); deliveries != 1 {
		t.Fatalf("deliveries = %d, want only the rescan delivered", deliveries)
	}
	if n := len(f.queue.Pending()); n != 0 {
		t.Fatalf("pending prompts = %d", n)
	}
	if got := f.ctrl.Status(); got != models.StatusSuccess {
		t.Fatalf("status = %s", got)
	}
}

func TestResetDuringLookupNeverPrompts(t *testing.T) {
	f := newFixture(t, settings)
	hold := make(chan struct{})
	f.svc.set(func(s *countingService) { s.hold = hold })

	f.scan("ABC123")
	waitFor(t, "the lookup to start", func() bool { n, _ := f.svc.counts(); return n == 1 })
	f.ctrl.Reset()
	f.svc.set(func(s *countingService) { s.hold = nil })
	close(hold)
	f.ctrl.Wait()

	select {
	case p := <-f.prompts:
		t.Fatalf("prompt %s shown for an abandoned scan", p.ID)
	default:
	}
	if _, deliveries := f.svc.counts(); deliveries != 0 {
		t.Fatalf("deliveries = %d", deliveries)
	}
	if got := f.ctrl.Status(); got != models.StatusIdle {
		t.Fatalf("status = %s", got)
	}
}

func TestNextScanRunsAfterError(t *testing.T) {
	f := newFixture(t, settings)
	f.svc.set(func(s *countingService) {
		s.lookupErr = utils.New(utils.KindServiceRejected, "No order found for this code")
	})

	if d := f.scan("ABC123"); !d.Admit {
		t.Fatalf("first scan = %+v", d)
	}
	f.ctrl.Wait()
	if got := f.ctrl.Status(); got != models.StatusError {
		t.Fatalf("status = %s", got)
	}
	f.clock.Advance(revertDelay)
	if got := f.ctrl.Status(); got != models.StatusIdle {
		t.Fatalf("status after revert = %s", got)
	}

	f.svc.set(func(s *countingService) { s.lookupErr = nil })
	if d := f.scan("XYZ789"); !d.Admit {
		t.Fatalf("scan after error = %+v", d)
	}
	f.confirmNext(t, models.VerdictConfirm)
	f.ctrl.Wait()
	if lookups, deliveries := f.svc.counts(); lookups != 2 || deliveries != 1 {
		t.Fatalf("lookups = %d, deliveries = %d", lookups, deliveries)
	}
	if got := f.ctrl.Status(); got != models.StatusSuccess {
		t.Fatalf("status = %s", got)
	}
}

func TestIncompleteSettingsNoLookup(t *testing.T) {
	f := newFixture(t, config.Settings{EndpointURL: "http://service.test"})

	if d := f.scan("ABC123"); d.Admit || d.Reason != models.DropUnconfigured {
		t.Fatalf("decision = %+v, want %s", d, models.DropUnconfigured)
	}
	f.ctrl.Wait()
	if lookups, _ := f.svc.counts(); lookups != 0 {
		t.Fatalf("lookups = %d", lookups)
	}
	if got := f.ctrl.Status(); got != models.StatusError {
		t.Fatalf("status = %s", got)
	}
	if _, ok := f.ctrl.Active(); ok {
		t.Fatal("transaction created with incomplete settings")
	}
}

func TestConsume(t *testing.T) {
	f := newFixture(t, settings)
	events := make(chan models.ScanEvent, 3)
	events <- models.ScanEvent{Text: ""}
	events <- models.ScanEvent{Text: "ABC123"}
	events <- models.ScanEvent{Text: "ABC123"}
	close(events)

	if err := f.ctrl.Consume(context.Background(), events); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	f.confirmNext(t, models.VerdictConfirm)
	f.ctrl.Wait()
	if lookups, _ := f.svc.counts(); lookups != 1 {
		t.Fatalf("lookups = %d", lookups)
	}
}

func TestConsumeStopsOnContext(t *testing.T) {
	f := newFixture(t, settings)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.ctrl.Consume(ctx, make(chan models.ScanEvent)); err != context.Canceled {
		t.Fatalf("err = %v", err)
	}
}

func TestCloseCancelsPendingConfirmation(t *testing.T) {
	f := newFixture(t, settings)
	f.scan("ABC123")
	select {
	case <-f.prompts:
	case <-time.After(2 * time.Second):
		t.Fatal("no confirmation prompt")
	}

	f.ctrl.Close()
	if _, deliveries := f.svc.counts(); deliveries != 0 {
		t.Fatalf("deliveries = %d", deliveries)
	}
	if got := f.ctrl.Status(); got != models.StatusIdle {
		t.Fatalf("status = %s", got)
	}
}
