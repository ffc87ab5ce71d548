package station

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/harrylevesque/scanfulfill/internal/clock"
	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/confirm"
	"github.com/harrylevesque/scanfulfill/internal/fulfill"
	"github.com/harrylevesque/scanfulfill/internal/gate"
	"github.com/harrylevesque/scanfulfill/internal/models"
	"github.com/harrylevesque/scanfulfill/internal/service"
	"github.com/harrylevesque/scanfulfill/internal/status"
	"github.com/harrylevesque/scanfulfill/internal/stub"
)

// TestScanToDeliveryOverHTTP runs a scan through the real client
// against the stub service.
func TestScanToDeliveryOverHTTP(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()

	svc := stub.New(stub.Options{Paths: cfg.Service.Paths, Fields: cfg.Service.Fields, Logger: logger})
	svc.AddOrder("ABC123", models.OrderRef{ID: "o1", Size: "M", ParticipantEmail: "a@b.com"})
	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	c := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tracker := status.New(status.Options{Clock: c, RevertDelay: cfg.Timing.RevertDelay})
	live, err := config.NewLive(config.NewMemoryProvider(config.Settings{EndpointURL: srv.URL, VolunteerCode: "V42"}))
	if err != nil {
		t.Fatal(err)
	}
	queue := confirm.NewQueue()
	prompts, cancel := queue.Subscribe()
	defer cancel()

	client := service.New(service.Options{Paths: cfg.Service.Paths, Fields: cfg.Service.Fields, Timeout: 5 * time.Second, Logger: logger})
	ctrl := New(Options{
		Gate: gate.New(gate.Options{Clock: c, Cooldown: cfg.Timing.Cooldown, Status: tracker}),
		Orchestrator: fulfill.New(fulfill.Options{
			Strategy: fulfill.NewTwoStep(client, queue),
			Status:   tracker,
			Settings: live,
			Clock:    c,
			Logger:   logger,
		}),
		Status: tracker,
		Logger: logger,
	})
	defer ctrl.Close()

	updates, stop := ctrl.Subscribe()
	defer stop()
	if st := <-updates; st != models.StatusIdle {
		t.Fatalf("initial status = %s", st)
	}

	if d := ctrl.Scan(context.Background(), models.ScanEvent{Text: "ABC123"}); !d.Admit {
		t.Fatalf("scan dropped: %+v", d)
	}
	if st := <-updates; st != models.StatusLoading {
		t.Fatalf("status = %s, want loading", st)
	}

	select {
	case p := <-prompts:
		if p.Order.ID != "o1" || p.Order.Size != "M" || p.Order.ParticipantEmail != "a@b.com" {
			t.Fatalf("prompt = %+v", p)
		}
		queue.Resolve(p.ID, models.VerdictConfirm)
	case <-time.After(5 * time.Second):
		t.Fatal("no confirmation prompt")
	}
	ctrl.Wait()

	if st := <-updates; st != models.StatusSuccess {
		t.Fatalf("status = %s, want success", st)
	}
	if got := svc.Delivered(); len(got) != 1 || got[0] != "o1" {
		t.Fatalf("delivered = %v", got)
	}
	c.Advance(cfg.Timing.RevertDelay)
	if st := <-updates; st != models.StatusIdle {
		t.Fatalf("status = %s, want idle", st)
	}
}
