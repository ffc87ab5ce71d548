package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/confirm"
	"github.com/harrylevesque/scanfulfill/internal/models"
)

const token = "station-token"

type fakeStation struct {
	mu      sync.Mutex
	scans   []string
	resets  int
	current models.Status
	updates chan models.Status
}

func (f *fakeStation) Scan(_ context.Context, ev models.ScanEvent) models.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, ev.Text)
	if len(f.scans) > 1 {
		return models.Drop(models.DropBusy)
	}
	return models.Admit(ev.Text)
}

func (f *fakeStation) Reset() {
	f.mu.Lock()
	f.resets++
	f.current = models.StatusIdle
	f.mu.Unlock()
}

func (f *fakeStation) Status() models.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeStation) Subscribe() (<-chan models.Status, func()) {
	return f.updates, func() {}
}

func (f *fakeStation) Active() (models.PendingTransaction, bool) {
	if f.Status() != models.StatusLoading {
		return models.PendingTransaction{}, false
	}
	return models.PendingTransaction{ID: "tx1", Code: "ABC123", Stage: models.StageLookup}, true
}

type fixture struct {
	station *fakeStation
	queue   *confirm.Queue
	live    *config.Live
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	live, err := config.NewLive(config.NewMemoryProvider(config.Settings{
		EndpointURL: "http://service.test",
		Credential:  "service-secret",
	}))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		station: &fakeStation{current: models.StatusIdle, updates: make(chan models.Status, 4)},
		queue:   confirm.NewQueue(),
		live:    live,
	}
	f.handler = NewRouter(Options{
		Station:       f.station,
		Confirmations: f.queue,
		Settings:      live,
		Mode:          config.TwoStep,
		Required:      []string{config.KeyEndpointURL, config.KeyVolunteerCode},
		Token:         token,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthIsOpen(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestRoutesNeedToken(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/status", "/settings", "/confirmations", "/metrics"} {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token = %d", path, rec.Code)
		}
	}
}

func TestScan(t *testing.T) {
	f := newFixture(t)

	d := decode[models.Decision](t, f.do(t, http.MethodPost, "/scan", `{"text":"ABC123"}`))
	if !d.Admit || d.Text != "ABC123" {
		t.Fatalf("first decision = %+v", d)
	}
	d = decode[models.Decision](t, f.do(t, http.MethodPost, "/scan", `{"text":"ABC123"}`))
	if d.Admit || d.Reason != models.DropBusy {
		t.Fatalf("second decision = %+v", d)
	}

	if rec := f.do(t, http.MethodPost, "/scan", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body = %d", rec.Code)
	}
}

func TestStatusAndReset(t *testing.T) {
	f := newFixture(t)
	f.station.current = models.StatusLoading

	v := decode[statusView](t, f.do(t, http.MethodGet, "/status", ""))
	if v.Status != models.StatusLoading || v.Mode != config.TwoStep || v.Transaction == nil || v.Transaction.Code != "ABC123" {
		t.Fatalf("status = %+v", v)
	}

	v = decode[statusView](t, f.do(t, http.MethodPost, "/reset", ""))
	if v.Status != models.StatusIdle || v.Transaction != nil || f.station.resets != 1 {
		t.Fatalf("after reset = %+v (resets %d)", v, f.station.resets)
	}
}

func TestStatusStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/status/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	f.station.updates <- models.StatusLoading
	f.station.updates <- models.StatusSuccess

	lines := bufio.NewScanner(resp.Body)
	for _, want := range []models.Status{models.StatusLoading, models.StatusSuccess} {
		if !lines.Scan() {
			t.Fatalf("stream ended: %v", lines.Err())
		}
		var v statusView
		if err := json.Unmarshal(lines.Bytes(), &v); err != nil {
			t.Fatal(err)
		}
		if v.Status != want || v.Color != want.IndicatorColor() {
			t.Fatalf("line = %+v, want %s", v, want)
		}
	}
}

func TestConfirmations(t *testing.T) {
	f := newFixture(t)
	order := models.OrderRef{ID: "o1", Size: "M", ParticipantEmail: "a@b.com"}
	prompts, cancel := f.queue.Subscribe()
	defer cancel()

	verdict := make(chan models.Verdict, 1)
	go func() { verdict <- f.queue.Confirm(context.Background(), order) }()
	p := <-prompts

	list := decode[map[string][]confirm.Prompt](t, f.do(t, http.MethodGet, "/confirmations", ""))
	if len(list["pending"]) != 1 || list["pending"][0].Order != order {
		t.Fatalf("pending = %+v", list)
	}

	if rec := f.do(t, http.MethodPost, "/confirmations/"+p.ID, `{"decision":"maybe"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad decision = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/confirmations/unknown", `{"decision":"confirm"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/confirmations/"+p.ID, `{"decision":"confirm"}`); rec.Code != http.StatusOK {
		t.Fatalf("resolve = %d %s", rec.Code, rec.Body.String())
	}
	if v := <-verdict; v != models.VerdictConfirm {
		t.Fatalf("verdict = %s", v)
	}
}

func TestSettings(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/settings", "")
	if strings.Contains(rec.Body.String(), "service-secret") {
		t.Fatal("credential leaked")
	}
	v := decode[settingsView](t, rec)
	if !v.CredentialSet || len(v.Missing) != 1 || v.Missing[0] != config.KeyVolunteerCode {
		t.Fatalf("settings = %+v", v)
	}

	v = decode[settingsView](t, f.do(t, http.MethodPut, "/settings", `{"volunteerCode":"V42","category":"shirts"}`))
	if v.VolunteerCode != "V42" || v.Category != "shirts" || len(v.Missing) != 0 {
		t.Fatalf("after update = %+v", v)
	}
	saved := f.live.Settings()
	if saved.Credential != "service-secret" || saved.EndpointURL != "http://service.test" {
		t.Fatalf("untouched fields changed: %+v", saved)
	}

	v = decode[settingsView](t, f.do(t, http.MethodPut, "/settings", `{"apiKey":""}`))
	if v.CredentialSet {
		t.Fatal("credential not cleared")
	}
}
