// Package stub is an in-memory fulfillment service speaking both
// protocol shapes. cmd/stubservice serves it for local runs; tests use
// it behind httptest.
package stub

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/harrylevesque/scanfulfill/internal/auth"
	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/models"
)

// SeedOrder is one entry of a seed file.
type SeedOrder struct {
	Code string `json:"code"`
	models.OrderRef
}

// Submission records one accepted single-step call.
type Submission struct {
	Code          string    `json:"code"`
	VolunteerCode string    `json:"volunteerCode"`
	Category      string    `json:"category"`
	At            time.Time `json:"at"`
}

type Options struct {
	Paths  config.PathsConfig
	Fields config.FieldsConfig

	// Token, when set, is required as the bearer credential.
	Token  string
	Logger *slog.Logger
}

type order struct {
	ref         models.OrderRef
	code        string
	deliveredBy string
	delivered   bool
}

type Service struct {
	paths  config.PathsConfig
	fields config.FieldsConfig
	token  string
	logger *slog.Logger

	mu          sync.Mutex
	byCode      map[string][]*order
	byID        map[string]*order
	submissions []Submission
	submitted   map[string]bool
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		paths:     opts.Paths,
		fields:    opts.Fields,
		token:     opts.Token,
		logger:    logger,
		byCode:    make(map[string][]*order),
		byID:      make(map[string]*order),
		submitted: make(map[string]bool),
	}
}

// AddOrder makes ref findable under code.
func (s *Service) AddOrder(code string, ref models.OrderRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &order{ref: ref, code: code}
	s.byCode[code] = append(s.byCode[code], o)
	s.byID[ref.ID] = o
}

// LoadSeed reads a JSON array of SeedOrder.
func (s *Service) LoadSeed(r io.Reader) (int, error) {
	var seed []SeedOrder
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return 0, fmt.Errorf("decoding seed: %w", err)
	}
	for _, o := range seed {
		if o.Code == "" || o.ID == "" {
			return 0, fmt.Errorf("seed order %+v needs code and id", o)
		}
		s.AddOrder(o.Code, o.OrderRef)
	}
	return len(seed), nil
}

// Delivered returns the ids of delivered orders.
func (s *Service) Delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, o := range s.byID {
		if o.delivered {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Service) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(auth.NewGuard(s.token).Middleware())
	r.HandleFunc(routePath(s.paths.Lookup), s.lookup).Methods(http.MethodPost)
	r.HandleFunc(routePath(s.paths.Deliver), s.deliver).Methods(http.MethodPost)
	r.HandleFunc(routePath(s.paths.Submit), s.submit).Methods(http.MethodPost)
	return r
}

func routePath(p string) string {
	if p == "" || p[0] != '/' {
		return "/" + p
	}
	return p
}

func (s *Service) lookup(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	code := body[s.fields.Code]
	if code == "" {
		reject(w, http.StatusBadRequest, s.fields.Code+" is required")
		return
	}

	s.mu.Lock()
	known, found := s.byCode[code]
	orders := []models.OrderRef{}
	for _, o := range known {
		if !o.delivered {
			orders = append(orders, o.ref)
		}
	}
	s.mu.Unlock()

	if !found {
		reject(w, http.StatusNotFound, "No order found for this code")
		return
	}
	s.logger.Info("lookup", "code", code, "orders", len(orders))
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Service) deliver(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	id := body[s.fields.OrderID]

	s.mu.Lock()
	o, found := s.byID[id]
	already := found && o.delivered
	if found && !already {
		o.delivered = true
		o.deliveredBy = body[s.fields.VolunteerCode]
	}
	s.mu.Unlock()

	switch {
	case !found:
		reject(w, http.StatusNotFound, "Unknown order "+id)
	case already:
		reject(w, http.StatusConflict, "Order "+id+" was already delivered")
	default:
		s.logger.Info("delivered", "order", id, "volunteer", body[s.fields.VolunteerCode])
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "orderId": id})
	}
}

func (s *Service) submit(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	sub := Submission{
		Code:          body[s.fields.Code],
		VolunteerCode: body[s.fields.VolunteerCode],
		Category:      body[s.fields.Category],
		At:            time.Now(),
	}
	if sub.Code == "" || sub.VolunteerCode == "" || sub.Category == "" {
		reject(w, http.StatusBadRequest, "code, volunteer code and category are required")
		return
	}

	s.mu.Lock()
	dup := s.submitted[sub.Code]
	if !dup {
		s.submitted[sub.Code] = true
		s.submissions = append(s.submissions, sub)
	}
	s.mu.Unlock()

	if dup {
		reject(w, http.StatusConflict, "Code "+sub.Code+" was already submitted")
		return
	}
	s.logger.Info("submitted", "code", sub.Code, "category", sub.Category)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func readBody(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	var body map[string]string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		reject(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return body, true
}

func reject(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
