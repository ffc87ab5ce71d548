package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/confirm"
	"github.com/harrylevesque/scanfulfill/internal/models"
)

const maxBodySize = 64 << 10

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "OK")
}

type scanRequest struct {
	Text string `json:"text"`
}

func (s *server) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d := s.station.Scan(r.Context(), models.ScanEvent{Text: req.Text, ObservedAt: time.Now()})
	writeJSON(w, http.StatusOK, d)
}

func (s *server) reset(w http.ResponseWriter, r *http.Request) {
	s.station.Reset()
	writeJSON(w, http.StatusOK, s.statusView())
}

type statusView struct {
	Status      models.Status              `json:"status"`
	Color       string                     `json:"color"`
	Mode        config.Mode                `json:"mode,omitempty"`
	Transaction *models.PendingTransaction `json:"transaction,omitempty"`
}

func (s *server) statusView() statusView {
	st := s.station.Status()
	v := statusView{Status: st, Color: st.IndicatorColor(), Mode: s.mode}
	if tx, ok := s.station.Active(); ok {
		v.Transaction = &tx
	}
	return v
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusView())
}

// statusStream writes one JSON line per status change until the client
// goes away. The first line is the current status.
func (s *server) statusStream(w http.ResponseWriter, r *http.Request) {
	updates, cancel := s.station.Subscribe()
	defer cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := enc.Encode(statusView{Status: st, Color: st.IndicatorColor()}); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				s.logger.Debug("status stream flush failed", "error", err)
				return
			}
		}
	}
}

func (s *server) listConfirmations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]confirm.Prompt{"pending": s.confirmations.Pending()})
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

func (s *server) resolveConfirmation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req decisionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	verdict, ok := models.ParseVerdict(req.Decision)
	if !ok {
		writeError(w, http.StatusBadRequest, `decision must be "confirm" or "cancel"`)
		return
	}
	if err := s.confirmations.Resolve(id, verdict); err != nil {
		if errors.Is(err, confirm.ErrUnknownPrompt) {
			writeError(w, http.StatusNotFound, "no pending confirmation "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("confirmation resolved", "id", id, "decision", string(verdict))
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "decision": string(verdict)})
}

// settingsView never carries the credential itself.
type settingsView struct {
	EndpointURL   string   `json:"apiUrl"`
	Category      string   `json:"category"`
	VolunteerCode string   `json:"volunteerCode"`
	CredentialSet bool     `json:"apiKeySet"`
	Missing       []string `json:"missing,omitempty"`
}

func (s *server) settingsView() settingsView {
	cur := s.settings.Settings()
	return settingsView{
		EndpointURL:   cur.EndpointURL,
		Category:      cur.Category,
		VolunteerCode: cur.VolunteerCode,
		CredentialSet: cur.Credential != "",
		Missing:       cur.Missing(s.required...),
	}
}

func (s *server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settingsView())
}

// settingsUpdate changes only the fields present in the body.
type settingsUpdate struct {
	EndpointURL   *string `json:"apiUrl"`
	Credential    *string `json:"apiKey"`
	Category      *string `json:"category"`
	VolunteerCode *string `json:"volunteerCode"`
}

func (s *server) putSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	next := s.settings.Settings()
	if req.EndpointURL != nil {
		next.EndpointURL = *req.EndpointURL
	}
	if req.Credential != nil {
		next.Credential = *req.Credential
	}
	if req.Category != nil {
		next.Category = *req.Category
	}
	if req.VolunteerCode != nil {
		next.VolunteerCode = *req.VolunteerCode
	}
	if err := s.settings.Save(next); err != nil {
		s.logger.Error("saving settings", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	s.logger.Info("settings saved")
	writeJSON(w, http.StatusOK, s.settingsView())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
