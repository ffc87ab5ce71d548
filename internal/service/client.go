// Package service is the station's side of the fulfillment service: a
// JSON-over-HTTP client for the lookup, deliver and submit calls.
//
// Every call is a POST. A 2xx response is success; a 2xx body that is
// not JSON is a malformed response; any other status is a rejection
// carrying the body's "message" field when it has one.
package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrylevesque/scanfulfill/internal/config"
	"github.com/harrylevesque/scanfulfill/internal/metrics"
	"github.com/harrylevesque/scanfulfill/internal/models"
	"github.com/harrylevesque/scanfulfill/internal/utils"
)

// maxResponseSize bounds every response body read.
const maxResponseSize int64 = 1 << 20

// Call names, used in logs and metric labels.
const (
	CallLookup  = "lookup"
	CallDeliver = "deliver"
	CallSubmit  = "submit"
)

type Options struct {
	Paths  config.PathsConfig
	Fields config.FieldsConfig

	// Timeout bounds each call including reading the body.
	Timeout time.Duration

	// RootCAs replaces the system roots when set.
	RootCAs *x509.CertPool

	// DeviceID is sent as X-Device-Id when set.
	DeviceID string

	Logger *slog.Logger

	// HTTPClient overrides the client built from Timeout and RootCAs.
	HTTPClient *http.Client
}

type Client struct {
	paths    config.PathsConfig
	fields   config.FieldsConfig
	deviceID string
	http     *http.Client
	logger   *slog.Logger
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.RootCAs != nil {
			transport.TLSClientConfig = &tls.Config{RootCAs: opts.RootCAs, MinVersion: tls.VersionTLS12}
		}
		hc = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		paths:    opts.Paths,
		fields:   opts.Fields,
		deviceID: opts.DeviceID,
		http:     hc,
		logger:   logger,
	}
}

type lookupResponse struct {
	Orders []models.OrderRef `json:"orders"`
}

// Lookup asks the service for the orders matching code. An empty list
// is returned as is; the caller decides what zero orders means.
func (c *Client) Lookup(ctx context.Context, s config.Settings, code string) ([]models.OrderRef, error) {
	body := map[string]string{
		c.fields.Code:          code,
		c.fields.VolunteerCode: s.VolunteerCode,
	}
	var resp lookupResponse
	if err := c.post(ctx, CallLookup, s, c.paths.Lookup, body, &resp); err != nil {
		return nil, err
	}
	if resp.Orders == nil {
		return nil, utils.Wrap(utils.KindMalformedResponse, errors.New("lookup response has no orders field"))
	}
	return resp.Orders, nil
}

// Deliver confirms hand-over of order.
func (c *Client) Deliver(ctx context.Context, s config.Settings, order models.OrderRef) error {
	body := map[string]string{
		c.fields.OrderID:       order.ID,
		c.fields.VolunteerCode: s.VolunteerCode,
	}
	if s.Category != "" {
		body[c.fields.Category] = s.Category
	}
	return c.post(ctx, CallDeliver, s, c.paths.Deliver, body, nil)
}

// Submit is the single-step call: the scanned code plus the operator's
// category and volunteer code.
func (c *Client) Submit(ctx context.Context, s config.Settings, code string) error {
	body := map[string]string{
		c.fields.Code:          code,
		c.fields.VolunteerCode: s.VolunteerCode,
		c.fields.Category:      s.Category,
	}
	return c.post(ctx, CallSubmit, s, c.paths.Submit, body, nil)
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *Client) post(ctx context.Context, call string, s config.Settings, path string, body any, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ServiceRequestDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
		metrics.ServiceRequestsTotal.WithLabelValues(call, resultLabel(err)).Inc()
	}()

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", call, err)
	}
	url := joinURL(s.EndpointURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return utils.Wrap(utils.KindTransportFailure, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}
	if s.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+s.Credential)
	}

	logger := c.logger.With("call", call, "request_id", requestID)
	logger.Debug("service request", "url", url)

	resp, err := c.http.Do(req)
	if err != nil {
		return utils.Wrap(utils.KindTransportFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return utils.Wrap(utils.KindTransportFailure, fmt.Errorf("reading %s response: %w", call, err))
	}
	logger.Debug("service response", "status", resp.StatusCode, "bytes", len(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.Unmarshal(raw, &e)
		return &utils.Error{
			Kind:    utils.KindServiceRejected,
			Message: strings.TrimSpace(e.Message),
			Err:     fmt.Errorf("%s returned HTTP %d", call, resp.StatusCode),
		}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		if out != nil {
			return utils.Wrap(utils.KindMalformedResponse, fmt.Errorf("%s returned an empty body", call))
		}
		return nil
	}
	if out == nil {
		if !json.Valid(raw) {
			return utils.Wrap(utils.KindMalformedResponse, fmt.Errorf("%s returned a non-JSON body", call))
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return utils.Wrap(utils.KindMalformedResponse, fmt.Errorf("decoding %s response: %w", call, err))
	}
	return nil
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch utils.KindOf(err) {
	case utils.KindTransportFailure:
		return "transport_failure"
	case utils.KindServiceRejected:
		return "rejected"
	case utils.KindMalformedResponse:
		return "malformed"
	}
	return "error"
}
