// Package clinicapi is the typed consumer of the clinic backend's REST
// surface. The engine only reads records and forwards merges; every write
// path beyond that belongs to the backend itself.
package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/livhair/schedule-engine/internal/schedule"
	"github.com/livhair/schedule-engine/pkg/logging"
)

const defaultTimeout = 20 * time.Second

var apiTracer = otel.Tracer("engine.internal.clinicapi")

// Client talks to the clinic backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     *logging.Logger
}

// NewClient creates a backend client. token may be empty when the engine
// runs inside the session perimeter; otherwise it is sent as a bearer token.
func NewClient(baseURL, token string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		token:      token,
		logger:     logger,
	}
}

// ListPatients fetches every live patient record.
func (c *Client) ListPatients(ctx context.Context) ([]schedule.Patient, error) {
	var out []schedule.Patient
	if err := c.do(ctx, http.MethodGet, "/patients/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPatient fetches one patient by id.
func (c *Client) GetPatient(ctx context.Context, id int64) (schedule.Patient, error) {
	var out schedule.Patient
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/patients/%d", id), nil, &out); err != nil {
		return schedule.Patient{}, err
	}
	return out, nil
}

// ListProcedures fetches every live procedure, in the backend's order:
// dated ascending, undated last.
func (c *Client) ListProcedures(ctx context.Context) ([]schedule.Procedure, error) {
	var out []schedule.Procedure
	if err := c.do(ctx, http.MethodGet, "/procedures/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProcedure fetches one procedure by id.
func (c *Client) GetProcedure(ctx context.Context, id int64) (schedule.Procedure, error) {
	var out schedule.Procedure
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/procedures/%d", id), nil, &out); err != nil {
		return schedule.Procedure{}, err
	}
	return out, nil
}

// FieldOptions fetches the configurable option lists. Callers merge the
// response with DefaultFieldOptions before rendering.
func (c *Client) FieldOptions(ctx context.Context) (FieldOptions, error) {
	var out FieldOptions
	if err := c.do(ctx, http.MethodGet, "/field-options/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MergeRequest asks the backend to fold source patients into the target.
type MergeRequest struct {
	TargetID  int64          `json:"target_id"`
	SourceIDs []int64        `json:"source_ids"`
	Updates   map[string]any `json:"updates,omitempty"`
}

// MergeResult is the backend's merge outcome.
type MergeResult struct {
	Patient            schedule.Patient `json:"patient"`
	ArchivedPatientIDs []int64          `json:"archived_patient_ids"`
	MovedProcedures    int              `json:"moved_procedures"`
	MovedPayments      int              `json:"moved_payments"`
}

// MergePatients folds the source records into the target record. Validation
// failures come back as *APIError with the backend's message intact.
func (c *Client) MergePatients(ctx context.Context, req MergeRequest) (MergeResult, error) {
	var out MergeResult
	if err := c.do(ctx, http.MethodPost, "/patients/merge", req, &out); err != nil {
		return MergeResult{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, span := apiTracer.Start(ctx, "clinicapi.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		))
	defer span.End()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("clinicapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("clinicapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("clinicapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("clinicapi: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{StatusCode: resp.StatusCode, Message: errorDetail(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("clinicapi: unmarshal %s %s: %w", method, path, err)
	}
	return nil
}

// errorDetail extracts the backend's {"detail": "..."} message, falling back
// to a clipped body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
