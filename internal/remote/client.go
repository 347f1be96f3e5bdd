// Package remote is the client for the remote incident service. The service
// itself (schema, handlers) is an external collaborator; only its wire
// contract lives here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/galamseywatch/fieldkit/internal/media"
	"github.com/galamseywatch/fieldkit/internal/model"
)

const defaultRequestTimeout = 30 * time.Second

// Multipart field names for the idempotency pair. The service uses them to
// deduplicate a submission that partially succeeded in a previous attempt.
const (
	FieldOfflineID        = "_offlineId"
	FieldOfflineCreatedAt = "_offlineCreatedAt"
)

type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

func New(baseURL string) *Client {
	return NewWithClient(baseURL, &http.Client{})
}

func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: defaultRequestTimeout,
	}
}

// RequestError is a failed exchange with the remote service. StatusCode 0
// means the request never produced a response (transport failure).
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	message := strings.TrimSpace(e.Message)
	if message != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, message)
		}
		return message
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return "request failed"
}

// Retryable reports whether the retry policy may redeliver. Transport
// failures and server errors are transient; validation-style 4xx responses
// will deterministically fail again and are not.
func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500
}

// Retryable is the package-level classification used by callers that hold a
// wrapped error.
func Retryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable()
	}
	// Anything that is not a structured remote rejection is a transport-level
	// problem and eligible for retry.
	return err != nil
}

// SubmitIncident delivers one report as a multipart POST: payload fields,
// evidence binary parts, and the idempotency pair.
func (c *Client) SubmitIncident(ctx context.Context, payload model.IncidentPayload, evidence []media.Raw, offlineID string, offlineCreatedAt time.Time) error {
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)

	fields := map[string]string{
		"title":         payload.Title,
		"description":   payload.Description,
		"latitude":      strconv.FormatFloat(payload.Latitude, 'f', -1, 64),
		"longitude":     strconv.FormatFloat(payload.Longitude, 'f', -1, 64),
		"region":        payload.Region,
		"district":      payload.District,
		"severity":      string(payload.Severity),
		"incident_type": string(payload.IncidentType),
		"reported_by":   payload.ReportedBy,
	}
	if payload.LocationAccuracy != nil {
		fields["locationAccuracy"] = strconv.FormatFloat(*payload.LocationAccuracy, 'f', -1, 64)
	}
	if payload.ContactPhone != "" {
		fields["contact_phone"] = payload.ContactPhone
	}
	if payload.VoiceTranscript != "" {
		fields["voiceTranscript"] = payload.VoiceTranscript
	}
	if payload.Language != "" {
		fields["language"] = payload.Language
	}
	fields[FieldOfflineID] = offlineID
	fields[FieldOfflineCreatedAt] = strconv.FormatInt(offlineCreatedAt.UnixMilli(), 10)

	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return fmt.Errorf("write field %s: %w", key, err)
		}
	}
	for _, item := range evidence {
		part, err := mw.CreateFormFile("evidence", item.Name)
		if err != nil {
			return fmt.Errorf("create evidence part: %w", err)
		}
		if _, err := part.Write(item.Bytes); err != nil {
			return fmt.Errorf("write evidence part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/api/incidents", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return &RequestError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	return decodeError(resp)
}

// Reachable is the connectivity probe behind the composer's and
// synchronizer's online checks. Any response, including an error status,
// means the network path is up.
func (c *Client) Reachable(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, c.baseURL+"/api/incidents", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close() //nolint:errcheck
	return true
}

func (c *Client) FetchIncidents(ctx context.Context) ([]model.CachedIncident, error) {
	return fetchList[model.CachedIncident](ctx, c, "/api/incidents")
}

func (c *Client) FetchWaterReadings(ctx context.Context) ([]model.CachedWaterReading, error) {
	return fetchList[model.CachedWaterReading](ctx, c, "/api/water")
}

func (c *Client) FetchMiningSites(ctx context.Context) ([]model.CachedMiningSite, error) {
	return fetchList[model.CachedMiningSite](ctx, c, "/api/sites")
}

func fetchList[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RequestError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}
	var out []T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return out, nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}
	message := strings.TrimSpace(payload.Error)
	if message == "" {
		message = fmt.Sprintf("server error: %d", resp.StatusCode)
	}
	return &RequestError{StatusCode: resp.StatusCode, Message: message}
}
