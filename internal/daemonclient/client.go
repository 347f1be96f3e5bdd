// Package daemonclient is the foreground's HTTP client for the local
// interceptor daemon: status queries, the live message stream, and the
// activation handshake.
package daemonclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/galamseywatch/fieldkit/internal/api"
	"github.com/galamseywatch/fieldkit/internal/model"
)

const (
	watchScannerInitialBuffer = 64 * 1024
	watchScannerMaxBuffer     = 10 * 1024 * 1024
	defaultUnaryTimeout       = 10 * time.Second
)

var ErrStreamInvalid = errors.New("message stream invalid")

type Client struct {
	baseURL      string
	client       *http.Client
	unaryTimeout time.Duration
}

func New(addr string) *Client {
	return NewWithClient("http://"+addr, &http.Client{})
}

func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		unaryTimeout: defaultUnaryTimeout,
	}
}

func (c *Client) WithUnaryTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.unaryTimeout = timeout
	return &clone
}

type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	message := strings.TrimSpace(e.Message)
	switch {
	case code != "" && message != "":
		return fmt.Sprintf("%s: %s", code, message)
	case code != "":
		return fmt.Sprintf("http %d: %s", e.StatusCode, code)
	case message != "":
		return fmt.Sprintf("http %d: %s", e.StatusCode, message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	return e.StatusCode >= 500
}

// Health probes the daemon. A transport error means it is not running.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	body, err := c.request(ctx, http.MethodGet, "/v1/health", nil, false)
	if err != nil {
		return api.HealthResponse{}, err
	}
	var resp api.HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return api.HealthResponse{}, fmt.Errorf("decode health response: %w", err)
	}
	return resp, nil
}

// Status reports the daemon's generation, activation state, upstream
// connectivity, and cache depth.
func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	body, err := c.request(ctx, http.MethodGet, "/v1/status", nil, false)
	if err != nil {
		return api.StatusResponse{}, err
	}
	var resp api.StatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return api.StatusResponse{}, fmt.Errorf("decode status response: %w", err)
	}
	return resp, nil
}

// SkipWaiting asks the daemon's current generation to take control
// immediately, sweeping cache entries left by prior generations.
func (c *Client) SkipWaiting(ctx context.Context) error {
	msg := model.Message{Type: model.MsgSkipWaiting, Timestamp: time.Now().UnixMilli()}
	_, err := c.request(ctx, http.MethodPost, "/v1/messages", msg, false)
	return err
}

type WatchLoopOptions struct {
	RetryMinBackoff time.Duration
	RetryMaxBackoff time.Duration
	Once            bool
}

// WatchOnce holds one streaming connection open and hands every decoded
// message to onMsg until the stream ends or onMsg returns an error.
func (c *Client) WatchOnce(ctx context.Context, onMsg func(model.Message) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/watch", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return errorFromBody(resp.StatusCode, payload)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, watchScannerInitialBuffer), watchScannerMaxBuffer)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var msg model.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return fmt.Errorf("%w: decode message line: %v", ErrStreamInvalid, err)
		}
		if onMsg == nil {
			continue
		}
		if err := onMsg(msg); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: scan message stream: %v", ErrStreamInvalid, err)
	}
	return nil
}

// WatchLoop keeps the message stream alive across disconnects with
// exponential backoff, resetting the backoff after each healthy
// connection.
func (c *Client) WatchLoop(ctx context.Context, opts WatchLoopOptions, onMsg func(model.Message) error) error {
	minBackoff := opts.RetryMinBackoff
	if minBackoff <= 0 {
		minBackoff = 250 * time.Millisecond
	}
	maxBackoff := opts.RetryMaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 4 * time.Second
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	backoff := minBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := c.WatchOnce(ctx, onMsg)
		if err != nil {
			if opts.Once {
				return err
			}
			if errors.Is(err, ErrStreamInvalid) || errors.Is(err, context.Canceled) {
				return err
			}
			var reqErr *RequestError
			if errors.As(err, &reqErr) && !reqErr.Retryable() {
				return err
			}
		} else if opts.Once {
			return nil
		}
		// A stream that lived past the backoff ceiling counts as healthy.
		if time.Since(start) > maxBackoff {
			backoff = minBackoff
		}
		if waitErr := sleepWithContext(ctx, backoff); waitErr != nil {
			return waitErr
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) request(ctx context.Context, method, path string, body any, longLived bool) ([]byte, error) {
	reqCtx := ctx
	if !longLived && c.unaryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.unaryTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.unaryTimeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, errorFromBody(resp.StatusCode, payload)
	}
	return payload, nil
}

func errorFromBody(status int, payload []byte) error {
	var er api.ErrorResponse
	if err := json.Unmarshal(payload, &er); err == nil && er.Error.Code != "" {
		return &RequestError{StatusCode: status, Code: er.Error.Code, Message: er.Error.Message}
	}
	return &RequestError{
		StatusCode: status,
		Code:       fmt.Sprintf("HTTP_%d", status),
		Message:    strings.TrimSpace(string(payload)),
	}
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
