package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/candidly/internal/httpc"
	"github.com/teslashibe/candidly/pkg/metrics"
	"github.com/teslashibe/candidly/pkg/session"
)

// API paths relative to the base URL.
const (
	pathStart       = "/interview/start"
	pathChat        = "/interview/chat"
	pathUpdateFlags = "/interview/update-flags"
	pathSubmit      = "/interview/submit"
	pathStatus      = "/interview/status/"
)

// Client talks to the interview backend over JSON/HTTP.
type Client struct {
	baseURL string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a backend client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		http:    hc,
		logger:  cfg.Logger.With("component", "backend.client"),
	}, nil
}

// Start opens the interview and returns the greeting.
func (c *Client) Start(ctx context.Context, token string) (*StartResponse, error) {
	var out StartResponse
	if err := c.call(ctx, "start", http.MethodPost, pathStart, StartRequest{SessionToken: token}, &out, false); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Text()) == "" {
		return nil, fmt.Errorf("start: %w", ErrEmptyReply)
	}
	return &out, nil
}

// Chat sends the candidate's message with the prior history and returns
// the AI's reply. history should not already contain message.
func (c *Client) Chat(ctx context.Context, token, message string, history []session.Turn) (*ChatResponse, error) {
	if history == nil {
		history = []session.Turn{}
	}
	req := ChatRequest{
		SessionToken:        token,
		Message:             message,
		ConversationHistory: history,
	}

	var out ChatResponse
	if err := c.call(ctx, "chat", http.MethodPost, pathChat, req, &out, false); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Reply) == "" {
		return nil, fmt.Errorf("chat: %w", ErrEmptyReply)
	}
	return &out, nil
}

// UpdateFlags sends a flag update. The body is safe to resend, so
// transient failures are retried.
func (c *Client) UpdateFlags(ctx context.Context, u FlagUpdate) error {
	return c.call(ctx, "update_flags", http.MethodPost, pathUpdateFlags, u, nil, true)
}

// Submit sends the final transcript. It is never retried here; a
// duplicate submission would be scored twice.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitAck, error) {
	if req.Responses == nil {
		req.Responses = []session.Turn{}
	}
	var out SubmitAck
	if err := c.call(ctx, "submit", http.MethodPost, pathSubmit, req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status reports the backend's view of the session.
func (c *Client) Status(ctx context.Context, token string) (*StatusResponse, error) {
	var out StatusResponse
	path := pathStatus + url.PathEscape(token)
	if err := c.call(ctx, "status", http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// call performs one API call, records metrics and decodes the response
// into out when out is non-nil.
func (c *Client) call(ctx context.Context, name, method, path string, payload, out any, retry bool) error {
	start := time.Now()
	defer func() {
		metrics.BackendDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("backend %s: marshal payload: %w", path, err)
		}
	}

	attempts := 1
	if retry {
		attempts += c.config.MaxRetries
	}

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		resp, lastErr = c.do(ctx, method, path, body)
		if lastErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("request failed",
				"call", name,
				"attempt", attempt+1,
				"error", lastErr,
			)
			metrics.BackendErrors.WithLabelValues(name, "transport").Inc()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := c.parseError(resp, path)
			resp.Body.Close()
			metrics.BackendErrors.WithLabelValues(name, strconv.Itoa(resp.StatusCode)).Inc()

			if apiErr.IsContractViolation() {
				c.logger.Error("backend rejected request body",
					"call", name,
					"detail", apiErr.Message,
					"payload", string(body),
				)
			}

			lastErr = apiErr
			if apiErr.IsRetryable() {
				c.logger.Warn("retryable backend error",
					"call", name,
					"attempt", attempt+1,
					"status", resp.StatusCode,
				)
				continue
			}
			return apiErr
		}

		defer resp.Body.Close()
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("backend %s: decode response: %w", path, err)
		}
		return nil
	}

	return lastErr
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("backend %s: create request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", path, err)
	}
	return resp, nil
}

// parseError reads a FastAPI-style {"detail": ...} error body.
func (c *Client) parseError(resp *http.Response, path string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Path:       path,
		Message:    strings.TrimSpace(string(body)),
	}

	var errResp struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Detail) > 0 {
		var s string
		if json.Unmarshal(errResp.Detail, &s) == nil {
			apiErr.Message = s
		} else {
			apiErr.Message = string(errResp.Detail)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	switch {
	case apiErr.IsContractViolation():
		apiErr.cause = ErrContractViolation
	case apiErr.IsSessionExpired():
		apiErr.cause = session.ErrSessionExpired
	}
	return apiErr
}
