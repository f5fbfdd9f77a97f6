// Package proxy talks to the Apps Script proxy that fronts the Gemini API.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Orion-Gemini/ORION-WEBCAM/internal/control"
	"github.com/Orion-Gemini/ORION-WEBCAM/internal/conversation"
)

// Client dispatches assembled conversations to the proxy with bounded retries.
type Client struct {
	url        string
	model      string
	authToken  string
	policy     control.Policy
	httpClient *http.Client
	sleep      control.Sleeper
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAuthToken sends token as a bearer Authorization header.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithHTTPClient replaces the default client. The caller is responsible for
// its timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSleeper replaces the wall-clock pause between attempts.
func WithSleeper(s control.Sleeper) Option {
	return func(c *Client) {
		c.sleep = s
	}
}

// WithLogger sets the logger for attempts and the HTTP transport.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a proxy client. An empty model selects DefaultModel.
func NewClient(url, model string, policy control.Policy, opts ...Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		url:    url,
		model:  model,
		policy: policy,
		sleep:  control.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   policy.RequestTimeout,
			Transport: NewLoggingTransport(nil, c.logger),
		}
	}
	return c
}

// Model returns the model name sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Dispatch sends contents to the proxy and returns the model's answer.
// It never fails: every error path yields a human-readable reply instead.
// Server errors and network failures are retried up to the policy's
// ceiling with a fixed delay; other failures are returned at once.
func (c *Client) Dispatch(ctx context.Context, contents []conversation.Turn) string {
	payload := Payload{Model: c.model, Args: Args{Contents: contents}}

	for n := 1; n <= c.policy.MaxRetries; n++ {
		status, body, err := c.Send(ctx, payload)
		out := classify(attempt{status: status, body: body, err: err})

		switch out.kind {
		case outcomeSuccess:
			c.logger.Debug("proxy answered", "attempt", n, "chars", len([]rune(out.text)))
			return out.text
		case outcomeTerminal:
			c.logger.Warn("proxy request failed", "attempt", n, "error", out.err)
			return out.text
		}

		if !control.ShouldRetry(c.policy, n) || ctx.Err() != nil {
			c.logger.Warn("proxy retries exhausted", "attempts", n, "error", out.err)
			return exhausted(out, c.policy.MaxRetries)
		}
		delay := control.Backoff(c.policy, n)
		c.logger.Info("proxy attempt failed; retrying", "attempt", n, "delay", delay, "error", out.err)
		if err := c.sleep(ctx, delay); err != nil {
			return exhausted(out, c.policy.MaxRetries)
		}
	}
	return MsgNoResponse
}

// Send performs a single POST of payload and returns the raw status and body.
func (c *Client) Send(ctx context.Context, payload Payload) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, &requestError{fmt.Errorf("failed to marshal proxy request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, &requestError{fmt.Errorf("failed to create proxy request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("proxy request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed reading proxy response: %w", err)
	}
	return resp.StatusCode, body, nil
}
