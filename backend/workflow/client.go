// Package workflow forwards creative analysis requests to the hosted n8n webhook.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adlens/adlens/backend/metrics"
)

const (
	SecretHeader    = "X-Webhook-Secret"
	maxResponseBody = 1 << 20
)

var (
	ErrTimeout       = errors.New("workflow timed out")
	ErrNotConfigured = errors.New("workflow webhook is not configured")
)

// UpstreamError is a non-2xx answer from the workflow engine.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("workflow returned %d: %s", e.StatusCode, e.Message)
}

// AnalysisPayload is the body posted to the analysis webhook.
type AnalysisPayload struct {
	UserID       string    `json:"userId"`
	CreativeID   string    `json:"creativeId"`
	ImageURL     string    `json:"imageUrl"`
	ImageToken   string    `json:"imageToken"`
	Headline     string    `json:"headline,omitempty"`
	PrimaryText  string    `json:"primaryText,omitempty"`
	CallToAction string    `json:"callToAction,omitempty"`
	Objective    string    `json:"objective,omitempty"`
	RequestedAt  time.Time `json:"requestedAt"`
}

type Client struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewClient(url, secret string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{URL: url, Secret: secret, Timeout: timeout, HTTPClient: httpClient}
}

// Analyze posts the payload and returns the workflow's JSON answer.
func (c *Client) Analyze(ctx context.Context, payload AnalysisPayload) (json.RawMessage, error) {
	if c.URL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode analysis payload: %w", err)
	}

	raw, err := c.post(ctx, body)
	metrics.Upstream("n8n", err)
	if err != nil {
		return nil, err
	}

	if json.Valid(raw) {
		return raw, nil
	}
	// some workflows answer with plain text
	wrapped, err := json.Marshal(map[string]string{"text": strings.TrimSpace(string(raw))})
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

// Ping sends a ping payload and reports the status code and round trip time.
func (c *Client) Ping(ctx context.Context) (int, time.Duration, error) {
	if c.URL == "" {
		return 0, 0, ErrNotConfigured
	}

	ping, _ := json.Marshal(map[string]any{"ping": true, "sentAt": time.Now().UTC()})

	start := time.Now()
	_, err := c.post(ctx, ping)
	elapsed := time.Since(start)

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode, elapsed, err
	}
	if err != nil {
		return 0, elapsed, err
	}
	return http.StatusOK, elapsed, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build workflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Secret != "" {
		req.Header.Set(SecretHeader, c.Secret)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("call workflow: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("read workflow response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: upstreamMessage(raw, resp.Status)}
	}
	return raw, nil
}

func upstreamMessage(raw []byte, fallback string) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return fallback
	}
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}
