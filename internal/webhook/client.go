// Package webhook posts extracted files to the offer-generation webhook
// and returns its raw JSON answer.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"offerdesk/internal"
	"offerdesk/internal/config"
	"offerdesk/internal/logger"
)

const maxAttempts = 3

var (
	ErrEmptyResponse = errors.New("Empty response from server")
	ErrNoWebhookURL  = errors.New("webhook: WEBHOOK_URL is not configured")
)

// StatusError is a non-2xx answer from the webhook.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("Upload failed: %d %s - %s", e.Status, http.StatusText(e.Status), body)
}

// ParseError means the webhook answered 2xx with a body that is not JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "Invalid JSON response: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// Options selects the model the webhook runs for each file.
type Options struct {
	ModelProvider       string
	Model               string
	IncludeImages       bool
	OptionalProductName string
}

type fileRequest struct {
	Filename            string `json:"filename"`
	Data                string `json:"data"`
	Size                int64  `json:"size"`
	Type                string `json:"type"`
	ModelProvider       string `json:"modelProvider"`
	Model               string `json:"model"`
	IncludeImages       bool   `json:"includeImages"`
	OptionalProductName string `json:"optionalProductName"`
}

type Client struct {
	url        string
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg config.Config) *Client {
	rps := cfg.WebhookRateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		url: strings.TrimSpace(cfg.WebhookURL),
		opts: Options{
			ModelProvider:       cfg.ModelProvider,
			Model:               cfg.Model,
			IncludeImages:       cfg.IncludeImages,
			OptionalProductName: cfg.OptionalProductName,
		},
		// zero means no per-request timeout; the batch deadline bounds the call
		httpClient: &http.Client{Timeout: time.Duration(cfg.WebhookTimeoutMs) * time.Millisecond},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (c *Client) Options() Options {
	return c.opts
}

func (c *Client) WithOptions(opts Options) *Client {
	clone := *c
	clone.opts = opts
	return &clone
}

// Upload sends one file and returns the response body once it is known
// to be non-empty JSON.
func (c *Client) Upload(ctx context.Context, file internal.ExtractedFile) ([]byte, error) {
	if c.url == "" {
		return nil, ErrNoWebhookURL
	}
	if err := ValidateModel(c.opts.ModelProvider, c.opts.Model); err != nil {
		return nil, err
	}

	payload, err := json.Marshal([]fileRequest{{
		Filename:            file.Filename,
		Data:                file.Data,
		Size:                file.Size,
		Type:                file.MimeType,
		ModelProvider:       c.opts.ModelProvider,
		Model:               c.opts.Model,
		IncludeImages:       c.opts.IncludeImages,
		OptionalProductName: strings.TrimSpace(c.opts.OptionalProductName),
	}})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, body, err := c.post(ctx, payload)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			lastErr = &StatusError{Status: status, Body: string(body)}
			if isRetryableStatus(status) && attempt < maxAttempts {
				backoff := time.Duration(500*(1<<(attempt-1))+rand.Intn(200)) * time.Millisecond
				logger.Warn("webhook: %s status %d, retry in %s", file.Filename, status, backoff)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				continue
			}
			return nil, lastErr
		}
		return checkBody(body)
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, payload []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func checkBody(body []byte) ([]byte, error) {
	if strings.TrimSpace(string(body)) == "" {
		return nil, ErrEmptyResponse
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ParseError{Err: err}
	}
	return body, nil
}

// Forward relays an already-built request body to the webhook and hands
// back the upstream status, content type and body untouched.
func (c *Client) Forward(ctx context.Context, body []byte) (int, string, []byte, error) {
	if c.url == "" {
		return 0, "", nil, ErrNoWebhookURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, "", nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", nil, err
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), out, nil
}

func (c *Client) URL() string {
	return c.url
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}
