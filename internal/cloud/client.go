// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/mindmap-editor/internal/logging"
)

// Configuration constants for the OpenRouter API.
const (
	// DefaultOpenRouterURL is the base URL for OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultOpenRouterModel is used when no model is requested.
	DefaultOpenRouterModel = "anthropic/claude-haiku-4.5"

	// DefaultTimeout bounds the wait for response headers.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of attempts for transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// maxErrorBodySize caps how much of an error response is read.
	maxErrorBodySize = 64 * 1024
)

// sharedStreamingClient has no overall timeout; streams are bounded by the
// request context.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: DefaultTimeout,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	},
}

// OpenRouterModels maps friendly names to full model identifiers.
var OpenRouterModels = map[string]string{
	"auto":   "openrouter/auto",
	"haiku":  "anthropic/claude-haiku-4.5",
	"sonnet": "anthropic/claude-sonnet-4.5",
	"opus":   "anthropic/claude-opus-4.1",
	"gemini": "google/gemini-2.5-flash",
}

// Error variables for common provider errors.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account has insufficient credits.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// OpenRouterError represents an error from the OpenRouter API.
type OpenRouterError struct {
	Code    string
	Message string
	Status  int
}

// Error implements the error interface.
func (e *OpenRouterError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("OpenRouter error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("OpenRouter error (HTTP %d): %s", e.Status, e.Message)
}

// RateLimitError is a 429 with the server's requested wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
	}
	return "rate limited"
}

// Is lets RateLimitError match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// apiErrorResponse represents an error response from the API.
type apiErrorResponse struct {
	Error struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// OpenRouterClient streams chat completions from OpenRouter or any other
// OpenAI-compatible endpoint.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
	maxRetries int
	siteURL    string
	siteName   string
	logger     *zap.Logger
}

// NewOpenRouterClient creates a client with the given API key. An empty key
// yields a client whose StreamChat fails with ErrNotConfigured.
func NewOpenRouterClient(apiKey string) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultOpenRouterURL,
		httpClient: sharedStreamingClient,
		model:      DefaultOpenRouterModel,
		maxRetries: DefaultMaxRetries,
		siteURL:    "http://localhost:3000",
		siteName:   "mindmap-editor",
		logger:     zap.NewNop(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *OpenRouterClient) WithBaseURL(url string) *OpenRouterClient {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *OpenRouterClient) WithHTTPClient(hc *http.Client) *OpenRouterClient {
	c.httpClient = hc
	return c
}

// WithMaxRetries sets the maximum number of attempts.
func (c *OpenRouterClient) WithMaxRetries(maxRetries int) *OpenRouterClient {
	if maxRetries < 1 {
		maxRetries = 1
	}
	c.maxRetries = maxRetries
	return c
}

// WithModel sets the default model.
func (c *OpenRouterClient) WithModel(model string) *OpenRouterClient {
	if model != "" {
		c.model = NormalizeOpenRouterModel(model)
	}
	return c
}

// WithLogger sets the logger.
func (c *OpenRouterClient) WithLogger(l *zap.Logger) *OpenRouterClient {
	c.logger = logging.OrNop(l).Named("openrouter")
	return c
}

// Name returns "openrouter".
func (c *OpenRouterClient) Name() string {
	return "openrouter"
}

// Model returns the default model.
func (c *OpenRouterClient) Model() string {
	return c.model
}

// IsConfigured returns true if the client has an API key configured.
func (c *OpenRouterClient) IsConfigured() bool {
	return c.apiKey != ""
}

var (
	dateSuffix   = regexp.MustCompile(`-\d{8}$`)
	dashedMinor  = regexp.MustCompile(`-(\d+)-(\d)$`)
	vendorPrefix = map[string]string{"claude-": "anthropic/", "gpt-": "openai/", "gemini-": "google/"}
)

// NormalizeOpenRouterModel maps friendly names and vendor-native ids
// ("claude-haiku-4-5-20251201") to OpenRouter ids ("anthropic/claude-haiku-4.5").
// Ids that already carry a vendor prefix are returned unchanged.
func NormalizeOpenRouterModel(model string) string {
	if full, ok := OpenRouterModels[model]; ok {
		return full
	}
	if strings.Contains(model, "/") {
		return model
	}
	for prefix, vendor := range vendorPrefix {
		if strings.HasPrefix(model, prefix) {
			m := dateSuffix.ReplaceAllString(model, "")
			m = dashedMinor.ReplaceAllString(m, "-$1.$2")
			return vendor + m
		}
	}
	return model
}

// setHeaders sets the required headers for OpenRouter API requests.
func (c *OpenRouterClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mindmap-editor")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

// handleErrorResponse converts HTTP error responses to appropriate Go errors.
func (c *OpenRouterClient) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	statusCode := resp.StatusCode

	if statusCode == http.StatusTooManyRequests {
		if rl := parseRetryAfter(resp.Header.Get("Retry-After")); rl != nil {
			return rl
		}
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		orErr := &OpenRouterError{
			Code:    fmt.Sprint(apiErr.Error.Code),
			Message: apiErr.Error.Message,
			Status:  statusCode,
		}
		if apiErr.Error.Code == nil {
			orErr.Code = ""
		}

		switch statusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuthFailed, orErr.Message)
		case http.StatusPaymentRequired:
			return fmt.Errorf("%w: %s", ErrInsufficientCredits, orErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrModelNotFound, orErr.Message)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, orErr.Message)
		default:
			return orErr
		}
	}

	switch statusCode {
	case http.StatusUnauthorized:
		return ErrAuthFailed
	case http.StatusPaymentRequired:
		return ErrInsufficientCredits
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &OpenRouterError{Message: strings.TrimSpace(string(body)), Status: statusCode}
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. It returns nil when the header is absent or unreadable.
func parseRetryAfter(v string) *RateLimitError {
	if v == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return &RateLimitError{RetryAfter: time.Duration(seconds) * time.Second}
	}
	if t, err := http.ParseTime(v); err == nil {
		return &RateLimitError{RetryAfter: time.Until(t)}
	}
	return nil
}

// isRetryable determines if an error should trigger a retry.
func (c *OpenRouterClient) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var orErr *OpenRouterError
	if errors.As(err, &orErr) {
		return orErr.Status >= 500 && orErr.Status < 600
	}
	// Transport failures before any response.
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) || strings.Contains(err.Error(), "connection")
}

// calculateBackoff returns the delay to wait before the next retry.
func (c *OpenRouterClient) calculateBackoff(attempt int, lastErr error) time.Duration {
	var rl *RateLimitError
	if errors.As(lastErr, &rl) && rl.RetryAfter > 0 && rl.RetryAfter <= retryMaxDelay {
		return rl.RetryAfter
	}
	// 500ms, 1s, 2s, ...
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
