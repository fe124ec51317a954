// Package transport provides the outbound clients behind the email and SMS
// channels: an HTTP relay client and a log-only client for local runs.
//
// The relay accepts a JSON message and answers with a provider message id or
// a structured error. Rate limiting is handled via a token bucket limiter.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Message is one outbound message. Subject is empty for SMS.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// Error is a structured transport failure.
type Error struct {
	Status  int    // HTTP status, 0 for network failures
	Code    string // provider error code, may be empty
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("transport error %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	if e.Status != 0 {
		return fmt.Sprintf("transport error (status %d): %s", e.Status, e.Message)
	}
	return "transport error: " + e.Message
}

// Client is an HTTP relay client for one channel.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a relay client with rate limiting. requestsPerSecond <= 0
// disables the limiter.
func NewClient(endpoint, apiKey string, requestsPerSecond int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(limit, max(requestsPerSecond, 1)),
		logger:     logger,
	}
}

// sendResponse is the relay response body.
type sendResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Send posts msg to the relay and returns the provider message id.
// Failures are returned as *Error.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &Error{Message: fmt.Sprintf("rate limit wait: %v", err)}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("encode message: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("http request: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Status: resp.StatusCode, Message: fmt.Sprintf("read response body: %v", err)}
	}

	var result sendResponse
	decodeErr := json.Unmarshal(body, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{Status: resp.StatusCode, Message: truncate(body, 200)}
		if decodeErr == nil && result.Error != nil {
			e.Code = codeString(result.Error.Code)
			e.Message = result.Error.Message
		}
		c.logger.Debug("Relay rejected message", "status", resp.StatusCode, "code", e.Code)
		return "", e
	}
	if decodeErr != nil {
		return "", &Error{Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", decodeErr)}
	}
	if result.Error != nil {
		return "", &Error{Status: resp.StatusCode, Code: codeString(result.Error.Code), Message: result.Error.Message}
	}
	return result.ID, nil
}

// codeString renders numeric or string provider codes.
func codeString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return fmt.Sprintf("%.0f", c)
	default:
		return fmt.Sprint(c)
	}
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
