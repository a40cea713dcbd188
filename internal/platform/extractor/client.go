package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/visitrecon/internal/domain/record"
	"github.com/ehr/visitrecon/internal/domain/segment"
)

// StatusError is a non-2xx response from the extraction service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("field extractor returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRetryPolicy overrides the default backoff schedule.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(cl *Client) { cl.retry = p }
}

// WithLogger sets the logger for attempt events.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// Client posts visit chunks to a remote extraction service.
type Client struct {
	url        string
	httpClient *http.Client
	retry      RetryPolicy
	logger     zerolog.Logger
}

// NewClient returns a Client for the service at url.
func NewClient(url string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		retry:      DefaultRetryPolicy(),
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Extract sends the chunk and decodes the structured visit, retrying
// transport errors, 429 and 5xx responses.
func (c *Client) Extract(ctx context.Context, chunk segment.VisitChunk) (record.Visit, error) {
	payload, err := json.Marshal(newRequest(chunk))
	if err != nil {
		return record.Visit{}, fmt.Errorf("encode extraction request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retry.Delay(attempt - 1)
			c.logger.Warn().
				Err(lastErr).
				Str("visit_id", chunk.VisitID).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying field extraction")
			if err := sleep(ctx, delay); err != nil {
				return record.Visit{}, err
			}
		}

		visit, err := c.do(ctx, payload)
		if err == nil {
			return visit, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return record.Visit{}, fmt.Errorf("extract %s: %w", chunk.VisitID, lastErr)
}

func (c *Client) do(ctx context.Context, payload []byte) (record.Visit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return record.Visit{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return record.Visit{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return record.Visit{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var visit record.Visit
	if err := json.NewDecoder(resp.Body).Decode(&visit); err != nil {
		return record.Visit{}, &decodeError{err: err}
	}
	return visit, nil
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode extraction response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var de *decodeError
	if errors.As(err, &de) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
