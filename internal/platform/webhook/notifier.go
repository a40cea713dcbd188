// Package webhook delivers signed document lifecycle events to configured
// HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Delivery headers.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEventID   = "X-Webhook-Event-ID"
	HeaderEventType = "X-Webhook-Event-Type"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// Endpoint is a delivery destination. Events holds subscription patterns:
// an exact type, "document.*", or "*". An empty list subscribes to all.
type Endpoint struct {
	URL    string
	Secret string
	Events []string
}

// Event is the JSON body POSTed to endpoints.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	DocumentID string          `json:"document_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// DeliveryResult is the outcome of delivering one event to one endpoint.
type DeliveryResult struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

// Success reports whether the endpoint acknowledged the event.
func (r DeliveryResult) Success() bool { return r.Err == nil }

// SignPayload computes the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header value, with or without the
// "sha256=" prefix.
func VerifySignature(payload []byte, secret, signature string) bool {
	signature = strings.TrimPrefix(signature, "sha256=")
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}

// Option configures a Notifier.
type Option func(*Notifier)

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.httpClient = c }
}

// WithRetryDelays sets the wait before each retry. The number of delays is
// the number of retries.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(n *Notifier) { n.retryDelays = delays }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(n *Notifier) { n.logger = logger }
}

// Notifier fans events out to its endpoints in the background.
type Notifier struct {
	endpoints   []Endpoint
	httpClient  *http.Client
	retryDelays []time.Duration
	logger      zerolog.Logger
	now         func() time.Time

	wg sync.WaitGroup
	// closed stops new deliveries
	mu     sync.Mutex
	closed bool
}

// NewNotifier validates the endpoints and returns a Notifier.
func NewNotifier(endpoints []Endpoint, opts ...Option) (*Notifier, error) {
	for _, ep := range endpoints {
		if err := validateURL(ep.URL); err != nil {
			return nil, fmt.Errorf("webhook %q: %w", ep.URL, err)
		}
	}
	n := &Notifier{
		endpoints:   endpoints,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// ParseEndpoints reads comma separated URLs that share one secret and
// subscription list.
func ParseEndpoints(urls, secret, events string) []Endpoint {
	var patterns []string
	for _, e := range strings.Split(events, ",") {
		if e = strings.TrimSpace(e); e != "" {
			patterns = append(patterns, e)
		}
	}
	var out []Endpoint
	for _, u := range strings.Split(urls, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, Endpoint{URL: u, Secret: secret, Events: patterns})
		}
	}
	return out
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

// Matches reports whether pattern subscribes to eventType.
func Matches(pattern, eventType string) bool {
	switch {
	case pattern == "*" || pattern == eventType:
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(eventType, strings.TrimPrefix(pattern, "*"))
	}
	return false
}

func (ep Endpoint) subscribes(eventType string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, p := range ep.Events {
		if Matches(p, eventType) {
			return true
		}
	}
	return false
}

// Publish queues eventType for every subscribed endpoint and returns
// immediately. Delivery runs detached from ctx so a finished request does
// not cancel it.
func (n *Notifier) Publish(ctx context.Context, eventType, documentID string, payload interface{}) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.logger.Warn().Str("event", eventType).Msg("webhook notifier closed; event dropped")
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		n.Deliver(context.WithoutCancel(ctx), eventType, documentID, payload)
	}()
}

// Deliver sends the event to every subscribed endpoint and waits for the
// results.
func (n *Notifier) Deliver(ctx context.Context, eventType, documentID string, payload interface{}) []DeliveryResult {
	event := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		DocumentID: documentID,
		Timestamp:  n.now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			n.logger.Error().Err(err).Str("event", eventType).Msg("encode webhook payload")
			return nil
		}
		event.Payload = raw
	}
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error().Err(err).Str("event", eventType).Msg("encode webhook event")
		return nil
	}

	var results []DeliveryResult
	for _, ep := range n.endpoints {
		if !ep.subscribes(eventType) {
			continue
		}
		res := n.deliverWithRetry(ctx, ep, event, body)
		log := n.logger.Info()
		if !res.Success() {
			log = n.logger.Warn().Err(res.Err)
		}
		log.Str("event_id", event.ID).
			Str("event", eventType).
			Str("document_id", documentID).
			Str("url", ep.URL).
			Int("status", res.StatusCode).
			Int("attempts", res.Attempts).
			Msg("webhook delivery")
		results = append(results, res)
	}
	return results
}

func (n *Notifier) deliverWithRetry(ctx context.Context, ep Endpoint, event Event, body []byte) DeliveryResult {
	res := DeliveryResult{URL: ep.URL}
	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1
		status, err := n.post(ctx, ep, event, body)
		res.StatusCode, res.Err = status, err
		if err == nil || !retryable(status) || attempt >= len(n.retryDelays) {
			return res
		}
		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(n.retryDelays[attempt]):
		}
	}
}

// retryable is true for transport errors, 429 and 5xx.
func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

func (n *Notifier) post(ctx context.Context, ep Endpoint, event Event, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, event.ID)
	req.Header.Set(HeaderEventType, event.Type)
	req.Header.Set(HeaderTimestamp, event.Timestamp.Format(time.RFC3339))
	if ep.Secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+SignPayload(body, ep.Secret))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// Close stops accepting events and waits for queued deliveries.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.wg.Wait()
}
