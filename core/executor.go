package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/goliatone/go-relay/webhooks"
)

// TestEventID is the fixed event id carried by test deliveries.
const TestEventID = "00000000-0000-0000-0000-000000000000"

type Payload struct {
	EventID   string         `json:"event_id"`
	EventType EventType      `json:"event_type"`
	CreatedAt time.Time      `json:"created_at"`
	Data      map[string]any `json:"data"`
}

// BuildPayload renders the canonical outbound body for an event.
func BuildPayload(event Event) ([]byte, error) {
	return json.Marshal(Payload{
		EventID:   event.ID,
		EventType: event.Type,
		CreatedAt: event.CreatedAt.UTC(),
		Data:      eventData(event),
	})
}

func BuildTestPayload(subscriptionID string, now time.Time) ([]byte, error) {
	return json.Marshal(Payload{
		EventID:   TestEventID,
		EventType: EventTypeTest,
		CreatedAt: now.UTC(),
		Data: map[string]any{
			"message":         "This is a test webhook delivery",
			"subscription_id": subscriptionID,
		},
	})
}

func eventData(event Event) map[string]any {
	data := make(map[string]any, len(event.Payload)+3)
	for key, value := range event.Payload {
		data[key] = value
	}
	mergeAttribute(data, "scooter_id", event.ScooterID)
	mergeAttribute(data, "user_id", event.UserID)
	mergeAttribute(data, "country", event.Country)
	return data
}

func mergeAttribute(data map[string]any, key string, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	data[key] = value
}

type DeliveryRequest struct {
	DeliveryID   string
	EventType    EventType
	Subscription Subscription
	Body         []byte
}

// Executor performs a single signed POST and reports the raw outcome. It never
// touches persisted state.
type Executor struct {
	client         HTTPDoer
	signer         webhooks.Signer
	signing        SigningConfig
	defaultTimeout time.Duration
	bodyLimit      int
	userAgent      string
	now            func() time.Time
}

// NewExecutor builds an executor around client. An injected *http.Client is
// copied with redirects disabled; other doers are used as given.
func NewExecutor(client HTTPDoer, cfg Config, now func() time.Time) *Executor {
	switch c := client.(type) {
	case nil:
		client = NewDeliveryHTTPClient()
	case *http.Client:
		if c == nil {
			client = NewDeliveryHTTPClient()
			break
		}
		copied := *c
		copied.CheckRedirect = noRedirect
		client = &copied
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	timeout := cfg.Delivery.Timeout()
	if timeout <= 0 {
		timeout = DefaultConfig().Delivery.Timeout()
	}
	return &Executor{
		client:         client,
		signer:         webhooks.NewSigner(cfg.Signing.SignaturePrefix),
		signing:        cfg.Signing,
		defaultTimeout: timeout,
		bodyLimit:      cfg.Delivery.ResponseBodyLimit,
		userAgent:      cfg.Delivery.UserAgent,
		now:            now,
	}
}

// Timeout resolves the per-subscription override.
func (e *Executor) Timeout(sub Subscription) time.Duration {
	if sub.TimeoutSeconds > 0 {
		return time.Duration(sub.TimeoutSeconds) * time.Second
	}
	return e.defaultTimeout
}

func (e *Executor) Attempt(ctx context.Context, req DeliveryRequest) AttemptResult {
	if e == nil || e.client == nil {
		return AttemptResult{Error: "executor is not configured"}
	}
	target, err := validateTargetURL(req.Subscription.URL)
	if err != nil {
		return AttemptResult{Error: err.Error()}
	}

	timeout := e.Timeout(req.Subscription)
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timestamp := e.now().Unix()
	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, target, bytes.NewReader(req.Body))
	if err != nil {
		return AttemptResult{Error: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if ua := strings.TrimSpace(e.userAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	}
	httpReq.Header.Set(e.signing.SignatureHeader, e.signer.Sign(req.Subscription.Secret, timestamp, req.Body))
	httpReq.Header.Set(e.signing.TimestampHeader, strconv.FormatInt(timestamp, 10))
	if header := strings.TrimSpace(e.signing.EventTypeHeader); header != "" {
		httpReq.Header.Set(header, string(req.EventType))
	}
	if header := strings.TrimSpace(e.signing.DeliveryIDHeader); header != "" && req.DeliveryID != "" {
		httpReq.Header.Set(header, req.DeliveryID)
	}

	startedAt := time.Now()
	resp, err := e.client.Do(httpReq)
	elapsed := time.Since(startedAt)
	if err != nil {
		return AttemptResult{
			Error:        classifyTransportError(attemptCtx, err, timeout),
			ResponseTime: elapsed,
		}
	}
	defer resp.Body.Close()

	body := e.readBody(resp.Body)
	result := AttemptResult{
		HTTPStatus:   resp.StatusCode,
		ResponseBody: body,
		ResponseTime: elapsed,
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Success = true
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		result.Error = fmt.Sprintf("redirect not followed (HTTP %d)", resp.StatusCode)
	default:
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return result
}

func (e *Executor) readBody(body io.Reader) string {
	if body == nil || e.bodyLimit <= 0 {
		return ""
	}
	read, _ := io.ReadAll(io.LimitReader(body, int64(e.bodyLimit)))
	return string(read)
}

func classifyTransportError(ctx context.Context, err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("timeout after %s", timeout)
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return err.Error()
}

func validateTargetURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("subscription url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid subscription url: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid subscription url scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid subscription url: missing host")
	}
	return parsed.String(), nil
}
