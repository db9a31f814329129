// Package provider talks to the payment provider's REST API.
package provider

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
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/paysync/pkg/observability"
)

const (
	DefaultBaseURL = "https://api.paddle.com"

	// Cancellation modes accepted by CancelSubscription.
	EffectiveImmediately       = "immediately"
	EffectiveNextBillingPeriod = "next_billing_period"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("provider: api key not configured")

// ErrCircuitOpen is returned while the circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("provider: circuit open")

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider: status=%d code=%s: %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("provider: status=%d: %s", e.StatusCode, e.Detail)
}

// Temporary reports whether retrying the call later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err is a 404 from the provider.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// SubscriptionDetail is the read-only view of a provider subscription.
type SubscriptionDetail struct {
	ID         string
	Status     string
	CustomerID string
	PriceID    string
	// Data is the raw subscription entity, in the same shape as webhook data.
	Data json.RawMessage
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Breaker settings. Zero values use the defaults.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client calls the provider API with bearer authentication behind a circuit breaker.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewClient creates a provider client.
func NewClient(cfg Config, logger *slog.Logger, metrics observability.Metrics) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &oauth2.Transport{Source: source, Base: http.DefaultTransport},
		},
		logger:  logger,
		metrics: metrics,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "payment-provider",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Client errors say nothing about the provider's health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// GetSubscription fetches a subscription by provider id.
func (c *Client) GetSubscription(ctx context.Context, id string) (*SubscriptionDetail, error) {
	body, err := c.do(ctx, "get_subscription", http.MethodGet, "/subscriptions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("provider: decode subscription: %w", err)
	}
	var entity struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		CustomerID string `json:"customer_id"`
		Items      []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"items"`
	}
	if err := json.Unmarshal(envelope.Data, &entity); err != nil {
		return nil, fmt.Errorf("provider: decode subscription: %w", err)
	}

	detail := &SubscriptionDetail{
		ID:         entity.ID,
		Status:     entity.Status,
		CustomerID: entity.CustomerID,
		Data:       envelope.Data,
	}
	if len(entity.Items) > 0 {
		detail.PriceID = entity.Items[0].Price.ID
	}
	return detail, nil
}

// CancelSubscription asks the provider to cancel a subscription.
func (c *Client) CancelSubscription(ctx context.Context, id, effective string) error {
	if effective == "" {
		effective = EffectiveImmediately
	}
	payload, err := json.Marshal(map[string]string{"effective_from": effective})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, "cancel_subscription", http.MethodPost, "/subscriptions/"+url.PathEscape(id)+"/cancel", payload)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	timer := observability.StartTimer(observability.MetricProviderCalls, c.metrics).
		WithLogger(c.logger).
		WithTags(observability.T("operation", op))

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	timer.Stop(err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		c.metrics.Counter(observability.MetricProviderFailures, 1, observability.T("operation", op))
		return nil, err
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("provider: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp.StatusCode, body)
	}
	return body, nil
}

func responseError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	var envelope struct {
		Error struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Detail = envelope.Error.Detail
	} else {
		apiErr.Detail = strings.TrimSpace(string(body))
	}
	return apiErr
}
