package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/felixgeelhaar/paysync/internal/billing/application"
	"github.com/felixgeelhaar/paysync/internal/billing/domain"
	"github.com/felixgeelhaar/paysync/pkg/observability"
)

// MaxBodyBytes caps the size of a webhook body.
const MaxBodyBytes = 1 << 20

// DefaultSignatureHeader carries the provider signature.
const DefaultSignatureHeader = "Paddle-Signature"

// CorrelationHeader lets callers propagate a correlation id.
const CorrelationHeader = "X-Correlation-ID"

// EventHandler processes one signed webhook body.
type EventHandler interface {
	Handle(ctx context.Context, body []byte, signatureHeader string) (*application.Result, error)
}

// WebhookHandler maps webhook requests onto the dispatcher.
type WebhookHandler struct {
	events          EventHandler
	signatureHeader string
	logger          *slog.Logger
	metrics         observability.Metrics
}

// WebhookHandlerConfig holds dependencies for the webhook handler.
type WebhookHandlerConfig struct {
	Events          EventHandler
	SignatureHeader string
	Logger          *slog.Logger
	Metrics         observability.Metrics
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	return &WebhookHandler{
		events:          cfg.Events,
		signatureHeader: cfg.SignatureHeader,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
	}
}

// ServeHTTP handles POST requests on the webhook path.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := observability.NewRequestContext(r.Context(), r.Header.Get(CorrelationHeader))
	timer := observability.StartTimer(observability.MetricWebhookDuration, h.metrics)
	h.metrics.Counter(observability.MetricWebhookReceived, 1)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(ctx, w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
		} else {
			h.reject(ctx, w, http.StatusBadRequest, "unreadable_body", "could not read request body")
		}
		timer.Stop(err)
		return
	}

	result, err := h.events.Handle(ctx, body, r.Header.Get(h.signatureHeader))
	timer.Stop(err)
	if err != nil {
		status, reason := statusFor(err)
		h.logger.WarnContext(ctx, "webhook rejected",
			"status", status,
			"reason", reason,
			observability.ErrorKey, err,
		)
		h.reject(ctx, w, status, reason, publicMessage(status))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *WebhookHandler) reject(ctx context.Context, w http.ResponseWriter, status int, reason, message string) {
	h.metrics.Counter(observability.MetricWebhookRejected, 1, observability.T("reason", reason))
	w.Header().Set("X-Request-ID", observability.RequestIDFromContext(ctx))
	writeError(w, status, message)
}

// statusFor maps error classes onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrConfig):
		return http.StatusInternalServerError, "config"
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized, "auth"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError, "persistence"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// publicMessage keeps internals out of responses seen by the provider.
func publicMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "invalid signature"
	case http.StatusBadRequest:
		return "invalid payload"
	default:
		return "internal error"
	}
}
