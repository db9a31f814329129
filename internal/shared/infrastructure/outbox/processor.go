package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/paysync/pkg/observability"
)

// Metric names reported by the processor.
const (
	MetricPublished = "paysync.outbox.published"
	MetricFailed    = "paysync.outbox.failed"
	MetricDead      = "paysync.outbox.dead"
	MetricPending   = "paysync.outbox.pending"
)

// ProcessorConfig controls polling and retry behaviour.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	Retention        time.Duration
}

// DefaultProcessorConfig returns the worker defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     100 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		Retention:        14 * 24 * time.Hour,
	}
}

// Stats is a snapshot of processor activity.
type Stats struct {
	Published       uint64     `json:"published"`
	Failed          uint64     `json:"failed"`
	Dead            uint64     `json:"dead"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

// Processor relays pending outbox messages to the broker.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics
	now       func() time.Time

	mu    sync.Mutex
	stats Stats
}

// NewProcessor creates a processor. Zero config values fall back to defaults.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger, metrics observability.Metrics) *Processor {
	def := DefaultProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.RetryBackoffBase <= 0 {
		config.RetryBackoffBase = def.RetryBackoffBase
	}
	if config.RetryBackoffMax <= 0 {
		config.RetryBackoffMax = def.RetryBackoffMax
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
	)
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox processor stopped")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessOnce publishes one batch and returns how many messages were published.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	now := p.now()
	messages, err := p.repo.Pending(ctx, now, p.config.BatchSize)
	if err != nil {
		p.recordError(err, now)
		return 0, err
	}

	published := 0
	for _, msg := range messages {
		trace := msg.Trace()
		err := p.publisher.Publish(ctx, eventbus.Message{
			ID:            msg.EventID.String(),
			RoutingKey:    msg.RoutingKey,
			Type:          msg.EventType,
			CorrelationID: trace.CorrelationID,
			Timestamp:     msg.CreatedAt,
			Body:          msg.Payload,
		})
		if err != nil {
			p.handleFailure(ctx, msg, err)
			continue
		}

		if err := p.repo.MarkPublished(ctx, msg.ID, p.now()); err != nil {
			// the message will be published again; consumers dedupe on message id
			p.logger.Error("failed to mark message published", "id", msg.ID, "event_id", msg.EventID, "error", err)
			continue
		}
		published++
		p.metrics.Counter(MetricPublished, 1, observability.T("routing_key", msg.RoutingKey))
	}

	p.mu.Lock()
	p.stats.Published += uint64(published)
	p.stats.LastProcessedAt = &now
	p.mu.Unlock()

	if pending, err := p.repo.CountPending(ctx); err == nil {
		p.metrics.Gauge(MetricPending, float64(pending))
	}
	return published, nil
}

func (p *Processor) handleFailure(ctx context.Context, msg *Message, cause error) {
	trace := msg.Trace()
	p.logger.Warn("failed to publish outbox message",
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"correlation_id", trace.CorrelationID,
		"causation_id", trace.CausationID,
		"retry_count", msg.RetryCount,
		"error", cause,
	)

	now := p.now()
	p.recordError(cause, now)

	if p.shouldDeadLetter(msg) {
		p.metrics.Counter(MetricDead, 1, observability.T("routing_key", msg.RoutingKey))
		p.mu.Lock()
		p.stats.Dead++
		p.mu.Unlock()
		if err := p.repo.MarkDead(ctx, msg.ID, cause.Error(), now); err != nil {
			p.logger.Error("failed to dead-letter message", "id", msg.ID, "error", err)
		}
		return
	}

	p.metrics.Counter(MetricFailed, 1, observability.T("routing_key", msg.RoutingKey))
	p.mu.Lock()
	p.stats.Failed++
	p.mu.Unlock()
	if err := p.repo.MarkFailed(ctx, msg.ID, cause.Error(), now.Add(p.retryBackoff(msg.RetryCount+1))); err != nil {
		p.logger.Error("failed to record publish failure", "id", msg.ID, "error", err)
	}
}

func (p *Processor) shouldDeadLetter(msg *Message) bool {
	if p.config.MaxRetries <= 0 {
		return true
	}
	return msg.RetryCount+1 >= p.config.MaxRetries
}

// retryBackoff doubles from the base delay and caps at the max.
func (p *Processor) retryBackoff(attempt int) time.Duration {
	d := p.config.RetryBackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.config.RetryBackoffMax {
			return p.config.RetryBackoffMax
		}
	}
	return d
}

// Cleanup deletes published messages older than the retention window.
func (p *Processor) Cleanup(ctx context.Context) (int64, error) {
	retention := p.config.Retention
	if retention <= 0 {
		retention = DefaultProcessorConfig().Retention
	}
	deleted, err := p.repo.DeleteOld(ctx, p.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("outbox cleanup completed", "deleted", deleted, "retention", retention)
	}
	return deleted, nil
}

// Stats returns a snapshot of processor counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Processor) recordError(err error, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &at
}
