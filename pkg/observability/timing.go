package observability

import (
	"log/slog"
	"time"
)

// Timer measures one operation and reports it to a Metrics collector.
type Timer struct {
	metric  string
	start   time.Time
	metrics Metrics
	logger  *slog.Logger
	tags    []Tag
}

// StartTimer starts timing an operation recorded under metric.
func StartTimer(metric string, metrics Metrics) *Timer {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Timer{metric: metric, start: time.Now(), metrics: metrics}
}

// WithLogger logs the duration at debug level when the timer stops.
func (t *Timer) WithLogger(logger *slog.Logger) *Timer {
	t.logger = logger
	return t
}

// WithTags adds tags to the recorded timing.
func (t *Timer) WithTags(tags ...Tag) *Timer {
	t.tags = append(t.tags, tags...)
	return t
}

// Stop records the duration with an outcome tag derived from err.
func (t *Timer) Stop(err error) time.Duration {
	d := time.Since(t.start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tags := append(append([]Tag{}, t.tags...), T("outcome", outcome))
	t.metrics.Timing(t.metric, d, tags...)
	if t.logger != nil {
		t.logger.Debug("operation timed", "metric", t.metric, "duration_ms", d.Milliseconds(), "outcome", outcome)
	}
	return d
}

// TimeOperation times fn under metric.
func TimeOperation(metrics Metrics, metric string, fn func() error) error {
	timer := StartTimer(metric, metrics)
	err := fn()
	timer.Stop(err)
	return err
}
