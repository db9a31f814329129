package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements Metrics on top of a Prometheus registry.
// Collectors are created on first use; the label set of a metric is fixed by
// the tag keys of its first observation.
type PrometheusMetrics struct {
	namespace string
	reg       *promclient.Registry

	mu         sync.Mutex
	counters   map[string]*promclient.CounterVec
	gauges     map[string]*promclient.GaugeVec
	histograms map[string]*promclient.HistogramVec
	onError    func(name string, err error)
}

// NewPrometheusMetrics creates a metrics collector backed by its own registry.
// The Go runtime and process collectors are registered as well.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	reg := promclient.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &PrometheusMetrics{
		namespace:  namespace,
		reg:        reg,
		counters:   make(map[string]*promclient.CounterVec),
		gauges:     make(map[string]*promclient.GaugeVec),
		histograms: make(map[string]*promclient.HistogramVec),
		onError:    func(string, error) {},
	}
}

// OnError sets a callback for observations that cannot be recorded, e.g. a
// metric reused with a different label set.
func (m *PrometheusMetrics) OnError(fn func(name string, err error)) {
	if fn != nil {
		m.onError = fn
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *PrometheusMetrics) Registry() *promclient.Registry {
	return m.reg
}

// Handler returns the scrape endpoint handler.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.counters[name]
	if !ok {
		vec = promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: m.namespace,
			Name:      metricName(name, m.namespace) + "_total",
			Help:      "Counter " + name,
		}, keys)
		if err := m.register(vec); err != nil {
			m.mu.Unlock()
			m.onError(name, err)
			return
		}
		m.counters[name] = vec
	}
	m.mu.Unlock()

	c, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		m.onError(name, err)
		return
	}
	c.Add(float64(value))
}

func (m *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = promclient.NewGaugeVec(promclient.GaugeOpts{
			Namespace: m.namespace,
			Name:      metricName(name, m.namespace),
			Help:      "Gauge " + name,
		}, keys)
		if err := m.register(vec); err != nil {
			m.mu.Unlock()
			m.onError(name, err)
			return
		}
		m.gauges[name] = vec
	}
	m.mu.Unlock()

	g, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		m.onError(name, err)
		return
	}
	g.Set(value)
}

func (m *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.histograms[name]
	if !ok {
		vec = promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: m.namespace,
			Name:      metricName(name, m.namespace) + "_seconds",
			Help:      "Latency of " + name,
			Buckets:   promclient.DefBuckets,
		}, keys)
		if err := m.register(vec); err != nil {
			m.mu.Unlock()
			m.onError(name, err)
			return
		}
		m.histograms[name] = vec
	}
	m.mu.Unlock()

	h, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		m.onError(name, err)
		return
	}
	h.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) register(c promclient.Collector) error {
	if err := m.reg.Register(c); err != nil {
		if _, ok := err.(promclient.AlreadyRegisteredError); ok {
			return nil
		}
		return fmt.Errorf("register collector: %w", err)
	}
	return nil
}

// splitTags orders tags by key so that label values line up with the
// label names of the collector.
func splitTags(tags []Tag) ([]string, []string) {
	sorted := make([]Tag, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	keys := make([]string, len(sorted))
	values := make([]string, len(sorted))
	for i, t := range sorted {
		keys[i] = t.Key
		values[i] = t.Value
	}
	return keys, values
}

// metricName turns "paysync.webhook.received" into "webhook_received" when
// the namespace is "paysync".
func metricName(name, namespace string) string {
	name = strings.TrimPrefix(name, namespace+".")
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
