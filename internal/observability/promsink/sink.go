// Package promsink exposes the service metrics to Prometheus through the statsd.Sink interface.
package promsink

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/target/mmk-dataport/internal/observability/metrics"
	"github.com/target/mmk-dataport/internal/observability/statsd"
)

type kind int

const (
	kindCounter kind = iota
	kindGauge
	kindHistogram
)

type metricDef struct {
	name   string
	kind   kind
	help   string
	labels []string
}

var (
	jobLabels    = []string{"direction", "resource", "transition", "result", "error_class"}
	reaperLabels = []string{"operation", "result", "error_class"}

	metricDefs = []metricDef{
		{metrics.NameJobTransition, kindCounter, "Job lifecycle transitions.", jobLabels},
		{metrics.NameJobDuration, kindHistogram, "Time spent in a job lifecycle transition.", jobLabels},
		{metrics.NameJobRows, kindCounter, "Rows processed by outcome.", []string{"direction", "resource", "outcome"}},
		{metrics.NameReaperCleanup, kindCounter, "Reaper cleanup runs.", []string{"result", "error_class"}},
		{metrics.NameReaperCleanupDuration, kindHistogram, "Reaper cleanup run duration.", []string{"result", "error_class"}},
		{metrics.NameReaperCleanupOperation, kindCounter, "Reaper cleanup operations.", reaperLabels},
		{metrics.NameReaperJobsProcessed, kindCounter, "Jobs touched by the reaper.", reaperLabels},
		{metrics.NameReaperLastSuccess, kindGauge, "Unix time of the last successful reaper run.", nil},
	}

	durationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900}
)

// Options configures a Sink.
type Options struct {
	Namespace string
	// Registry defaults to a fresh registry with Go and process collectors.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

type collector struct {
	def       metricDef
	counter   *prometheus.CounterVec
	gauge     *prometheus.GaugeVec
	histogram *prometheus.HistogramVec
}

// Sink translates statsd-style calls into Prometheus collectors. Metric names that are not
// declared above are ignored.
type Sink struct {
	registry   *prometheus.Registry
	collectors map[string]*collector
}

var _ statsd.Sink = (*Sink)(nil)

// New registers every declared collector.
func New(opts Options) *Sink {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "prometheus")

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		register(logger, reg, collectors.NewGoCollector(), "go")
		register(logger, reg, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process")
	}

	s := &Sink{registry: reg, collectors: make(map[string]*collector, len(metricDefs))}
	for _, sp := range metricDefs {
		c := &collector{def: sp}
		fq := fqName(opts.Namespace, sp)
		switch sp.kind {
		case kindCounter:
			c.counter = prometheus.NewCounterVec(prometheus.CounterOpts{Name: fq, Help: sp.help}, sp.labels)
			register(logger, reg, c.counter, fq)
		case kindGauge:
			c.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: fq, Help: sp.help}, sp.labels)
			register(logger, reg, c.gauge, fq)
		case kindHistogram:
			c.histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    fq,
				Help:    sp.help,
				Buckets: durationBuckets,
			}, sp.labels)
			register(logger, reg, c.histogram, fq)
		}
		s.collectors[sp.name] = c
	}

	logger.Debug("prometheus sink initialized", "namespace", opts.Namespace, "metrics", len(metricDefs))
	return s
}

// Registry returns the registry backing the sink.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *Sink) Count(name string, value int64, tags map[string]string) {
	c, ok := s.collectors[name]
	if !ok || c.counter == nil || value < 0 {
		return
	}
	c.counter.WithLabelValues(c.values(tags)...).Add(float64(value))
}

func (s *Sink) Gauge(name string, value float64, tags map[string]string) {
	c, ok := s.collectors[name]
	if !ok || c.gauge == nil {
		return
	}
	c.gauge.WithLabelValues(c.values(tags)...).Set(value)
}

func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	c, ok := s.collectors[name]
	if !ok || c.histogram == nil {
		return
	}
	c.histogram.WithLabelValues(c.values(tags)...).Observe(value.Seconds())
}

// values orders tags by the declared label names; missing tags become empty labels.
func (c *collector) values(tags map[string]string) []string {
	out := make([]string, len(c.def.labels))
	for i, l := range c.def.labels {
		out[i] = strings.TrimSpace(tags[l])
	}
	return out
}

func fqName(namespace string, sp metricDef) string {
	name := strings.ReplaceAll(sp.name, ".", "_")
	switch sp.kind {
	case kindCounter:
		name += "_total"
	case kindHistogram:
		name = strings.TrimSuffix(name, "_duration") + "_duration_seconds"
	}
	ns := strings.Trim(strings.ReplaceAll(strings.TrimSpace(namespace), ".", "_"), "_")
	if ns == "" {
		return name
	}
	return ns + "_" + name
}

func register(logger *slog.Logger, reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		logger.Warn("failed to register collector", "name", name, "error", err)
	}
}
