package promsink

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-dataport/internal/observability/metrics"
)

func newTestSink(t *testing.T) (*Sink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(Options{Namespace: "dataport", Registry: reg}), reg
}

func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m.GetLabel(), labels) {
				return m
			}
		}
	}
	return nil
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; ok && v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestSink_CountFillsMissingLabels(t *testing.T) {
	sink, reg := newTestSink(t)

	metrics.EmitJobLifecycle(sink, metrics.JobMetric{
		Direction:  "export",
		Resource:   "artists",
		Transition: metrics.TransitionComplete,
		Result:     metrics.ResultSuccess,
		Duration:   1500 * time.Millisecond,
	})
	metrics.EmitJobLifecycle(sink, metrics.JobMetric{
		Direction:  "export",
		Resource:   "artists",
		Transition: metrics.TransitionComplete,
		Result:     metrics.ResultSuccess,
	})

	m := findMetric(t, reg, "dataport_job_transition_total", map[string]string{
		"direction":   "export",
		"transition":  "complete",
		"error_class": "",
	})
	require.NotNil(t, m)
	assert.InDelta(t, 2.0, m.GetCounter().GetValue(), 0)

	h := findMetric(t, reg, "dataport_job_duration_seconds", map[string]string{"resource": "artists"})
	require.NotNil(t, h)
	assert.Equal(t, uint64(1), h.GetHistogram().GetSampleCount())
	assert.InDelta(t, 1.5, h.GetHistogram().GetSampleSum(), 0.0001)
}

func TestSink_GaugeAndUnknownNames(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.Gauge(metrics.NameReaperLastSuccess, 42, nil)
	sink.Count("not.declared", 1, nil)
	sink.Timing(metrics.NameJobTransition, time.Second, nil)
	sink.Count(metrics.NameJobRows, -1, nil)

	g := findMetric(t, reg, "dataport_reaper_last_success_epoch", nil)
	require.NotNil(t, g)
	assert.InDelta(t, 42.0, g.GetGauge().GetValue(), 0)

	assert.Nil(t, findMetric(t, reg, "dataport_job_rows_total", nil))
}

func TestSink_Handler(t *testing.T) {
	sink, _ := newTestSink(t)
	sink.Count(metrics.NameJobRows, 3, map[string]string{"direction": "import", "resource": "artists", "outcome": "failed"})

	rec := httptest.NewRecorder()
	sink.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body),
		`dataport_job_rows_total{direction="import",outcome="failed",resource="artists"} 3`), string(body))
}

func TestNew_DefaultRegistry(t *testing.T) {
	sink := New(Options{})
	require.NotNil(t, sink.Registry())

	mfs, err := sink.Registry().Gather()
	require.NoError(t, err)
	var sawGo bool
	for _, mf := range mfs {
		if strings.HasPrefix(mf.GetName(), "go_") {
			sawGo = true
		}
	}
	assert.True(t, sawGo)
}

func TestFQName(t *testing.T) {
	assert.Equal(t, "job_transition_total", fqName("", metricDef{name: "job.transition", kind: kindCounter}))
	assert.Equal(t, "dp_reaper_cleanup_duration_seconds", fqName(" dp. ", metricDef{name: "reaper.cleanup_duration", kind: kindHistogram}))
	assert.Equal(t, "dp_job_duration_seconds", fqName("dp", metricDef{name: "job.duration", kind: kindHistogram}))
}
