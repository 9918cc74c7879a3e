// Package statsdtest provides an in-memory statsd.Sink for tests.
package statsdtest

import (
	"maps"
	"sync"
	"time"

	"github.com/target/mmk-dataport/internal/observability/statsd"
)

// Kind identifies the metric type of a recorded sample.
type Kind string

const (
	KindCount  Kind = "count"
	KindGauge  Kind = "gauge"
	KindTiming Kind = "timing"
)

// Sample is one recorded metric call.
type Sample struct {
	Kind  Kind
	Name  string
	Value float64
	Tags  map[string]string
}

// Recorder records every metric it receives. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	samples []Sample
}

var _ statsd.Sink = (*Recorder)(nil)

func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.add(Sample{Kind: KindCount, Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.add(Sample{Kind: KindGauge, Name: name, Value: value, Tags: maps.Clone(tags)})
}

func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(Sample{Kind: KindTiming, Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

func (r *Recorder) add(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

// Samples returns a copy of everything recorded so far.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Named returns the samples recorded under name.
func (r *Recorder) Named(name string) []Sample {
	var out []Sample
	for _, s := range r.Samples() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Find returns the first sample under name whose tags include every pair in match.
func (r *Recorder) Find(name string, match map[string]string) (Sample, bool) {
	for _, s := range r.Named(name) {
		ok := true
		for k, v := range match {
			if s.Tags[k] != v {
				ok = false
				break
			}
		}
		if ok {
			return s, true
		}
	}
	return Sample{}, false
}
