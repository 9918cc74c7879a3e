// Package statsd defines the metrics sink used across the service and a UDP StatsD client.
package statsd

import "time"

// Sink describes the minimal interface required to emit StatsD-style metrics.
// Tags with empty values are dropped by every sink in this module.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Fanout returns a Sink that forwards every metric to each non-nil sink.
// It returns nil when no sinks are given so callers can keep their nil checks.
func Fanout(sinks ...Sink) Sink {
	live := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	default:
		return live
	}
}

type multiSink []Sink

func (m multiSink) Count(name string, value int64, tags map[string]string) {
	for _, s := range m {
		s.Count(name, value, tags)
	}
}

func (m multiSink) Gauge(name string, value float64, tags map[string]string) {
	for _, s := range m {
		s.Gauge(name, value, tags)
	}
}

func (m multiSink) Timing(name string, value time.Duration, tags map[string]string) {
	for _, s := range m {
		s.Timing(name, value, tags)
	}
}
