// Package metrics holds the metric names and tag conventions shared by every sink.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/mmk-dataport/internal/observability/errors"
	"github.com/target/mmk-dataport/internal/observability/statsd"
)

// Values of the "result" tag.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Job lifecycle transitions.
const (
	TransitionCreate   = "create"
	TransitionDispatch = "dispatch"
	TransitionStart    = "start"
	TransitionComplete = "complete"
	TransitionFail     = "fail"
	TransitionCancel   = "cancel"
)

// Metric names.
const (
	NameJobTransition = "job.transition"
	NameJobDuration   = "job.duration"
	NameJobRows       = "job.rows"
)

// JobMetric is one transfer job lifecycle event.
type JobMetric struct {
	Direction  string
	Resource   string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle counts the transition and, when Duration is set, times it.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"direction":  in.Direction,
		"resource":   in.Resource,
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		tags["error_class"] = obserrors.Classify(in.Err)
	}

	sink.Count(NameJobTransition, 1, tags)

	if in.Duration > 0 {
		sink.Timing(NameJobDuration, in.Duration, CloneTags(tags))
	}
}

// RowsMetric reports per-row outcomes of a finished batch.
type RowsMetric struct {
	Direction string
	Resource  string
	Succeeded int
	Failed    int
	Skipped   int
}

// EmitRows counts processed rows by outcome. Zero counts are not emitted.
func EmitRows(sink statsd.Sink, in RowsMetric) {
	if sink == nil {
		return
	}
	for outcome, n := range map[string]int{"succeeded": in.Succeeded, "failed": in.Failed, "skipped": in.Skipped} {
		if n <= 0 {
			continue
		}
		sink.Count(NameJobRows, int64(n), map[string]string{
			"direction": in.Direction,
			"resource":  in.Resource,
			"outcome":   outcome,
		})
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
