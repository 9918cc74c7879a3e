package statsd_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-dataport/internal/observability/statsd"
	"github.com/target/mmk-dataport/internal/observability/statsd/statsdtest"
)

func TestFanout(t *testing.T) {
	t.Parallel()

	assert.Nil(t, statsd.Fanout())
	assert.Nil(t, statsd.Fanout(nil, nil))

	single := &statsdtest.Recorder{}
	assert.Same(t, single, statsd.Fanout(nil, single))

	a, b := &statsdtest.Recorder{}, &statsdtest.Recorder{}
	sink := statsd.Fanout(a, nil, b)
	require.NotNil(t, sink)

	sink.Count("c", 2, map[string]string{"k": "v"})
	sink.Gauge("g", 1.5, nil)
	sink.Timing("t", time.Second, nil)

	for _, r := range []*statsdtest.Recorder{a, b} {
		samples := r.Samples()
		require.Len(t, samples, 3)
		assert.Equal(t, statsdtest.KindCount, samples[0].Kind)
		assert.InDelta(t, 2.0, samples[0].Value, 0)
		assert.Equal(t, "v", samples[0].Tags["k"])
		assert.Equal(t, statsdtest.KindGauge, samples[1].Kind)
		assert.Equal(t, statsdtest.KindTiming, samples[2].Kind)
	}
}
