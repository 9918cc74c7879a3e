package statsd

import (
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix string
		name   string
		want   string
	}{
		{prefix: "", name: "job.transition", want: "job.transition"},
		{prefix: "dataport", name: "job.transition", want: "dataport.job.transition"},
		{prefix: "dataport", name: " job..rows/total ", want: "dataport.job.rows_total"},
		{prefix: "dataport", name: "   ", want: ""},
		{prefix: "", name: "..", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, metricName(tt.prefix, tt.name), "prefix=%q name=%q", tt.prefix, tt.name)
	}
}

func TestEncoder(t *testing.T) {
	t.Parallel()

	enc := encoder{prefix: "dataport", tags: cleanTags(map[string]string{"env": "test", "region": "us"})}

	line := enc.encode("job.transition", "1", kindCount, map[string]string{
		"region":      "eu",
		"result":      "success",
		"error_class": "",
		" ":           "dropped",
	})
	assert.Equal(t, "dataport.job.transition:1|c|#env:test,region:eu,result:success", line)
	assert.Equal(t, map[string]string{"env": "test", "region": "us"}, enc.tags, "global tags must not be mutated")

	assert.Equal(t, "dataport.job.duration:1.5|ms", encoder{prefix: "dataport"}.encode("job.duration", "1.5", kindTiming, nil))
	assert.Empty(t, enc.encode("", "1", kindCount, nil))
}

func TestCleanTagsDropsEmpty(t *testing.T) {
	t.Parallel()

	got := cleanTags(map[string]string{" a ": " 1 ", "b": "", "": "x"})
	assert.Equal(t, map[string]string{"a": "1"}, got)
}

func TestClientWritesOverConnection(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	c := &Client{conn: clientConn, logger: discardLogger()}

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := peerConn.Read(buf)
		received <- string(buf[:n])
	}()

	c.Timing("export", 1500*time.Microsecond, map[string]string{"direction": "export"})

	select {
	case line := <-received:
		assert.Equal(t, "export:1.5|ms|#direction:export", line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for metric line")
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	c := &Client{conn: clientConn, logger: discardLogger()}
	assert.True(t, c.Enabled())

	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close())

	// Writes after Close are dropped.
	c.Count("x", 1, nil)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	require.NoError(t, nilClient.Close())
	nilClient.Gauge("x", 1, nil)
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	c, err = NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "statsd dial"), "unexpected error: %v", err)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
