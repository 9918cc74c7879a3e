package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const dialTimeout = 5 * time.Second

// Config describes how to connect to a StatsD-compatible sink.
type Config struct {
	Enabled    bool
	Address    string
	Prefix     string
	Logger     *slog.Logger
	GlobalTags map[string]string
}

type metricKind string

const (
	kindCount  metricKind = "c"
	kindGauge  metricKind = "g"
	kindTiming metricKind = "ms"
)

// encoder renders DogStatsD lines: "<prefix>.<name>:<value>|<kind>|#k:v,...".
type encoder struct {
	prefix string
	tags   map[string]string
}

func (e encoder) encode(name, value string, kind metricKind, tags map[string]string) string {
	metric := metricName(e.prefix, name)
	if metric == "" {
		return ""
	}
	line := metric + ":" + value + "|" + string(kind)

	merged := maps.Clone(e.tags)
	if merged == nil {
		merged = map[string]string{}
	}
	maps.Copy(merged, cleanTags(tags))
	if len(merged) == 0 {
		return line
	}
	pairs := make([]string, 0, len(merged))
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		pairs = append(pairs, k+":"+merged[k])
	}
	return line + "|#" + strings.Join(pairs, ",")
}

// metricName joins prefix and name with dots, dropping empty segments. Spaces and slashes in
// name become underscores.
func metricName(prefix, name string) string {
	name = strings.NewReplacer(" ", "_", "/", "_").Replace(strings.TrimSpace(name))
	var segs []string
	for seg := range strings.SplitSeq(name, ".") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	if len(segs) == 0 {
		return ""
	}
	if prefix != "" {
		segs = slices.Insert(segs, 0, prefix)
	}
	return strings.Join(segs, ".")
}

// cleanTags trims keys and values and drops entries where either ends up empty.
func cleanTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

// Client writes metrics to a UDP StatsD endpoint. A nil *Client, or one without a connection,
// drops everything.
type Client struct {
	enc    encoder
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials cfg.Address unless the config is disabled or the address blank.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		enc: encoder{
			prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "."),
			tags:   cleanTags(cfg.GlobalTags),
		},
		logger: logger.With("component", "statsd"),
	}

	addr := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || addr == "" {
		return c, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", addr, err)
	}
	c.conn = conn
	c.logger.Debug("statsd connected", "address", addr, "prefix", c.enc.prefix)
	return c, nil
}

// Enabled reports whether metrics are actually sent.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.emit(name, strconv.FormatInt(value, 10), kindCount, tags)
}

func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.emit(name, strconv.FormatFloat(value, 'f', -1, 64), kindGauge, tags)
}

// Timing reports d in fractional milliseconds.
func (c *Client) Timing(name string, d time.Duration, tags map[string]string) {
	ms := float64(d) / float64(time.Millisecond)
	c.emit(name, strconv.FormatFloat(ms, 'f', -1, 64), kindTiming, tags)
}

// Close drops the connection. Later calls and later metrics are no-ops.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	return conn.Close()
}

func (c *Client) emit(name, value string, kind metricKind, tags map[string]string) {
	if c == nil {
		return
	}
	line := c.enc.encode(name, value, kind, tags)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "metric", name, "error", err)
	}
}
