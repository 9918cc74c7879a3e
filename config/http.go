package config

import (
	"strings"
	"time"
)

// HTTPConfig configures the job API listener. Variables are prefixed HTTP_.
type HTTPConfig struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	// RequesterHeader names the header in which the fronting proxy asserts the caller. Jobs are
	// owned by, and only visible to, that principal.
	RequesterHeader string `env:"REQUESTER_HEADER" envDefault:"X-Requested-By"`

	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	// ShutdownTimeout bounds the drain of in-flight requests on SIGTERM.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// CompressionEnabled gzips textual responses; CompressionLevel is clamped to 1..9.
	CompressionEnabled bool `env:"COMPRESSION_ENABLED" envDefault:"false"`
	CompressionLevel   int  `env:"COMPRESSION_LEVEL"   envDefault:"6"`
}

// Sanitize clamps the compression level and restores defaults for blank or non-positive values.
func (h *HTTPConfig) Sanitize() {
	h.CompressionLevel = min(max(h.CompressionLevel, 1), 9)
	h.RequesterHeader = strings.TrimSpace(h.RequesterHeader)
	if h.RequesterHeader == "" {
		h.RequesterHeader = "X-Requested-By"
	}
	h.ReadHeaderTimeout = positiveOr(h.ReadHeaderTimeout, 10*time.Second)
	h.ShutdownTimeout = positiveOr(h.ShutdownTimeout, 30*time.Second)
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
