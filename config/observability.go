package config

import "strings"

const defaultMetricsNamespace = "dataport"

// MetricsConfig controls emission of metrics to StatsD and the Prometheus registry.
type MetricsConfig struct {
	StatsdEnabled     bool   `env:"STATSD_ENABLED"     envDefault:"false"`
	StatsdAddress     string `env:"STATSD_ADDRESS"     envDefault:"127.0.0.1:8125"`
	PrometheusEnabled bool   `env:"PROMETHEUS_ENABLED" envDefault:"true"`
	Namespace         string `env:"NAMESPACE"          envDefault:"dataport"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.StatsdEnabled = false
	}
	if c.Namespace = strings.TrimSpace(c.Namespace); c.Namespace == "" {
		c.Namespace = defaultMetricsNamespace
	}
}

// IsStatsdEnabled returns true when statsd emission is active after sanitisation.
func (c *MetricsConfig) IsStatsdEnabled() bool {
	return c.StatsdEnabled && c.StatsdAddress != ""
}
