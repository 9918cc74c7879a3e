package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DBConfig locates the Postgres database holding transfer_jobs and the tables resources read.
// Variables are prefixed DB_.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"dataport"`
	Password string `env:"PASSWORD" envDefault:"dataport"`
	Name     string `env:"NAME"     envDefault:"dataport"`
	// SSLMode is passed through to libpq: disable locally, require or verify-full in production.
	SSLMode string `env:"SSL_MODE" envDefault:"disable"`
	// MaxConns caps the pool; a fifth of it is kept idle.
	MaxConns             int  `env:"MAX_CONNS"               envDefault:"25"`
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN returns the pgx connection URL with credentials escaped.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisMode is the Redis topology a RedisConfig connects to.
type RedisMode string

const (
	RedisModeDirect   RedisMode = "direct"
	RedisModeSentinel RedisMode = "sentinel"
	RedisModeCluster  RedisMode = "cluster"
)

// RedisConfig configures the Redis used by the asynq queue and the progress cache. Variables
// are prefixed REDIS_. URI accepts host:port or a redis:// URL.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`

	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`

	UseCluster   bool     `env:"USE_CLUSTER"   envDefault:"false"`
	ClusterNodes []string `env:"CLUSTER_NODES" envDefault:""`
}

// Mode reports the configured topology. Cluster takes precedence over sentinel.
func (c RedisConfig) Mode() RedisMode {
	switch {
	case c.UseCluster:
		return RedisModeCluster
	case c.UseSentinel:
		return RedisModeSentinel
	default:
		return RedisModeDirect
	}
}

// Nodes returns the trimmed, non-empty node addresses for Mode. Direct mode has none.
func (c RedisConfig) Nodes() []string {
	var raw []string
	switch c.Mode() {
	case RedisModeCluster:
		raw = c.ClusterNodes
	case RedisModeSentinel:
		raw = c.SentinelNodes
	case RedisModeDirect:
		return nil
	}
	nodes := make([]string, 0, len(raw))
	for _, n := range raw {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// IsURL reports whether URI is a redis:// or rediss:// URL rather than host:port.
func (c RedisConfig) IsURL() bool {
	uri := strings.TrimSpace(c.URI)
	return strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://")
}
