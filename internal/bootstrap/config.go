package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/mmk-dataport/config"
)

// envFileVar names an alternative dotenv file. The default is .env in the working directory.
const envFileVar = "DATAPORT_ENV_FILE"

// LoadConfig reads the dotenv file, if one exists, then parses and sanitizes the environment.
// Variables already set in the process win over the file.
func LoadConfig() (config.AppConfig, error) {
	var cfg config.AppConfig

	path := os.Getenv(envFileVar)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig reports every problem that would stop the enabled services from starting.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("SERVICES: %w", err)
	}
	if len(enabled) == 0 {
		return errors.New("SERVICES: no services enabled")
	}

	var problems []error
	if cfg.Storage.Backend == config.StorageBackendS3 && cfg.Storage.S3Bucket == "" {
		problems = append(problems, errors.New("STORAGE_S3_BUCKET is required when STORAGE_BACKEND=s3"))
	}
	if cfg.NeedsRedis() {
		if err := redisProblem(cfg.Redis); err != nil {
			problems = append(problems, err)
		}
	}
	return errors.Join(problems...)
}

func redisProblem(cfg config.RedisConfig) error {
	switch cfg.Mode() {
	case config.RedisModeCluster:
		if len(cfg.Nodes()) == 0 {
			return errors.New("REDIS_CLUSTER_NODES is required when REDIS_USE_CLUSTER=true")
		}
	case config.RedisModeSentinel:
		if len(cfg.Nodes()) == 0 {
			return errors.New("REDIS_SENTINEL_NODES is required when REDIS_USE_SENTINEL=true")
		}
	case config.RedisModeDirect:
		if strings.TrimSpace(cfg.URI) == "" {
			return errors.New("REDIS_URI is required by the asynq queue and the progress cache")
		}
	}
	return nil
}

// GetEnabledServices lists the enabled service names in order, or nothing when SERVICES is invalid.
func GetEnabledServices(cfg *config.AppConfig) []string {
	names := []string{}
	if cfg == nil {
		return names
	}
	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return names
	}
	for mode := range maps.Keys(enabled) {
		names = append(names, string(mode))
	}
	slices.Sort(names)
	return names
}
