package config

import "strings"

// StorageBackend selects where job artifacts are written.
type StorageBackend string

const (
	// StorageBackendFS writes artifacts under a local directory.
	StorageBackendFS StorageBackend = "fs"
	// StorageBackendS3 writes artifacts to an S3 compatible bucket.
	StorageBackendS3 StorageBackend = "s3"
)

// StorageConfig contains artifact storage configuration.
type StorageConfig struct {
	Backend StorageBackend `env:"BACKEND" envDefault:"fs"`
	// Dir is the root directory for job artifacts when Backend is fs.
	Dir string `env:"DIR" envDefault:"./var/artifacts"`

	S3Bucket       string `env:"S3_BUCKET"`
	S3Prefix       string `env:"S3_PREFIX"`
	S3Region       string `env:"S3_REGION"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	switch StorageBackend(strings.ToLower(strings.TrimSpace(string(s.Backend)))) {
	case StorageBackendS3:
		s.Backend = StorageBackendS3
	default:
		s.Backend = StorageBackendFS
	}
	if s.Dir = strings.TrimSpace(s.Dir); s.Dir == "" {
		s.Dir = "./var/artifacts"
	}
	s.S3Bucket = strings.TrimSpace(s.S3Bucket)
	s.S3Prefix = strings.Trim(strings.TrimSpace(s.S3Prefix), "/")
	s.S3Endpoint = strings.TrimSpace(s.S3Endpoint)
}
