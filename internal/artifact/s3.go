package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/target/mmk-dataport/internal/core"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3ClientConfig configures NewS3Client. Credentials come from the default AWS chain.
type S3ClientConfig struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint     string
	UsePathStyle bool
}

// NewS3Client loads the default AWS configuration and builds an S3 client.
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// S3StoreOptions configure NewS3Store.
type S3StoreOptions struct {
	Client S3API
	Bucket string
	Prefix string
	Logger *slog.Logger
}

// S3Store keeps artifacts in a bucket and addresses them with s3:// URIs.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

var _ core.ArtifactStore = (*S3Store)(nil)

// NewS3Store validates opts.
func NewS3Store(opts S3StoreOptions) (*S3Store, error) {
	if opts.Client == nil {
		return nil, errors.New("s3 client is required")
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{
		client: opts.Client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		logger: logger.With("component", "artifact_store", "backend", "s3", "bucket", opts.Bucket),
	}, nil
}

// Put uploads r under key with If-None-Match so existing objects are never replaced.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, key)
	}
	objectKey := s.objectKey(k)

	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", k, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return "", fmt.Errorf("%w: %s", ErrExists, k)
		}
		return "", fmt.Errorf("put artifact %s: %w", k, err)
	}

	uri := (&url.URL{Scheme: "s3", Host: s.bucket, Path: "/" + objectKey}).String()
	s.logger.DebugContext(ctx, "artifact stored", "key", objectKey, "bytes", len(body))
	return uri, nil
}

// Open accepts s3://<bucket>/<key> URIs for the configured bucket or a bare key.
func (s *S3Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	objectKey, err := s.resolve(uri)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return out.Body, nil
}

// Delete removes the object behind uri. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, uri string) error {
	objectKey, err := s.resolve(uri)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	s.logger.DebugContext(ctx, "artifact removed", "key", objectKey)
	return nil
}

func (s *S3Store) resolve(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, uri)
	}
	switch u.Scheme {
	case "":
		k, kerr := cleanKey(uri)
		if kerr != nil {
			return "", fmt.Errorf("%w: %q", kerr, uri)
		}
		return s.objectKey(k), nil
	case "s3":
		if u.Host != s.bucket {
			return "", fmt.Errorf("%w: %s", ErrForeignURI, uri)
		}
		k, kerr := cleanKey(strings.TrimPrefix(u.Path, "/"))
		if kerr != nil {
			return "", fmt.Errorf("%w: %q", kerr, uri)
		}
		return k, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrForeignURI, uri)
	}
}

func (s *S3Store) objectKey(k string) string {
	if s.prefix == "" {
		return k
	}
	return path.Join(s.prefix, k)
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	default:
		return false
	}
}
