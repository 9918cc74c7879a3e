package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/target/mmk-dataport/internal/core"
)

// FileStoreOptions configure NewFileStore.
type FileStoreOptions struct {
	Dir    string
	Logger *slog.Logger
}

// FileStore keeps artifacts under a local directory and addresses them with file:// URIs.
type FileStore struct {
	root   string
	logger *slog.Logger
}

var _ core.ArtifactStore = (*FileStore)(nil)

// NewFileStore creates the root directory if needed.
func NewFileStore(opts FileStoreOptions) (*FileStore, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("artifact dir is required")
	}
	root, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "artifact_store", "backend", "fs")
	logger.Debug("file artifact store initialized", "root", root)
	return &FileStore{root: root, logger: logger}, nil
}

// Put writes r to key. The file becomes visible only once fully written.
func (s *FileStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, key)
	}
	dst := filepath.Join(s.root, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("create artifact parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "failed to remove temp artifact", "path", tmp.Name(), "error", rmErr)
		}
	}()

	if _, err := io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write artifact %s: %w", k, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("sync artifact %s: %w", k, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact %s: %w", k, err)
	}

	// Link fails when dst exists, which keeps the store write-once.
	if err := os.Link(tmp.Name(), dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, k)
		}
		return "", fmt.Errorf("publish artifact %s: %w", k, err)
	}

	uri := (&url.URL{Scheme: "file", Path: filepath.ToSlash(dst)}).String()
	s.logger.DebugContext(ctx, "artifact stored", "key", k, "uri", uri)
	return uri, nil
}

// Open accepts a file:// URI inside the store root or a bare key.
func (s *FileStore) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	p, err := s.resolve(uri)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// Delete removes the artifact at uri.
func (s *FileStore) Delete(ctx context.Context, uri string) error {
	p, err := s.resolve(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	s.logger.DebugContext(ctx, "artifact removed", "uri", uri)
	return nil
}

func (s *FileStore) resolve(uri string) (string, error) {
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
		return filepath.Join(s.root, filepath.FromSlash(k)), nil
	case "file":
		p := filepath.Clean(filepath.FromSlash(u.Path))
		rel, rerr := filepath.Rel(s.root, p)
		if rerr != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("%w: %s", ErrForeignURI, uri)
		}
		return p, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrForeignURI, uri)
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
