package httpx

import (
	"compress/gzip"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// CompressionConfig configures Compression.
type CompressionConfig struct {
	// Level is a gzip level from 1 to 9. Anything else means the gzip default.
	Level  int
	Logger *slog.Logger
}

// Compression gzips textual responses for clients that accept it. HEAD requests, bodiless
// statuses and already encoded bodies are left alone.
func Compression(cfg CompressionConfig) Middleware {
	level := cfg.Level
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	writers := sync.Pool{New: func() any {
		zw, _ := gzip.NewWriterLevel(io.Discard, level)
		return zw
	}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Accept-Encoding")

			gw := &gzipWriter{ResponseWriter: w, acquire: func() *gzip.Writer {
				zw, _ := writers.Get().(*gzip.Writer)
				return zw
			}}
			next.ServeHTTP(gw, r)

			if gw.zw == nil {
				return
			}
			if err := gw.zw.Close(); err != nil {
				logger.ErrorContext(r.Context(), "gzip close failed", "error", err)
			}
			gw.zw.Reset(io.Discard)
			writers.Put(gw.zw)
		})
	}
}

// acceptsGzip reports whether an Accept-Encoding header allows gzip with a non-zero weight.
func acceptsGzip(header string) bool {
	for entry := range strings.SplitSeq(header, ",") {
		coding, params, _ := strings.Cut(entry, ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			continue
		}
		key, val, found := strings.Cut(strings.ReplaceAll(params, " ", ""), "=")
		if !found || !strings.EqualFold(key, "q") {
			return true
		}
		q, err := strconv.ParseFloat(val, 64)
		return err != nil || q > 0
	}
	return false
}

func compressible(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mt {
	case "application/json", "application/x-ndjson", "application/yaml":
		return true
	}
	return strings.HasPrefix(mt, "text/")
}

// gzipWriter picks compression when the status line is written.
type gzipWriter struct {
	http.ResponseWriter
	acquire     func() *gzip.Writer
	zw          *gzip.Writer
	wroteHeader bool
}

func (g *gzipWriter) WriteHeader(status int) {
	if g.wroteHeader {
		return
	}
	g.wroteHeader = true

	h := g.Header()
	bodyless := status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified
	if !bodyless && h.Get("Content-Encoding") == "" && compressible(h.Get("Content-Type")) {
		g.zw = g.acquire()
		g.zw.Reset(g.ResponseWriter)
		h.Set("Content-Encoding", "gzip")
		h.Del("Content-Length")
	}
	g.ResponseWriter.WriteHeader(status)
}

func (g *gzipWriter) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		if g.Header().Get("Content-Type") == "" {
			g.Header().Set("Content-Type", http.DetectContentType(b))
		}
		g.WriteHeader(http.StatusOK)
	}
	if g.zw == nil {
		return g.ResponseWriter.Write(b)
	}
	return g.zw.Write(b)
}

// Flush pushes buffered compressed bytes to the client.
func (g *gzipWriter) Flush() {
	if g.zw != nil {
		_ = g.zw.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
