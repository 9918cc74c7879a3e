package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/target/mmk-dataport/config"
)

// InitLogger installs a JSON logger at info level for use until configuration is loaded.
func InitLogger() *slog.Logger {
	return installLogger(slog.New(jsonHandler(os.Stdout, slog.LevelInfo)))
}

// ConfigureLogger replaces the default logger according to cfg. With LOG_FILE set, records also
// go to that file; the returned func closes it.
func ConfigureLogger(cfg *config.AppConfig) (*slog.Logger, func() error, error) {
	level := cfg.SlogLevel()
	stdout := jsonHandler(os.Stdout, level)
	if cfg.LogFile == "" {
		return installLogger(slog.New(stdout)), func() error { return nil }, nil
	}

	//nolint:gosec // operator supplied path
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", cfg.LogFile, err)
	}
	return installLogger(NewFanoutLogger(stdout, f, level)), f.Close, nil
}

// NewFanoutLogger sends each record to primary and as JSON to w.
func NewFanoutLogger(primary slog.Handler, w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(primary, jsonHandler(w, level)))
}

func jsonHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

func installLogger(l *slog.Logger) *slog.Logger {
	slog.SetDefault(l)
	return l
}
