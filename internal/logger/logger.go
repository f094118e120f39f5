package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	level slog.LevelVar

	mu   sync.RWMutex
	base *slog.Logger
)

func init() {
	level.Set(slog.LevelInfo)
	base = build(os.Stdout)
}

func build(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &level}))
}

// SetOutput replaces the destination of all subsequent log lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	base = build(w)
	mu.Unlock()
}

// OpenLogFile opens (creating directories as needed) an append-only log file
// and tees all output to stdout and the file. The caller owns the handle.
func OpenLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	SetOutput(io.MultiWriter(os.Stdout, f))
	return f, nil
}

// SetLevel 解析日志级别字符串，未知值回落到 info。
func SetLevel(s string) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn", "warning":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

func active() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Debugf(format string, v ...any) { active().Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { active().Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { active().Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { active().Error(fmt.Sprintf(format, v...)) }
