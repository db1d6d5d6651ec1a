// Package logging configures runtime JSONL logging output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Runtime bundles the configured logger and its open sink lifecycle.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New builds a JSONL logger for one component under the state directory.
//
// The terminal proxy must never write to stdout/stderr while relaying, so
// file output is the only sink.
func New(component string) (Runtime, error) {
	path, err := resolveLogPath(component)
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Runtime{}, err
	}

	h := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level()})
	return Runtime{Logger: slog.New(h), Path: path, closer: f}, nil
}

// NewRotating builds a size-capped JSONL logger for long-lived daemons.
func NewRotating(component string) (Runtime, error) {
	path, err := resolveLogPath(component)
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, err
	}

	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}

	h := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: level()})
	return Runtime{Logger: slog.New(h), Path: path, closer: sink}, nil
}

// level honors PARAKEET_DEBUG for verbose output.
func level() slog.Level {
	if strings.TrimSpace(os.Getenv("PARAKEET_DEBUG")) != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// resolveLogPath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func resolveLogPath(component string) (string, error) {
	name := strings.TrimSpace(component)
	if name == "" {
		name = "parakeet"
	}
	file := name + ".jsonl"

	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "parakeet", "log", file), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "parakeet", "log", file), nil
}
