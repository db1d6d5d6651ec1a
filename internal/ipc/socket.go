package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrAlreadyRunning indicates a live daemon already owns the socket.
var ErrAlreadyRunning = errors.New("daemon already running")

// RuntimeDir resolves the per-user runtime directory holding parakeet sockets.
func RuntimeDir() string {
	if runtime := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtime != "" {
		return filepath.Join(runtime, "parakeet")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("parakeet-%d", os.Getuid()))
}

// ControlSocketPath is the window-mode daemon's JSON control socket.
func ControlSocketPath() string {
	return filepath.Join(RuntimeDir(), "kbd.sock")
}

// ProbeFunc reports whether a responsive owner is listening on path.
type ProbeFunc func(ctx context.Context, path string) (bool, error)

// Acquire binds a unix listener at path, reclaiming stale socket files left
// behind by crashed owners. probe decides whether an existing socket has a
// live owner; a live owner yields ErrAlreadyRunning.
func Acquire(ctx context.Context, path string, probe ProbeFunc, retries int) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; attempt <= retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}

		if !isAddrInUse(err) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, probeErr := probe(ctx, path)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, removeErr)
		}

		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, retries)
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}
