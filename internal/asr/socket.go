package asr

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BrainBuilders/parakeet-kbd/internal/ipc"
)

// SocketPath resolves the inference server socket, honoring the configured
// override before falling back to the runtime directory default.
func SocketPath(configured string) string {
	if path := strings.TrimSpace(configured); path != "" {
		return path
	}
	return filepath.Join(ipc.RuntimeDir(), "parakeet.sock")
}

// PIDPath is the server's pid file, kept beside the socket.
func PIDPath(socketPath string) string {
	return filepath.Join(filepath.Dir(socketPath), "parakeet.pid")
}

// WritePIDFile records the current process id beside the socket.
func WritePIDFile(socketPath string) error {
	path := PIDPath(socketPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("ensure pid dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// RemovePIDFile deletes the server's pid file, ignoring absence.
func RemovePIDFile(socketPath string) {
	_ = os.Remove(PIDPath(socketPath))
}

// probe reports whether a live server answers a ping on path.
func probe(pingTimeout time.Duration) ipc.ProbeFunc {
	return func(ctx context.Context, path string) (bool, error) {
		client := &Client{SocketPath: path, PingTimeout: pingTimeout}
		if _, err := client.Ping(ctx); err != nil {
			if IsServerUnavailable(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
}

// AcquireSocket binds the server listener, reclaiming stale socket files.
func AcquireSocket(ctx context.Context, path string) (net.Listener, error) {
	return ipc.Acquire(ctx, path, probe(500*time.Millisecond), 3)
}
