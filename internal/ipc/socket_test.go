package ipc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func deadProbe(context.Context, string) (bool, error) { return false, nil }

func TestAcquireFreshSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "kbd.sock")

	listener, err := Acquire(context.Background(), socketPath, deadProbe, 0)
	require.NoError(t, err)
	defer listener.Close()

	require.Equal(t, socketPath, listener.Addr().String())
}

func TestAcquireReclaimsStaleSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "kbd.sock")

	// A listener that is closed without unlinking leaves a stale socket file.
	stale, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	listener, err := Acquire(context.Background(), socketPath, deadProbe, 2)
	require.NoError(t, err)
	defer listener.Close()
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "kbd.sock")

	owner, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer owner.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	liveProbe := func(context.Context, string) (bool, error) { return true, nil }
	_, err = Acquire(ctx, socketPath, liveProbe, 1)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestRuntimeDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	require.Equal(t, "/run/user/1000/parakeet", RuntimeDir())
	require.Equal(t, "/run/user/1000/parakeet/kbd.sock", ControlSocketPath())
}
