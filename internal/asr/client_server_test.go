package asr

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeEngine records invocations and answers from a scripted function.
type fakeEngine struct {
	model string
	fn    func(pcm []byte) (string, error)

	mu       sync.Mutex
	calls    [][]byte
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeEngine) ModelName() string { return f.model }

func (f *fakeEngine) Transcribe(_ context.Context, pcm []byte) (string, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, append([]byte{}, pcm...))
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(pcm)
	}
	return "ok", nil
}

func (f *fakeEngine) Close() error { return nil }

func startTestServer(t *testing.T, engine Engine, queueTimeout time.Duration) (*Client, func()) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "parakeet.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	server := NewServer(engine, nil, queueTimeout, 0)
	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(ctx, listener)
	}()

	client := &Client{
		SocketPath:        socketPath,
		TranscribeTimeout: 5 * time.Second,
		PingTimeout:       time.Second,
	}
	return client, func() {
		cancel()
		require.NoError(t, <-serveErr)
	}
}

func TestTranscribeRoundtrip(t *testing.T) {
	engine := &fakeEngine{model: "test-model", fn: func(pcm []byte) (string, error) {
		return fmt.Sprintf("heard %d bytes", len(pcm)), nil
	}}
	client, shutdown := startTestServer(t, engine, time.Second)
	defer shutdown()

	text, err := client.Transcribe(context.Background(), make([]byte, 4096))
	require.NoError(t, err)
	require.Equal(t, "heard 4096 bytes", text)
}

func TestPingReturnsModelName(t *testing.T) {
	client, shutdown := startTestServer(t, &fakeEngine{model: "nvidia/parakeet-tdt-0.6b-v2"}, time.Second)
	defer shutdown()

	model, err := client.Ping(context.Background())
	require.NoError(t, err)
	require.Equal(t, "nvidia/parakeet-tdt-0.6b-v2", model)
}

func TestEmptyAudioRejectedWithoutEngineCall(t *testing.T) {
	engine := &fakeEngine{model: "m"}
	client, shutdown := startTestServer(t, engine, time.Second)
	defer shutdown()

	_, err := client.Transcribe(context.Background(), nil)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, CodeEmptyAudio, serverErr.Code)

	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Empty(t, engine.calls)
}

func TestWhitespaceTranscriptIsEmptyTranscriptError(t *testing.T) {
	engine := &fakeEngine{model: "m", fn: func([]byte) (string, error) {
		return "  \n\t ", nil
	}}
	client, shutdown := startTestServer(t, engine, time.Second)
	defer shutdown()

	_, err := client.Transcribe(context.Background(), []byte{1, 2, 3})
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, CodeEmptyTranscript, serverErr.Code)
}

func TestEngineFailureSurfacesAsServerError(t *testing.T) {
	engine := &fakeEngine{model: "m", fn: func([]byte) (string, error) {
		return "", fmt.Errorf("GPU fell off the bus")
	}}
	client, shutdown := startTestServer(t, engine, time.Second)
	defer shutdown()

	_, err := client.Transcribe(context.Background(), []byte{1})
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, CodeEngineFailure, serverErr.Code)
	require.Contains(t, serverErr.Detail, "GPU fell off the bus")
}

func TestUnavailableServerIsDistinctErrorKind(t *testing.T) {
	client := &Client{
		SocketPath:        filepath.Join(t.TempDir(), "absent.sock"),
		TranscribeTimeout: time.Second,
		PingTimeout:       time.Second,
	}

	_, err := client.Transcribe(context.Background(), []byte{1})
	require.ErrorIs(t, err, ErrServerUnavailable)

	var serverErr *ServerError
	require.False(t, IsServerUnavailable(&ServerError{Code: CodeEmptyAudio}))
	require.NotErrorAs(t, err, &serverErr)
}

func TestRequestsServedInArrivalOrderWithoutOverlap(t *testing.T) {
	release := make(chan struct{})
	engine := &fakeEngine{model: "m", fn: func(pcm []byte) (string, error) {
		<-release
		return fmt.Sprintf("seq-%d", pcm[0]), nil
	}}
	client, shutdown := startTestServer(t, engine, 10*time.Second)
	defer shutdown()

	const n = 5
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Transcribe(context.Background(), []byte{byte(i)})
		}(i)
		// Stagger submissions so arrival order is deterministic.
		time.Sleep(30 * time.Millisecond)
	}

	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, fmt.Sprintf("seq-%d", i), results[i])
	}

	// FIFO arrival order at the engine, never two invocations at once.
	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.calls, n)
	for i, call := range engine.calls {
		require.Equal(t, byte(i), call[0])
	}
	require.Equal(t, int32(1), engine.maxSeen.Load())
}

func TestPingAnsweredWhileInferenceRuns(t *testing.T) {
	release := make(chan struct{})
	engine := &fakeEngine{model: "busy-model", fn: func([]byte) (string, error) {
		<-release
		return "done", nil
	}}
	client, shutdown := startTestServer(t, engine, 10*time.Second)
	defer shutdown()

	transcribeDone := make(chan error, 1)
	go func() {
		_, err := client.Transcribe(context.Background(), []byte{1})
		transcribeDone <- err
	}()

	// Give the transcribe request time to reach the worker.
	time.Sleep(50 * time.Millisecond)

	model, err := client.Ping(context.Background())
	require.NoError(t, err)
	require.Equal(t, "busy-model", model)

	close(release)
	require.NoError(t, <-transcribeDone)
}

func TestQueueTimeoutAbandonsRequest(t *testing.T) {
	release := make(chan struct{})
	engine := &fakeEngine{model: "m", fn: func([]byte) (string, error) {
		<-release
		return "slow", nil
	}}
	client, shutdown := startTestServer(t, engine, 100*time.Millisecond)
	defer shutdown()

	// First request occupies the worker.
	firstDone := make(chan error, 1)
	go func() {
		_, err := client.Transcribe(context.Background(), []byte{1})
		firstDone <- err
	}()
	time.Sleep(30 * time.Millisecond)

	// Second request waits in the queue past the timeout.
	_, err := client.Transcribe(context.Background(), []byte{2})
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	require.Equal(t, CodeTimeout, serverErr.Code)

	close(release)
	<-firstDone

	// The abandoned job must never reach the engine.
	time.Sleep(50 * time.Millisecond)
	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.calls, 1)
	require.Equal(t, byte(1), engine.calls[0][0])
}

func TestAcquireSocketReclaimsStaleFile(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "parakeet.sock")

	stale, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	listener, err := AcquireSocket(context.Background(), socketPath)
	require.NoError(t, err)
	defer listener.Close()
}

func TestAcquireSocketRefusesLiveServer(t *testing.T) {
	engine := &fakeEngine{model: "m"}
	client, shutdown := startTestServer(t, engine, time.Second)
	defer shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := AcquireSocket(ctx, client.SocketPath)
	require.Error(t, err)
}

func TestSocketPathOverride(t *testing.T) {
	require.Equal(t, "/tmp/custom.sock", SocketPath("/tmp/custom.sock"))

	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	require.Equal(t, "/run/user/1000/parakeet/parakeet.sock", SocketPath(""))
	require.Equal(t, "/run/user/1000/parakeet/parakeet.pid", PIDPath(SocketPath("")))
}
