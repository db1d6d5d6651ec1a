package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

// SoxRecorder spawns SoX's rec with a silence effect so the subprocess exits
// on its own once the speaker stops talking. PCM is read from its stdout.
type SoxRecorder struct {
	cfg config.AudioConfig
}

// NewSoxRecorder builds the rec-subprocess backend.
func NewSoxRecorder(cfg config.AudioConfig) *SoxRecorder {
	return &SoxRecorder{cfg: cfg}
}

// recArgv builds the capture command. A configured rec_cmd replaces the
// default entirely; it must emit raw s16le PCM on stdout and exit on silence.
func recArgv(cfg config.AudioConfig) []string {
	if len(cfg.RecCmd.Argv) > 0 {
		return cfg.RecCmd.Argv
	}

	secs := strconv.FormatFloat(cfg.SilenceSecs, 'f', 1, 64)
	return []string{
		"rec", "-q",
		"-t", "raw",
		"-r", strconv.Itoa(SampleRate),
		"-c", "1",
		"-b", "16",
		"-e", "signed-integer",
		"-",
		"silence", "1", "0.1", cfg.SilenceThreshold,
		"1", secs, cfg.SilenceThreshold,
	}
}

// Start spawns the recorder and begins draining its stdout.
func (r *SoxRecorder) Start(ctx context.Context) (Capture, error) {
	argv := recArgv(r.cfg)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder %s: %w", argv[0], err)
	}

	c := &soxCapture{
		process: cmd.Process,
		stderr:  stderr,
		done:    make(chan struct{}),
	}

	go func() {
		_, readErr := io.Copy(&c.lockedBuf, stdout)
		waitErr := cmd.Wait()
		c.finish(readErr, waitErr)
	}()

	return c, nil
}

type soxCapture struct {
	process *os.Process
	stderr  *bytes.Buffer

	lockedBuf lockedBuffer

	stopOnce  sync.Once
	requested atomic.Bool

	done chan struct{}
	err  error
}

// Done is closed when the recorder subprocess has exited.
func (c *soxCapture) Done() <-chan struct{} {
	return c.done
}

// Stop terminates the recorder, escalating from SIGINT to SIGKILL. SIGINT
// lets SoX flush its last buffered samples before exiting.
func (c *soxCapture) Stop() {
	c.stopOnce.Do(func() {
		c.requested.Store(true)
		_ = c.process.Signal(os.Interrupt)
		go func() {
			select {
			case <-c.done:
			case <-time.After(2 * time.Second):
				_ = c.process.Kill()
			}
		}()
	})
}

// Result returns the captured PCM, or the recorder failure.
func (c *soxCapture) Result() ([]byte, error) {
	<-c.done
	if c.err != nil {
		return nil, c.err
	}
	return c.lockedBuf.bytes(), nil
}

// finish classifies the subprocess outcome. A non-zero exit after a
// requested stop, or after usable audio was produced, is still a success:
// SoX reports interrupted recordings as failures.
func (c *soxCapture) finish(readErr, waitErr error) {
	defer close(c.done)

	if readErr != nil && !errors.Is(readErr, os.ErrClosed) {
		c.err = fmt.Errorf("read recorder output: %w", readErr)
		return
	}

	if waitErr != nil && !c.requested.Load() && c.lockedBuf.len() == 0 {
		tail := bytes.TrimSpace(c.stderr.Bytes())
		if len(tail) > 0 {
			c.err = fmt.Errorf("recorder failed: %w: %s", waitErr, tail)
			return
		}
		c.err = fmt.Errorf("recorder failed: %w", waitErr)
	}
}

// lockedBuffer is an append-only byte buffer safe for one writer and
// post-completion readers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *lockedBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *lockedBuffer) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}
