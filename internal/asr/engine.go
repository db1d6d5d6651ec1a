package asr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Engine is the resident speech-to-text backend owned by the server worker.
type Engine interface {
	ModelName() string
	Transcribe(ctx context.Context, pcm []byte) (string, error)
	Close() error
}

// ErrEngineDown indicates the engine subprocess has exited and the server is
// degraded; requests fail until the server is restarted.
var ErrEngineDown = errors.New("inference engine process has exited")

// ProcessEngine keeps a configured engine command resident and speaks the
// framed protocol over its stdin/stdout. The subprocess loads the model once
// at startup and answers one request at a time.
type ProcessEngine struct {
	argv  []string
	model string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *bytes.Buffer

	exited  chan struct{}
	exitErr error

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// StartProcessEngine spawns the engine and blocks until it answers a ping,
// which the engine sends only after its model is loaded. The context bounds
// the wait; model downloads on first use can make it long.
func StartProcessEngine(ctx context.Context, argv []string, model string) (*ProcessEngine, error) {
	if len(argv) == 0 {
		return nil, errors.New("engine command is empty")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", argv[0], err)
	}

	e := &ProcessEngine{
		argv:    argv,
		model:   model,
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		exited: make(chan struct{}),
	}
	go func() {
		e.exitErr = cmd.Wait()
		close(e.exited)
	}()

	reported, err := e.handshake(ctx)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	if reported != "" {
		e.model = reported
	}

	return e, nil
}

// handshake pings the engine and waits for its pong, returning the model
// name the engine reports.
func (e *ProcessEngine) handshake(ctx context.Context) (string, error) {
	type pong struct {
		model string
		err   error
	}
	done := make(chan pong, 1)

	go func() {
		if err := WriteMessage(e.stdin, Message{Kind: KindPing}); err != nil {
			done <- pong{err: fmt.Errorf("ping engine: %w", err)}
			return
		}
		msg, err := ReadMessage(e.stdout, DefaultMaxBody)
		if err != nil {
			done <- pong{err: fmt.Errorf("read engine pong: %w", err)}
			return
		}
		if msg.Kind != KindPong {
			done <- pong{err: fmt.Errorf("engine answered ping with kind 0x%02x", msg.Kind)}
			return
		}
		done <- pong{model: strings.TrimSpace(string(msg.Body))}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("wait for engine ready: %w", ctx.Err())
	case p := <-done:
		if p.err != nil {
			return "", e.foldStderr(p.err)
		}
		return p.model, nil
	}
}

// ModelName returns the loaded model identifier.
func (e *ProcessEngine) ModelName() string {
	return e.model
}

// Transcribe submits one PCM buffer and reads the engine's reply. The engine
// offers no cancellation; a context expiry abandons the caller's wait but the
// invocation runs to completion.
func (e *ProcessEngine) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasExited() {
		return "", ErrEngineDown
	}

	if err := WriteMessage(e.stdin, Message{Kind: KindTranscribe, Body: pcm}); err != nil {
		return "", e.foldStderr(fmt.Errorf("send audio to engine: %w", err))
	}

	msg, err := ReadMessage(e.stdout, DefaultMaxBody)
	if err != nil {
		return "", e.foldStderr(fmt.Errorf("read engine response: %w", err))
	}

	switch msg.Kind {
	case KindResult:
		return string(msg.Body), nil
	case KindError:
		code, detail := SplitError(msg.Body)
		if detail == "" {
			detail = codeString(code)
		}
		return "", fmt.Errorf("engine error: %s", detail)
	default:
		return "", fmt.Errorf("engine sent unexpected kind 0x%02x", msg.Kind)
	}
}

// hasExited reports whether the subprocess has terminated.
func (e *ProcessEngine) hasExited() bool {
	select {
	case <-e.exited:
		return true
	default:
		return false
	}
}

// Close shuts the engine down: close stdin, then escalate to SIGKILL if the
// process lingers.
func (e *ProcessEngine) Close() error {
	e.closeOnce.Do(func() {
		_ = e.stdin.Close()
		select {
		case <-e.exited:
		case <-time.After(2 * time.Second):
			if e.cmd.Process != nil {
				_ = e.cmd.Process.Kill()
			}
			<-e.exited
		}
		e.closeErr = e.exitErr
	})
	return e.closeErr
}

// foldStderr appends the engine's stderr tail to an I/O error for diagnosis.
func (e *ProcessEngine) foldStderr(err error) error {
	tail := strings.TrimSpace(e.stderr.String())
	if tail == "" {
		return err
	}
	const limit = 512
	if len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	return fmt.Errorf("%w: %s", err, tail)
}
