// Package proxy wraps an interactive child program in a pseudo-terminal and
// relays its I/O byte for byte, intercepting one configured trigger sequence
// from the user's keyboard to toggle dictation. Transcripts enter the child
// as if typed.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
	"github.com/BrainBuilders/parakeet-kbd/internal/trigger"
)

// SetupExitCode is returned when the proxy itself fails before or while
// starting the child, so callers can tell proxy failures from child exits.
const SetupExitCode = 125

// outputDrainGrace bounds the wait for the child's last buffered output. The
// relay normally ends on its own with EIO once the final slave fd is gone,
// but a grandchild holding the slave open would stall the exit forever.
const outputDrainGrace = 2 * time.Second

// Session receives trigger toggles and learns when the child has gone away.
type Session interface {
	Trigger(ctx context.Context)
	Abort()
}

// Proxy owns one wrapped child and the relay between the real terminal and
// the child's pty.
type Proxy struct {
	cfg     config.Config
	argv    []string
	stdin   io.Reader
	stdout  io.Writer
	logger  *slog.Logger
	session Session

	masterIn *SyncWriter
	out      *SyncWriter
}

// New builds a proxy for argv. stdin and stdout are the user-facing
// terminal ends, os.Stdin and os.Stdout in production.
func New(cfg config.Config, argv []string, stdin io.Reader, stdout io.Writer, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Proxy{
		cfg:      cfg,
		argv:     argv,
		stdin:    stdin,
		stdout:   stdout,
		logger:   logger,
		masterIn: NewSyncWriter(nil),
		out:      NewSyncWriter(stdout),
	}
}

// MasterInput is the serialized writer feeding the child's input. It becomes
// writable once Run has started the child; the pty injector writes
// transcripts through it.
func (p *Proxy) MasterInput() io.Writer { return p.masterIn }

// Output is the serialized writer wrapping the user-facing terminal. Title
// indicators share it with the output relay.
func (p *Proxy) Output() io.Writer { return p.out }

// SetSession wires the dictation session. Must be called before Run; a nil
// session disables dictation and the proxy degrades to a plain relay.
func (p *Proxy) SetSession(s Session) { p.session = s }

// Run starts the child and relays until it exits. The return value is the
// process exit code to propagate: the child's own code, 128+signal when the
// child died on a signal, or SetupExitCode when the proxy could not start.
func (p *Proxy) Run(ctx context.Context) int {
	code, err := p.run(ctx)
	if err != nil {
		p.logger.Error("proxy setup failed", "error", err.Error())
		fmt.Fprintf(os.Stderr, "parakeet: %v\n", err)
		return SetupExitCode
	}
	return code
}

func (p *Proxy) run(ctx context.Context) (int, error) {
	if len(p.argv) == 0 {
		return 0, errors.New("no command to wrap")
	}

	matcher, err := trigger.NewMatcher(p.cfg.Trigger.Bytes)
	if err != nil {
		return 0, fmt.Errorf("build trigger matcher: %w", err)
	}

	master, slavePath, err := openPTY()
	if err != nil {
		return 0, err
	}
	defer master.Close()

	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("open pty slave %s: %w", slavePath, err)
	}

	ttyFd, isTTY := p.terminalFd()
	if isTTY {
		if err := copyWinsize(ttyFd, int(master.Fd())); err != nil {
			p.logger.Debug("initial winsize copy failed", "error", err.Error())
		}
	}

	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0, // fd 0 in the child is the slave pty
	}

	if err := cmd.Start(); err != nil {
		slave.Close()
		return 0, fmt.Errorf("start %s: %w", p.argv[0], err)
	}
	slave.Close()

	p.logger.Info("child started", "command", p.argv[0], "pid", cmd.Process.Pid)

	if isTTY {
		restore, rawErr := term.MakeRaw(ttyFd)
		if rawErr != nil {
			p.logger.Error("raw mode failed", "error", rawErr.Error())
		} else {
			defer term.Restore(ttyFd, restore)
		}
	}

	p.masterIn.Bind(master)

	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()

	if isTTY {
		go p.forwardResizes(relayCtx, ttyFd, int(master.Fd()))
	}

	// Child output to the terminal. EIO is the normal end: the slave side
	// closed because the child exited.
	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		buf := make([]byte, 4096)
		for {
			n, readErr := master.Read(buf)
			if n > 0 {
				if _, writeErr := p.out.Write(buf[:n]); writeErr != nil {
					return
				}
			}
			if readErr != nil {
				return
			}
		}
	}()

	// Keyboard to the child, minus complete trigger sequences.
	go p.relayInput(relayCtx, matcher)

	childExited := make(chan error, 1)
	go func() { childExited <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-childExited:
	case <-ctx.Done():
		// External shutdown: pass it to the child and wait for it to leave.
		_ = cmd.Process.Signal(syscall.SIGTERM)
		waitErr = <-childExited
	}

	// A recording with no child to receive the transcript is discarded.
	if p.session != nil {
		p.session.Abort()
	}

	cancelRelay()

	// Drain whatever the child left buffered in the pty before tearing it
	// down, so its final lines reach the terminal intact.
	select {
	case <-outputDone:
	case <-time.After(outputDrainGrace):
		p.logger.Debug("output drain timed out")
	}
	master.Close()
	<-outputDone

	return exitCode(waitErr), nil
}

// relayInput forwards keyboard bytes to the child, consuming trigger
// sequences and toggling the session for each. On stdin EOF any held partial
// match is released so no typed bytes are lost.
func (p *Proxy) relayInput(ctx context.Context, matcher *trigger.Matcher) {
	buf := make([]byte, 4096)
	for {
		n, readErr := p.stdin.Read(buf)
		if n > 0 {
			forward, matches := matcher.Feed(buf[:n])
			if len(forward) > 0 {
				if _, err := p.masterIn.Write(forward); err != nil {
					return
				}
			}
			for i := 0; i < matches; i++ {
				if p.session != nil {
					p.session.Trigger(ctx)
				}
			}
		}
		if readErr != nil {
			if pending := matcher.Pending(); len(pending) > 0 {
				_, _ = p.masterIn.Write(pending)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// forwardResizes mirrors terminal size changes onto the child pty.
func (p *Proxy) forwardResizes(ctx context.Context, ttyFd, masterFd int) {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	for {
		select {
		case <-winch:
			if err := copyWinsize(ttyFd, masterFd); err != nil {
				p.logger.Debug("winsize propagation failed", "error", err.Error())
			}
		case <-ctx.Done():
			return
		}
	}
}

// terminalFd reports whether stdin is a real terminal and returns its fd.
func (p *Proxy) terminalFd() (int, bool) {
	f, ok := p.stdin.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// exitCode maps the child's wait result onto the proxy's own exit code.
// Signal deaths use the shell convention of 128 plus the signal number.
func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return SetupExitCode
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return exitErr.ExitCode()
}
