// Package kbd runs the window-mode dictation daemon: a global hotkey and a
// JSON control socket both toggle one shared session, and transcripts are
// typed into whichever window has desktop focus.
package kbd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BrainBuilders/parakeet-kbd/internal/asr"
	"github.com/BrainBuilders/parakeet-kbd/internal/config"
	"github.com/BrainBuilders/parakeet-kbd/internal/fsm"
	"github.com/BrainBuilders/parakeet-kbd/internal/hotkey"
	"github.com/BrainBuilders/parakeet-kbd/internal/indicator"
	"github.com/BrainBuilders/parakeet-kbd/internal/inject"
	"github.com/BrainBuilders/parakeet-kbd/internal/ipc"
	"github.com/BrainBuilders/parakeet-kbd/internal/record"
	"github.com/BrainBuilders/parakeet-kbd/internal/session"
)

// probeTimeout bounds the liveness check against a possibly stale socket.
const probeTimeout = 2 * time.Second

// toggler is the slice of the session the daemon drives.
type toggler interface {
	Trigger(ctx context.Context)
	Abort()
	State() fsm.State
}

// Daemon owns the control socket and the hotkey monitor.
type Daemon struct {
	cfg        config.Config
	logger     *slog.Logger
	session    toggler
	monitor    *hotkey.Monitor
	socketPath string
}

// New wires the full window-mode stack: pulse or sox capture, the inference
// client, xdotool injection, and desktop notifications.
func New(cfg config.Config, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sess := session.NewController(
		logger,
		record.New(cfg.Audio),
		asr.NewClient(cfg),
		inject.NewWindow(cfg.Inject, logger),
		indicator.NewDesktop(cfg.Indicator, logger),
		cfg.Audio.MinSpeechBytes,
	)

	return &Daemon{
		cfg:        cfg,
		logger:     logger,
		session:    sess,
		monitor:    hotkey.New(cfg.Hotkey, logger),
		socketPath: ipc.ControlSocketPath(),
	}
}

// Run acquires the control socket and serves until context cancellation.
// A second daemon instance fails fast with ipc.ErrAlreadyRunning.
func (d *Daemon) Run(ctx context.Context) error {
	listener, err := ipc.Acquire(ctx, d.socketPath, d.probe, 2)
	if err != nil {
		return fmt.Errorf("acquire control socket: %w", err)
	}
	defer listener.Close()

	// Hotkey failure is not fatal: the daemon still answers toggle commands
	// from the control socket, so a user without /dev/input access can bind
	// the CLI to a desktop shortcut instead.
	if err := d.monitor.Start(ctx); err != nil {
		d.logger.Warn("hotkey unavailable, control socket only", "error", err.Error())
	} else {
		defer d.monitor.Close()
		go d.watchHotkey(ctx)
	}

	d.logger.Info("kbd daemon listening", "socket", d.socketPath, "keycode", d.cfg.Hotkey.Keycode)

	if err := ipc.Serve(ctx, listener, ipc.HandlerFunc(d.handle)); err != nil {
		return fmt.Errorf("serve control socket: %w", err)
	}

	d.session.Abort()
	return nil
}

// probe adapts the JSON status roundtrip to the socket acquisition contract.
func (d *Daemon) probe(ctx context.Context, path string) (bool, error) {
	return ipc.Probe(ctx, path, probeTimeout)
}

// watchHotkey converts key presses into session toggles.
func (d *Daemon) watchHotkey(ctx context.Context) {
	for {
		select {
		case <-d.monitor.Events():
			d.logger.Debug("hotkey pressed")
			d.session.Trigger(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// handle serves one control request.
func (d *Daemon) handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Op {
	case "toggle":
		d.session.Trigger(ctx)
		return ipc.Response{OK: true, State: string(d.session.State())}
	case "status":
		return ipc.Response{OK: true, State: string(d.session.State())}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}
