// Package app dispatches parsed CLI commands to the proxy, the daemons, and
// the control-socket client paths.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BrainBuilders/parakeet-kbd/internal/asr"
	"github.com/BrainBuilders/parakeet-kbd/internal/cli"
	"github.com/BrainBuilders/parakeet-kbd/internal/config"
	"github.com/BrainBuilders/parakeet-kbd/internal/doctor"
	"github.com/BrainBuilders/parakeet-kbd/internal/indicator"
	"github.com/BrainBuilders/parakeet-kbd/internal/inject"
	"github.com/BrainBuilders/parakeet-kbd/internal/ipc"
	"github.com/BrainBuilders/parakeet-kbd/internal/kbd"
	"github.com/BrainBuilders/parakeet-kbd/internal/logging"
	"github.com/BrainBuilders/parakeet-kbd/internal/proxy"
	"github.com/BrainBuilders/parakeet-kbd/internal/record"
	"github.com/BrainBuilders/parakeet-kbd/internal/session"
	"github.com/BrainBuilders/parakeet-kbd/internal/version"
)

// controlTimeout bounds toggle/status roundtrips against the kbd daemon.
const controlTimeout = 2 * time.Second

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdin: os.Stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("parakeet"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("parakeet"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := newLogRuntime(parsed.Command)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandWrap:
		return r.commandWrap(ctx, cfgLoaded.Config, parsed.WrapArgv, logger)
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, logger)
	case cli.CommandKbd:
		return r.commandKbd(ctx, cfgLoaded.Config, logger)
	case cli.CommandToggle:
		return r.commandToggle(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandPing:
		return r.commandPing(ctx, cfgLoaded.Config)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// newLogRuntime picks per-command log files: long-lived daemons rotate,
// one-shot commands append.
func newLogRuntime(command cli.Command) (logging.Runtime, error) {
	switch command {
	case cli.CommandWrap:
		return logging.New("proxy")
	case cli.CommandServe:
		return logging.NewRotating("server")
	case cli.CommandKbd:
		return logging.NewRotating("kbd")
	default:
		return logging.New("parakeet")
	}
}

// commandWrap runs the terminal proxy. The proxy owns stdout from here on;
// all diagnostics go to the log file.
func (r Runner) commandWrap(ctx context.Context, cfg config.Config, argv []string, logger *slog.Logger) int {
	if len(argv) == 0 {
		argv = cfg.Proxy.DefaultCmd.Argv
	}

	p := proxy.New(cfg, argv, r.Stdin, r.Stdout, logger)

	restoreTitle := ""
	if len(argv) > 0 {
		restoreTitle = filepath.Base(argv[0])
	}
	ind := indicator.NewTitle(cfg.Indicator, p.Output(), restoreTitle, logger)

	sess := session.NewController(
		logger,
		record.New(cfg.Audio),
		asr.NewClient(cfg),
		inject.NewPTY(cfg.Inject, p.MasterInput()),
		ind,
		cfg.Audio.MinSpeechBytes,
	)
	p.SetSession(sess)

	return p.Run(ctx)
}

// commandServe starts the resident engine and serves inference requests
// until context cancellation.
func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	engine, err := asr.StartProcessEngine(ctx, cfg.Engine.Cmd.Argv, cfg.Engine.Model)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: start engine: %v\n", err)
		logger.Error("engine start failed", "error", err.Error())
		return 1
	}
	defer func() { _ = engine.Close() }()

	socketPath := asr.SocketPath(cfg.Server.Socket)
	listener, err := asr.AcquireSocket(ctx, socketPath)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintf(r.Stderr, "error: inference server already running at %s\n", socketPath)
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("socket acquisition failed", "error", err.Error())
		return 1
	}
	defer listener.Close()

	if err := asr.WritePIDFile(socketPath); err != nil {
		logger.Warn("pid file write failed", "error", err.Error())
	}
	defer asr.RemovePIDFile(socketPath)

	logger.Info("inference server listening",
		"socket", socketPath,
		"model", engine.ModelName(),
	)

	server := asr.NewServer(
		engine,
		logger,
		time.Duration(cfg.Server.QueueTimeoutSecs)*time.Second,
		cfg.Server.MaxAudioBytes,
	)
	if err := server.Serve(ctx, listener); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("server failed", "error", err.Error())
		return 1
	}
	return 0
}

// commandKbd runs the window-mode daemon.
func (r Runner) commandKbd(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	daemon := kbd.New(cfg, logger)
	if err := daemon.Run(ctx); err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: kbd daemon already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("kbd daemon failed", "error", err.Error())
		return 1
	}
	return 0
}

// commandToggle forwards one toggle to the running kbd daemon.
func (r Runner) commandToggle(ctx context.Context) int {
	resp, err := ipc.Send(ctx, ipc.ControlSocketPath(), ipc.Request{Op: "toggle"}, controlTimeout)
	if err != nil {
		if ipc.IsSocketMissing(err) || ipc.IsConnectionRefused(err) {
			fmt.Fprintln(r.Stderr, "error: kbd daemon not running (start with: parakeet kbd)")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if !resp.OK {
		fmt.Fprintf(r.Stderr, "error: %s\n", resp.Error)
		return 1
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

// commandStatus prints the kbd daemon's session state.
func (r Runner) commandStatus(ctx context.Context) int {
	resp, err := ipc.Send(ctx, ipc.ControlSocketPath(), ipc.Request{Op: "status"}, controlTimeout)
	if err != nil {
		if ipc.IsSocketMissing(err) || ipc.IsConnectionRefused(err) {
			fmt.Fprintln(r.Stdout, "not running")
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	state := resp.State
	if state == "" {
		state = "idle"
	}
	fmt.Fprintln(r.Stdout, state)
	return 0
}

// commandPing health-checks the inference server.
func (r Runner) commandPing(ctx context.Context, cfg config.Config) int {
	client := asr.NewClient(cfg)

	started := time.Now()
	model, err := client.Ping(ctx)
	if err != nil {
		if asr.IsServerUnavailable(err) {
			fmt.Fprintln(r.Stderr, "error: inference server not running (start with: parakeet serve)")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(r.Stdout, "ok: model %q in %s\n", model, time.Since(started).Round(time.Millisecond))
	return 0
}
