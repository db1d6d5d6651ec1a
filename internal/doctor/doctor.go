// Package doctor runs readiness diagnostics for config, audio, injection,
// hotkey access, and the inference server.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/BrainBuilders/parakeet-kbd/internal/asr"
	"github.com/BrainBuilders/parakeet-kbd/internal/config"
	"github.com/BrainBuilders/parakeet-kbd/internal/hotkey"
	"github.com/BrainBuilders/parakeet-kbd/internal/ipc"
	"github.com/BrainBuilders/parakeet-kbd/internal/record"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkRuntimeDir())
	checks = append(checks, checkAudioBackend(ctx, cfg.Config.Audio)...)

	if cfg.Config.Indicator.SoundEnable {
		if len(cfg.Config.Indicator.PlayerCmd.Argv) > 0 {
			checks = append(checks, checkCommand(cfg.Config.Indicator.PlayerCmd.Argv, "player_cmd"))
		} else {
			checks = append(checks, checkBinary("play", "audio cues need sox play"))
		}
	}

	checks = append(checks, checkCommand(cfg.Config.Inject.WindowCmd.Argv, "inject.window_cmd"))
	checks = append(checks, checkBinary("busctl", "desktop notifications need busctl"))
	checks = append(checks, checkCommand(cfg.Config.Engine.Cmd.Argv, "engine.cmd"))
	checks = append(checks, checkHotkeyDevices(cfg.Config.Hotkey))
	checks = append(checks, checkServer(ctx, cfg.Config))

	return Report{Checks: checks}
}

// checkRuntimeDir verifies the per-user socket directory can be created.
func checkRuntimeDir() Check {
	dir := ipc.RuntimeDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Check{Name: "runtime_dir", Pass: false, Message: fmt.Sprintf("cannot create %q: %v", dir, err)}
	}
	return Check{Name: "runtime_dir", Pass: true, Message: dir}
}

// checkAudioBackend validates whichever capture backend is configured.
func checkAudioBackend(ctx context.Context, cfg config.AudioConfig) []Check {
	if cfg.Backend == "pulse" {
		selection, err := record.SelectDevice(ctx, cfg.Input, cfg.Fallback)
		if err != nil {
			return []Check{{Name: "audio.device", Pass: false, Message: err.Error()}}
		}
		message := fmt.Sprintf("selected %q", selection.Device.ID)
		if selection.Warning != "" {
			message = message + " (" + selection.Warning + ")"
		}
		return []Check{{Name: "audio.device", Pass: true, Message: message}}
	}

	if len(cfg.RecCmd.Argv) > 0 {
		return []Check{checkCommand(cfg.RecCmd.Argv, "audio.rec_cmd")}
	}
	return []Check{checkBinary("rec", "capture needs sox rec")}
}

// checkHotkeyDevices reports whether any readable keyboard carries the
// configured key. Failure is informational for proxy-only setups, which
// never touch /dev/input.
func checkHotkeyDevices(cfg config.HotkeyConfig) Check {
	paths := cfg.Devices
	if len(paths) == 0 {
		discovered, err := hotkey.DiscoverDevices("/sys/class/input", "/dev/input", cfg.Keycode)
		if err != nil {
			return Check{Name: "hotkey.devices", Pass: false, Message: err.Error()}
		}
		paths = discovered
	}

	readable := 0
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		_ = f.Close()
		readable++
	}
	if readable == 0 {
		return Check{
			Name:    "hotkey.devices",
			Pass:    false,
			Message: fmt.Sprintf("no readable device for keycode %d (is the user in the input group?)", cfg.Keycode),
		}
	}
	return Check{Name: "hotkey.devices", Pass: true, Message: fmt.Sprintf("%d readable device(s) for keycode %d", readable, cfg.Keycode)}
}

// checkServer pings the inference server and reports the loaded model.
func checkServer(ctx context.Context, cfg config.Config) Check {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	client := asr.NewClient(cfg)
	model, err := client.Ping(pingCtx)
	if err != nil {
		if asr.IsServerUnavailable(err) {
			return Check{
				Name:    "server",
				Pass:    false,
				Message: fmt.Sprintf("not running at %s (start with: parakeet serve)", client.SocketPath),
			}
		}
		return Check{Name: "server", Pass: false, Message: err.Error()}
	}
	return Check{Name: "server", Pass: true, Message: fmt.Sprintf("model %q at %s", model, client.SocketPath)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}
