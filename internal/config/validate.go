package config

import (
	"fmt"
	"strings"
)

// keycodes above KEY_MAX cannot appear in kernel input events.
const maxKeycode = 0x2ff

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if len(cfg.Trigger.Bytes) == 0 {
		return nil, fmt.Errorf("trigger.hex must decode to at least one byte")
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Audio.Backend))
	if backend != "rec" && backend != "pulse" {
		return nil, fmt.Errorf("audio.backend must be one of: rec, pulse")
	}
	if cfg.Audio.SilenceSecs <= 0 {
		return nil, fmt.Errorf("audio.silence_secs must be > 0")
	}
	if strings.TrimSpace(cfg.Audio.SilenceThreshold) == "" {
		return nil, fmt.Errorf("audio.silence_threshold must not be empty")
	}
	if cfg.Audio.MinSpeechBytes < 0 {
		return nil, fmt.Errorf("audio.min_speech_bytes must be >= 0")
	}
	if cfg.Audio.RecCmd.Raw != "" && len(cfg.Audio.RecCmd.Argv) == 0 {
		return nil, fmt.Errorf("audio.rec_cmd is configured but empty")
	}

	if cfg.Server.QueueTimeoutSecs <= 0 {
		return nil, fmt.Errorf("server.queue_timeout_secs must be > 0")
	}
	if cfg.Server.MaxAudioBytes <= 0 {
		return nil, fmt.Errorf("server.max_audio_bytes must be > 0")
	}

	if len(cfg.Engine.Cmd.Argv) == 0 {
		return nil, fmt.Errorf("engine.cmd must not be empty")
	}

	if cfg.Client.TranscribeTimeoutSecs <= 0 {
		return nil, fmt.Errorf("client.transcribe_timeout_secs must be > 0")
	}
	if cfg.Client.PingTimeoutSecs <= 0 {
		return nil, fmt.Errorf("client.ping_timeout_secs must be > 0")
	}

	if len(cfg.Inject.WindowCmd.Argv) == 0 {
		return nil, fmt.Errorf("inject.window_cmd must not be empty")
	}

	if cfg.Indicator.PlayerCmd.Raw != "" && len(cfg.Indicator.PlayerCmd.Argv) == 0 {
		return nil, fmt.Errorf("indicator.player_cmd is configured but empty")
	}
	if strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if cfg.Hotkey.Keycode <= 0 || cfg.Hotkey.Keycode > maxKeycode {
		return nil, fmt.Errorf("hotkey.keycode must be in range 1..%d", maxKeycode)
	}

	if len(cfg.Proxy.DefaultCmd.Argv) == 0 {
		return nil, fmt.Errorf("proxy.default_cmd must not be empty")
	}

	if backend == "pulse" && cfg.Audio.RecCmd.Raw != "" {
		warnings = append(warnings, Warning{Message: "audio.rec_cmd is ignored when audio.backend=pulse"})
	}

	return warnings, nil
}
