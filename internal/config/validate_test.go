package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaultsPass(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty trigger",
			mutate:  func(c *Config) { c.Trigger.Bytes = nil },
			wantErr: "trigger.hex",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Audio.Backend = "alsa" },
			wantErr: "audio.backend",
		},
		{
			name:    "non-positive silence window",
			mutate:  func(c *Config) { c.Audio.SilenceSecs = 0 },
			wantErr: "audio.silence_secs",
		},
		{
			name:    "empty silence threshold",
			mutate:  func(c *Config) { c.Audio.SilenceThreshold = "  " },
			wantErr: "audio.silence_threshold",
		},
		{
			name:    "negative min speech bytes",
			mutate:  func(c *Config) { c.Audio.MinSpeechBytes = -1 },
			wantErr: "audio.min_speech_bytes",
		},
		{
			name:    "zero queue timeout",
			mutate:  func(c *Config) { c.Server.QueueTimeoutSecs = 0 },
			wantErr: "server.queue_timeout_secs",
		},
		{
			name:    "zero max audio",
			mutate:  func(c *Config) { c.Server.MaxAudioBytes = 0 },
			wantErr: "server.max_audio_bytes",
		},
		{
			name:    "empty engine cmd",
			mutate:  func(c *Config) { c.Engine.Cmd = CommandConfig{} },
			wantErr: "engine.cmd",
		},
		{
			name:    "zero transcribe timeout",
			mutate:  func(c *Config) { c.Client.TranscribeTimeoutSecs = 0 },
			wantErr: "client.transcribe_timeout_secs",
		},
		{
			name:    "zero ping timeout",
			mutate:  func(c *Config) { c.Client.PingTimeoutSecs = 0 },
			wantErr: "client.ping_timeout_secs",
		},
		{
			name:    "empty window cmd",
			mutate:  func(c *Config) { c.Inject.WindowCmd = CommandConfig{} },
			wantErr: "inject.window_cmd",
		},
		{
			name:    "empty desktop app name",
			mutate:  func(c *Config) { c.Indicator.DesktopAppName = "" },
			wantErr: "indicator.desktop_app_name",
		},
		{
			name:    "negative error timeout",
			mutate:  func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 },
			wantErr: "indicator.error_timeout_ms",
		},
		{
			name:    "keycode out of range",
			mutate:  func(c *Config) { c.Hotkey.Keycode = 0x300 },
			wantErr: "hotkey.keycode",
		},
		{
			name:    "empty proxy default",
			mutate:  func(c *Config) { c.Proxy.DefaultCmd = CommandConfig{} },
			wantErr: "proxy.default_cmd",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnsOnUnusedRecCmd(t *testing.T) {
	cfg := Default()
	cfg.Audio.Backend = "pulse"
	cfg.Audio.RecCmd = CommandConfig{Raw: "rec -q", Argv: []string{"rec", "-q"}}

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "audio.rec_cmd is ignored")
}
