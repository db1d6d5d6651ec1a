package config

import "encoding/hex"

// DefaultTriggerHex encodes the F5 escape sequence ESC [ 1 5 ~.
const DefaultTriggerHex = "1b5b31357e"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	windowCmd := "xdotool type --clearmodifiers --file -"
	engineCmd := "parakeet-engine"

	return Config{
		Trigger: TriggerConfig{
			Hex:   DefaultTriggerHex,
			Bytes: mustDecodeHex(DefaultTriggerHex),
		},
		Audio: AudioConfig{
			Backend:          "rec",
			Input:            "default",
			Fallback:         "default",
			SilenceSecs:      3.0,
			SilenceThreshold: "0.5%",
			MinSpeechBytes:   1000,
		},
		Server: ServerConfig{
			QueueTimeoutSecs: 30,
			MaxAudioBytes:    32 << 20,
		},
		Engine: EngineConfig{
			Cmd:   CommandConfig{Raw: engineCmd, Argv: mustParseArgv(engineCmd)},
			Model: "nvidia/parakeet-tdt-0.6b-v2",
		},
		Client: ClientConfig{
			TranscribeTimeoutSecs: 30,
			PingTimeoutSecs:       2,
		},
		Inject: InjectConfig{
			WindowCmd: CommandConfig{Raw: windowCmd, Argv: mustParseArgv(windowCmd)},
		},
		Indicator: IndicatorConfig{
			SoundEnable:    true,
			TitleEnable:    true,
			DesktopAppName: "parakeet",
			ErrorTimeoutMS: 1600,
		},
		Hotkey: HotkeyConfig{
			Keycode: 63, // KEY_F5
		},
		Proxy: ProxyConfig{
			DefaultCmd: CommandConfig{Raw: "claude", Argv: mustParseArgv("claude")},
		},
	}
}

func mustDecodeHex(raw string) []byte {
	out, err := hex.DecodeString(raw)
	if err != nil {
		panic(err)
	}
	return out
}
