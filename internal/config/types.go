// Package config resolves, parses, validates, and defaults parakeet configuration.
package config

// Config is the fully materialized runtime configuration used by parakeet.
type Config struct {
	Trigger   TriggerConfig
	Audio     AudioConfig
	Server    ServerConfig
	Engine    EngineConfig
	Client    ClientConfig
	Inject    InjectConfig
	Indicator IndicatorConfig
	Hotkey    HotkeyConfig
	Proxy     ProxyConfig
}

// TriggerConfig holds the activation byte sequence in raw and decoded form.
type TriggerConfig struct {
	Hex   string
	Bytes []byte
}

// AudioConfig controls the capture backend and silence auto-stop behavior.
type AudioConfig struct {
	Backend          string
	Input            string
	Fallback         string
	RecCmd           CommandConfig
	SilenceSecs      float64
	SilenceThreshold string
	MinSpeechBytes   int
}

// ServerConfig controls the inference server socket and queue limits.
type ServerConfig struct {
	Socket           string
	QueueTimeoutSecs int
	MaxAudioBytes    int
}

// EngineConfig identifies the resident inference engine subprocess.
type EngineConfig struct {
	Cmd   CommandConfig
	Model string
}

// ClientConfig controls request deadlines on the inference client side.
type ClientConfig struct {
	TranscribeTimeoutSecs int
	PingTimeoutSecs       int
}

// InjectConfig controls how transcripts are delivered as keystrokes.
type InjectConfig struct {
	WindowCmd     CommandConfig
	SuffixHex     string
	Suffix        []byte
	TrailingSpace bool
}

// IndicatorConfig controls audio cues and status surfaces.
type IndicatorConfig struct {
	SoundEnable    bool
	PlayerCmd      CommandConfig
	TitleEnable    bool
	DesktopAppName string
	ErrorTimeoutMS int
}

// HotkeyConfig controls the window-mode key subscription.
type HotkeyConfig struct {
	Keycode int
	Devices []string
}

// ProxyConfig controls terminal-proxy defaults.
type ProxyConfig struct {
	DefaultCmd CommandConfig
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
