package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Parse reads configuration content as JSONC layered over base.
//
// Comments and trailing commas are stripped before decoding; unknown fields
// are rejected so typos fail loudly instead of silently using defaults.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	}

	if !strings.HasPrefix(trimmed, "{") {
		return Config{}, nil, errors.New("config must be a JSONC object (expected leading '{')")
	}

	return parseJSONC(content, base)
}

type jsoncConfig struct {
	Trigger   *jsoncTrigger   `json:"trigger"`
	Audio     *jsoncAudio     `json:"audio"`
	Server    *jsoncServer    `json:"server"`
	Engine    *jsoncEngine    `json:"engine"`
	Client    *jsoncClient    `json:"client"`
	Inject    *jsoncInject    `json:"inject"`
	Indicator *jsoncIndicator `json:"indicator"`
	Hotkey    *jsoncHotkey    `json:"hotkey"`
	Proxy     *jsoncProxy     `json:"proxy"`
}

type jsoncTrigger struct {
	Hex *string `json:"hex"`
}

type jsoncAudio struct {
	Backend          *string  `json:"backend"`
	Input            *string  `json:"input"`
	Fallback         *string  `json:"fallback"`
	RecCmd           *string  `json:"rec_cmd"`
	SilenceSecs      *float64 `json:"silence_secs"`
	SilenceThreshold *string  `json:"silence_threshold"`
	MinSpeechBytes   *int     `json:"min_speech_bytes"`
}

type jsoncServer struct {
	Socket           *string `json:"socket"`
	QueueTimeoutSecs *int    `json:"queue_timeout_secs"`
	MaxAudioBytes    *int    `json:"max_audio_bytes"`
}

type jsoncEngine struct {
	Cmd   *string `json:"cmd"`
	Model *string `json:"model"`
}

type jsoncClient struct {
	TranscribeTimeoutSecs *int `json:"transcribe_timeout_secs"`
	PingTimeoutSecs       *int `json:"ping_timeout_secs"`
}

type jsoncInject struct {
	WindowCmd     *string `json:"window_cmd"`
	SuffixHex     *string `json:"suffix_hex"`
	TrailingSpace *bool   `json:"trailing_space"`
}

type jsoncIndicator struct {
	SoundEnable    *bool   `json:"sound_enable"`
	PlayerCmd      *string `json:"player_cmd"`
	TitleEnable    *bool   `json:"title_enable"`
	DesktopAppName *string `json:"desktop_app_name"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncHotkey struct {
	Keycode *int             `json:"keycode"`
	Devices *jsoncStringList `json:"devices"`
}

type jsoncProxy struct {
	DefaultCmd *string `json:"default_cmd"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if payload.Trigger != nil && payload.Trigger.Hex != nil {
		if err := setTrigger(&cfg.Trigger, *payload.Trigger.Hex); err != nil {
			return fmt.Errorf("invalid trigger.hex: %w", err)
		}
	}

	if payload.Audio != nil {
		if payload.Audio.Backend != nil {
			cfg.Audio.Backend = strings.TrimSpace(*payload.Audio.Backend)
		}
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
		if payload.Audio.RecCmd != nil {
			command, err := parseCommand(*payload.Audio.RecCmd)
			if err != nil {
				return fmt.Errorf("invalid audio.rec_cmd: %w", err)
			}
			cfg.Audio.RecCmd = command
		}
		if payload.Audio.SilenceSecs != nil {
			cfg.Audio.SilenceSecs = *payload.Audio.SilenceSecs
		}
		if payload.Audio.SilenceThreshold != nil {
			cfg.Audio.SilenceThreshold = strings.TrimSpace(*payload.Audio.SilenceThreshold)
		}
		if payload.Audio.MinSpeechBytes != nil {
			cfg.Audio.MinSpeechBytes = *payload.Audio.MinSpeechBytes
		}
	}

	if payload.Server != nil {
		if payload.Server.Socket != nil {
			cfg.Server.Socket = strings.TrimSpace(*payload.Server.Socket)
		}
		if payload.Server.QueueTimeoutSecs != nil {
			cfg.Server.QueueTimeoutSecs = *payload.Server.QueueTimeoutSecs
		}
		if payload.Server.MaxAudioBytes != nil {
			cfg.Server.MaxAudioBytes = *payload.Server.MaxAudioBytes
		}
	}

	if payload.Engine != nil {
		if payload.Engine.Cmd != nil {
			command, err := parseCommand(*payload.Engine.Cmd)
			if err != nil {
				return fmt.Errorf("invalid engine.cmd: %w", err)
			}
			cfg.Engine.Cmd = command
		}
		if payload.Engine.Model != nil {
			cfg.Engine.Model = strings.TrimSpace(*payload.Engine.Model)
		}
	}

	if payload.Client != nil {
		if payload.Client.TranscribeTimeoutSecs != nil {
			cfg.Client.TranscribeTimeoutSecs = *payload.Client.TranscribeTimeoutSecs
		}
		if payload.Client.PingTimeoutSecs != nil {
			cfg.Client.PingTimeoutSecs = *payload.Client.PingTimeoutSecs
		}
	}

	if payload.Inject != nil {
		if payload.Inject.WindowCmd != nil {
			command, err := parseCommand(*payload.Inject.WindowCmd)
			if err != nil {
				return fmt.Errorf("invalid inject.window_cmd: %w", err)
			}
			cfg.Inject.WindowCmd = command
		}
		if payload.Inject.SuffixHex != nil {
			raw := strings.TrimSpace(*payload.Inject.SuffixHex)
			suffix, err := hex.DecodeString(raw)
			if err != nil {
				return fmt.Errorf("invalid inject.suffix_hex: %w", err)
			}
			cfg.Inject.SuffixHex = raw
			cfg.Inject.Suffix = suffix
		}
		if payload.Inject.TrailingSpace != nil {
			cfg.Inject.TrailingSpace = *payload.Inject.TrailingSpace
		}
	}

	if payload.Indicator != nil {
		if payload.Indicator.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *payload.Indicator.SoundEnable
		}
		if payload.Indicator.PlayerCmd != nil {
			command, err := parseCommand(*payload.Indicator.PlayerCmd)
			if err != nil {
				return fmt.Errorf("invalid indicator.player_cmd: %w", err)
			}
			cfg.Indicator.PlayerCmd = command
		}
		if payload.Indicator.TitleEnable != nil {
			cfg.Indicator.TitleEnable = *payload.Indicator.TitleEnable
		}
		if payload.Indicator.DesktopAppName != nil {
			cfg.Indicator.DesktopAppName = strings.TrimSpace(*payload.Indicator.DesktopAppName)
		}
		if payload.Indicator.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *payload.Indicator.ErrorTimeoutMS
		}
	}

	if payload.Hotkey != nil {
		if payload.Hotkey.Keycode != nil {
			cfg.Hotkey.Keycode = *payload.Hotkey.Keycode
		}
		if payload.Hotkey.Devices != nil {
			cfg.Hotkey.Devices = append([]string(nil), *payload.Hotkey.Devices...)
		}
	}

	if payload.Proxy != nil && payload.Proxy.DefaultCmd != nil {
		command, err := parseCommand(*payload.Proxy.DefaultCmd)
		if err != nil {
			return fmt.Errorf("invalid proxy.default_cmd: %w", err)
		}
		cfg.Proxy.DefaultCmd = command
	}

	return nil
}

// parseCommand materializes a raw command string into its argv form.
func parseCommand(raw string) (CommandConfig, error) {
	argv, err := parseArgv(raw)
	if err != nil {
		return CommandConfig{}, err
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

// setTrigger decodes a hex activation sequence into the trigger config.
func setTrigger(trigger *TriggerConfig, raw string) error {
	raw = strings.TrimSpace(raw)
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return err
	}
	trigger.Hex = raw
	trigger.Bytes = decoded
	return nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' || ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
