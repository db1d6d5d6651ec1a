package indicator

import (
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	recording    string
	transcribing string
	errorText    string
	serverDown   string
}

func statusMessagesFromEnv() messages {
	return statusMessages(resolveLocale(os.Getenv("LANG")))
}

// ServerDownMessage is the user-facing text for a transcription attempt with
// no inference server listening. The session layer shares it so the error
// toast and the status surfaces agree.
func ServerDownMessage() string {
	return statusMessagesFromEnv().serverDown
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func statusMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			recording:    "Recording… (press trigger to stop)",
			transcribing: "Transcribing…",
			errorText:    "Speech recognition error",
			serverDown:   "Inference server not running",
		}
	}
}
