package indicator

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

// Title shows session state through the terminal window title (OSC 2), the
// one display channel that cannot disturb the wrapped program's screen
// buffer. Writes go through the proxy's serialized output writer so title
// sequences never interleave with relayed child output.
type Title struct {
	cfg      config.IndicatorConfig
	out      io.Writer
	restore  string
	logger   *slog.Logger
	cues     *cuePlayer
	messages messages
}

// NewTitle builds a terminal-title indicator. restore is the title written
// when status clears, typically the wrapped command's name.
func NewTitle(cfg config.IndicatorConfig, out io.Writer, restore string, logger *slog.Logger) *Title {
	return &Title{
		cfg:      cfg,
		out:      out,
		restore:  restore,
		logger:   logger,
		cues:     newCuePlayer(cfg),
		messages: statusMessagesFromEnv(),
	}
}

func (t *Title) ShowRecording(context.Context) {
	t.setTitle("parakeet: " + t.messages.recording)
}

func (t *Title) ShowTranscribing(context.Context) {
	t.setTitle("parakeet: " + t.messages.transcribing)
}

func (t *Title) ShowError(_ context.Context, text string) {
	if text == "" {
		text = t.messages.errorText
	}
	t.setTitle("parakeet: " + text)
}

func (t *Title) Hide(context.Context) {
	t.setTitle(t.restore)
}

func (t *Title) CueStart() { t.cues.play(cueStart) }
func (t *Title) CueStop()  { t.cues.play(cueStop) }
func (t *Title) CueError() { t.cues.play(cueError) }

// setTitle emits one OSC 2 sequence in a single write.
func (t *Title) setTitle(text string) {
	if !t.cfg.TitleEnable {
		return
	}
	if _, err := fmt.Fprintf(t.out, "\x1b]2;%s\x07", text); err != nil && t.logger != nil {
		t.logger.Debug("title update failed", "error", err.Error())
	}
}
