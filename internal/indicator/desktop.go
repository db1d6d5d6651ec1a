package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

// Desktop shows session state as freedesktop notifications, replacing the
// previous notification in place so state changes do not stack up.
type Desktop struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	cues     *cuePlayer
	messages messages

	mu             sync.Mutex
	notificationID uint32
}

// NewDesktop builds the window-mode desktop notification indicator.
func NewDesktop(cfg config.IndicatorConfig, logger *slog.Logger) *Desktop {
	return &Desktop{
		cfg:      cfg,
		logger:   logger,
		cues:     newCuePlayer(cfg),
		messages: statusMessagesFromEnv(),
	}
}

func (d *Desktop) ShowRecording(ctx context.Context) {
	d.notify(ctx, d.messages.recording, 300000)
}

func (d *Desktop) ShowTranscribing(ctx context.Context) {
	d.notify(ctx, d.messages.transcribing, 300000)
}

func (d *Desktop) ShowError(ctx context.Context, text string) {
	if text == "" {
		text = d.messages.errorText
	}
	timeout := d.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1600
	}
	d.notify(ctx, text, timeout)
}

func (d *Desktop) Hide(ctx context.Context) {
	d.mu.Lock()
	id := d.notificationID
	d.notificationID = 0
	d.mu.Unlock()

	if id == 0 {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return desktopDismiss(ctx, id)
	})
}

func (d *Desktop) CueStart() { d.cues.play(cueStart) }
func (d *Desktop) CueStop()  { d.cues.play(cueStop) }
func (d *Desktop) CueError() { d.cues.play(cueError) }

// notify sends a replaceable notification and remembers its ID.
func (d *Desktop) notify(ctx context.Context, text string, timeoutMS int) {
	d.mu.Lock()
	replaceID := d.notificationID
	d.mu.Unlock()

	appName := strings.TrimSpace(d.cfg.DesktopAppName)
	if appName == "" {
		appName = "parakeet"
	}

	d.run(ctx, func(ctx context.Context) error {
		id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.notificationID = id
		d.mu.Unlock()
		return nil
	})
}

// run executes a notification operation with a bounded timeout.
func (d *Desktop) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil && d.logger != nil {
		d.logger.Debug("notification dispatch failed", "error", err.Error())
	}
}
