package inject

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

// Window types a transcript into whichever window has desktop focus by
// piping the text to the configured keystroke utility, xdotool by default.
type Window struct {
	cfg    config.InjectConfig
	logger *slog.Logger
}

// NewWindow builds the window-injection backend from runtime config.
func NewWindow(cfg config.InjectConfig, logger *slog.Logger) *Window {
	return &Window{cfg: cfg, logger: logger}
}

// Inject runs the keystroke utility with the transcript on stdin.
func (w *Window) Inject(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	payload := applySuffix(text, w.cfg)

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := runWithStdin(runCtx, w.cfg.WindowCmd.Argv, payload); err != nil {
		if w.logger != nil {
			w.logger.Error("keystroke injection failed", "error", err.Error(), "text_length", len(text))
		}
		return fmt.Errorf("type into focused window: %w", err)
	}
	return nil
}

// runWithStdin executes argv and writes input to its stdin.
func runWithStdin(ctx context.Context, argv []string, input []byte) error {
	if len(argv) == 0 {
		return fmt.Errorf("injection command is empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start %s: %w", argv[0], err)
	}

	if len(input) > 0 {
		if _, err := stdin.Write(input); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}

// applySuffix appends the configured suffix bytes and optional trailing
// space. No line terminator is added by default: the text is left for the
// user to review and submit manually.
func applySuffix(text string, cfg config.InjectConfig) []byte {
	out := make([]byte, 0, len(text)+len(cfg.Suffix)+1)
	out = append(out, text...)
	out = append(out, cfg.Suffix...)
	if cfg.TrailingSpace {
		out = append(out, ' ')
	}
	return out
}
