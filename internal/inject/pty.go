package inject

import (
	"context"
	"fmt"
	"io"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

// PTY writes a transcript into a wrapped child's pseudo-terminal input. The
// destination writer must be the proxy's serialized master writer; issuing
// the whole transcript as one Write keeps it atomic with respect to
// concurrently forwarded keystrokes.
type PTY struct {
	cfg    config.InjectConfig
	master io.Writer
}

// NewPTY builds the proxy-mode injector over the serialized master writer.
func NewPTY(cfg config.InjectConfig, master io.Writer) *PTY {
	return &PTY{cfg: cfg, master: master}
}

// Inject writes the transcript into the child's input in a single write.
func (p *PTY) Inject(_ context.Context, text string) error {
	if text == "" {
		return nil
	}
	payload := applySuffix(text, p.cfg)

	if _, err := p.master.Write(payload); err != nil {
		return fmt.Errorf("write transcript to child pty: %w", err)
	}
	return nil
}
