// Package record captures microphone audio as raw 16 kHz mono s16le PCM,
// stopping automatically after a configured silence window or on request.
package record

import (
	"context"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

// SampleRate is the capture rate agreed with the inference engine.
const SampleRate = 16000

// bytesPerSecond of 16-bit mono PCM at SampleRate.
const bytesPerSecond = SampleRate * 2

// Capture is one in-progress recording. Done is closed when capture has
// finished, whether by silence auto-stop, a manual Stop, or failure; Result
// is valid only after Done.
type Capture interface {
	Done() <-chan struct{}
	Stop()
	Result() ([]byte, error)
}

// Recorder starts captures. Implementations: the SoX rec subprocess backend
// and the native PulseAudio backend.
type Recorder interface {
	Start(ctx context.Context) (Capture, error)
}

// New selects the configured backend.
func New(cfg config.AudioConfig) Recorder {
	if cfg.Backend == "pulse" {
		return NewPulseRecorder(cfg)
	}
	return NewSoxRecorder(cfg)
}
