// Package session coordinates one utterance at a time: trigger, capture,
// transcription, and injection, with feedback cues at each step.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BrainBuilders/parakeet-kbd/internal/asr"
	"github.com/BrainBuilders/parakeet-kbd/internal/fsm"
	"github.com/BrainBuilders/parakeet-kbd/internal/indicator"
	"github.com/BrainBuilders/parakeet-kbd/internal/inject"
	"github.com/BrainBuilders/parakeet-kbd/internal/record"
)

// ErrNoSpeech indicates the capture was too short to contain speech.
var ErrNoSpeech = errors.New("no speech detected")

// errorHold keeps an error status visible before the indicator clears.
const errorHold = 2 * time.Second

// Transcriber abstracts the inference client for testing.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// Controller owns the utterance state machine. Its state field is the single
// source of truth for whether a new trigger is accepted; at most one
// utterance is in flight per process.
type Controller struct {
	logger         *slog.Logger
	recorder       record.Recorder
	transcriber    Transcriber
	injector       inject.Injector
	indicator      indicator.Controller
	minSpeechBytes int

	mu      sync.Mutex
	state   fsm.State
	capture record.Capture
	aborted bool
}

// NewController wires the session collaborators.
func NewController(
	logger *slog.Logger,
	recorder record.Recorder,
	transcriber Transcriber,
	injector inject.Injector,
	ind indicator.Controller,
	minSpeechBytes int,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if ind == nil {
		ind = indicator.Noop{}
	}
	return &Controller{
		logger:         logger,
		recorder:       recorder,
		transcriber:    transcriber,
		injector:       injector,
		indicator:      ind,
		minSpeechBytes: minSpeechBytes,
		state:          fsm.StateIdle,
	}
}

// State returns the current state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Trigger delivers one activation event. Idle starts a recording, Recording
// stops it, Transcribing ignores the event so exactly one utterance stays in
// flight.
func (c *Controller) Trigger(ctx context.Context) {
	c.mu.Lock()

	switch c.state {
	case fsm.StateIdle:
		c.startLocked(ctx)
	case fsm.StateRecording:
		capture := c.capture
		c.mu.Unlock()
		c.logger.Debug("manual stop requested")
		if capture != nil {
			capture.Stop()
		}
		return
	case fsm.StateTranscribing:
		c.mu.Unlock()
		c.logger.Debug("trigger ignored while transcribing")
		return
	default:
		c.mu.Unlock()
		return
	}
}

// Abort discards an in-progress recording without transcription, used when
// the capture's consumer (the wrapped child) has gone away.
func (c *Controller) Abort() {
	c.mu.Lock()
	if c.state != fsm.StateRecording {
		c.mu.Unlock()
		return
	}
	c.aborted = true
	capture := c.capture
	c.mu.Unlock()

	c.logger.Info("recording aborted")
	if capture != nil {
		capture.Stop()
	}
}

// startLocked begins capture and hands off to the utterance goroutine. The
// caller holds c.mu; startLocked releases it.
func (c *Controller) startLocked(ctx context.Context) {
	next, err := fsm.Transition(c.state, fsm.EventTrigger)
	if err != nil {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.aborted = false
	c.mu.Unlock()

	c.indicator.CueStart()
	c.indicator.ShowRecording(ctx)

	capture, err := c.recorder.Start(ctx)
	if err != nil {
		c.logger.Error("capture start failed", "error", err.Error())
		c.failToIdle(ctx, "Unable to start recording")
		return
	}

	c.mu.Lock()
	c.capture = capture
	c.mu.Unlock()

	go c.runUtterance(ctx, capture)
}

// runUtterance drives one utterance from capture completion to injection.
// It runs off the trigger path so the caller's event loop never waits on
// capture or inference.
func (c *Controller) runUtterance(ctx context.Context, capture record.Capture) {
	startedAt := time.Now()

	select {
	case <-capture.Done():
	case <-ctx.Done():
		capture.Stop()
		<-capture.Done()
		c.mu.Lock()
		c.aborted = true
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.capture = nil
	aborted := c.aborted
	c.mu.Unlock()

	if aborted {
		_ = c.transition(fsm.EventAbort)
		c.indicator.Hide(context.Background())
		return
	}

	if err := c.transition(fsm.EventCaptureDone); err != nil {
		c.logger.Error("capture-done transition failed", "error", err.Error())
		return
	}

	c.indicator.CueStop()

	pcm, err := capture.Result()
	if err != nil {
		c.logger.Error("capture failed", "error", err.Error())
		c.failToIdle(ctx, "Recording failed")
		return
	}

	if len(pcm) < c.minSpeechBytes {
		c.logger.Info("capture below speech threshold", "bytes", len(pcm), "min_bytes", c.minSpeechBytes)
		c.failToIdle(ctx, "No speech detected")
		return
	}

	c.indicator.ShowTranscribing(ctx)

	text, err := c.transcriber.Transcribe(ctx, pcm)
	pcm = nil
	if err != nil {
		c.logger.Error("transcription failed", "error", err.Error())
		c.failToIdle(ctx, transcribeErrorMessage(err))
		return
	}

	if err := c.injector.Inject(ctx, text); err != nil {
		c.logger.Error("injection failed", "error", err.Error(), "transcript_length", len(text))
		c.failToIdle(ctx, "Output injection failed")
		return
	}

	if err := c.transition(fsm.EventTranscribed); err != nil {
		c.logger.Error("transcribed transition failed", "error", err.Error())
	}
	c.indicator.Hide(context.Background())

	c.logger.Info("utterance complete",
		"transcript_length", len(text),
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// failToIdle surfaces an error cue and message, returns the state machine to
// Idle immediately so the user can re-trigger, and clears the indicator
// after a short hold.
func (c *Controller) failToIdle(ctx context.Context, message string) {
	_ = c.transition(fsm.EventFail)

	c.indicator.CueError()
	c.indicator.ShowError(ctx, message)
	go func() {
		time.Sleep(errorHold)
		c.indicator.Hide(context.Background())
	}()
}

// transcribeErrorMessage maps inference failures to user-facing text.
func transcribeErrorMessage(err error) string {
	if asr.IsServerUnavailable(err) {
		return indicator.ServerDownMessage()
	}

	var serverErr *asr.ServerError
	if errors.As(err, &serverErr) {
		switch serverErr.Code {
		case asr.CodeEmptyAudio, asr.CodeEmptyTranscript:
			return "No speech detected"
		case asr.CodeTimeout:
			return "Transcription timed out"
		}
	}
	return "Transcription failed"
}
