package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrainBuilders/parakeet-kbd/internal/asr"
	"github.com/BrainBuilders/parakeet-kbd/internal/fsm"
	"github.com/BrainBuilders/parakeet-kbd/internal/record"
)

type fakeCapture struct {
	done    chan struct{}
	once    sync.Once
	pcm     []byte
	err     error
	stopped atomic.Bool
}

func newFakeCapture(pcm []byte) *fakeCapture {
	return &fakeCapture{done: make(chan struct{}), pcm: pcm}
}

func (c *fakeCapture) Done() <-chan struct{} { return c.done }

func (c *fakeCapture) Stop() {
	c.stopped.Store(true)
	c.finish()
}

func (c *fakeCapture) finish() {
	c.once.Do(func() { close(c.done) })
}

func (c *fakeCapture) Result() ([]byte, error) { return c.pcm, c.err }

type fakeRecorder struct {
	capture  *fakeCapture
	startErr error
	starts   atomic.Int32
}

func (r *fakeRecorder) Start(context.Context) (record.Capture, error) {
	r.starts.Add(1)
	if r.startErr != nil {
		return nil, r.startErr
	}
	return r.capture, nil
}

type fakeTranscriber struct {
	text  string
	err   error
	calls atomic.Int32
}

func (t *fakeTranscriber) Transcribe(_ context.Context, pcm []byte) (string, error) {
	t.calls.Add(1)
	if t.err != nil {
		return "", t.err
	}
	return t.text, nil
}

type fakeInjector struct {
	mu       sync.Mutex
	injected []string
	err      error
}

func (i *fakeInjector) Inject(_ context.Context, text string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.injected = append(i.injected, text)
	return nil
}

func (i *fakeInjector) texts() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string{}, i.injected...)
}

type recordingIndicator struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingIndicator) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingIndicator) seen(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

func (r *recordingIndicator) ShowRecording(context.Context)    { r.add("show-recording") }
func (r *recordingIndicator) ShowTranscribing(context.Context) { r.add("show-transcribing") }
func (r *recordingIndicator) ShowError(_ context.Context, text string) {
	r.add("show-error:" + text)
}
func (r *recordingIndicator) Hide(context.Context) { r.add("hide") }
func (r *recordingIndicator) CueStart()            { r.add("cue-start") }
func (r *recordingIndicator) CueStop()             { r.add("cue-stop") }
func (r *recordingIndicator) CueError()            { r.add("cue-error") }

func waitForIdle(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == fsm.StateIdle
	}, 2*time.Second, 5*time.Millisecond)
}

func newTestController(rec *fakeRecorder, tr *fakeTranscriber, inj *fakeInjector, ind *recordingIndicator) *Controller {
	return NewController(nil, rec, tr, inj, ind, 100)
}

func TestUtteranceSuccessFlow(t *testing.T) {
	capture := newFakeCapture(make([]byte, 4096))
	rec := &fakeRecorder{capture: capture}
	tr := &fakeTranscriber{text: "hello world"}
	inj := &fakeInjector{}
	ind := &recordingIndicator{}
	c := newTestController(rec, tr, inj, ind)

	c.Trigger(context.Background())
	require.Equal(t, fsm.StateRecording, c.State())
	require.True(t, ind.seen("cue-start"))
	require.True(t, ind.seen("show-recording"))

	// Silence auto-stop: the capture finishes on its own.
	capture.finish()
	waitForIdle(t, c)

	require.Equal(t, []string{"hello world"}, inj.texts())
	require.True(t, ind.seen("cue-stop"))
	require.True(t, ind.seen("show-transcribing"))
	require.True(t, ind.seen("hide"))
	require.Equal(t, int32(1), tr.calls.Load())
}

func TestSecondTriggerStopsRecording(t *testing.T) {
	capture := newFakeCapture(make([]byte, 4096))
	rec := &fakeRecorder{capture: capture}
	tr := &fakeTranscriber{text: "quick note"}
	inj := &fakeInjector{}
	c := newTestController(rec, tr, inj, &recordingIndicator{})

	c.Trigger(context.Background())
	require.Equal(t, fsm.StateRecording, c.State())

	// Manual stop before any silence window elapses.
	c.Trigger(context.Background())
	require.True(t, capture.stopped.Load())

	waitForIdle(t, c)
	require.Equal(t, []string{"quick note"}, inj.texts())
}

func TestTriggerIgnoredWhileTranscribing(t *testing.T) {
	capture := newFakeCapture(make([]byte, 4096))
	rec := &fakeRecorder{capture: capture}

	block := make(chan struct{})
	tr := &blockingTranscriber{release: block, text: "slow"}
	inj := &fakeInjector{}
	c := NewController(nil, rec, tr, inj, &recordingIndicator{}, 100)

	c.Trigger(context.Background())
	capture.finish()

	require.Eventually(t, func() bool {
		return c.State() == fsm.StateTranscribing
	}, 2*time.Second, 5*time.Millisecond)

	// Triggers during transcription are ignored: no new recording starts.
	c.Trigger(context.Background())
	c.Trigger(context.Background())
	require.Equal(t, fsm.StateTranscribing, c.State())
	require.Equal(t, int32(1), rec.starts.Load())

	close(block)
	waitForIdle(t, c)
	require.Equal(t, []string{"slow"}, inj.texts())
}

func TestServerUnavailableShowsErrorAndInjectsNothing(t *testing.T) {
	capture := newFakeCapture(make([]byte, 4096))
	rec := &fakeRecorder{capture: capture}
	tr := &fakeTranscriber{err: asr.ErrServerUnavailable}
	inj := &fakeInjector{}
	ind := &recordingIndicator{}
	c := newTestController(rec, tr, inj, ind)

	c.Trigger(context.Background())
	capture.finish()
	waitForIdle(t, c)

	require.Empty(t, inj.texts())
	require.True(t, ind.seen("cue-error"))
	require.True(t, ind.seen("show-error:Inference server not running"))
}

func TestAbortDuringRecordingSkipsInference(t *testing.T) {
	capture := newFakeCapture(make([]byte, 4096))
	rec := &fakeRecorder{capture: capture}
	tr := &fakeTranscriber{text: "never"}
	inj := &fakeInjector{}
	c := newTestController(rec, tr, inj, &recordingIndicator{})

	c.Trigger(context.Background())
	c.Abort()
	waitForIdle(t, c)

	require.Zero(t, tr.calls.Load())
	require.Empty(t, inj.texts())
}

func TestAbortWhileIdleIsNoop(t *testing.T) {
	c := newTestController(&fakeRecorder{capture: newFakeCapture(nil)}, &fakeTranscriber{}, &fakeInjector{}, &recordingIndicator{})

	c.Abort()
	require.Equal(t, fsm.StateIdle, c.State())
}

func TestShortCaptureNeverReachesInference(t *testing.T) {
	capture := newFakeCapture(make([]byte, 10))
	rec := &fakeRecorder{capture: capture}
	tr := &fakeTranscriber{text: "never"}
	inj := &fakeInjector{}
	ind := &recordingIndicator{}
	c := newTestController(rec, tr, inj, ind)

	c.Trigger(context.Background())
	capture.finish()
	waitForIdle(t, c)

	require.Zero(t, tr.calls.Load())
	require.Empty(t, inj.texts())
	require.True(t, ind.seen("show-error:No speech detected"))
}

func TestCaptureFailureReturnsToIdle(t *testing.T) {
	capture := newFakeCapture(nil)
	capture.err = errors.New("device busy")
	rec := &fakeRecorder{capture: capture}
	tr := &fakeTranscriber{}
	c := newTestController(rec, tr, &fakeInjector{}, &recordingIndicator{})

	c.Trigger(context.Background())
	capture.finish()
	waitForIdle(t, c)

	require.Zero(t, tr.calls.Load())
}

func TestRecorderStartFailureReturnsToIdle(t *testing.T) {
	rec := &fakeRecorder{startErr: errors.New("no device")}
	ind := &recordingIndicator{}
	c := newTestController(rec, &fakeTranscriber{}, &fakeInjector{}, ind)

	c.Trigger(context.Background())
	waitForIdle(t, c)
	require.True(t, ind.seen("show-error:Unable to start recording"))

	// The session accepts a fresh trigger after the failure.
	c.Trigger(context.Background())
	require.Equal(t, int32(2), rec.starts.Load())
}

func TestInjectionFailureReturnsToIdle(t *testing.T) {
	capture := newFakeCapture(make([]byte, 4096))
	rec := &fakeRecorder{capture: capture}
	inj := &fakeInjector{err: errors.New("xdotool missing")}
	ind := &recordingIndicator{}
	c := newTestController(rec, &fakeTranscriber{text: "hi"}, inj, ind)

	c.Trigger(context.Background())
	capture.finish()
	waitForIdle(t, c)

	require.True(t, ind.seen("show-error:Output injection failed"))
}

func TestTranscribeErrorMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "unavailable", err: asr.ErrServerUnavailable, want: "Inference server not running"},
		{name: "empty transcript", err: &asr.ServerError{Code: asr.CodeEmptyTranscript}, want: "No speech detected"},
		{name: "empty audio", err: &asr.ServerError{Code: asr.CodeEmptyAudio}, want: "No speech detected"},
		{name: "timeout", err: &asr.ServerError{Code: asr.CodeTimeout}, want: "Transcription timed out"},
		{name: "engine failure", err: &asr.ServerError{Code: asr.CodeEngineFailure}, want: "Transcription failed"},
		{name: "other", err: errors.New("boom"), want: "Transcription failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, transcribeErrorMessage(tc.err))
		})
	}
}

type blockingTranscriber struct {
	release <-chan struct{}
	text    string
}

func (t *blockingTranscriber) Transcribe(context.Context, []byte) (string, error) {
	<-t.release
	return t.text, nil
}
