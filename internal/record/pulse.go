package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

// fragmentBytes is 20 ms of s16le mono at SampleRate, the granularity at
// which the silence tracker sees audio.
const fragmentBytes = bytesPerSecond / 50

// Device describes one Pulse input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns available Pulse input sources.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("parakeet"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, source := range infos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.input/audio.fallback preferences against live
// devices.
func SelectDevice(ctx context.Context, input, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList applies selection policy to a pre-fetched device list.
func selectDeviceFromList(devices []Device, input, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	input = strings.TrimSpace(strings.ToLower(input))
	fallback = strings.TrimSpace(strings.ToLower(fallback))

	find := func(term string) *Device {
		if term == "" || term == "default" {
			for i := range devices {
				if devices[i].Default {
					return &devices[i]
				}
			}
			return nil
		}
		for i := range devices {
			if deviceMatches(devices[i], term) {
				return &devices[i]
			}
		}
		return nil
	}

	primary := find(input)
	if primary == nil {
		if input == "" || input == "default" {
			return Selection{}, errors.New("default audio source is unavailable")
		}
		return Selection{}, fmt.Errorf("audio.input %q did not match any device", input)
	}
	if primary.Available && !primary.Muted {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	alternate := find(fallback)
	if alternate == nil {
		return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, fallback)
	}
	if !alternate.Available {
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", alternate.ID)
	}
	if alternate.Muted {
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", alternate.ID)
	}

	return Selection{
		Device:   *alternate,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, alternate.ID),
		Fallback: primary.ID != alternate.ID,
	}, nil
}

func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

// PulseRecorder captures from a native Pulse record stream, reproducing the
// rec backend's silence auto-stop with an RMS tracker.
type PulseRecorder struct {
	cfg config.AudioConfig
}

// NewPulseRecorder builds the native Pulse backend.
func NewPulseRecorder(cfg config.AudioConfig) *PulseRecorder {
	return &PulseRecorder{cfg: cfg}
}

// Start connects to Pulse, selects a source, and begins streaming.
func (r *PulseRecorder) Start(ctx context.Context) (Capture, error) {
	threshold, err := parseThreshold(r.cfg.SilenceThreshold)
	if err != nil {
		return nil, err
	}

	selection, err := SelectDevice(ctx, r.cfg.Input, r.cfg.Fallback)
	if err != nil {
		return nil, err
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("parakeet"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selection.Device.ID, err)
	}

	c := &pulseCapture{
		client:  client,
		tracker: newSilenceTracker(threshold, time.Duration(r.cfg.SilenceSecs*float64(time.Second))),
		done:    make(chan struct{}),
		stopCh:  make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(c.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(fragmentBytes),
		pulse.RecordMediaName("parakeet dictation"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	c.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.done:
		}
	}()

	return c, nil
}

type pulseCapture struct {
	client  *pulse.Client
	stream  *pulse.RecordStream
	tracker *silenceTracker

	mu      sync.Mutex
	buf     []byte
	stopped bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func (c *pulseCapture) Done() <-chan struct{} {
	return c.done
}

// Stop tears the stream down exactly once and signals completion.
func (c *pulseCapture) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
		close(c.stopCh)

		// Teardown runs off the caller's goroutine: Stop may be invoked
		// from the stream's own callback when silence is detected.
		go func() {
			c.stream.Stop()
			c.stream.Close()
			c.client.Close()
			close(c.done)
		}()
	})
}

func (c *pulseCapture) Result() ([]byte, error) {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out, nil
}

// onPCM receives raw frames from Pulse, accumulates them, and stops the
// capture when the silence window elapses.
func (c *pulseCapture) onPCM(buffer []byte) (int, error) {
	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	c.buf = append(c.buf, buffer...)
	c.mu.Unlock()

	if c.tracker.feed(buffer) {
		c.Stop()
		return len(buffer), io.EOF
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
