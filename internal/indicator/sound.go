package indicator

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueError
)

const (
	cueSampleRate = 16000
	cueDuration   = 100 * time.Millisecond
	cueVolume     = 0.3
)

// cueFrequency maps cue kinds to their sine frequencies.
func cueFrequency(kind cueKind) float64 {
	switch kind {
	case cueStart:
		return 880
	case cueStop:
		return 440
	case cueError:
		return 220
	default:
		return 0
	}
}

// cuePlayer emits short tones without blocking the caller. Playback is
// serialized so overlapping cues do not stack.
type cuePlayer struct {
	cfg config.IndicatorConfig
	mu  sync.Mutex
}

func newCuePlayer(cfg config.IndicatorConfig) *cuePlayer {
	return &cuePlayer{cfg: cfg}
}

// play emits the cue asynchronously; failures are silent because a missing
// audio stack must never break dictation.
func (p *cuePlayer) play(kind cueKind) {
	if !p.cfg.SoundEnable {
		return
	}
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := p.playExternal(kind); err == nil {
			return
		}
		_ = p.playSynth(kind)
	}()
}

// playExternal shells out to the cue player, SoX play by default.
func (p *cuePlayer) playExternal(kind cueKind) error {
	freq := cueFrequency(kind)
	if freq <= 0 {
		return nil
	}

	var argv []string
	if len(p.cfg.PlayerCmd.Argv) > 0 {
		argv = append(argv, p.cfg.PlayerCmd.Argv...)
		argv = append(argv, strconv.FormatFloat(freq, 'f', -1, 64))
	} else {
		argv = []string{
			"play", "-q", "-n",
			"synth", "0.1", "sine", strconv.FormatFloat(freq, 'f', -1, 64),
			"vol", strconv.FormatFloat(cueVolume, 'f', -1, 64),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, argv[0], argv[1:]...).Run(); err != nil {
		return fmt.Errorf("play cue via %s: %w", argv[0], err)
	}
	return nil
}

// playSynth renders the tone directly through a Pulse playback stream.
func (p *cuePlayer) playSynth(kind cueKind) error {
	samples := synthesizeTone(cueFrequency(kind), cueDuration, cueVolume)
	if len(samples) == 0 {
		return nil
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("parakeet"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("parakeet cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

// synthesizeTone renders one sine tone with a short attack/release envelope
// so the cue does not click.
func synthesizeTone(frequencyHz float64, duration time.Duration, volume float64) []int16 {
	n := int(math.Round(duration.Seconds() * cueSampleRate))
	if n <= 0 || frequencyHz <= 0 || volume <= 0 {
		return nil
	}

	ramp := n / 10
	maxRamp := cueSampleRate / 200 // 5ms
	if ramp > maxRamp {
		ramp = maxRamp
	}
	if ramp < 1 {
		ramp = 1
	}

	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			if release := float64(tail) / float64(ramp); release < envelope {
				envelope = release
			}
		}
		t := float64(i) / cueSampleRate
		sample := math.Sin(2 * math.Pi * frequencyHz * t)
		pcm[i] = int16(math.Round(sample * volume * envelope * 32767))
	}
	return pcm
}
