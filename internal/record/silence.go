package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// parseThreshold converts a SoX-style percentage ("0.5%") or plain fraction
// ("0.005") into an amplitude fraction in [0,1).
func parseThreshold(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	percent := strings.HasSuffix(raw, "%")
	raw = strings.TrimSuffix(raw, "%")

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse silence threshold %q: %w", raw, err)
	}
	if percent {
		value /= 100
	}
	if value < 0 || value >= 1 {
		return 0, fmt.Errorf("silence threshold %q out of range", raw)
	}
	return value, nil
}

// silenceTracker mirrors the rec backend's silence effect for the native
// pulse stream: leading silence is ignored, and once speech has been heard a
// sustained quiet window ends the capture.
type silenceTracker struct {
	threshold float64
	window    time.Duration

	speechSeen bool
	quietFor   time.Duration
}

func newSilenceTracker(threshold float64, window time.Duration) *silenceTracker {
	return &silenceTracker{threshold: threshold, window: window}
}

// feed analyzes one s16le PCM chunk and reports whether the capture should
// stop.
func (t *silenceTracker) feed(pcm []byte) bool {
	if len(pcm) < 2 {
		return false
	}

	duration := time.Duration(len(pcm)) * time.Second / bytesPerSecond

	if chunkRMS(pcm) >= t.threshold {
		t.speechSeen = true
		t.quietFor = 0
		return false
	}

	if !t.speechSeen {
		return false
	}
	t.quietFor += duration
	return t.quietFor >= t.window
}

// chunkRMS computes the root-mean-square amplitude of s16le PCM as a
// fraction of full scale.
func chunkRMS(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < samples; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}
