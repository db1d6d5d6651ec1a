package inject

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

func TestWindowInjectPipesTextToCommand(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "typed.txt")

	cfg := config.InjectConfig{
		WindowCmd: config.CommandConfig{
			Raw:  "sh -c ...",
			Argv: []string{"sh", "-c", "cat > " + outPath},
		},
	}

	err := NewWindow(cfg, nil).Inject(context.Background(), "hello world")
	require.NoError(t, err)

	typed, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(typed))
}

func TestWindowInjectEmptyTextIsNoop(t *testing.T) {
	cfg := config.InjectConfig{
		WindowCmd: config.CommandConfig{
			Raw:  "false",
			Argv: []string{"false"},
		},
	}

	require.NoError(t, NewWindow(cfg, nil).Inject(context.Background(), ""))
}

func TestWindowInjectFailureIsReportable(t *testing.T) {
	cfg := config.InjectConfig{
		WindowCmd: config.CommandConfig{
			Raw:  "false",
			Argv: []string{"false"},
		},
	}

	err := NewWindow(cfg, nil).Inject(context.Background(), "text")
	require.Error(t, err)
	require.Contains(t, err.Error(), "type into focused window")
}

func TestWindowInjectMissingBinary(t *testing.T) {
	cfg := config.InjectConfig{
		WindowCmd: config.CommandConfig{
			Raw:  "definitely-not-xdotool",
			Argv: []string{"definitely-not-xdotool-91c2"},
		},
	}

	require.Error(t, NewWindow(cfg, nil).Inject(context.Background(), "text"))
}

func TestPTYInjectSingleWrite(t *testing.T) {
	var writes [][]byte
	w := writeRecorder{writes: &writes}

	err := NewPTY(config.InjectConfig{}, w).Inject(context.Background(), "hello world")
	require.NoError(t, err)

	// Atomicity at the writer boundary: exactly one write, no terminator.
	require.Len(t, writes, 1)
	require.Equal(t, []byte("hello world"), writes[0])
}

func TestPTYInjectAppliesSuffixAndTrailingSpace(t *testing.T) {
	var writes [][]byte
	w := writeRecorder{writes: &writes}

	cfg := config.InjectConfig{Suffix: []byte{0x0d}, TrailingSpace: true}
	err := NewPTY(cfg, w).Inject(context.Background(), "hi")
	require.NoError(t, err)

	require.Len(t, writes, 1)
	require.Equal(t, []byte("hi\r "), writes[0])
}

func TestPTYInjectEmptyTextWritesNothing(t *testing.T) {
	var writes [][]byte
	w := writeRecorder{writes: &writes}

	require.NoError(t, NewPTY(config.InjectConfig{}, w).Inject(context.Background(), ""))
	require.Empty(t, writes)
}

func TestPTYInjectWriteFailure(t *testing.T) {
	err := NewPTY(config.InjectConfig{}, failingWriter{}).Inject(context.Background(), "hi")
	require.Error(t, err)
	require.Contains(t, err.Error(), "write transcript to child pty")
}

type writeRecorder struct {
	writes *[][]byte
}

func (w writeRecorder) Write(p []byte) (int, error) {
	*w.writes = append(*w.writes, append([]byte{}, p...))
	return len(p), nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, os.ErrClosed
}
