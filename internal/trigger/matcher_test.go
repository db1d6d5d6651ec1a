package trigger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var f5 = []byte("\x1b[15~")

func feedAll(t *testing.T, m *Matcher, chunks ...[]byte) ([]byte, int) {
	t.Helper()
	var out []byte
	total := 0
	for _, chunk := range chunks {
		passthrough, matches := m.Feed(chunk)
		out = append(out, passthrough...)
		total += matches
	}
	return out, total
}

func TestNewMatcherRejectsEmptyPattern(t *testing.T) {
	_, err := NewMatcher(nil)
	require.Error(t, err)
}

func TestFeedIdentityWithoutTrigger(t *testing.T) {
	inputs := []string{
		"",
		"hello world",
		"\x1b[A\x1b[B\x1b[C",
		"\x1b[16~",
		"partial \x1b[15 but never finished…",
		"\x00\x01\x02\xff\xfe",
	}

	for _, input := range inputs {
		m, err := NewMatcher(f5)
		require.NoError(t, err)

		// Feed one byte at a time to exercise every chunk boundary.
		out := []byte{}
		matches := 0
		for i := 0; i < len(input); i++ {
			passthrough, n := m.Feed([]byte{input[i]})
			out = append(out, passthrough...)
			matches += n
		}
		out = append(out, m.Pending()...)

		require.Equal(t, []byte(input), out, "input %q", input)
		require.Zero(t, matches, "input %q", input)
	}
}

func TestFeedDetectsTriggerAtEverySplit(t *testing.T) {
	for split := 0; split <= len(f5); split++ {
		m, err := NewMatcher(f5)
		require.NoError(t, err)

		out, matches := feedAll(t, m, f5[:split], f5[split:])
		require.Empty(t, out, "split %d", split)
		require.Equal(t, 1, matches, "split %d", split)
		require.Empty(t, m.Pending())
	}
}

func TestFeedConsumesTriggerBetweenText(t *testing.T) {
	m, err := NewMatcher(f5)
	require.NoError(t, err)

	out, matches := feedAll(t, m, []byte("abc\x1b[15~def\x1b[15~gh"))
	require.Equal(t, []byte("abcdefgh"), out)
	require.Equal(t, 2, matches)
}

func TestFeedReemitsBrokenPartialMatch(t *testing.T) {
	m, err := NewMatcher(f5)
	require.NoError(t, err)

	out, matches := feedAll(t, m, []byte("\x1b["), []byte("xy"))
	require.Equal(t, []byte("\x1b[xy"), out)
	require.Zero(t, matches)
}

func TestFeedHandlesSelfOverlappingPattern(t *testing.T) {
	m, err := NewMatcher([]byte("aab"))
	require.NoError(t, err)

	out, matches := feedAll(t, m, []byte("aaab"))
	require.Equal(t, []byte("a"), out)
	require.Equal(t, 1, matches)

	out, matches = feedAll(t, m, []byte("aabaab"))
	require.Empty(t, out)
	require.Equal(t, 2, matches)
}

func TestFeedRestartsAfterPartialPrefixRelease(t *testing.T) {
	m, err := NewMatcher(f5)
	require.NoError(t, err)

	// The broken attempt re-arms: a fresh escape directly after the broken
	// prefix must still match.
	out, matches := feedAll(t, m, []byte("\x1b[1\x1b[15~"))
	require.Equal(t, []byte("\x1b[1"), out)
	require.Equal(t, 1, matches)
}

func TestPendingExposesHeldPrefix(t *testing.T) {
	m, err := NewMatcher(f5)
	require.NoError(t, err)

	out, matches := m.Feed([]byte("ok\x1b[1"))
	require.Equal(t, []byte("ok"), out)
	require.Zero(t, matches)
	require.Equal(t, []byte("\x1b[1"), m.Pending())

	out, matches = m.Feed([]byte("5~"))
	require.Empty(t, out)
	require.Equal(t, 1, matches)
	require.Empty(t, m.Pending())
}
