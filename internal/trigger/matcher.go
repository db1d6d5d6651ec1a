// Package trigger scans a byte stream for one fixed activation sequence.
package trigger

import "errors"

// Matcher recognizes a single byte pattern across arbitrarily split reads.
// Matched bytes are consumed; a partial match broken by a non-matching byte
// is re-emitted unmodified, so the stream passes through byte for byte except
// for complete occurrences of the pattern.
type Matcher struct {
	pattern []byte
	fail    []int
	matched int
}

// NewMatcher builds a streaming matcher for the given pattern.
func NewMatcher(pattern []byte) (*Matcher, error) {
	if len(pattern) == 0 {
		return nil, errors.New("trigger pattern must not be empty")
	}
	p := make([]byte, len(pattern))
	copy(p, pattern)
	return &Matcher{pattern: p, fail: buildFailure(p)}, nil
}

// Pattern returns a copy of the configured byte sequence.
func (m *Matcher) Pattern() []byte {
	out := make([]byte, len(m.pattern))
	copy(out, m.pattern)
	return out
}

// Pending returns the held prefix that may still complete on the next read.
func (m *Matcher) Pending() []byte {
	out := make([]byte, m.matched)
	copy(out, m.pattern[:m.matched])
	return out
}

// Feed scans one chunk and returns the bytes to forward downstream plus the
// number of complete pattern occurrences consumed from the stream.
func (m *Matcher) Feed(chunk []byte) ([]byte, int) {
	if len(chunk) == 0 {
		return nil, 0
	}

	out := make([]byte, 0, len(chunk)+m.matched)
	matches := 0

	for _, b := range chunk {
		for m.matched > 0 && b != m.pattern[m.matched] {
			// The first drop bytes of the held prefix can no longer start a
			// match; release them and keep the longest viable suffix.
			drop := m.matched - m.fail[m.matched-1]
			out = append(out, m.pattern[:drop]...)
			m.matched = m.fail[m.matched-1]
		}
		if b == m.pattern[m.matched] {
			m.matched++
			if m.matched == len(m.pattern) {
				matches++
				m.matched = 0
			}
			continue
		}
		out = append(out, b)
	}

	return out, matches
}

// buildFailure computes the longest-proper-prefix-suffix table for pattern.
func buildFailure(pattern []byte) []int {
	fail := make([]int, len(pattern))
	for i := 1; i < len(pattern); i++ {
		j := fail[i-1]
		for j > 0 && pattern[i] != pattern[j] {
			j = fail[j-1]
		}
		if pattern[i] == pattern[j] {
			j++
		}
		fail[i] = j
	}
	return fail
}
