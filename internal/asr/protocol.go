// Package asr implements the framed transcription protocol, the inference
// server that keeps one engine resident, and the client both daemons use to
// submit audio.
//
// Wire format: each message is a 4-byte big-endian payload length followed by
// exactly that many payload bytes. The first payload byte is the message
// kind; the rest is the body. Requests carry raw 16 kHz mono s16le PCM;
// responses carry UTF-8 text, an error code plus detail, or a pong.
package asr

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Message kinds. Requests flow client to server, responses flow back.
const (
	KindTranscribe byte = 0x01 // body: raw PCM samples
	KindPing       byte = 0x02 // body: empty
	KindResult     byte = 0x10 // body: UTF-8 transcript
	KindError      byte = 0x11 // body: one error code byte + UTF-8 detail
	KindPong       byte = 0x12 // body: UTF-8 model name
)

// Error codes carried in the first body byte of a KindError message.
const (
	CodeBadRequest      byte = 0x01
	CodeEmptyAudio      byte = 0x02
	CodeTimeout         byte = 0x03
	CodeEngineFailure   byte = 0x04
	CodeEmptyTranscript byte = 0x05
)

// lengthPrefixSize is the fixed width of the frame length header.
const lengthPrefixSize = 4

// DefaultMaxBody bounds a frame body when no configured limit applies.
const DefaultMaxBody = 32 << 20

// Message is one framed protocol message.
type Message struct {
	Kind byte
	Body []byte
}

// WriteMessage writes one length-prefixed message to w.
func WriteMessage(w io.Writer, m Message) error {
	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(1+len(m.Body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write([]byte{m.Kind}); err != nil {
		return fmt.Errorf("write frame kind: %w", err)
	}
	if len(m.Body) > 0 {
		if _, err := w.Write(m.Body); err != nil {
			return fmt.Errorf("write frame body: %w", err)
		}
	}
	return nil
}

// ReadMessage reads one length-prefixed message from r. maxBody caps the
// body size; frames above it or without a kind byte are malformed.
func ReadMessage(r io.Reader, maxBody int) (Message, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody
	}

	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return Message{}, fmt.Errorf("read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return Message{}, fmt.Errorf("frame has no kind byte")
	}
	if int64(length-1) > int64(maxBody) {
		return Message{}, fmt.Errorf("frame body %d exceeds limit %d", length-1, maxBody)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("read frame payload: %w", err)
	}

	return Message{Kind: payload[0], Body: payload[1:]}, nil
}

// NewErrorMessage builds a KindError message from a code and detail text.
func NewErrorMessage(code byte, detail string) Message {
	body := make([]byte, 0, 1+len(detail))
	body = append(body, code)
	body = append(body, detail...)
	return Message{Kind: KindError, Body: body}
}

// SplitError extracts the code and detail from a KindError body.
func SplitError(body []byte) (code byte, detail string) {
	if len(body) == 0 {
		return CodeBadRequest, ""
	}
	return body[0], string(body[1:])
}

// codeString names an error code for logs and user-facing messages.
func codeString(code byte) string {
	switch code {
	case CodeBadRequest:
		return "bad request"
	case CodeEmptyAudio:
		return "empty audio"
	case CodeTimeout:
		return "timeout"
	case CodeEngineFailure:
		return "engine failure"
	case CodeEmptyTranscript:
		return "empty transcript"
	default:
		return fmt.Sprintf("unknown (0x%02x)", code)
	}
}
