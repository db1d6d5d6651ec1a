package asr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/BrainBuilders/parakeet-kbd/internal/config"
)

// ErrServerUnavailable indicates the socket is absent or nobody is listening.
// It is distinct from a ServerError, which means the server answered but had
// no usable transcript.
var ErrServerUnavailable = errors.New("inference server unavailable")

// ServerError is a protocol-level error frame returned by a live server.
type ServerError struct {
	Code   byte
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server error (%s): %s", codeString(e.Code), e.Detail)
	}
	return fmt.Sprintf("server error: %s", codeString(e.Code))
}

// Client submits framed requests to the inference server.
type Client struct {
	SocketPath        string
	TranscribeTimeout time.Duration
	PingTimeout       time.Duration
}

// NewClient builds a client from runtime configuration.
func NewClient(cfg config.Config) *Client {
	return &Client{
		SocketPath:        SocketPath(cfg.Server.Socket),
		TranscribeTimeout: time.Duration(cfg.Client.TranscribeTimeoutSecs) * time.Second,
		PingTimeout:       time.Duration(cfg.Client.PingTimeoutSecs) * time.Second,
	}
}

// Transcribe submits one PCM buffer and blocks until text or failure.
func (c *Client) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	timeout := c.TranscribeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	msg, err := c.roundtrip(ctx, Message{Kind: KindTranscribe, Body: pcm}, timeout)
	if err != nil {
		return "", err
	}

	switch msg.Kind {
	case KindResult:
		return string(msg.Body), nil
	case KindError:
		code, detail := SplitError(msg.Body)
		return "", &ServerError{Code: code, Detail: detail}
	default:
		return "", fmt.Errorf("unexpected response kind 0x%02x", msg.Kind)
	}
}

// Ping health-checks the server and returns the loaded model name.
func (c *Client) Ping(ctx context.Context) (string, error) {
	timeout := c.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	msg, err := c.roundtrip(ctx, Message{Kind: KindPing}, timeout)
	if err != nil {
		return "", err
	}
	if msg.Kind != KindPong {
		return "", fmt.Errorf("unexpected response kind 0x%02x", msg.Kind)
	}
	return string(msg.Body), nil
}

// roundtrip dials the socket, writes one request, and reads one response.
func (c *Client) roundtrip(ctx context.Context, req Message, timeout time.Duration) (Message, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return Message{}, classifyDialError(c.SocketPath, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Message{}, fmt.Errorf("set deadline: %w", err)
	}

	if err := WriteMessage(conn, req); err != nil {
		return Message{}, classifyConnError(err)
	}

	msg, err := ReadMessage(conn, DefaultMaxBody)
	if err != nil {
		return Message{}, classifyConnError(err)
	}
	return msg, nil
}

// IsServerUnavailable reports connection-level failures.
func IsServerUnavailable(err error) bool {
	return errors.Is(err, ErrServerUnavailable)
}

func classifyDialError(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) {
		return fmt.Errorf("%w: dial %s: %v", ErrServerUnavailable, path, err)
	}
	return fmt.Errorf("dial inference server %s: %w", path, err)
}

func classifyConnError(err error) error {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("%w: %v", ErrServerUnavailable, err)
	}
	return err
}
