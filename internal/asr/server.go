package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Server owns the resident engine and serializes transcription requests.
// Connections are handled concurrently; transcribe jobs funnel through one
// FIFO queue drained by a single worker goroutine, so the engine never sees
// two requests at once and pings are answered even mid-inference.
type Server struct {
	engine       Engine
	logger       *slog.Logger
	queueTimeout time.Duration
	maxAudio     int

	jobs chan *job
}

type job struct {
	audio    []byte
	enqueued time.Time
	reply    chan Message

	// abandoned is set by the connection goroutine when its wait expires;
	// the worker skips the job instead of feeding the engine.
	abandoned atomic.Bool
}

// NewServer builds a server around a started engine.
func NewServer(engine Engine, logger *slog.Logger, queueTimeout time.Duration, maxAudioBytes int) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if queueTimeout <= 0 {
		queueTimeout = 30 * time.Second
	}
	if maxAudioBytes <= 0 {
		maxAudioBytes = DefaultMaxBody
	}
	return &Server{
		engine:       engine,
		logger:       logger,
		queueTimeout: queueTimeout,
		maxAudio:     maxAudioBytes,
		jobs:         make(chan *job, 64),
	}
}

// Serve accepts connections until context cancellation or listener close.
// The accept loop never blocks on inference.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	var wg sync.WaitGroup

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		s.worker(workerCtx)
	}()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				stopWorker()
				<-workerDone
				return nil
			}
			return fmt.Errorf("accept inference connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			s.handleConn(ctx, c)
		}(conn)
	}
}

// handleConn serves one connection, allowing request reuse until EOF.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	for {
		msg, err := ReadMessage(conn, s.maxAudio)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			s.logger.Debug("malformed request", "error", err.Error())
			_ = WriteMessage(conn, NewErrorMessage(CodeBadRequest, err.Error()))
			return
		}

		switch msg.Kind {
		case KindPing:
			if err := WriteMessage(conn, Message{Kind: KindPong, Body: []byte(s.engine.ModelName())}); err != nil {
				return
			}
		case KindTranscribe:
			if !s.serveTranscribe(ctx, conn, msg.Body) {
				return
			}
		default:
			s.logger.Debug("unknown request kind", "kind", fmt.Sprintf("0x%02x", msg.Kind))
			_ = WriteMessage(conn, NewErrorMessage(CodeBadRequest, fmt.Sprintf("unknown request kind 0x%02x", msg.Kind)))
			return
		}
	}
}

// serveTranscribe enqueues one job and relays the worker's reply. It returns
// false when the connection should be closed.
func (s *Server) serveTranscribe(ctx context.Context, conn net.Conn, audio []byte) bool {
	if len(audio) == 0 {
		return WriteMessage(conn, NewErrorMessage(CodeEmptyAudio, "request carried no audio")) == nil
	}

	j := &job{
		audio:    audio,
		enqueued: time.Now(),
		reply:    make(chan Message, 1),
	}

	select {
	case s.jobs <- j:
	default:
		return WriteMessage(conn, NewErrorMessage(CodeTimeout, "inference queue is full")) == nil
	}

	select {
	case reply := <-j.reply:
		return WriteMessage(conn, reply) == nil
	case <-time.After(s.queueTimeout):
		j.abandoned.Store(true)
		s.logger.Warn("request abandoned after queue timeout",
			"waited_ms", time.Since(j.enqueued).Milliseconds(),
			"audio_bytes", len(audio),
		)
		return WriteMessage(conn, NewErrorMessage(CodeTimeout, "inference request timed out")) == nil
	case <-ctx.Done():
		j.abandoned.Store(true)
		return false
	}
}

// worker drains the FIFO queue, invoking the engine one job at a time.
func (s *Server) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			if j.abandoned.Load() {
				continue
			}
			j.reply <- s.runJob(ctx, j)
		}
	}
}

// runJob performs one engine invocation and classifies the outcome.
func (s *Server) runJob(ctx context.Context, j *job) Message {
	started := time.Now()
	text, err := s.engine.Transcribe(ctx, j.audio)
	elapsed := time.Since(started)

	if err != nil {
		s.logger.Error("inference failed", "error", err.Error(), "audio_bytes", len(j.audio), "elapsed_ms", elapsed.Milliseconds())
		return NewErrorMessage(CodeEngineFailure, err.Error())
	}

	text = strings.TrimSpace(text)
	if text == "" {
		s.logger.Info("inference produced no text", "audio_bytes", len(j.audio), "elapsed_ms", elapsed.Milliseconds())
		return NewErrorMessage(CodeEmptyTranscript, "no speech recognized")
	}

	s.logger.Info("inference complete",
		"audio_bytes", len(j.audio),
		"transcript_length", len(text),
		"queued_ms", started.Sub(j.enqueued).Milliseconds(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return Message{Kind: KindResult, Body: []byte(text)}
}
