// Package ipc provides the JSON-line control protocol and unix-socket
// acquisition shared by the parakeet daemons.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Handler processes one control request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve accepts control clients on listener until ctx is cancelled or the
// listener closes. Each connection carries exactly one newline-terminated
// JSON request and receives one JSON response; in-flight exchanges finish
// before Serve returns.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, handler)
		}()
	}
}

// serveConn runs the one-request exchange on a single connection. Protocol
// errors go back to the client instead of being dropped, so hand-driven
// probes get a diagnosable answer.
func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	req, err := readRequest(conn)
	if err != nil {
		reply(conn, Response{OK: false, Error: err.Error()})
		return
	}
	reply(conn, handler.Handle(ctx, req))
}

func readRequest(conn net.Conn) (Request, error) {
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Request{}, fmt.Errorf("read request: %w", err)
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func reply(conn net.Conn, resp Response) {
	_ = json.NewEncoder(conn).Encode(resp)
}
