// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/fingerd/lib/codec"
)

// ActionFunc handles one control request. raw is the complete CBOR
// request, "action" field included; the handler decodes whatever other
// fields it expects from it.
//
// A nil result produces {ok: true}. A non-nil result is encoded into
// the "data" field. A non-nil error produces {ok: false, error: ...}.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every control socket reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// requestHeader is the part of a request used for routing.
type requestHeader struct {
	Action string `cbor:"action"`
}

// Default connection deadlines.
const (
	readTimeout  = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// maxRequestSize bounds a single request. Control requests are a
// handful of short fields.
const maxRequestSize = 64 * 1024

// SocketServer serves the control protocol on a Unix socket, one
// request and one response per connection. Register actions with
// Handle, then call Serve once.
type SocketServer struct {
	socketPath string
	logger     *slog.Logger
	handlers   map[string]ActionFunc
	ready      chan struct{}

	// inflight lets Serve wait for running handlers before returning.
	inflight sync.WaitGroup
}

// NewSocketServer returns a server for socketPath. Nothing is opened
// until Serve.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		logger:     logger,
		handlers:   make(map[string]ActionFunc),
		ready:      make(chan struct{}),
	}
}

// Handle registers handler for action. Registering the same action
// twice is a programming error and panics.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Ready is closed once Serve is accepting connections.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve listens on the socket path and answers requests until ctx is
// cancelled. A stale socket file left by a previous run is replaced.
// On return, in-flight requests have completed and the socket file has
// been removed.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer os.Remove(s.socketPath)
	defer listener.Close()

	stopAccepting := context.AfterFunc(ctx, func() { listener.Close() })
	defer stopAccepting()

	close(s.ready)
	s.logger.Info("control socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("control socket accept failed", "error", err)
			continue
		}

		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.serveConnection(ctx, conn)
		}()
	}

	s.inflight.Wait()
	return nil
}

// serveConnection reads one request, dispatches it, and writes the
// reply.
func (s *SocketServer) serveConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// CBOR is self-delimiting: one value is one request.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.reply(conn, "", nil, fmt.Errorf("invalid request: %w", err))
		return
	}

	var header requestHeader
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.reply(conn, "", nil, fmt.Errorf("invalid request: %w", err))
		return
	}
	if header.Action == "" {
		s.reply(conn, "", nil, errors.New("missing required field: action"))
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.reply(conn, header.Action, nil, fmt.Errorf("unknown action %q", header.Action))
		return
	}

	result, err := s.dispatch(ctx, header.Action, handler, raw)
	s.reply(conn, header.Action, result, err)
}

// dispatch runs handler, turning a panic into an error reply.
func (s *SocketServer) dispatch(ctx context.Context, action string, handler ActionFunc, raw codec.RawMessage) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("control handler panicked", "action", action, "panic", recovered)
			result, err = nil, errors.New("internal error")
		}
	}()
	return handler(ctx, []byte(raw))
}

// reply encodes the response for result and err. Write failures are
// only logged: the connection is closing either way.
func (s *SocketServer) reply(conn net.Conn, action string, result any, err error) {
	response := Response{OK: err == nil}
	if err != nil {
		response.Error = err.Error()
		s.logger.Debug("control request failed", "action", action, "error", err)
	} else if result != nil {
		data, marshalErr := codec.Marshal(result)
		if marshalErr != nil {
			response = Response{Error: fmt.Sprintf("internal: encoding reply: %v", marshalErr)}
			s.logger.Error("encoding control reply failed", "action", action, "error", marshalErr)
		} else {
			response.Data = data
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if writeErr := codec.NewEncoder(conn).Encode(response); writeErr != nil {
		s.logger.Debug("writing control reply failed", "action", action, "error", writeErr)
	}
}
