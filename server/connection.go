// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/fingerd/lib/finger"
	"github.com/bureau-foundation/fingerd/lib/netutil"
)

// maxQueryLength bounds the query line a client may send.
const maxQueryLength = 1024

// InternalErrorAnswer is the answer for a query whose handling failed,
// outside debug mode.
const InternalErrorAnswer = "An internal error has occurred.\r\n"

// Query kinds, used as metric labels and in logs.
const (
	kindList      = "list"
	kindUser      = "user"
	kindForward   = "forward"
	kindMalformed = "malformed"
	kindInternal  = "internal_error"
)

var errQueryTooLong = fmt.Errorf("query line longer than %d bytes", maxQueryLength)

// handleConnection answers the single query carried by conn and closes
// it.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	started := time.Now()
	logger := s.logger.With(
		"connection", uuid.NewString(),
		"remote", conn.RemoteAddr().String(),
	)
	s.metrics.connectionOpened()
	defer s.metrics.connectionClosed()

	conn.SetReadDeadline(started.Add(s.readTimeout))
	raw, err := readQuery(conn)
	if err != nil && !errors.Is(err, errQueryTooLong) {
		switch {
		case netutil.IsTimeout(err):
			logger.Debug("client sent no query before the read deadline")
		case netutil.IsExpectedCloseError(err):
			logger.Debug("client closed the connection before sending a query", "error", err)
		default:
			logger.Warn("reading query failed", "error", err)
		}
		return
	}

	var answer, kind string
	if err != nil {
		kind = kindMalformed
		answer = s.malformed(logger, &finger.MalformedRequestError{
			Line:    finger.Sanitize(raw),
			Message: err.Error(),
		})
	} else {
		answer, kind = s.answer(ctx, logger, raw)
	}

	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if _, err := io.WriteString(conn, answer); err != nil {
		if netutil.IsExpectedCloseError(err) {
			logger.Debug("client left before reading the answer", "error", err)
		} else {
			logger.Warn("writing answer failed", "error", err)
		}
	}

	elapsed := time.Since(started)
	s.metrics.observeRequest(kind, elapsed)
	logger.Debug("query answered", "kind", kind, "bytes", len(answer), "duration", elapsed)
}

// readQuery reads up to and including the first LF. A client that
// closes its side without a line terminator still gets an answer for
// what it sent.
func readQuery(conn net.Conn) ([]byte, error) {
	reader := bufio.NewReaderSize(io.LimitReader(conn, maxQueryLength+1), maxQueryLength+1)
	line, err := reader.ReadBytes('\n')
	if errors.Is(err, io.EOF) {
		if len(line) > maxQueryLength {
			return line[:maxQueryLength], errQueryTooLong
		}
		return line, nil
	}
	return line, err
}

// answer decodes raw and dispatches it to the interface. It never
// panics: a panic in the interface becomes an internal error answer.
func (s *Server) answer(ctx context.Context, logger *slog.Logger, raw []byte) (answer, kind string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			answer = s.internalError(logger, fmt.Errorf("panic: %v", recovered), debug.Stack())
			kind = kindInternal
		}
	}()

	request, err := finger.Decode(raw)
	if err != nil {
		var malformed *finger.MalformedRequestError
		if errors.As(err, &malformed) {
			return s.malformed(logger, malformed), kindMalformed
		}
		return s.internalError(logger, err, nil), kindInternal
	}
	logger = logger.With("query", request.Line)

	switch {
	case request.HasHost():
		kind = kindForward
		answer, err = s.iface.TransmitQuery(ctx, request.Query, request.Host, request.Verbose)
	case request.HasQuery():
		// A query for a given user is always answered in long form.
		kind = kindUser
		var users []finger.User
		users, err = s.iface.SearchUsers(ctx, request.Query, finger.AnyActivity)
		answer = s.formatter.FormatLong(s.hostname, request.Line, users)
	default:
		kind = kindList
		var users []finger.User
		users, err = s.iface.SearchUsers(ctx, "", finger.ActiveOnly)
		if request.Verbose {
			answer = s.formatter.FormatLong(s.hostname, request.Line, users)
		} else {
			answer = s.formatter.FormatShort(s.hostname, request.Line, users)
		}
	}
	if err != nil {
		return s.internalError(logger, fmt.Errorf("%s query: %w", kind, err), nil), kindInternal
	}
	logger.Info("query", "kind", kind, "host", request.Host, "verbose", request.Verbose)
	return answer, kind
}

func (s *Server) malformed(logger *slog.Logger, err *finger.MalformedRequestError) string {
	s.metrics.malformedQuery()
	if handler, ok := s.iface.(finger.MalformedRequestHandler); ok {
		return handler.HandleMalformedRequest(s.hostname, err)
	}
	logger.Info("malformed query", "line", err.Line, "reason", err.Message)
	return s.formatter.FormatQueryError(s.hostname, err.Line)
}

// internalError logs err and returns the answer to send instead. In
// debug mode the answer carries the error and stack.
func (s *Server) internalError(logger *slog.Logger, err error, stack []byte) string {
	s.metrics.internalError()
	if stack != nil {
		logger.Error("handling query failed", "error", err, "stack", string(stack))
	} else {
		logger.Error("handling query failed", "error", err)
	}
	if !s.debug {
		return InternalErrorAnswer
	}

	var builder strings.Builder
	builder.WriteString(strings.TrimSuffix(InternalErrorAnswer, ".\r\n"))
	builder.WriteString(": ")
	builder.WriteString(err.Error())
	builder.WriteString("\r\n")
	for line := range bytes.Lines(stack) {
		builder.WriteString(strings.TrimRight(string(line), "\r\n"))
		builder.WriteString("\r\n")
	}
	return builder.String()
}
