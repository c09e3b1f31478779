// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package finger

import (
	"fmt"
	"strings"
)

// Request is a decoded finger query.
type Request struct {
	// Host is the destination of a forwarded query ("user@host"). Empty
	// when the query targets this server.
	Host string

	// Query is the user being looked up. Empty means "list the users
	// currently logged in".
	Query string

	// Verbose is set by the /W flag.
	Verbose bool

	// Line is the sanitized query text, kept for logging and for the
	// "Command line:" header of answers.
	Line string
}

// HasHost reports whether the request must be forwarded to another host.
func (r Request) HasHost() bool { return r.Host != "" }

// HasQuery reports whether the request targets a specific user.
func (r Request) HasQuery() bool { return r.Query != "" }

// MalformedRequestError is returned by Decode when a query line does
// not follow the RFC 1288 grammar.
type MalformedRequestError struct {
	// Line is the sanitized query line.
	Line string

	// Message describes what is wrong with the line.
	Message string
}

func (e *MalformedRequestError) Error() string {
	return fmt.Sprintf("malformed finger query %q: %s", e.Line, e.Message)
}

// Sanitize drops every byte outside the characters a finger query may
// contain: horizontal tab, space, and printable ASCII (33-126). Line
// terminators are dropped along with everything else.
func Sanitize(raw []byte) string {
	var builder strings.Builder
	builder.Grow(len(raw))
	for _, b := range raw {
		if b == '\t' || (b >= ' ' && b <= '~') {
			builder.WriteByte(b)
		}
	}
	return builder.String()
}

// Decode parses a raw query line.
//
// The grammar is [ "/W" ] [ username ] [ "@" host ] in any order. Flag
// groups may stand alone ("/W") or trail a username ("alice/W"). At
// most one bare token is allowed. When the bare token contains '@',
// the host is everything after the last '@'.
func Decode(raw []byte) (Request, error) {
	line := Sanitize(raw)
	request := Request{Line: line}

	malformed := func(format string, args ...any) (Request, error) {
		return Request{}, &MalformedRequestError{Line: line, Message: fmt.Sprintf(format, args...)}
	}

	var bare []string
	for _, word := range strings.FieldsFunc(line, isQuerySpace) {
		segments := strings.Split(word, "/")
		if segments[0] != "" {
			bare = append(bare, segments[0])
		}
		for _, flags := range segments[1:] {
			if flags == "" {
				return malformed("missing flag after '/'")
			}
			for _, flag := range flags {
				switch flag {
				case 'W':
					request.Verbose = true
				default:
					return malformed("unknown flag %q", flag)
				}
			}
		}
	}

	switch len(bare) {
	case 0:
	case 1:
		token := bare[0]
		if at := strings.LastIndexByte(token, '@'); at >= 0 {
			request.Query = token[:at]
			request.Host = token[at+1:]
		} else {
			request.Query = token
		}
	default:
		return malformed("expected at most one username, got %d tokens", len(bare))
	}

	return request, nil
}

func isQuerySpace(r rune) bool { return r == ' ' || r == '\t' }
