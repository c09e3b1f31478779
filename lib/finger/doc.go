// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package finger implements the RFC 1288 side of fingerd: decoding a
// query line into a [Request], the [User] and [Session] values an
// answer is built from, the [Formatter] that renders those values as
// RFC 1288 text, and the [Interface] contract through which the server
// obtains users.
//
// A finger exchange is one line in, some lines out:
//
//	request, err := finger.Decode(line)
//	users, err := iface.SearchUsers(ctx, request.Query, finger.ActiveOnly)
//	answer := formatter.FormatShort(hostname, request.Line, users)
//
// Everything here is free of I/O. The TCP listener, connection
// handling and periodic task scheduling live in package server.
package finger
