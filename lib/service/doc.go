// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the fingerd control socket.
//
// The control socket is a Unix socket speaking CBOR (see lib/codec).
// Each connection carries exactly one request and one response: the
// client writes a map with an "action" field plus any action-specific
// fields, the server dispatches it to the handler registered for that
// action and writes back {ok, error, data}. The daemon uses it to expose
// introspection ("status", "users") without adding anything to the
// finger protocol itself.
//
// Access control is the filesystem permission on the socket path. There
// is no authentication on the socket.
package service
