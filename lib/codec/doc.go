// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides fingerd's CBOR encoding configuration.
//
// The finger protocol itself is plain text (RFC 1288). CBOR is used only
// on the local control socket, where operators and tests ask a running
// daemon for its status. Keeping the encoder and decoder modes here means
// the server side and the client side always agree on the wire format.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Timestamps are written as RFC 3339 text so diagnostic dumps stay
// readable.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// Types that only travel over the control socket carry `cbor` tags.
// fxamacker/cbor falls back to `json` tags when `cbor` tags are absent,
// so a type that is also printed as JSON needs only `json` tags. Never
// put both on the same field.
package codec
