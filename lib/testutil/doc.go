// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by the fingerd test suites.
//
// [RequireReceive] and [RequireClosed] wrap a channel
// operation in a wall-clock timeout so a broken test fails instead of
// hanging. They are the only real-time waits in the tests; everything
// else runs against lib/clock.Fake.
//
// [SocketDir] returns a short temporary directory for Unix sockets,
// whose paths are limited to 108 bytes.
//
// Helpers call t.Fatalf on failure instead of returning errors.
package testutil
