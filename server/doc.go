// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements a finger (RFC 1288) server on top of a
// finger.Interface.
//
// A [Server] listens on any number of TCP binds, each with its own
// accept loop. Every connection carries one query line and gets one
// answer, rendered by a finger.Formatter, before the server closes it.
// Alongside the accept loops the server runs the interface's periodic
// tasks on their cron schedules, plus an optional Prometheus metrics
// endpoint.
//
// [Server.Run] returns as soon as any of these stops. A periodic task
// returning finger.ErrStop makes Run return nil, which is how scenario
// interfaces end the process.
package server
