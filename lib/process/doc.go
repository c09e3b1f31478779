// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the fingerd binary.
// They cover the raw stderr output that happens before the structured
// logger exists (bad flags, an unreadable config file) or after main
// has given up.
package process
