// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for fingerd.
//
// Four package-level variables are injected at build time via -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// For example:
//
//	go build -ldflags "-X github.com/bureau-foundation/fingerd/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/fingerd
//
// When GitCommit is not injected, the VCS stamp recorded by the Go
// toolchain (if any) is used instead.
package version
