// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the fingerd configuration file.
//
// The file is YAML and is named by a --config flag (via [LoadFile]) or
// the FINGERD_CONFIG environment variable (via [Load]). There is no
// search path: without either, the daemon runs on [Default] values
// and command-line flags alone.
//
// Values in the file are merged over [Default]. After loading,
// ${HOME} and ${VAR:-default} patterns are expanded in path fields;
// no other environment variable overrides a configured value.
// [Config.Validate] reports every problem at once so an operator can
// fix a file in one pass.
//
// This package depends on no other fingerd packages.
package config
