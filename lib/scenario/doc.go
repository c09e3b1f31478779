// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scenario simulates a populated system for a finger server.
//
// A [Scenario] is a list of actions (users created, edited, deleted,
// sessions opened, closed, going idle) at offsets from a start time,
// plus an ending that says what happens once the last offset is
// reached: freeze the state, stop the server, or repeat from the
// beginning. [Load] reads scenarios from YAML, TOML, or JSONC files
// and checks them with [Scenario.Verify].
//
// Replay is strictly forward. A [State] holds the fictional users and
// refuses actions applied out of order; [Scenario.Advance] moves a
// [Timeline] to a given instant, applying every action that became due
// and handling the ending. [Interface] ties both to a clock and serves
// the result through the finger.Interface contract, with a periodic
// task advancing the simulation once per second.
package scenario
