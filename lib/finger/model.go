// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package finger

import "time"

// User is one account as reported in a finger answer. Users are built
// by an Interface for a single answer and never modified afterwards;
// producers hand over a Sessions slice they no longer touch.
type User struct {
	Login  string
	Name   string
	Office string
	Home   string
	Shell  string

	// Plan is the free-text plan, possibly multi-line. HasPlan
	// distinguishes "no plan" from an empty plan.
	Plan    string
	HasPlan bool

	// LastLogin is the start of the most recent session. Zero when the
	// user never logged in.
	LastLogin time.Time

	// Sessions are displayed in slice order.
	Sessions []Session
}

// Active reports whether the user has at least one open session.
func (u User) Active() bool { return len(u.Sessions) > 0 }

// Session is one login session of a user.
type Session struct {
	// Start is when the session was opened.
	Start time.Time

	// Idle is the time of the last activity on the session. Never
	// before Start.
	Idle time.Time

	// Line is the terminal the session runs on, if any.
	Line string

	// Host is the host the session originates from, if any.
	Host string
}

// NewSession builds a Session. Both instants are stored in UTC; the
// formatter converts them to its display zone. An idle time before the
// start of the session (including a zero idle time) is clamped to the
// start.
func NewSession(start, idle time.Time, line, host string) Session {
	start = start.UTC()
	idle = idle.UTC()
	if idle.Before(start) {
		idle = start
	}
	return Session{Start: start, Idle: idle, Line: line, Host: host}
}

// IdleDuration returns how long the session has been idle at now.
func (s Session) IdleDuration(now time.Time) time.Duration {
	if idle := now.Sub(s.Idle); idle > 0 {
		return idle
	}
	return 0
}
