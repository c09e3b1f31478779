// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scenario

// Action is one change to the fictional state. The set of actions is
// closed: CreateUser, EditUser, DeleteUser, Login, Logout, and
// SessionChange.
type Action interface {
	// Kind is the scenario file type name of the action, used in
	// logs and error messages.
	Kind() string

	// user is the login the action targets.
	user() string
}

// CreateUser adds a user that does not exist yet.
type CreateUser struct {
	Login  string
	Name   string
	Home   string
	Shell  string
	Office string

	// Plan is only shown when HasPlan is set.
	Plan    string
	HasPlan bool
}

// EditUser changes some fields of an existing user. Fields left at
// Keep are untouched.
type EditUser struct {
	Login  string
	Name   Field[string]
	Home   Field[string]
	Shell  Field[string]
	Office Field[string]

	// Plan set to Clear removes the plan entirely.
	Plan Field[string]
}

// DeleteUser removes a user and every session it has open.
type DeleteUser struct {
	Login string
}

// Login opens a session for a user. An empty Session opens an unnamed
// session; unnamed sessions are closed in reverse order of opening.
type Login struct {
	Login   string
	Session string
	Line    string
	Host    string
}

// Logout closes the named session, or the most recently opened
// unnamed session when Session is empty.
type Logout struct {
	Login   string
	Session string
}

// SessionChange marks a session idle or active. An empty Session
// targets the most recently opened unnamed session.
type SessionChange struct {
	Login   string
	Session string
	Idle    bool
}

func (CreateUser) Kind() string { return "create" }
func (EditUser) Kind() string   { return "update" }
func (DeleteUser) Kind() string { return "delete" }
func (Login) Kind() string      { return "login" }
func (Logout) Kind() string     { return "logout" }

func (a SessionChange) Kind() string {
	if a.Idle {
		return "idle"
	}
	return "active"
}

func (a CreateUser) user() string    { return a.Login }
func (a EditUser) user() string      { return a.Login }
func (a DeleteUser) user() string    { return a.Login }
func (a Login) user() string         { return a.Login }
func (a Logout) user() string        { return a.Login }
func (a SessionChange) user() string { return a.Login }

type fieldState uint8

const (
	fieldKeep fieldState = iota
	fieldClear
	fieldSet
)

// Field is an optionally edited value: Keep (the zero value) leaves the
// current value alone, Clear resets it, Set replaces it.
type Field[T any] struct {
	state fieldState
	value T
}

// Keep returns a Field that leaves the current value untouched.
func Keep[T any]() Field[T] { return Field[T]{} }

// Clear returns a Field that resets the current value.
func Clear[T any]() Field[T] { return Field[T]{state: fieldClear} }

// Set returns a Field that replaces the current value with value.
func Set[T any](value T) Field[T] { return Field[T]{state: fieldSet, value: value} }

// IsKeep reports whether the field leaves the value untouched.
func (f Field[T]) IsKeep() bool { return f.state == fieldKeep }

// IsClear reports whether the field resets the value.
func (f Field[T]) IsClear() bool { return f.state == fieldClear }

// Value returns the replacement value and whether there is one.
func (f Field[T]) Value() (T, bool) { return f.value, f.state == fieldSet }

// Apply returns the edited form of current.
func (f Field[T]) Apply(current T) T {
	switch f.state {
	case fieldClear:
		var zero T
		return zero
	case fieldSet:
		return f.value
	default:
		return current
	}
}
