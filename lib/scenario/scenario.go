// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Ending is what happens once a scenario reaches its ending offset.
type Ending int

const (
	// Freeze keeps the state as it was at the ending offset forever.
	Freeze Ending = iota
	// Stop asks the server to shut down.
	Stop
	// Repeat starts the scenario over from an empty state.
	Repeat
)

func (e Ending) String() string {
	switch e {
	case Freeze:
		return "freeze"
	case Stop:
		return "stop"
	case Repeat:
		return "repeat"
	default:
		return fmt.Sprintf("Ending(%d)", int(e))
	}
}

// DefaultEndingDelay is how long after its last action a scenario
// without an explicit ending freezes.
const DefaultEndingDelay = 10 * time.Second

// Step is an action scheduled at an offset from the scenario start.
type Step struct {
	Offset time.Duration
	Action Action
}

// Scenario is an ordered list of steps and an ending. Steps at the
// same offset keep the order they were added in.
type Scenario struct {
	Ending       Ending
	EndingOffset time.Duration

	steps []Step
}

// New returns an empty scenario that freezes after DefaultEndingDelay.
func New() *Scenario {
	return &Scenario{Ending: Freeze, EndingOffset: DefaultEndingDelay}
}

// Add schedules action at offset, after every step already scheduled
// at the same offset.
func (s *Scenario) Add(offset time.Duration, action Action) {
	index := sort.Search(len(s.steps), func(i int) bool {
		return s.steps[i].Offset > offset
	})
	s.steps = append(s.steps, Step{})
	copy(s.steps[index+1:], s.steps[index:])
	s.steps[index] = Step{Offset: offset, Action: action}
}

// Steps returns the scheduled steps in replay order.
func (s *Scenario) Steps() []Step {
	return append([]Step(nil), s.steps...)
}

// Duration is the length of one pass of the scenario.
func (s *Scenario) Duration() time.Duration { return s.EndingOffset }

// IntegrityError reports an action that cannot apply to the state
// reached by the actions before it.
type IntegrityError struct {
	// Index is the position of the action in replay order.
	Index  int
	Offset time.Duration
	Kind   string

	Message string

	// Err is the underlying error when the problem surfaced while
	// applying the action, such as ErrOutOfOrder.
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s action #%d at %s: %s", e.Kind, e.Index, FormatOffset(e.Offset), e.Message)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// verifyUser tracks what Verify knows about one user.
type verifyUser struct {
	named   map[string]bool
	unnamed int
}

// Verify replays the steps before the ending offset against a model
// of which users and sessions exist, and reports the first action that
// references something missing or recreates something present.
func (s *Scenario) Verify() error {
	users := make(map[string]*verifyUser)

	for index, step := range s.steps {
		if step.Offset >= s.EndingOffset {
			break
		}
		fail := func(format string, args ...any) error {
			return &IntegrityError{
				Index:   index,
				Offset:  step.Offset,
				Kind:    step.Action.Kind(),
				Message: fmt.Sprintf(format, args...),
			}
		}

		login := step.Action.user()
		user, exists := users[login]
		if _, creating := step.Action.(CreateUser); creating {
			if exists {
				return fail("user %q already exists", login)
			}
			users[login] = &verifyUser{named: make(map[string]bool)}
			continue
		}
		if !exists {
			return fail("user %q does not exist", login)
		}

		switch action := step.Action.(type) {
		case EditUser:
		case DeleteUser:
			delete(users, login)
		case Login:
			if action.Session == "" {
				user.unnamed++
			} else if user.named[action.Session] {
				return fail("session %q of user %q is already open", action.Session, login)
			} else {
				user.named[action.Session] = true
			}
		case Logout:
			if err := user.check(action.Session, login, fail); err != nil {
				return err
			}
			if action.Session == "" {
				user.unnamed--
			} else {
				delete(user.named, action.Session)
			}
		case SessionChange:
			if err := user.check(action.Session, login, fail); err != nil {
				return err
			}
		default:
			return fail("unsupported action %T", action)
		}
	}
	return nil
}

func (u *verifyUser) check(session, login string, fail func(string, ...any) error) error {
	if session == "" {
		if u.unnamed == 0 {
			return fail("user %q has no unnamed session open", login)
		}
		return nil
	}
	if !u.named[session] {
		return fail("session %q of user %q is not open", session, login)
	}
	return nil
}

// ErrOutOfOrder is returned by State.Apply for an action dated before
// the previously applied one.
var ErrOutOfOrder = errors.New("scenario: action applied out of order")
