// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"fmt"
	"math"
	"time"

	"github.com/bureau-foundation/fingerd/lib/finger"
)

// State is the fictional population a scenario builds up. It is not
// safe for concurrent use; Interface guards it.
type State struct {
	users []*fictionalUser

	// last is the time of the most recently applied action.
	last time.Time
}

type fictionalUser struct {
	login     string
	name      string
	home      string
	shell     string
	office    string
	plan      string
	hasPlan   bool
	lastLogin time.Time

	// sessions are in opening order, named and unnamed mixed.
	sessions []*fictionalSession
}

type fictionalSession struct {
	// name is empty for unnamed sessions.
	name  string
	start time.Time
	line  string
	host  string

	idle          bool
	lastIdleEvent time.Time
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// Reset forgets every user and the last applied time.
func (s *State) Reset() {
	s.users = nil
	s.last = time.Time{}
}

// Apply performs action at instant at. It fails with ErrOutOfOrder if
// at precedes the previous action's instant, and with a descriptive
// error if the action references a missing user or session. A failed
// action leaves the state unchanged.
func (s *State) Apply(action Action, at time.Time) error {
	if !s.last.IsZero() && at.Before(s.last) {
		return fmt.Errorf("%w: %s is before %s", ErrOutOfOrder,
			at.UTC().Format(time.RFC3339), s.last.UTC().Format(time.RFC3339))
	}
	if err := s.apply(action, at.UTC()); err != nil {
		return err
	}
	s.last = at
	return nil
}

func (s *State) apply(action Action, at time.Time) error {
	index := s.find(action.user())
	if create, ok := action.(CreateUser); ok {
		if index >= 0 {
			return fmt.Errorf("user %q already exists", create.Login)
		}
		s.users = append(s.users, &fictionalUser{
			login:   create.Login,
			name:    create.Name,
			home:    create.Home,
			shell:   create.Shell,
			office:  create.Office,
			plan:    create.Plan,
			hasPlan: create.HasPlan,
		})
		return nil
	}
	if index < 0 {
		return fmt.Errorf("user %q does not exist", action.user())
	}
	user := s.users[index]

	switch action := action.(type) {
	case EditUser:
		user.name = action.Name.Apply(user.name)
		user.home = action.Home.Apply(user.home)
		user.shell = action.Shell.Apply(user.shell)
		user.office = action.Office.Apply(user.office)
		if !action.Plan.IsKeep() {
			user.plan = action.Plan.Apply(user.plan)
			_, user.hasPlan = action.Plan.Value()
		}
	case DeleteUser:
		s.users = append(s.users[:index], s.users[index+1:]...)
	case Login:
		if action.Session != "" && user.session(action.Session) >= 0 {
			return fmt.Errorf("session %q of user %q is already open", action.Session, user.login)
		}
		user.sessions = append(user.sessions, &fictionalSession{
			name:          action.Session,
			start:         at,
			line:          action.Line,
			host:          action.Host,
			lastIdleEvent: at,
		})
		user.lastLogin = at
	case Logout:
		position := user.session(action.Session)
		if position < 0 {
			return missingSession(user.login, action.Session)
		}
		user.sessions = append(user.sessions[:position], user.sessions[position+1:]...)
	case SessionChange:
		position := user.session(action.Session)
		if position < 0 {
			return missingSession(user.login, action.Session)
		}
		session := user.sessions[position]
		if session.idle != action.Idle {
			session.idle = action.Idle
			session.lastIdleEvent = at
		}
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
	return nil
}

func missingSession(login, name string) error {
	if name == "" {
		return fmt.Errorf("user %q has no unnamed session open", login)
	}
	return fmt.Errorf("session %q of user %q is not open", name, login)
}

func (s *State) find(login string) int {
	for i, user := range s.users {
		if user.login == login {
			return i
		}
	}
	return -1
}

// session returns the position of the named session, or of the most
// recently opened unnamed session when name is empty.
func (u *fictionalUser) session(name string) int {
	for i := len(u.sessions) - 1; i >= 0; i-- {
		if u.sessions[i].name == name {
			return i
		}
	}
	return -1
}

// Counts returns the number of users and open sessions.
func (s *State) Counts() (users, sessions int) {
	for _, user := range s.users {
		sessions += len(user.sessions)
	}
	return len(s.users), sessions
}

// Users renders the state as finger users, as seen at now. Sessions
// explicitly marked idle report the instant they went idle; active
// sessions report a small synthesized idle time.
func (s *State) Users(now time.Time) []finger.User {
	users := make([]finger.User, 0, len(s.users))
	for _, user := range s.users {
		rendered := finger.User{
			Login:     user.login,
			Name:      user.name,
			Home:      user.home,
			Shell:     user.shell,
			Office:    user.office,
			Plan:      user.plan,
			HasPlan:   user.hasPlan,
			LastLogin: user.lastLogin,
		}
		for _, session := range user.sessions {
			rendered.Sessions = append(rendered.Sessions,
				finger.NewSession(session.start, session.idleSince(now), session.line, session.host))
		}
		users = append(users, rendered)
	}
	return users
}

// maxSynthesizedIdle bounds the idle time shown for active sessions.
const maxSynthesizedIdle = 60 * time.Second

func (s *fictionalSession) idleSince(now time.Time) time.Time {
	if s.idle {
		return s.lastIdleEvent
	}
	return now.Add(-synthesizedIdle(now.Sub(s.lastIdleEvent)))
}

// synthesizedIdle maps the time since a session last changed state to
// an idle time that wanders between zero and maxSynthesizedIdle
// without ever exceeding the elapsed time itself.
func synthesizedIdle(elapsed time.Duration) time.Duration {
	if elapsed <= 0 {
		return 0
	}
	seconds := math.Floor(elapsed.Seconds())
	wave := math.Abs(math.Sin(seconds/7)) + math.Abs(math.Sin((seconds+3)/13))
	idle := time.Duration(wave*maxSynthesizedIdle.Seconds()/2) * time.Second
	return min(idle, elapsed)
}
