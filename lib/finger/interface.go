// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package finger

import (
	"context"
	"errors"
	"strings"

	"github.com/bureau-foundation/fingerd/lib/cron"
)

// Interface is the data source a finger server answers from.
//
// Implementations must be safe for concurrent use: the server calls
// SearchUsers and TransmitQuery from one goroutine per connection while
// periodic tasks run in their own goroutines. SearchUsers must not
// mutate the implementation's state.
type Interface interface {
	// SearchUsers returns the users matching query (empty matches
	// every user), restricted by activity.
	SearchUsers(ctx context.Context, query string, activity Activity) ([]User, error)

	// TransmitQuery forwards a query to host and returns the text
	// answer to send back to the client.
	TransmitQuery(ctx context.Context, query, host string, verbose bool) (string, error)

	// PeriodicTasks lists the tasks the server schedules on behalf of
	// the interface. Called once, before the server starts.
	PeriodicTasks() []PeriodicTask
}

// MalformedRequestHandler is implemented by interfaces that want to
// answer undecodable queries themselves. Interfaces without it get
// Formatter.FormatQueryError.
type MalformedRequestHandler interface {
	HandleMalformedRequest(hostname string, err *MalformedRequestError) string
}

// Activity restricts a user search by whether users are logged in.
type Activity int

const (
	// AnyActivity applies no restriction.
	AnyActivity Activity = iota
	// ActiveOnly keeps users with at least one session.
	ActiveOnly
	// InactiveOnly keeps users without sessions.
	InactiveOnly
)

func (a Activity) String() string {
	switch a {
	case ActiveOnly:
		return "active"
	case InactiveOnly:
		return "inactive"
	default:
		return "any"
	}
}

// PeriodicTask is a function the server runs every time Schedule
// fires.
type PeriodicTask struct {
	// Name identifies the task in logs and metrics.
	Name string

	Schedule cron.Schedule

	// Run performs one iteration. Returning ErrStop ends the task and,
	// with it, the server.
	Run func(ctx context.Context) error
}

// ErrStop is returned by a periodic task to stop the server cleanly.
var ErrStop = errors.New("finger: stop requested by periodic task")

// TransmitRefusal is the answer BaseInterface gives to forwarded
// queries.
const TransmitRefusal = "Query forwarding is not supported on this server.\r\n"

// BaseInterface is the default Interface: it knows no users, refuses
// to forward queries, and schedules nothing. Embed it to inherit the
// defaults for the methods an implementation does not provide.
type BaseInterface struct{}

// SearchUsers returns no users.
func (BaseInterface) SearchUsers(ctx context.Context, query string, activity Activity) ([]User, error) {
	return nil, nil
}

// TransmitQuery refuses to forward the query.
func (BaseInterface) TransmitQuery(ctx context.Context, query, host string, verbose bool) (string, error) {
	return TransmitRefusal, nil
}

// PeriodicTasks returns no tasks.
func (BaseInterface) PeriodicTasks() []PeriodicTask { return nil }

// FilterUsers returns the users whose login contains query (every user
// when query is empty) and who match activity. The input slice is not
// modified.
func FilterUsers(users []User, query string, activity Activity) []User {
	var matched []User
	for _, user := range users {
		if query != "" && !strings.Contains(user.Login, query) {
			continue
		}
		switch activity {
		case ActiveOnly:
			if !user.Active() {
				continue
			}
		case InactiveOnly:
			if user.Active() {
				continue
			}
		}
		matched = append(matched, user)
	}
	return matched
}
