// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/fingerd/lib/clock"
	"github.com/bureau-foundation/fingerd/lib/cron"
	"github.com/bureau-foundation/fingerd/lib/finger"
)

// UpdateTaskName is the name of the periodic task advancing the
// simulation.
const UpdateTaskName = "scenario-update"

// updateSchedule fires every second.
var updateSchedule = cron.MustParse("* * * * * *")

// Config holds the parameters for NewInterface.
type Config struct {
	Scenario *Scenario

	// Start is the instant offset zero maps to. Zero means the clock's
	// current time.
	Start time.Time

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Interface serves a scenario's fictional state to a finger server.
// Update, run as a periodic task, is the only writer; SearchUsers and
// Status only read.
type Interface struct {
	finger.BaseInterface

	scenario *Scenario
	origin   time.Time
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.RWMutex
	state    *State
	timeline Timeline
	stopped  bool
}

// NewInterface creates an Interface and replays the scenario up to the
// current time. It fails if the scenario is already past a stop ending
// or an action fails to apply.
func NewInterface(config Config) (*Interface, error) {
	if config.Scenario == nil {
		return nil, errors.New("scenario: no scenario given")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	origin := config.Start
	if origin.IsZero() {
		origin = config.Clock.Now()
	}

	iface := &Interface{
		scenario: config.Scenario,
		origin:   origin,
		clock:    config.Clock,
		logger:   config.Logger,
		state:    NewState(),
		timeline: NewTimeline(origin),
	}
	if err := iface.Update(context.Background()); err != nil {
		if errors.Is(err, finger.ErrStop) {
			return nil, fmt.Errorf("scenario starting at %s has already ended", origin.Format(time.RFC3339))
		}
		return nil, err
	}
	return iface, nil
}

// Update advances the simulation to the current time. It returns
// finger.ErrStop once a stop ending is reached.
func (i *Interface) Update(ctx context.Context) error {
	now := i.clock.Now()

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stopped {
		return finger.ErrStop
	}
	previous := i.timeline
	timeline, err := i.scenario.Advance(i.state, i.origin, i.timeline, now)
	i.timeline = timeline
	if errors.Is(err, finger.ErrStop) {
		i.stopped = true
		i.logger.Info("scenario reached its stop ending", "offset", FormatOffset(i.scenario.EndingOffset))
		return err
	}
	if err != nil {
		return fmt.Errorf("advancing scenario: %w", err)
	}

	switch {
	case !previous.Updated.IsZero() && now.Before(previous.Updated):
		i.logger.Warn("clock went backwards, scenario restarted",
			"previous", previous.Updated, "now", now)
	case previous.Offset != NotStarted && !timeline.Start.Equal(previous.Start):
		i.logger.Info("scenario repeating", "start", timeline.Start)
	}
	return nil
}

// SearchUsers returns the fictional users matching query and
// activity, as of the last update.
func (i *Interface) SearchUsers(ctx context.Context, query string, activity finger.Activity) ([]finger.User, error) {
	now := i.clock.Now()

	i.mu.RLock()
	users := i.state.Users(now)
	i.mu.RUnlock()

	return finger.FilterUsers(users, query, activity), nil
}

// PeriodicTasks registers Update to run every second.
func (i *Interface) PeriodicTasks() []finger.PeriodicTask {
	return []finger.PeriodicTask{{
		Name:     UpdateTaskName,
		Schedule: updateSchedule,
		Run:      i.Update,
	}}
}

// Status is a snapshot of a running simulation.
type Status struct {
	Phase        Phase         `cbor:"phase"`
	Start        time.Time     `cbor:"start"`
	Offset       time.Duration `cbor:"offset"`
	Ending       string        `cbor:"ending"`
	EndingOffset time.Duration `cbor:"ending_offset"`
	Users        int           `cbor:"users"`
	Sessions     int           `cbor:"sessions"`
	Updated      time.Time     `cbor:"updated"`
}

// Status reports where the simulation stands.
func (i *Interface) Status() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()

	users, sessions := i.state.Counts()
	offset := i.timeline.Offset
	if offset == NotStarted {
		offset = 0
	}
	return Status{
		Phase:        i.scenario.Phase(i.timeline),
		Start:        i.timeline.Start,
		Offset:       offset,
		Ending:       i.scenario.Ending.String(),
		EndingOffset: i.scenario.EndingOffset,
		Users:        users,
		Sessions:     sessions,
		Updated:      i.timeline.Updated,
	}
}
