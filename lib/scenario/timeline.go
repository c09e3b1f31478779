// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"time"

	"github.com/bureau-foundation/fingerd/lib/finger"
)

// Timeline is where a replay stands. It is a plain value: Advance
// takes one and returns the next, so every transition can be tested
// without a clock.
type Timeline struct {
	// Start is the instant offset zero of the current pass maps to.
	// It moves forward each time a repeating scenario wraps.
	Start time.Time

	// Offset is the last offset replayed up to, or NotStarted.
	Offset time.Duration

	// Updated is the instant of the last Advance, used to notice the
	// clock going backwards.
	Updated time.Time
}

// NotStarted is the Offset of a timeline that has applied nothing.
const NotStarted time.Duration = -1

// NewTimeline returns a timeline for a scenario starting at origin.
func NewTimeline(origin time.Time) Timeline {
	return Timeline{Start: origin, Offset: NotStarted}
}

// Advance replays the scenario onto state up to instant now and returns
// the new timeline.
//
// If now is earlier than the previous update, state is reset and replay
// restarts from origin. Past the ending offset, a Freeze scenario stays
// at the ending offset, a Repeat scenario moves Start forward by whole
// scenario durations and replays from an empty state, and a Stop
// scenario returns finger.ErrStop. An action that fails to apply is
// reported as an *IntegrityError; state then holds every action before
// it.
func (s *Scenario) Advance(state *State, origin time.Time, timeline Timeline, now time.Time) (Timeline, error) {
	if timeline.Start.IsZero() {
		timeline = NewTimeline(origin)
	}
	if !timeline.Updated.IsZero() && now.Before(timeline.Updated) {
		state.Reset()
		timeline = NewTimeline(origin)
	}
	timeline.Updated = now

	elapsed := now.Sub(timeline.Start)
	if elapsed < 0 {
		return timeline, nil
	}

	if elapsed >= s.EndingOffset {
		switch {
		case s.Ending == Stop:
			return timeline, finger.ErrStop
		case s.Ending == Repeat && s.EndingOffset > 0:
			passes := elapsed / s.EndingOffset
			timeline.Start = timeline.Start.Add(passes * s.EndingOffset)
			timeline.Offset = NotStarted
			elapsed -= passes * s.EndingOffset
			state.Reset()
		default:
			elapsed = s.EndingOffset
		}
	}

	for index, step := range s.steps {
		if step.Offset <= timeline.Offset {
			continue
		}
		if step.Offset > elapsed || step.Offset >= s.EndingOffset {
			break
		}
		if err := state.Apply(step.Action, timeline.Start.Add(step.Offset)); err != nil {
			return timeline, &IntegrityError{
				Index:   index,
				Offset:  step.Offset,
				Kind:    step.Action.Kind(),
				Message: err.Error(),
				Err:     err,
			}
		}
	}
	timeline.Offset = elapsed
	return timeline, nil
}

// Phase describes a timeline relative to its scenario.
type Phase string

const (
	PhasePending Phase = "pending"
	PhaseRunning Phase = "running"
	PhaseFrozen  Phase = "frozen"
	PhaseStopped Phase = "stopped"
)

// Phase reports whether timeline is before the scenario start, within
// a pass, or frozen at the ending. Repeating scenarios are always
// running once started; a Stop scenario past its end is stopped.
func (s *Scenario) Phase(timeline Timeline) Phase {
	if timeline.Offset == NotStarted && (timeline.Updated.IsZero() || timeline.Updated.Before(timeline.Start)) {
		return PhasePending
	}
	if timeline.Updated.Sub(timeline.Start) >= s.EndingOffset {
		switch s.Ending {
		case Stop:
			return PhaseStopped
		case Freeze:
			return PhaseFrozen
		}
	}
	return PhaseRunning
}
