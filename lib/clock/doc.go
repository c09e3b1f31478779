// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for fingerd.
//
// The scenario engine and the periodic task scheduler never call
// time.Now or time.After directly. They take a [Clock]: [Real] in the
// daemon, [Fake] in tests. A FakeClock only moves when the test calls
// Advance or Set, so cron firings, scenario offsets, and rendered idle
// times are deterministic.
//
// Typical test wiring:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go scheduler.run(ctx)      // registers an After waiter
//	c.WaitForTimers(1)         // wait for the registration
//	c.Advance(time.Second)     // fire it
//
// Set may move a FakeClock backwards, which is how tests simulate a
// wall clock that jumped into the past.
package clock
