// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/fingerd/lib/clock"
	"github.com/bureau-foundation/fingerd/lib/cron"
	"github.com/bureau-foundation/fingerd/lib/finger"
	"github.com/bureau-foundation/fingerd/lib/scenario"
	"github.com/bureau-foundation/fingerd/lib/testutil"
)

func TestRunReturnsNilOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, finger.BaseInterface{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// Run listens by itself when Listen was not called.
	var address string
	for address == "" {
		if addrs := srv.Addrs(); len(addrs) > 0 {
			address = addrs[0].String()
		}
		time.Sleep(time.Millisecond) //nolint:realclock polling for the listener
	}
	if got := sendQuery(t, address, "\r\n"); got != finger.NoUsersAnswer {
		t.Errorf("answer = %q", got)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run exit"); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
	if _, err := net.Dial("tcp", address); err == nil {
		t.Error("listener still accepting after Run returned")
	}
}

func TestRunStopsWhenTaskRequestsStop(t *testing.T) {
	iface := &stubInterface{tasks: []finger.PeriodicTask{
		{
			Name:     "stopper",
			Schedule: cron.MustParse("* * * * * *"),
			Run:      func(ctx context.Context) error { return finger.ErrStop },
		},
		{
			Name:     "idle",
			Schedule: cron.MustParse("0 0 1 1 *"),
			Run:      func(ctx context.Context) error { return nil },
		},
	}}
	srv, fake := newTestServer(t, iface)
	if err := srv.Listen(context.Background()); err != nil {
		t.Fatal(err)
	}
	address := srv.Addrs()[0].String()

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	fake.WaitForTimers(2)
	fake.Advance(time.Second)
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run exit"); err != nil {
		t.Errorf("Run = %v, want nil after a stop request", err)
	}
	if _, err := net.Dial("tcp", address); err == nil {
		t.Error("listener still accepting after a stop request")
	}
}

func TestRunReportsBrokenSchedule(t *testing.T) {
	// February 30th never happens.
	iface := &stubInterface{tasks: []finger.PeriodicTask{{
		Name:     "never",
		Schedule: cron.MustParse("0 0 30 2 *"),
		Run:      func(ctx context.Context) error { return nil },
	}}}
	srv, _ := newTestServer(t, iface)

	err := srv.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "task never") {
		t.Errorf("Run = %v, want the scheduling error", err)
	}
}

func TestRunFailsWithoutBinds(t *testing.T) {
	occupied, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()

	srv, _ := newTestServer(t, finger.BaseInterface{}, func(c *Config) {
		c.Binds = []string{occupied.Addr().String()}
	})
	if err := srv.Run(context.Background()); !errors.Is(err, ErrNoBinds) {
		t.Errorf("Run = %v, want ErrNoBinds", err)
	}
}

// A scenario that creates alice, logs her in at 0s, and stops at 60s,
// served end to end.
func TestRunScenarioUntilStop(t *testing.T) {
	s := scenario.New()
	s.Ending = scenario.Stop
	s.EndingOffset = time.Minute
	s.Add(0, scenario.CreateUser{Login: "alice", Name: "Alice"})
	s.Add(0, scenario.Login{Login: "alice", Line: "tty1"})

	fake := clock.Fake(epoch)
	iface, err := scenario.NewInterface(scenario.Config{Scenario: s, Start: epoch, Clock: fake, Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServerWithClock(t, iface, fake)
	if err := srv.Listen(context.Background()); err != nil {
		t.Fatal(err)
	}
	address := srv.Addrs()[0].String()

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	fake.WaitForTimers(1)

	answer := sendQuery(t, address, "\r\n")
	if !strings.Contains(answer, "alice") || !strings.Contains(answer, "tty1") {
		t.Errorf("list at 1s = %q, want alice on tty1", answer)
	}

	for elapsed := 2; elapsed <= 60; elapsed++ {
		fake.Advance(time.Second)
		if elapsed < 60 {
			fake.WaitForTimers(1)
		}
	}
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run exit at the stop ending"); err != nil {
		t.Errorf("Run = %v, want nil", err)
	}
}
