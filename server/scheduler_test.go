// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/fingerd/lib/cron"
	"github.com/bureau-foundation/fingerd/lib/finger"
	"github.com/bureau-foundation/fingerd/lib/testutil"
)

func TestPeriodicTaskFollowsSchedule(t *testing.T) {
	srv, fake := newTestServer(t, finger.BaseInterface{})
	runs := make(chan time.Time, 10)
	task := finger.PeriodicTask{
		Name:     "tick",
		Schedule: cron.MustParse("*/5 * * * * *"),
		Run: func(ctx context.Context) error {
			runs <- fake.Now()
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.runPeriodicTask(ctx, task) }()

	for i := 1; i <= 3; i++ {
		fake.WaitForTimers(1)
		fake.Advance(5 * time.Second)
		got := testutil.RequireReceive(t, runs, 5*time.Second, "run %d", i)
		if want := epoch.Add(time.Duration(i) * 5 * time.Second); !got.Equal(want) {
			t.Errorf("run %d at %v, want %v", i, got, want)
		}
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "task loop exit"); !errors.Is(err, context.Canceled) {
		t.Errorf("runPeriodicTask = %v, want context.Canceled", err)
	}
}

func TestPeriodicTaskDoesNotRunEarly(t *testing.T) {
	srv, fake := newTestServer(t, finger.BaseInterface{})
	runs := make(chan struct{}, 1)
	task := finger.PeriodicTask{
		Name:     "minutely",
		Schedule: cron.MustParse("* * * * *"),
		Run: func(ctx context.Context) error {
			runs <- struct{}{}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.runPeriodicTask(ctx, task)

	fake.WaitForTimers(1)
	fake.Advance(59 * time.Second)
	if fake.PendingCount() != 1 {
		t.Fatalf("task fired before its minute")
	}
	select {
	case <-runs:
		t.Fatal("task ran before its minute")
	default:
	}
	fake.Advance(time.Second)
	testutil.RequireReceive(t, runs, 5*time.Second, "minutely run")
}

func TestPeriodicTaskContinuesAfterErrors(t *testing.T) {
	srv, fake := newTestServer(t, finger.BaseInterface{})
	calls := make(chan int, 10)
	count := 0
	task := finger.PeriodicTask{
		Name:     "flaky",
		Schedule: cron.MustParse("* * * * * *"),
		Run: func(ctx context.Context) error {
			count++
			calls <- count
			switch count {
			case 1:
				return errors.New("transient")
			case 2:
				panic("worse")
			case 3:
				return nil
			default:
				return finger.ErrStop
			}
		},
	}

	done := make(chan error, 1)
	go func() { done <- srv.runPeriodicTask(context.Background(), task) }()

	for i := 1; i <= 4; i++ {
		fake.WaitForTimers(1)
		fake.Advance(time.Second)
		if got := testutil.RequireReceive(t, calls, 5*time.Second, "call %d", i); got != i {
			t.Fatalf("call = %d, want %d", got, i)
		}
	}
	if err := testutil.RequireReceive(t, done, 5*time.Second, "task loop exit"); !errors.Is(err, finger.ErrStop) {
		t.Errorf("runPeriodicTask = %v, want finger.ErrStop", err)
	}
}

func TestRunTaskOnceRecoversPanics(t *testing.T) {
	err := runTaskOnce(context.Background(), finger.PeriodicTask{
		Run: func(ctx context.Context) error { panic("boom") },
	})
	if err == nil || err.Error() != "panic: boom" {
		t.Errorf("runTaskOnce = %v", err)
	}
}
