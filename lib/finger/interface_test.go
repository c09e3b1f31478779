// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package finger

import (
	"context"
	"testing"
	"time"
)

func TestBaseInterface(t *testing.T) {
	var iface Interface = BaseInterface{}
	ctx := context.Background()

	users, err := iface.SearchUsers(ctx, "", AnyActivity)
	if err != nil || len(users) != 0 {
		t.Errorf("SearchUsers = %v, %v; want no users", users, err)
	}

	answer, err := iface.TransmitQuery(ctx, "alice", "example.org", false)
	if err != nil {
		t.Fatalf("TransmitQuery: %v", err)
	}
	if answer != TransmitRefusal {
		t.Errorf("TransmitQuery = %q, want the refusal", answer)
	}

	if tasks := iface.PeriodicTasks(); len(tasks) != 0 {
		t.Errorf("PeriodicTasks = %d tasks, want none", len(tasks))
	}
}

type embeddingInterface struct {
	BaseInterface
}

func (embeddingInterface) SearchUsers(ctx context.Context, query string, activity Activity) ([]User, error) {
	return []User{{Login: "embedded"}}, nil
}

func TestBaseInterfaceEmbedding(t *testing.T) {
	var iface Interface = embeddingInterface{}
	users, _ := iface.SearchUsers(context.Background(), "", AnyActivity)
	if len(users) != 1 || users[0].Login != "embedded" {
		t.Errorf("overridden SearchUsers not used: %v", users)
	}
	if answer, _ := iface.TransmitQuery(context.Background(), "", "host", true); answer != TransmitRefusal {
		t.Errorf("embedded TransmitQuery = %q", answer)
	}
}

func TestFilterUsers(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []User{
		{Login: "alice", Sessions: []Session{NewSession(start, start, "", "")}},
		{Login: "bob"},
		{Login: "malice"},
	}

	tests := []struct {
		name     string
		query    string
		activity Activity
		want     []string
	}{
		{"all", "", AnyActivity, []string{"alice", "bob", "malice"}},
		{"active", "", ActiveOnly, []string{"alice"}},
		{"inactive", "", InactiveOnly, []string{"bob", "malice"}},
		{"substring", "lice", AnyActivity, []string{"alice", "malice"}},
		{"substring_active", "lice", ActiveOnly, []string{"alice"}},
		{"no_match", "zed", AnyActivity, nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := FilterUsers(users, test.query, test.activity)
			if len(got) != len(test.want) {
				t.Fatalf("FilterUsers = %d users, want %d", len(got), len(test.want))
			}
			for i, user := range got {
				if user.Login != test.want[i] {
					t.Errorf("user %d = %q, want %q", i, user.Login, test.want[i])
				}
			}
		})
	}
}

func TestActivityString(t *testing.T) {
	for activity, want := range map[Activity]string{AnyActivity: "any", ActiveOnly: "active", InactiveOnly: "inactive"} {
		if got := activity.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", activity, got, want)
		}
	}
}
