// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/fingerd/lib/clock"
	"github.com/bureau-foundation/fingerd/lib/finger"
	"github.com/bureau-foundation/fingerd/lib/testutil"
)

var epoch = time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubInterface serves a fixed user list and records what it is asked.
type stubInterface struct {
	finger.BaseInterface

	users    []finger.User
	err      error
	panics   bool
	tasks    []finger.PeriodicTask
	queries  chan string
	activity chan finger.Activity
}

func (s *stubInterface) SearchUsers(ctx context.Context, query string, activity finger.Activity) ([]finger.User, error) {
	if s.panics {
		panic("stub exploded")
	}
	if s.queries != nil {
		s.queries <- query
		s.activity <- activity
	}
	if s.err != nil {
		return nil, s.err
	}
	return finger.FilterUsers(s.users, query, activity), nil
}

func (s *stubInterface) PeriodicTasks() []finger.PeriodicTask { return s.tasks }

// answeringInterface answers malformed queries itself.
type answeringInterface struct {
	finger.BaseInterface
}

func (answeringInterface) HandleMalformedRequest(hostname string, err *finger.MalformedRequestError) string {
	return "custom: " + err.Message + "\r\n"
}

func testUsers() []finger.User {
	return []finger.User{
		{
			Login:    "alice",
			Name:     "Alice Liddell",
			Sessions: []finger.Session{finger.NewSession(epoch, epoch, "pts/0", "")},
		},
		{Login: "bob", Name: "Bob"},
	}
}

func newTestServer(t *testing.T, iface finger.Interface, mutate ...func(*Config)) (*Server, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	return newTestServerWithClock(t, iface, fake, mutate...), fake
}

func newTestServerWithClock(t *testing.T, iface finger.Interface, fake *clock.FakeClock, mutate ...func(*Config)) *Server {
	t.Helper()
	config := Config{
		Hostname:  "EXAMPLE",
		Binds:     []string{"127.0.0.1:0"},
		Interface: iface,
		Formatter: finger.NewFormatter(time.UTC, fake),
		Logger:    discardLogger(),
		Clock:     fake,
	}
	for _, m := range mutate {
		m(&config)
	}
	srv, err := New(config)
	if err != nil {
		t.Fatalf("New = %v", err)
	}
	return srv
}

func TestNewValidation(t *testing.T) {
	valid := func() Config {
		return Config{Hostname: "EXAMPLE", Binds: []string{"127.0.0.1:79"}, Interface: finger.BaseInterface{}}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty_hostname", func(c *Config) { c.Hostname = "" }},
		{"hostname_with_space", func(c *Config) { c.Hostname = "my host" }},
		{"hostname_non_ascii", func(c *Config) { c.Hostname = "hôte" }},
		{"no_binds", func(c *Config) { c.Binds = nil }},
		{"bind_without_port", func(c *Config) { c.Binds = []string{"127.0.0.1"} }},
		{"bind_bad_port", func(c *Config) { c.Binds = []string{"127.0.0.1:finger"} }},
		{"bind_port_range", func(c *Config) { c.Binds = []string{"127.0.0.1:70000"} }},
		{"no_interface", func(c *Config) { c.Interface = nil }},
		{"task_without_run", func(c *Config) {
			c.Interface = &stubInterface{tasks: []finger.PeriodicTask{{Name: "broken"}}}
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := valid()
			test.mutate(&config)
			if _, err := New(config); err == nil {
				t.Error("New succeeded, want a configuration error")
			}
		})
	}

	if _, err := New(valid()); err != nil {
		t.Errorf("New(valid) = %v", err)
	}
}

func TestParseBind(t *testing.T) {
	tests := []struct {
		text string
		want Bind
	}{
		{"0.0.0.0:79", Bind{Network: "tcp4", Address: "0.0.0.0:79"}},
		{"[::]:79", Bind{Network: "tcp6", Address: "[::]:79"}},
		{"[::1]:7979", Bind{Network: "tcp6", Address: "[::1]:7979"}},
		{"localhost:79", Bind{Network: "tcp4", Address: "localhost:79"}},
		{":79", Bind{Network: "tcp", Address: ":79"}},
		{"127.0.0.1:0079", Bind{Network: "tcp4", Address: "127.0.0.1:79"}},
	}
	for _, test := range tests {
		got, err := ParseBind(test.text)
		if err != nil {
			t.Errorf("ParseBind(%q) = %v", test.text, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseBind(%q) = %+v, want %+v", test.text, got, test.want)
		}
	}
}

func TestValidateHostname(t *testing.T) {
	for _, hostname := range []string{"LOCALHOST", "finger.example.org", "!~"} {
		if err := ValidateHostname(hostname); err != nil {
			t.Errorf("ValidateHostname(%q) = %v", hostname, err)
		}
	}
	for _, hostname := range []string{"", " ", "a\tb", "a\x7f"} {
		if err := ValidateHostname(hostname); err == nil {
			t.Errorf("ValidateHostname(%q) succeeded", hostname)
		}
	}
}

func TestListenSkipsFailedBinds(t *testing.T) {
	occupied, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()

	srv, _ := newTestServer(t, finger.BaseInterface{}, func(c *Config) {
		c.Binds = []string{occupied.Addr().String(), "127.0.0.1:0"}
	})
	if err := srv.Listen(context.Background()); err != nil {
		t.Fatalf("Listen = %v", err)
	}
	defer srv.Close()

	addrs := srv.Addrs()
	if len(addrs) != 1 || addrs[0].String() == occupied.Addr().String() {
		t.Errorf("Addrs = %v, want only the free bind", addrs)
	}
	if err := srv.Listen(context.Background()); err == nil {
		t.Error("second Listen succeeded")
	}
}

func TestListenAllBindsFail(t *testing.T) {
	occupied, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()

	srv, _ := newTestServer(t, finger.BaseInterface{}, func(c *Config) {
		c.Binds = []string{occupied.Addr().String()}
	})
	err = srv.Listen(context.Background())
	if !errors.Is(err, ErrNoBinds) {
		t.Fatalf("Listen = %v, want ErrNoBinds", err)
	}
	if !strings.Contains(err.Error(), "address already in use") {
		t.Errorf("error %q lacks the diagnosis", err)
	}
}

func TestDiagnoseBindError(t *testing.T) {
	wrap := func(errno unix.Errno) error {
		return &net.OpError{Op: "listen", Net: "tcp", Err: os.NewSyscallError("bind", errno)}
	}
	tests := []struct {
		err  error
		want string
	}{
		{wrap(unix.EADDRINUSE), "address already in use"},
		{wrap(unix.EACCES), "permission denied"},
		{wrap(unix.EADDRNOTAVAIL), "address not available"},
		{wrap(unix.EAFNOSUPPORT), "family not supported"},
		{errors.New("something else"), "something else"},
	}
	for _, test := range tests {
		if got := diagnoseBindError(test.err); !strings.Contains(got, test.want) {
			t.Errorf("diagnoseBindError(%v) = %q, want it to contain %q", test.err, got, test.want)
		}
	}
}

func TestListenIPv6Only(t *testing.T) {
	probe, err := net.Listen("tcp6", "[::1]:0")
	if err != nil {
		t.Skipf("IPv6 loopback unavailable: %v", err)
	}
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	// With IPV6_V6ONLY set, an IPv4 and an IPv6 wildcard bind on the
	// same port coexist.
	srv, _ := newTestServer(t, finger.BaseInterface{}, func(c *Config) {
		c.Binds = []string{net.JoinHostPort("::", strconv.Itoa(port)), net.JoinHostPort("0.0.0.0", strconv.Itoa(port))}
	})
	if err := srv.Listen(context.Background()); err != nil {
		t.Fatalf("Listen = %v", err)
	}
	defer srv.Close()
	if addrs := srv.Addrs(); len(addrs) != 2 {
		t.Errorf("Addrs = %v, want both families bound", addrs)
	}
}

// startServer listens and runs srv until the test ends.
func startServer(t *testing.T, srv *Server) (address string, done <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Listen(ctx); err != nil {
		cancel()
		t.Fatalf("Listen = %v", err)
	}
	result := make(chan error, 1)
	go func() { result <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, result, 5*time.Second, "waiting for Run to return")
	})
	return srv.Addrs()[0].String(), result
}

func sendQuery(t *testing.T, address, line string) string {
	t.Helper()
	conn, err := net.Dial("tcp", address)
	if err != nil {
		t.Fatalf("dial %s: %v", address, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:realclock test hang prevention
	if _, err := io.WriteString(conn, line); err != nil {
		t.Fatalf("writing query: %v", err)
	}
	if !strings.HasSuffix(line, "\n") {
		conn.(*net.TCPConn).CloseWrite()
	}
	answer, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("reading answer: %v", err)
	}
	return string(answer)
}

func TestServeQueries(t *testing.T) {
	iface := &stubInterface{users: testUsers()}
	srv, _ := newTestServer(t, iface)
	address, _ := startServer(t, srv)
	formatter := finger.NewFormatter(time.UTC, clock.Fake(epoch))
	active := finger.FilterUsers(testUsers(), "", finger.ActiveOnly)

	tests := []struct {
		name string
		line string
		want string
	}{
		{"list", "\r\n", formatter.FormatShort("EXAMPLE", "", active)},
		{"list_verbose", "/W\r\n", formatter.FormatLong("EXAMPLE", "/W", active)},
		{"user", "bob\r\n", formatter.FormatLong("EXAMPLE", "bob", testUsers()[1:])},
		{"user_unknown", "zed\r\n", finger.NoUsersAnswer},
		{"forward", "alice@example.org\r\n", finger.TransmitRefusal},
		{"malformed", "a b\r\n", formatter.FormatQueryError("EXAMPLE", "a b")},
		{"no_terminator", "bob", formatter.FormatLong("EXAMPLE", "bob", testUsers()[1:])},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := sendQuery(t, address, test.line); got != test.want {
				t.Errorf("answer mismatch\n got: %q\nwant: %q", got, test.want)
			}
		})
	}
}

func TestServeQueryTooLong(t *testing.T) {
	srv, _ := newTestServer(t, &stubInterface{users: testUsers()})
	address, _ := startServer(t, srv)

	got := sendQuery(t, address, strings.Repeat("x", maxQueryLength+1))
	if !strings.Contains(got, "You have made a mistake in your query!") {
		t.Errorf("over-long query answered with %q", got)
	}
}

func TestAnswerDispatch(t *testing.T) {
	iface := &stubInterface{
		users:    testUsers(),
		queries:  make(chan string, 1),
		activity: make(chan finger.Activity, 1),
	}
	srv, _ := newTestServer(t, iface)
	ctx := context.Background()

	tests := []struct {
		line     string
		kind     string
		query    string
		activity finger.Activity
	}{
		{"", kindList, "", finger.ActiveOnly},
		{"/W", kindList, "", finger.ActiveOnly},
		{"alice", kindUser, "alice", finger.AnyActivity},
		{"alice/W", kindUser, "alice", finger.AnyActivity},
	}
	for _, test := range tests {
		_, kind := srv.answer(ctx, discardLogger(), []byte(test.line))
		if kind != test.kind {
			t.Errorf("%q: kind = %q, want %q", test.line, kind, test.kind)
		}
		if query := <-iface.queries; query != test.query {
			t.Errorf("%q: searched %q, want %q", test.line, query, test.query)
		}
		if activity := <-iface.activity; activity != test.activity {
			t.Errorf("%q: activity = %v, want %v", test.line, activity, test.activity)
		}
	}

	if _, kind := srv.answer(ctx, discardLogger(), []byte("alice@host")); kind != kindForward {
		t.Errorf("forward kind = %q", kind)
	}
}

func TestAnswerMalformedHandler(t *testing.T) {
	srv, _ := newTestServer(t, answeringInterface{})
	answer, kind := srv.answer(context.Background(), discardLogger(), []byte("/X"))
	if kind != kindMalformed || !strings.HasPrefix(answer, "custom: ") {
		t.Errorf("answer = %q (%s), want the interface's own answer", answer, kind)
	}
}

func TestAnswerInternalErrors(t *testing.T) {
	tests := []struct {
		name  string
		iface *stubInterface
		debug bool
		want  string
	}{
		{"error", &stubInterface{err: errors.New("backend down")}, false, InternalErrorAnswer},
		{"panic", &stubInterface{panics: true}, false, InternalErrorAnswer},
		{"error_debug", &stubInterface{err: errors.New("backend down")}, true, "backend down"},
		{"panic_debug", &stubInterface{panics: true}, true, "stub exploded"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv, _ := newTestServer(t, test.iface, func(c *Config) { c.Debug = test.debug })
			answer, kind := srv.answer(context.Background(), discardLogger(), []byte("alice"))
			if kind != kindInternal {
				t.Errorf("kind = %q, want %q", kind, kindInternal)
			}
			if !strings.Contains(answer, test.want) {
				t.Errorf("answer = %q, want it to contain %q", answer, test.want)
			}
			if !test.debug && answer != InternalErrorAnswer {
				t.Errorf("non-debug answer leaks details: %q", answer)
			}
			for _, line := range strings.SplitAfter(answer, "\n") {
				if line != "" && !strings.HasSuffix(line, "\r\n") {
					t.Errorf("answer line %q not CRLF-terminated", line)
				}
			}
		})
	}
}

func TestServeSurvivesPanickingInterface(t *testing.T) {
	srv, _ := newTestServer(t, &stubInterface{panics: true})
	address, _ := startServer(t, srv)

	for range 3 {
		if got := sendQuery(t, address, "alice\r\n"); got != InternalErrorAnswer {
			t.Fatalf("answer = %q", got)
		}
	}
}

func TestClientClosingEarly(t *testing.T) {
	srv, _ := newTestServer(t, &stubInterface{users: testUsers()})
	address, _ := startServer(t, srv)

	conn, err := net.Dial("tcp", address)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()

	// The server keeps answering other clients.
	if got := sendQuery(t, address, "bob\r\n"); !strings.Contains(got, "Login: bob") {
		t.Errorf("answer after an early close = %q", got)
	}
}
