// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/fingerd/lib/clock"
	"github.com/bureau-foundation/fingerd/lib/finger"
)

// Default per-connection deadlines.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// ErrNoBinds is returned by Listen when none of the configured binds
// could be opened.
var ErrNoBinds = errors.New("server: no bind could be opened")

// Config holds the parameters for New.
type Config struct {
	// Hostname is the site name shown in every answer. Only printable
	// ASCII without spaces (33 to 126) is allowed.
	Hostname string

	// Binds are "host:port" addresses. Hosts containing ':' (IPv6
	// literals, bracketed) listen on IPv6 only; others on IPv4 only.
	// An empty host listens on every family.
	Binds []string

	// Debug makes internal error answers include the error and stack.
	Debug bool

	Interface finger.Interface

	// Formatter defaults to UTC times against Clock.
	Formatter *finger.Formatter

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Clock drives periodic tasks. Defaults to the real clock.
	Clock clock.Clock

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Metrics records request and task metrics when non-nil.
	Metrics *Metrics

	// MetricsListen is the address of the Prometheus HTTP endpoint.
	// Empty disables the endpoint.
	MetricsListen string
}

// Bind is one parsed listen address.
type Bind struct {
	// Network is "tcp4", "tcp6", or "tcp".
	Network string
	Address string
}

func (b Bind) String() string { return b.Network + "/" + b.Address }

// ParseBind parses a "host:port" bind and infers its address family.
func ParseBind(text string) (Bind, error) {
	host, port, err := net.SplitHostPort(text)
	if err != nil {
		return Bind{}, fmt.Errorf("invalid bind %q: %w", text, err)
	}
	number, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Bind{}, fmt.Errorf("invalid bind %q: port %q is not a number between 0 and 65535", text, port)
	}

	bind := Bind{Address: net.JoinHostPort(host, strconv.FormatUint(number, 10))}
	switch {
	case host == "":
		bind.Network = "tcp"
	case strings.Contains(host, ":"):
		bind.Network = "tcp6"
	default:
		bind.Network = "tcp4"
	}
	return bind, nil
}

// ValidateHostname checks that hostname can be shown in an answer.
func ValidateHostname(hostname string) error {
	if hostname == "" {
		return errors.New("hostname is empty")
	}
	for i := 0; i < len(hostname); i++ {
		if c := hostname[i]; c < 33 || c > 126 {
			return fmt.Errorf("hostname %q contains invalid character %q at position %d", hostname, c, i)
		}
	}
	return nil
}

// Server is a finger server. Create one with New, open its binds with
// Listen, then call Run.
type Server struct {
	hostname     string
	binds        []Bind
	debug        bool
	iface        finger.Interface
	formatter    *finger.Formatter
	logger       *slog.Logger
	clock        clock.Clock
	readTimeout  time.Duration
	writeTimeout time.Duration
	metrics      *Metrics
	metricsAddr  string
	tasks        []finger.PeriodicTask

	mu        sync.Mutex
	listeners []net.Listener
}

// New validates config and returns a server. No socket is opened.
func New(config Config) (*Server, error) {
	if err := ValidateHostname(config.Hostname); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if len(config.Binds) == 0 {
		return nil, errors.New("server: no binds configured")
	}
	if config.Interface == nil {
		return nil, errors.New("server: no interface configured")
	}

	binds := make([]Bind, 0, len(config.Binds))
	for _, text := range config.Binds {
		bind, err := ParseBind(text)
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		binds = append(binds, bind)
	}

	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Formatter == nil {
		config.Formatter = finger.NewFormatter(time.UTC, config.Clock)
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}

	tasks := config.Interface.PeriodicTasks()
	for _, task := range tasks {
		if task.Run == nil {
			return nil, fmt.Errorf("server: periodic task %q has no function", task.Name)
		}
	}

	return &Server{
		hostname:     config.Hostname,
		binds:        binds,
		debug:        config.Debug,
		iface:        config.Interface,
		formatter:    config.Formatter,
		logger:       config.Logger,
		clock:        config.Clock,
		readTimeout:  config.ReadTimeout,
		writeTimeout: config.WriteTimeout,
		metrics:      config.Metrics,
		metricsAddr:  config.MetricsListen,
		tasks:        tasks,
	}, nil
}

// Listen opens every configured bind. A bind that fails is logged with
// a diagnosis and skipped; Listen fails with ErrNoBinds only when all
// of them fail.
func (s *Server) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) > 0 {
		return errors.New("server: already listening")
	}

	config := net.ListenConfig{Control: controlSocket}
	var failures []string
	for _, bind := range s.binds {
		listener, err := config.Listen(ctx, bind.Network, bind.Address)
		if err != nil {
			reason := diagnoseBindError(err)
			s.logger.Warn("bind failed", "bind", bind.String(), "reason", reason, "error", err)
			failures = append(failures, bind.String()+": "+reason)
			continue
		}
		s.logger.Info("listening", "bind", bind.String(), "address", listener.Addr().String())
		s.listeners = append(s.listeners, listener)
	}

	if len(s.listeners) == 0 {
		return fmt.Errorf("%w (%s)", ErrNoBinds, strings.Join(failures, "; "))
	}
	return nil
}

// controlSocket restricts IPv6 listeners to IPv6 so that an IPv4 bind
// on the same port does not collide with them.
func controlSocket(network, address string, conn syscall.RawConn) error {
	if network != "tcp6" {
		return nil
	}
	var sockErr error
	if err := conn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

func diagnoseBindError(err error) string {
	switch {
	case errors.Is(err, unix.EADDRINUSE):
		return "address already in use"
	case errors.Is(err, unix.EACCES):
		return "permission denied (ports below 1024 need elevated privileges)"
	case errors.Is(err, unix.EADDRNOTAVAIL):
		return "address not available on this host"
	case errors.Is(err, unix.EAFNOSUPPORT):
		return "address family not supported"
	default:
		return err.Error()
	}
}

// Addrs returns the addresses of the open listeners.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]net.Addr, 0, len(s.listeners))
	for _, listener := range s.listeners {
		addrs = append(addrs, listener.Addr())
	}
	return addrs
}

// Hostname returns the site name shown in answers.
func (s *Server) Hostname() string { return s.hostname }

// Close closes every open listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, listener := range s.listeners {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	s.listeners = nil
	return errors.Join(errs...)
}
