// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bureau-foundation/fingerd/lib/finger"
)

// acceptBackoff is how long an accept loop waits after an unexpected
// accept error before trying again.
const acceptBackoff = 100 * time.Millisecond

// routine is one of the concurrent loops Run supervises.
type routine struct {
	name string
	run  func(ctx context.Context) error
}

type routineResult struct {
	name string
	err  error
}

// Run serves every open listener, runs every periodic task, and serves
// the metrics endpoint if configured, until one of them returns or ctx
// is cancelled. The remaining ones are then cancelled and Run waits for
// them before returning.
//
// Run returns nil when ctx is cancelled or a periodic task returned
// finger.ErrStop, and the first routine's error otherwise. It calls
// Listen if it was not called before.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	listening := len(s.listeners) > 0
	s.mu.Unlock()
	if !listening {
		if err := s.Listen(ctx); err != nil {
			return err
		}
	}
	defer s.Close()

	var routines []routine
	s.mu.Lock()
	for _, listener := range s.listeners {
		routines = append(routines, routine{
			name: "accept " + listener.Addr().String(),
			run:  func(ctx context.Context) error { return s.serve(ctx, listener) },
		})
	}
	s.mu.Unlock()
	for _, task := range s.tasks {
		routines = append(routines, routine{
			name: "task " + task.Name,
			run:  func(ctx context.Context) error { return s.runPeriodicTask(ctx, task) },
		})
	}
	if s.metricsAddr != "" {
		routines = append(routines, routine{name: "metrics", run: s.serveMetrics})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan routineResult, len(routines))
	var wg sync.WaitGroup
	for _, r := range routines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- routineResult{name: r.name, err: r.run(runCtx)}
		}()
	}

	first := <-results
	cancel()
	s.Close()
	wg.Wait()

	switch {
	case errors.Is(first.err, finger.ErrStop):
		s.logger.Info("server stopping", "reason", first.name+" requested stop")
		return nil
	case ctx.Err() != nil:
		s.logger.Info("server stopping", "reason", "shutdown requested")
		return nil
	case first.err == nil:
		return fmt.Errorf("%s exited unexpectedly", first.name)
	default:
		return fmt.Errorf("%s: %w", first.name, first.err)
	}
}

// serve accepts connections on listener until ctx is cancelled.
func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener %s closed", listener.Addr())
			}
			s.logger.Error("accept failed", "address", listener.Addr().String(), "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(acceptBackoff):
			}
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

// serveMetrics serves the Prometheus endpoint until ctx is cancelled.
func (s *Server) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())

	httpServer := &http.Server{
		Addr:              s.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: s.readTimeout,
	}
	listener, err := net.Listen("tcp", s.metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	s.logger.Info("metrics endpoint listening", "address", listener.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
