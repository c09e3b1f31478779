// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/term"

	"github.com/bureau-foundation/fingerd/lib/clock"
	"github.com/bureau-foundation/fingerd/lib/codec"
	"github.com/bureau-foundation/fingerd/lib/config"
	"github.com/bureau-foundation/fingerd/lib/finger"
	"github.com/bureau-foundation/fingerd/lib/scenario"
	"github.com/bureau-foundation/fingerd/lib/service"
	"github.com/bureau-foundation/fingerd/server"
)

// buildInterface returns the user source selected by cfg. The second
// result is non-nil only for the scenario interface.
func buildInterface(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (finger.Interface, *scenario.Interface, error) {
	switch cfg.Interface.Type {
	case config.InterfaceDummy:
		return finger.BaseInterface{}, nil, nil
	case config.InterfaceScenario:
		loaded, err := scenario.Load(cfg.Interface.Scenario)
		if err != nil {
			return nil, nil, err
		}
		start, err := cfg.StartTime()
		if err != nil {
			return nil, nil, err
		}
		iface, err := scenario.NewInterface(scenario.Config{
			Scenario: loaded,
			Start:    start,
			Clock:    clk,
			Logger:   logger.With("scenario", cfg.Interface.Scenario),
		})
		if err != nil {
			return nil, nil, err
		}
		return iface, iface, nil
	default:
		return nil, nil, fmt.Errorf("unknown interface type %q", cfg.Interface.Type)
	}
}

// registerScenarioMetrics exports the simulation progress as gauges
// read at scrape time.
func registerScenarioMetrics(registry *prometheus.Registry, iface *scenario.Interface) {
	factory := promauto.With(registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fingerd_scenario_users",
		Help: "Fictional users currently defined by the scenario.",
	}, func() float64 {
		return float64(iface.Status().Users)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fingerd_scenario_sessions",
		Help: "Fictional sessions currently open in the scenario.",
	}, func() float64 {
		return float64(iface.Status().Sessions)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fingerd_scenario_offset_seconds",
		Help: "Offset of the last applied scenario update.",
	}, func() float64 {
		return iface.Status().Offset.Seconds()
	})
}

// serve runs the daemon until ctx is cancelled or the scenario stops.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	location, err := cfg.Location()
	if err != nil {
		return err
	}
	clk := clock.Real()

	iface, simulation, err := buildInterface(cfg, clk, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(registry)
	if simulation != nil {
		registerScenarioMetrics(registry, simulation)
	}

	srv, err := server.New(server.Config{
		Hostname:      cfg.Hostname,
		Binds:         cfg.Binds,
		Debug:         cfg.Debug,
		Interface:     iface,
		Formatter:     finger.NewFormatter(location, clk),
		Logger:        logger,
		Clock:         clk,
		ReadTimeout:   cfg.Timeouts.Read,
		WriteTimeout:  cfg.Timeouts.Write,
		Metrics:       metrics,
		MetricsListen: cfg.Metrics.Listen,
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(ctx); err != nil {
		return err
	}
	defer srv.Close()

	controlCtx, cancelControl := context.WithCancel(ctx)
	defer cancelControl()
	controlDone := make(chan error, 1)
	if cfg.Control.Socket != "" {
		socketServer := service.NewSocketServer(cfg.Control.Socket, logger)
		newController(cfg, srv, simulation, clk).register(socketServer)
		go func() {
			controlDone <- socketServer.Serve(controlCtx)
		}()
	} else {
		controlDone <- nil
	}

	logger.Info("fingerd running",
		"hostname", cfg.Hostname,
		"addresses", addrStrings(srv.Addrs()),
		"interface", cfg.Interface.Type,
	)

	runErr := srv.Run(ctx)
	cancelControl()
	if err := <-controlDone; err != nil {
		logger.Error("control socket failed", "error", err)
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("fingerd stopped")
	return nil
}

// checkScenario loads and verifies the configured scenario and prints
// a one-line summary.
func checkScenario(cfg *config.Config, stdout io.Writer) error {
	if cfg.Interface.Scenario == "" {
		return &usageError{err: errors.New("--check needs a scenario (--scenario or interface.scenario)")}
	}
	loaded, err := scenario.Load(cfg.Interface.Scenario)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d actions, %s at %s\n",
		cfg.Interface.Scenario,
		len(loaded.Steps()),
		loaded.Ending,
		scenario.FormatOffset(loaded.EndingOffset),
	)
	return nil
}

// statusTimeout bounds a --status query.
const statusTimeout = 10 * time.Second

// queryStatus asks a running daemon for its status. A terminal gets
// CBOR diagnostic notation; anything else gets the raw CBOR reply.
func queryStatus(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	if cfg.Control.Socket == "" {
		return errors.New("--status needs control.socket in the configuration")
	}
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	raw, err := service.NewClient(cfg.Control.Socket).CallRaw(ctx, actionStatus, nil)
	if err != nil {
		return err
	}

	if file, ok := stdout.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		notation, err := codec.Diagnose(raw)
		if err != nil {
			return fmt.Errorf("decoding status reply: %w", err)
		}
		_, err = fmt.Fprintln(stdout, notation)
		return err
	}
	_, err = stdout.Write(raw)
	return err
}
