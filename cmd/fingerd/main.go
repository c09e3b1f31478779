// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Fingerd is an RFC 1288 finger server. It answers queries from either
// an empty user database or a scenario file describing fictional users
// logging in and out over time.
//
// Configuration comes from the YAML file named by --config or
// FINGERD_CONFIG; flags override individual values. A running daemon
// can be inspected through its control socket with --status.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/fingerd/lib/config"
	"github.com/bureau-foundation/fingerd/lib/process"
	"github.com/bureau-foundation/fingerd/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		var usage *usageError
		if errors.As(err, &usage) {
			process.UsageError(usage.err, "fingerd")
		}
		process.Fatal(err)
	}
}

// usageError marks errors caused by the command line itself.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// options are the parsed command-line flags.
type options struct {
	configPath   string
	hostname     string
	binds        []string
	ifaceType    string
	scenarioPath string
	start        string
	debug        bool
	check        bool
	status       bool
	showVersion  bool
	help         bool

	flags *pflag.FlagSet
}

func newFlagSet(opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("fingerd", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&opts.hostname, "hostname", "", "site name shown in answers")
	flagSet.StringArrayVarP(&opts.binds, "bind", "b", nil, "host:port to listen on (repeatable)")
	flagSet.StringVarP(&opts.ifaceType, "type", "t", "", "user source: dummy or scenario")
	flagSet.StringVarP(&opts.scenarioPath, "scenario", "s", "", "scenario file (.yaml, .toml, .json)")
	flagSet.StringVar(&opts.start, "start", "", "scenario start time (RFC 3339, default: now)")
	flagSet.BoolVarP(&opts.debug, "debug", "d", false, "debug logging and detailed internal error answers")
	flagSet.BoolVar(&opts.check, "check", false, "load and verify the scenario, then exit")
	flagSet.BoolVar(&opts.status, "status", false, "query the control socket of a running daemon and exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")
	opts.flags = flagSet
	return flagSet
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	flagSet := newFlagSet(opts)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.help = true
			return opts, nil
		}
		return nil, &usageError{err: err}
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, &usageError{err: fmt.Errorf("unexpected argument: %s", extra[0])}
	}
	return opts, nil
}

// loadConfig reads the configuration file and applies flag overrides.
// The result is validated.
func loadConfig(opts *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.flags.Changed("hostname") {
		cfg.Hostname = opts.hostname
	}
	if opts.flags.Changed("bind") {
		cfg.Binds = opts.binds
	}
	if opts.flags.Changed("scenario") {
		cfg.Interface.Scenario = opts.scenarioPath
		if !opts.flags.Changed("type") {
			cfg.Interface.Type = config.InterfaceScenario
		}
	}
	if opts.flags.Changed("type") {
		cfg.Interface.Type = opts.ifaceType
	}
	if opts.flags.Changed("start") {
		cfg.Interface.Start = opts.start
	}
	if opts.debug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.help {
		printHelp(stdout, opts.flags)
		return nil
	}
	if opts.showVersion {
		version.Fprint(stdout, "fingerd")
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	switch {
	case opts.check:
		return checkScenario(cfg, stdout)
	case opts.status:
		return queryStatus(ctx, cfg, stdout)
	}
	return serve(ctx, cfg)
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `fingerd: RFC 1288 finger server.

Answers finger queries from an empty user list (type dummy) or from a
scenario file that scripts fictional users over time (type scenario).

Usage:
  fingerd [flags]

Examples:
  # Serve a scenario on an unprivileged port
  fingerd --bind 127.0.0.1:7979 --scenario demo.yaml

  # Check a scenario file without serving it
  fingerd --check --scenario demo.toml

  # Ask a running daemon how far its scenario has progressed
  fingerd --config /etc/fingerd.yaml --status

Flags:
%s`, flagSet.FlagUsages())
}
