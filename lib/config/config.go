// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the configuration file when no --config
// flag is given.
const EnvironmentVariable = "FINGERD_CONFIG"

// Interface types.
const (
	InterfaceDummy    = "dummy"
	InterfaceScenario = "scenario"
)

// Config is the fingerd configuration.
type Config struct {
	// Hostname is the site name shown in answers.
	Hostname string `yaml:"hostname"`

	// Binds are the "host:port" addresses to listen on.
	Binds []string `yaml:"binds"`

	// Debug enables debug logging and shows internal errors to
	// clients.
	Debug bool `yaml:"debug"`

	// Timezone is the IANA zone answers display times in. "Local"
	// uses the system zone.
	Timezone string `yaml:"timezone"`

	Log       LogConfig       `yaml:"log"`
	Interface InterfaceConfig `yaml:"interface"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Control   ControlConfig   `yaml:"control"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// InterfaceConfig selects where user data comes from.
type InterfaceConfig struct {
	// Type is dummy (no users) or scenario.
	Type string `yaml:"type"`

	// Scenario is the scenario file path, required for the scenario
	// type.
	Scenario string `yaml:"scenario"`

	// Start is the RFC 3339 instant the scenario starts at. Empty
	// means when the daemon starts.
	Start string `yaml:"start"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address serving /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

// ControlConfig configures the control socket.
type ControlConfig struct {
	// Socket is the Unix socket path. Empty disables it.
	Socket string `yaml:"socket"`
}

// TimeoutsConfig bounds each finger connection.
type TimeoutsConfig struct {
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
}

// Default returns the configuration used before any file is loaded.
func Default() *Config {
	return &Config{
		Hostname: "LOCALHOST",
		Binds:    []string{"0.0.0.0:79", "[::]:79"},
		Timezone: "Local",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Interface: InterfaceConfig{
			Type: InterfaceDummy,
		},
		Timeouts: TimeoutsConfig{
			Read:  30 * time.Second,
			Write: 10 * time.Second,
		},
	}
}

// Load loads the file named by FINGERD_CONFIG, or returns the
// defaults when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads the configuration file at path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	cfg.expandVariables()

	return cfg, nil
}

// loadFile merges a single configuration file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Interface.Scenario = expandVars(c.Interface.Scenario, vars)
	c.Control.Socket = expandVars(c.Control.Socket, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var (
	logLevels      = []string{"debug", "info", "warn", "error"}
	logFormats     = []string{"text", "json"}
	interfaceTypes = []string{InterfaceDummy, InterfaceScenario}
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Hostname == "" {
		errs = append(errs, errors.New("hostname is required"))
	} else if strings.IndexFunc(c.Hostname, func(r rune) bool { return r < 33 || r > 126 }) >= 0 {
		errs = append(errs, fmt.Errorf("hostname %q may only contain printable ASCII characters without spaces", c.Hostname))
	}

	if len(c.Binds) == 0 {
		errs = append(errs, errors.New("binds: at least one address is required"))
	}
	for _, bind := range c.Binds {
		if _, _, err := net.SplitHostPort(bind); err != nil {
			errs = append(errs, fmt.Errorf("binds: %w", err))
		}
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormats))
	}

	if !slices.Contains(interfaceTypes, c.Interface.Type) {
		errs = append(errs, fmt.Errorf("interface.type must be one of: %v", interfaceTypes))
	}
	if c.Interface.Type == InterfaceScenario && c.Interface.Scenario == "" {
		errs = append(errs, errors.New("interface.scenario is required for the scenario interface"))
	}
	if _, err := c.StartTime(); err != nil {
		errs = append(errs, err)
	}

	if c.Timeouts.Read <= 0 {
		errs = append(errs, errors.New("timeouts.read must be positive"))
	}
	if c.Timeouts.Write <= 0 {
		errs = append(errs, errors.New("timeouts.write must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Location returns the time zone answers are displayed in.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	location, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return location, nil
}

// StartTime returns the configured scenario start, or the zero time
// when none is configured.
func (c *Config) StartTime() (time.Time, error) {
	if c.Interface.Start == "" {
		return time.Time{}, nil
	}
	start, err := time.Parse(time.RFC3339, c.Interface.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("interface.start: %w", err)
	}
	return start, nil
}

// LogLevel returns the slog level for the configuration. Debug mode
// always logs at debug level.
func (c *Config) LogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns the logger described by the configuration,
// writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	options := &slog.HandlerOptions{Level: c.LogLevel()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}
