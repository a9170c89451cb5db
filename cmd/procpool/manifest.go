package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wagiedev/procpool/internal/config"
	"github.com/wagiedev/procpool/internal/hostfs"
	"github.com/wagiedev/procpool/internal/mcp"
	"github.com/wagiedev/procpool/internal/scheduler"
)

// Environment variables that override manifest values.
const (
	envCapacity   = "PROCPOOL_CAPACITY"
	envHealthPort = "PROCPOOL_HEALTH_PORT"
)

// WorkerConfig is one manifest worker: a stdio command plus restart policy.
type WorkerConfig struct {
	mcp.StdioServerConfig `yaml:",inline"`

	Restart bool `yaml:"restart"`
}

// Manifest is the procpool configuration file.
type Manifest struct {
	Capacity    int                      `yaml:"capacity"`
	GracePeriod time.Duration            `yaml:"grace_period"`
	HealthPort  int                      `yaml:"health_port"`
	HistoryFile string                   `yaml:"history_file"`
	Workers     map[string]*WorkerConfig `yaml:"workers"`
}

// LoadManifest reads and validates the manifest at path and applies
// environment overrides.
func LoadManifest(path string) (*Manifest, error) {
	data, err := hostfs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return ParseManifest(data)
}

// ParseManifest decodes a manifest, applies environment overrides and
// fills defaults.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest

	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if err := m.applyEnv(); err != nil {
		return nil, err
	}

	if m.Capacity <= 0 {
		m.Capacity = config.DefaultCapacity
	}

	if m.GracePeriod <= 0 {
		m.GracePeriod = config.DefaultGracePeriod
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Manifest) applyEnv() error {
	if v, ok := hostfs.GetEnv(envCapacity); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envCapacity, err)
		}

		m.Capacity = n
	}

	if v, ok := hostfs.GetEnv(envHealthPort); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envHealthPort, err)
		}

		m.HealthPort = n
	}

	return nil
}

// Validate checks the manifest for values the supervisor cannot honour.
func (m *Manifest) Validate() error {
	var errs []error

	if m.HealthPort < 0 || m.HealthPort > 65535 {
		errs = append(errs, fmt.Errorf("health_port %d out of range", m.HealthPort))
	}

	if len(m.Workers) > m.Capacity {
		errs = append(errs, fmt.Errorf("%d workers exceed capacity %d", len(m.Workers), m.Capacity))
	}

	for name, w := range m.Workers {
		if w == nil {
			errs = append(errs, fmt.Errorf("worker %s: empty definition", name))

			continue
		}

		if strings.ContainsAny(name, " \t") {
			errs = append(errs, fmt.Errorf("worker %q: name contains whitespace", name))
		}

		if err := w.StdioServerConfig.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("worker %s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// Worker returns the named worker definition.
func (m *Manifest) Worker(name string) (*WorkerConfig, error) {
	w, ok := m.Workers[name]
	if !ok {
		return nil, fmt.Errorf("worker %q not in manifest", name)
	}

	return w, nil
}

// SchedulerWorkers converts the manifest workers for the scheduler.
func (m *Manifest) SchedulerWorkers() []scheduler.Worker {
	out := make([]scheduler.Worker, 0, len(m.Workers))

	for name, w := range m.Workers {
		out = append(out, scheduler.Worker{
			Name:    name,
			Command: w.Command,
			Args:    w.Args,
			Env:     w.Env,
			Restart: w.Restart,
		})
	}

	return out
}

// HistoryPath returns the history file with a leading ~ expanded, or ""
// when history is disabled.
func (m *Manifest) HistoryPath() string {
	p := m.HistoryFile
	if p == "" {
		return ""
	}

	rest, ok := strings.CutPrefix(p, "~")
	if !ok {
		return p
	}

	home, ok := hostfs.GetEnv("HOME")
	if !ok {
		return p
	}

	return filepath.Join(home, rest)
}
