package config

import (
	"log/slog"
	"time"
)

const (
	// DefaultCapacity is the number of process slots when none is configured.
	DefaultCapacity = 16

	// DefaultGracePeriod is how long Terminate waits after the graceful
	// signal before escalating.
	DefaultGracePeriod = 100 * time.Millisecond

	// DefaultReadBufferSize is the read size used when a caller passes a
	// non-positive maximum length.
	DefaultReadBufferSize = 4096

	// DefaultExecShell runs the stand-in child for commands that cannot be
	// executed.
	DefaultExecShell = "/bin/sh"
)

// Options configures a process supervisor.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Capacity is the fixed number of process slots.
	// If zero, DefaultCapacity is used.
	Capacity int

	// GracePeriod is the wait between the graceful and forceful signals.
	// If zero, DefaultGracePeriod is used.
	GracePeriod time.Duration

	// ReadBufferSize is the default maximum size of a single Read.
	// If zero, DefaultReadBufferSize is used.
	ReadBufferSize int

	// ExecShell is the POSIX shell started in place of a command that is
	// not found or fails to exec. The stand-in exits with status 127.
	// If empty, DefaultExecShell is used.
	ExecShell string

	// Env is applied to every spawned child before the per-spawn env.
	Env map[string]string

	// Stderr receives each line a child writes to its standard error.
	// If nil, children inherit the supervisor's standard error.
	Stderr func(slot int, line string)

	// ProcessControl signals and reaps children.
	// If nil, the real Unix implementation is used.
	ProcessControl ProcessControl `json:"-"`

	// Clock is used for the grace period sleep.
	// If nil, the wall clock is used.
	Clock Clock `json:"-"`

	// Recorder receives lifecycle events.
	// If nil, events are discarded.
	Recorder Recorder `json:"-"`
}

// WithDefaults returns a copy of o with zero fields replaced by defaults.
// Logger, ProcessControl, Clock and Recorder are left for the caller to
// fill in.
func (o *Options) WithDefaults() *Options {
	out := &Options{}
	if o != nil {
		*out = *o
	}

	if out.Capacity <= 0 {
		out.Capacity = DefaultCapacity
	}

	if out.GracePeriod <= 0 {
		out.GracePeriod = DefaultGracePeriod
	}

	if out.ReadBufferSize <= 0 {
		out.ReadBufferSize = DefaultReadBufferSize
	}

	if out.ExecShell == "" {
		out.ExecShell = DefaultExecShell
	}

	return out
}
