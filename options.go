package procpool

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/wagiedev/procpool/internal/config"
)

// Options holds supervisor configuration.
type Options = config.Options

// ProcessControl signals and reaps children. Replace it in tests to drive
// termination without real processes.
type ProcessControl = config.ProcessControl

// Clock supplies time to the supervisor.
type Clock = config.Clock

// Recorder receives spawn, reclaim and kill events, typically for metrics.
type Recorder = config.Recorder

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to an Options struct.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithCapacity sets the number of process slots.
// Non-positive values use the default of 16.
func WithCapacity(capacity int) Option {
	return func(o *Options) {
		o.Capacity = capacity
	}
}

// WithGracePeriod sets how long Terminate waits after SIGTERM before
// sending SIGKILL.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Options) {
		o.GracePeriod = d
	}
}

// WithReadBufferSize sets the number of bytes Read returns at most when
// called with a non-positive length.
func WithReadBufferSize(size int) Option {
	return func(o *Options) {
		o.ReadBufferSize = size
	}
}

// WithEnv sets environment variables applied to every child.
// Per-spawn variables take precedence.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = maps.Clone(env)
	}
}

// ===== Child Output =====

// WithStderr writes each stderr line of every child to w, prefixed with
// the slot id. Without it children share the supervisor's stderr.
func WithStderr(w io.Writer) Option {
	var mu sync.Mutex

	return WithStderrCallback(func(slot int, line string) {
		mu.Lock()
		defer mu.Unlock()

		_, _ = fmt.Fprintf(w, "[slot %d] %s\n", slot, line)
	})
}

// WithStderrCallback sets a callback invoked for each stderr line of every
// child. It is called from a per-child goroutine.
func WithStderrCallback(handler func(slot int, line string)) Option {
	return func(o *Options) {
		o.Stderr = handler
	}
}

// WithRecorder reports lifecycle events to rec.
func WithRecorder(rec Recorder) Option {
	return func(o *Options) {
		o.Recorder = rec
	}
}

// ===== Advanced =====

// WithExecShell sets the shell started in place of a command that is not
// found or fails to exec. It exits at once with status 127.
func WithExecShell(shell string) Option {
	return func(o *Options) {
		o.ExecShell = shell
	}
}

// WithProcessControl replaces how children are signalled and reaped.
func WithProcessControl(ctl ProcessControl) Option {
	return func(o *Options) {
		o.ProcessControl = ctl
	}
}

// WithClock replaces the clock used for grace periods and timestamps.
func WithClock(clock Clock) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}
