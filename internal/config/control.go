// Package config provides configuration types for the process supervisor.
package config

import (
	"syscall"
	"time"
)

// ProcessControl defines how the supervisor signals and reaps children.
// Implement this to fake process behaviour in tests; the default
// implementation uses kill(2) and wait4(2).
type ProcessControl interface {
	// Signal delivers sig to pid. A process that no longer exists yields
	// syscall.ESRCH.
	Signal(pid int, sig syscall.Signal) error

	// Wait reaps pid. When block is false it returns immediately with
	// exited=false if the child is still running.
	Wait(pid int, block bool) (exited bool, status syscall.WaitStatus, err error)
}

// Clock abstracts time for the termination state machine.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// WallClock is the real clock.
type WallClock struct{}

// Compile-time verification that WallClock implements Clock.
var _ Clock = WallClock{}

// Now returns time.Now().
func (WallClock) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (WallClock) Sleep(d time.Duration) { time.Sleep(d) }

// Recorder receives supervisor lifecycle events, typically for metrics.
type Recorder interface {
	// Spawned is called after a child has been started in a slot.
	Spawned()

	// SpawnFailed is called when Spawn returns an error. reason is one of
	// "exhausted", "pipe", "fork", "invalid" or "other".
	SpawnFailed(reason string)

	// Reclaimed is called when a slot is freed, with the child's exit code
	// (-1 if unknown or signalled) and terminating signal.
	Reclaimed(exitCode int, signal syscall.Signal)

	// Killed is called when a child had to be sent the forceful signal.
	Killed()
}

// NopRecorder discards every event.
type NopRecorder struct{}

// Compile-time verification that NopRecorder implements Recorder.
var _ Recorder = NopRecorder{}

func (NopRecorder) Spawned()                      {}
func (NopRecorder) SpawnFailed(string)            {}
func (NopRecorder) Reclaimed(int, syscall.Signal) {}
func (NopRecorder) Killed()                       {}
