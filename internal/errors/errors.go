package errors

import (
	"errors"
	"fmt"
)

// ProcPoolError is the base interface for all process pool errors.
type ProcPoolError interface {
	error
	IsProcPoolError() bool
}

// Compile-time verification that all error types implement ProcPoolError.
var (
	_ ProcPoolError = (*SlotExhaustedError)(nil)
	_ ProcPoolError = (*PipeCreationError)(nil)
	_ ProcPoolError = (*ForkError)(nil)
	_ ProcPoolError = (*InvalidSlotError)(nil)
	_ ProcPoolError = (*IOError)(nil)
	_ ProcPoolError = (*ProbeError)(nil)
	_ ProcPoolError = (*InvalidCommandError)(nil)
)

// Sentinel errors for commonly checked conditions.
var (
	// ErrSlotExhausted indicates every slot in the table is in use.
	ErrSlotExhausted = errors.New("slot table exhausted")

	// ErrPipeCreation indicates a pipe could not be created for a spawn.
	ErrPipeCreation = errors.New("pipe creation failed")

	// ErrFork indicates the child process could not be started.
	ErrFork = errors.New("fork failed")

	// ErrInvalidSlot indicates a stale or out-of-range slot id.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrIO indicates a hard failure on a slot's pipes.
	ErrIO = errors.New("pipe I/O failed")

	// ErrProbe indicates the liveness probe itself failed.
	ErrProbe = errors.New("liveness probe failed")

	// ErrInvalidCommand indicates the command, arguments or environment
	// cannot be passed to exec.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrSupervisorClosed indicates the supervisor has been closed.
	ErrSupervisorClosed = errors.New("supervisor closed")
)

// SlotExhaustedError indicates the pool is at capacity.
// The caller must wait for a slot to be released or raise the capacity.
type SlotExhaustedError struct {
	Capacity int
}

func (e *SlotExhaustedError) Error() string {
	return fmt.Sprintf("all %d process slots are in use", e.Capacity)
}

// Is reports whether target is ErrSlotExhausted.
func (e *SlotExhaustedError) Is(target error) bool { return target == ErrSlotExhausted }

// IsProcPoolError implements ProcPoolError.
func (e *SlotExhaustedError) IsProcPoolError() bool { return true }

// PipeCreationError indicates one of the two spawn pipes could not be created.
type PipeCreationError struct {
	Err error
}

func (e *PipeCreationError) Error() string {
	return fmt.Sprintf("failed to create pipe: %v", e.Err)
}

func (e *PipeCreationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrPipeCreation.
func (e *PipeCreationError) Is(target error) bool { return target == ErrPipeCreation }

// IsProcPoolError implements ProcPoolError.
func (e *PipeCreationError) IsProcPoolError() bool { return true }

// ForkError indicates the child process could not be started.
type ForkError struct {
	Command string
	Err     error
}

func (e *ForkError) Error() string {
	return fmt.Sprintf("failed to start %q: %v", e.Command, e.Err)
}

func (e *ForkError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFork.
func (e *ForkError) Is(target error) bool { return target == ErrFork }

// IsProcPoolError implements ProcPoolError.
func (e *ForkError) IsProcPoolError() bool { return true }

// InvalidSlotError indicates the caller passed a stale or out-of-range slot id.
// This is always a caller bug.
type InvalidSlotError struct {
	Slot int
}

func (e *InvalidSlotError) Error() string {
	return fmt.Sprintf("slot %d is not active", e.Slot)
}

// Is reports whether target is ErrInvalidSlot.
func (e *InvalidSlotError) Is(target error) bool { return target == ErrInvalidSlot }

// IsProcPoolError implements ProcPoolError.
func (e *InvalidSlotError) IsProcPoolError() bool { return true }

// IOError indicates a hard failure reading from or writing to a slot.
// The slot is left active; the caller decides whether to terminate it.
type IOError struct {
	Slot int
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("slot %d: %s failed: %v", e.Slot, e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// IsProcPoolError implements ProcPoolError.
func (e *IOError) IsProcPoolError() bool { return true }

// ProbeError indicates the non-blocking wait on a child failed with
// something other than "still running" or "exited".
type ProbeError struct {
	Slot int
	PID  int
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("slot %d: probing pid %d: %v", e.Slot, e.PID, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrProbe.
func (e *ProbeError) Is(target error) bool { return target == ErrProbe }

// IsProcPoolError implements ProcPoolError.
func (e *ProbeError) IsProcPoolError() bool { return true }

// InvalidCommandError indicates a command, argument or environment entry
// that cannot cross the exec boundary intact.
type InvalidCommandError struct {
	Reason string
}

func (e *InvalidCommandError) Error() string {
	return "invalid command: " + e.Reason
}

// Is reports whether target is ErrInvalidCommand.
func (e *InvalidCommandError) Is(target error) bool { return target == ErrInvalidCommand }

// IsProcPoolError implements ProcPoolError.
func (e *InvalidCommandError) IsProcPoolError() bool { return true }
