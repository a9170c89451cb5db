package procpool

import "github.com/wagiedev/procpool/internal/errors"

// Re-export error types from internal package

// SlotExhaustedError indicates every slot is in use.
type SlotExhaustedError = errors.SlotExhaustedError

// PipeCreationError indicates a pipe or descriptor setup failed.
type PipeCreationError = errors.PipeCreationError

// ForkError indicates the child process could not be created.
type ForkError = errors.ForkError

// InvalidSlotError indicates a slot id that is out of range or not active.
type InvalidSlotError = errors.InvalidSlotError

// IOError indicates a hard read or write failure on a child's pipe.
type IOError = errors.IOError

// ProbeError indicates the liveness probe itself failed.
type ProbeError = errors.ProbeError

// InvalidCommandError indicates a command, argument or environment entry
// that cannot be passed to a child.
type InvalidCommandError = errors.InvalidCommandError

// ProcPoolError is the base interface for all procpool errors.
type ProcPoolError = errors.ProcPoolError

// Re-export sentinel errors from internal package.
var (
	// ErrSlotExhausted matches SlotExhaustedError.
	ErrSlotExhausted = errors.ErrSlotExhausted

	// ErrPipeCreation matches PipeCreationError.
	ErrPipeCreation = errors.ErrPipeCreation

	// ErrFork matches ForkError.
	ErrFork = errors.ErrFork

	// ErrInvalidSlot matches InvalidSlotError.
	ErrInvalidSlot = errors.ErrInvalidSlot

	// ErrIO matches IOError.
	ErrIO = errors.ErrIO

	// ErrProbe matches ProbeError.
	ErrProbe = errors.ErrProbe

	// ErrInvalidCommand matches InvalidCommandError.
	ErrInvalidCommand = errors.ErrInvalidCommand

	// ErrSupervisorClosed indicates the supervisor has been closed.
	ErrSupervisorClosed = errors.ErrSupervisorClosed
)
