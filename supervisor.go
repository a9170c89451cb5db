package procpool

import "github.com/wagiedev/procpool/internal/subprocess"

// Supervisor owns a fixed pool of process slots and the children in them.
// All methods are safe for concurrent use.
type Supervisor = subprocess.Supervisor

// Status is the outcome of a liveness probe or termination.
type Status = subprocess.Status

// SlotInfo describes an active slot.
type SlotInfo = subprocess.SlotInfo

// New creates a supervisor configured by opts.
func New(opts ...Option) *Supervisor {
	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	return subprocess.New(log, options)
}
