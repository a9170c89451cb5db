package slot

import (
	"sync"
	"time"

	"github.com/wagiedev/procpool/internal/errors"
)

// DefaultCapacity is the number of slots a table has when none is configured.
const DefaultCapacity = 16

// State is the lifecycle state of a slot.
type State int

const (
	// StateFree means the slot holds no process and no handles.
	StateFree State = iota
	// StateReserved means a spawn owns the slot but has not finished.
	StateReserved
	// StateActive means a child is running and both handles are open.
	StateActive
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateReserved:
		return "reserved"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Slot is one table entry.
type Slot struct {
	ID        int
	PID       int
	Stdin     *Handle
	Stdout    *Handle
	Token     string
	Command   string
	StartedAt time.Time
	State     State

	// writeMu serialises writers on this slot's stdin.
	writeMu *sync.Mutex
}

// Active reports whether the slot holds a running child.
func (s Slot) Active() bool {
	return s.State == StateActive
}

// Meta carries descriptive fields recorded when a slot is activated.
type Meta struct {
	Token     string
	Command   string
	StartedAt time.Time
}

// Table is a fixed-capacity registry of process slots.
//
// All bookkeeping happens under a single mutex. Operations on the handles
// themselves happen outside it, so work on different slots never contends
// beyond allocation and release.
type Table struct {
	mu    sync.Mutex
	slots []Slot
}

// NewTable creates a table with capacity slots. A non-positive capacity
// selects DefaultCapacity.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	slots := make([]Slot, capacity)
	for i := range slots {
		slots[i] = Slot{ID: i, writeMu: &sync.Mutex{}}
	}

	return &Table{slots: slots}
}

// Capacity returns N.
func (t *Table) Capacity() int {
	return len(t.slots)
}

// Allocate reserves the first free slot.
// It fails with a SlotExhaustedError when no slot is free.
func (t *Table) Allocate() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].State == StateFree {
			t.slots[i].State = StateReserved

			return i, nil
		}
	}

	return -1, &errors.SlotExhaustedError{Capacity: len(t.slots)}
}

// Activate moves a reserved slot to active, taking ownership of both handles.
func (t *Table) Activate(id, pid int, stdin, stdout *Handle, meta Meta) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id < 0 || id >= len(t.slots) || t.slots[id].State != StateReserved {
		return &errors.InvalidSlotError{Slot: id}
	}

	s := &t.slots[id]
	s.PID = pid
	s.Stdin = stdin
	s.Stdout = stdout
	s.Token = meta.Token
	s.Command = meta.Command
	s.StartedAt = meta.StartedAt
	s.State = StateActive

	return nil
}

// Release closes the slot's handles and marks it free.
// Releasing a free slot or an out-of-range id is a no-op.
func (t *Table) Release(id int) {
	t.mu.Lock()

	if id < 0 || id >= len(t.slots) || t.slots[id].State == StateFree {
		t.mu.Unlock()

		return
	}

	s := &t.slots[id]
	stdin, stdout := s.Stdin, s.Stdout
	*s = Slot{ID: id, writeMu: s.writeMu}

	t.mu.Unlock()

	// Best effort: the slot is being discarded regardless.
	if stdin != nil {
		_ = stdin.Close()
	}

	if stdout != nil {
		_ = stdout.Close()
	}
}

// Validate reports whether id is in range and active.
func (t *Table) Validate(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return id >= 0 && id < len(t.slots) && t.slots[id].State == StateActive
}

// Get returns a copy of an active slot.
func (t *Table) Get(id int) (Slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id < 0 || id >= len(t.slots) || t.slots[id].State != StateActive {
		return Slot{}, false
	}

	return t.slots[id], true
}

// WriteLock returns the mutex serialising writes to slot id.
func (t *Table) WriteLock(id int) *sync.Mutex {
	if id < 0 || id >= len(t.slots) {
		return nil
	}

	return t.slots[id].writeMu
}

// Active returns the ids of all active slots in ascending order.
func (t *Table) Active() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]int, 0, len(t.slots))
	for i := range t.slots {
		if t.slots[i].State == StateActive {
			ids = append(ids, i)
		}
	}

	return ids
}

// Len returns the number of active slots.
func (t *Table) Len() int {
	return len(t.Active())
}
