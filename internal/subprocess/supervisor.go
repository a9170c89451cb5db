package subprocess

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/procpool/internal/cli"
	"github.com/wagiedev/procpool/internal/config"
	"github.com/wagiedev/procpool/internal/errors"
	"github.com/wagiedev/procpool/internal/slot"
)

// Status is the outcome of a liveness probe.
type Status struct {
	Slot  int
	PID   int
	Token string

	// Alive is true while the child has not been observed to exit.
	Alive bool

	// ExitCode is the child's exit status, or -1 when it was killed by a
	// signal or its status could not be collected.
	ExitCode int

	// Signal is the terminating signal when the child was killed.
	Signal syscall.Signal
}

// Exited reports whether the child exited on its own with an exit code.
func (s Status) Exited() bool {
	return !s.Alive && s.ExitCode >= 0
}

// Signaled reports whether the child was killed by a signal.
func (s Status) Signaled() bool {
	return !s.Alive && s.Signal != 0
}

// SlotInfo describes an active slot.
type SlotInfo struct {
	ID        int
	PID       int
	Token     string
	Command   string
	StartedAt time.Time
}

// Supervisor owns a slot table and the children running in it.
type Supervisor struct {
	log      *slog.Logger
	opts     *config.Options
	table    *slot.Table
	resolver cli.Resolver
	ctl      config.ProcessControl
	clock    config.Clock
	rec      config.Recorder
	closed   atomic.Bool

	exitMu sync.Mutex
	exits  map[int]Status

	stderrWg sync.WaitGroup
}

// New creates a supervisor with the given logger and options.
//
// The logger is used for operation tracking and debugging. A nil logger
// disables logging.
func New(log *slog.Logger, options *config.Options) *Supervisor {
	opts := options.WithDefaults()

	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	log = log.With("component", "supervisor")

	ctl := opts.ProcessControl
	if ctl == nil {
		ctl = unixControl{}
	}

	clock := opts.Clock
	if clock == nil {
		clock = config.WallClock{}
	}

	rec := opts.Recorder
	if rec == nil {
		rec = config.NopRecorder{}
	}

	return &Supervisor{
		log:      log,
		opts:     opts,
		table:    slot.NewTable(opts.Capacity),
		resolver: cli.NewResolver(&cli.Config{Logger: log}),
		ctl:      ctl,
		clock:    clock,
		rec:      rec,
		exits:    make(map[int]Status, opts.Capacity),
	}
}

// Capacity returns the number of slots.
func (s *Supervisor) Capacity() int {
	return s.table.Capacity()
}

// Validate reports whether id names an active slot.
func (s *Supervisor) Validate(id int) bool {
	return s.table.Validate(id)
}

// Slots returns the active slots in ascending id order.
func (s *Supervisor) Slots() []SlotInfo {
	ids := s.table.Active()
	infos := make([]SlotInfo, 0, len(ids))

	for _, id := range ids {
		sl, ok := s.table.Get(id)
		if !ok {
			continue
		}

		infos = append(infos, SlotInfo{
			ID:        sl.ID,
			PID:       sl.PID,
			Token:     sl.Token,
			Command:   sl.Command,
			StartedAt: sl.StartedAt,
		})
	}

	return infos
}

// Token returns the spawn token of the child in slot id. The token changes
// every time the slot is refilled.
func (s *Supervisor) Token(id int) (string, bool) {
	sl, ok := s.table.Get(id)
	if !ok {
		return "", false
	}

	return sl.Token, true
}

// LastExit returns the status recorded when slot id was last reclaimed.
// The record is cleared when the slot is reused.
func (s *Supervisor) LastExit(id int) (Status, bool) {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()

	st, ok := s.exits[id]

	return st, ok
}

// TerminateAll terminates every active slot concurrently.
func (s *Supervisor) TerminateAll(ctx context.Context) error {
	ids := s.table.Active()
	if len(ids) == 0 {
		return nil
	}

	s.log.Debug("Terminating all slots", "count", len(ids))

	g, gCtx := errgroup.WithContext(ctx)

	for _, id := range ids {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			err := s.Terminate(id)
			if stderrors.Is(err, errors.ErrInvalidSlot) {
				// Reclaimed by a concurrent probe.
				return nil
			}

			return err
		})
	}

	return g.Wait()
}

// Close terminates all children and rejects further spawns.
// It is safe to call Close multiple times.
func (s *Supervisor) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.log.Info("Closing supervisor")

	err := s.TerminateAll(context.Background())

	s.stderrWg.Wait()

	return err
}

// recordExit stores the final status of a reclaimed slot.
func (s *Supervisor) recordExit(st Status) {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()

	s.exits[st.Slot] = st
}

// clearExit drops the stored status when a slot is reused.
func (s *Supervisor) clearExit(id int) {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()

	delete(s.exits, id)
}

// statusFrom converts a wait status into a Status for slot sl.
func statusFrom(sl slot.Slot, ws syscall.WaitStatus, collected bool) Status {
	st := Status{
		Slot:     sl.ID,
		PID:      sl.PID,
		Token:    sl.Token,
		ExitCode: -1,
	}

	if !collected {
		return st
	}

	switch {
	case ws.Exited():
		st.ExitCode = ws.ExitStatus()
	case ws.Signaled():
		st.Signal = ws.Signal()
	}

	return st
}
