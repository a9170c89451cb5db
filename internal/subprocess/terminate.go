package subprocess

import (
	stderrors "errors"
	"syscall"

	"github.com/wagiedev/procpool/internal/errors"
	"github.com/wagiedev/procpool/internal/slot"
)

// IsAlive reports whether the child in slot id is still running.
//
// It returns false for an invalid or inactive slot. A child observed to have
// exited is reaped and its slot reclaimed before IsAlive returns false; this
// is the only path besides Terminate by which a slot is reclaimed. When the
// probe itself fails the error is logged and the child is reported alive, so
// the caller can still Terminate it.
func (s *Supervisor) IsAlive(id int) bool {
	st, err := s.Probe(id)
	if probeErr, ok := stderrors.AsType[*errors.ProbeError](err); ok {
		s.log.Warn("Liveness probe failed, assuming alive",
			"slot", id, "pid", probeErr.PID, "error", probeErr.Err)
	}

	return st.Alive
}

// Probe performs one non-blocking wait on the child in slot id.
//
// If the child has exited, the slot is reclaimed and the returned Status
// carries its exit code or signal. Probe returns InvalidSlotError for an
// inactive slot and ProbeError, with Alive set, if the wait call fails for
// any reason other than the child being gone.
func (s *Supervisor) Probe(id int) (Status, error) {
	sl, ok := s.table.Get(id)
	if !ok {
		return Status{Slot: id, ExitCode: -1}, &errors.InvalidSlotError{Slot: id}
	}

	exited, ws, err := s.ctl.Wait(sl.PID, false)

	switch {
	case err != nil && isGone(err):
		// Reaped elsewhere; the status is lost.
		st := statusFrom(sl, 0, false)
		s.reclaim(sl, st)

		return st, nil

	case err != nil:
		st := statusFrom(sl, 0, false)
		st.Alive = true

		return st, &errors.ProbeError{Slot: id, PID: sl.PID, Err: err}

	case exited:
		st := statusFrom(sl, ws, true)
		s.reclaim(sl, st)

		return st, nil

	default:
		st := statusFrom(sl, 0, false)
		st.Alive = true

		return st, nil
	}
}

// Terminate stops the child in slot id and reclaims the slot.
//
// It sends SIGTERM, reaps the child at once if it has already exited,
// otherwise waits the grace period, probes again and, if the child is still
// running, sends SIGKILL and blocks until it is reaped. A child that was
// already dead is not an error. Cleanup failures are ignored.
func (s *Supervisor) Terminate(id int) error {
	sl, ok := s.table.Get(id)
	if !ok {
		return &errors.InvalidSlotError{Slot: id}
	}

	log := s.log.With("slot", id, "pid", sl.PID, "token", sl.Token)
	log.Debug("Terminating child", "uptime", s.uptime(sl))

	ws, collected := s.escalate(sl)

	st := statusFrom(sl, ws, collected)
	s.reclaim(sl, st)

	log.Debug("Child terminated", "exit_code", st.ExitCode, "signal", st.Signal)

	return nil
}

// escalate runs the SIGTERM, grace period, SIGKILL sequence on sl's child.
// It returns the wait status and whether one was collected.
func (s *Supervisor) escalate(sl slot.Slot) (syscall.WaitStatus, bool) {
	pid := sl.PID

	if err := s.ctl.Signal(pid, syscall.SIGTERM); err != nil && !isGone(err) {
		s.log.Debug("Graceful signal failed", "slot", sl.ID, "pid", pid, "error", err)
	}

	if ws, done, collected := s.tryReap(pid); done {
		return ws, collected
	}

	s.clock.Sleep(s.opts.GracePeriod)

	if ws, done, collected := s.tryReap(pid); done {
		return ws, collected
	}

	s.log.Warn("Child ignored graceful signal, killing",
		"slot", sl.ID, "pid", pid, "grace_period", s.opts.GracePeriod)
	s.rec.Killed()

	if err := s.ctl.Signal(pid, syscall.SIGKILL); err != nil && !isGone(err) {
		s.log.Debug("Forceful signal failed", "slot", sl.ID, "pid", pid, "error", err)
	}

	exited, ws, err := s.ctl.Wait(pid, true)
	if err != nil {
		s.log.Debug("Blocking reap failed", "slot", sl.ID, "pid", pid, "error", err)

		return 0, false
	}

	return ws, exited
}

// tryReap makes one non-blocking wait. done is true when the child is
// finished, whether or not its status could be collected.
func (s *Supervisor) tryReap(pid int) (ws syscall.WaitStatus, done, collected bool) {
	exited, ws, err := s.ctl.Wait(pid, false)

	switch {
	case err != nil && isGone(err):
		return 0, true, false
	case err != nil:
		s.log.Debug("Non-blocking reap failed", "pid", pid, "error", err)

		return 0, false, false
	case exited:
		return ws, true, true
	default:
		return 0, false, false
	}
}

// reclaim releases sl's slot and records st, unless the slot has already
// been reused by a later spawn.
func (s *Supervisor) reclaim(sl slot.Slot, st Status) {
	cur, ok := s.table.Get(sl.ID)
	if !ok || cur.Token != sl.Token {
		return
	}

	s.table.Release(sl.ID)
	s.recordExit(st)
	s.rec.Reclaimed(st.ExitCode, st.Signal)

	s.log.Info("Reclaimed process slot",
		"slot", sl.ID,
		"pid", sl.PID,
		"token", sl.Token,
		"exit_code", st.ExitCode,
		"signal", st.Signal,
	)
}
