package subprocess

import (
	stderrors "errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wagiedev/procpool/internal/errors"
	"github.com/wagiedev/procpool/internal/slot"
)

// writeWaitInterval bounds each wait for a full stdin pipe to drain. A
// reclaim closing the pipe is held off for at most this long.
const writeWaitInterval = 50 * time.Millisecond

// Write sends payload to the standard input of slot id.
//
// Write blocks until the whole payload has been accepted by the pipe,
// retrying interrupted calls and accumulating partial writes. If a hard
// error occurs after some bytes were sent, the count so far is returned with
// a nil error; if nothing was sent, an IOError is returned. No framing is
// added. Concurrent writes to the same slot are serialised. A write whose
// slot is reclaimed while it waits stops there and returns what it sent,
// or an InvalidSlotError when that was nothing.
func (s *Supervisor) Write(id int, payload []byte) (int, error) {
	sl, ok := s.table.Get(id)
	if !ok {
		return 0, &errors.InvalidSlotError{Slot: id}
	}

	mu := s.table.WriteLock(id)
	mu.Lock()
	defer mu.Unlock()

	// The slot may have been reclaimed, and even refilled, while this
	// writer queued behind another one.
	if cur, ok := s.table.Get(id); !ok || cur.Token != sl.Token {
		return 0, &errors.InvalidSlotError{Slot: id}
	}

	total := 0

	for total < len(payload) {
		n, err := sl.Stdin.Write(payload[total:])
		if err == nil {
			total += n

			continue
		}

		switch {
		case stderrors.Is(err, unix.EINTR):
			continue
		case stderrors.Is(err, unix.EAGAIN):
			err = sl.Stdin.WaitWritable(writeWaitInterval)
			if err == nil {
				continue
			}
		}

		if total > 0 {
			s.log.Debug("Short write to child", "slot", id, "written", total, "len", len(payload), "error", err)

			return total, nil
		}

		if stderrors.Is(err, slot.ErrClosed) {
			return 0, &errors.InvalidSlotError{Slot: id}
		}

		s.log.Debug("Write to child failed", "slot", id, "error", err)

		return 0, &errors.IOError{Slot: id, Op: "write", Err: err}
	}

	s.log.Debug("Wrote to child", "slot", id, "bytes", total)

	return total, nil
}

// Read makes one non-blocking read from the standard output of slot id.
//
// It returns up to maxLen bytes when output is pending and an empty slice
// when none is; neither case is an error, and Read never waits for more
// data. Callers poll at their own cadence. A non-positive maxLen uses the
// configured read buffer size. Hard failures return an IOError and leave the
// slot active.
func (s *Supervisor) Read(id int, maxLen int) ([]byte, error) {
	sl, ok := s.table.Get(id)
	if !ok {
		return nil, &errors.InvalidSlotError{Slot: id}
	}

	if maxLen <= 0 {
		maxLen = s.opts.ReadBufferSize
	}

	buf := make([]byte, maxLen)

	n, err := sl.Stdout.Read(buf)
	if err != nil {
		if stderrors.Is(err, slot.ErrClosed) {
			return nil, &errors.InvalidSlotError{Slot: id}
		}

		if stderrors.Is(err, unix.EAGAIN) || stderrors.Is(err, unix.EWOULDBLOCK) || stderrors.Is(err, unix.EINTR) {
			return []byte{}, nil
		}

		s.log.Debug("Read from child failed", "slot", id, "error", err)

		return nil, &errors.IOError{Slot: id, Op: "read", Err: err}
	}

	// n == 0 is end of file: the child closed its output. The liveness
	// probe reports the exit.
	return buf[:n], nil
}
