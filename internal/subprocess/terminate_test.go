package subprocess

import (
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/wagiedev/procpool/internal/config"
	"github.com/wagiedev/procpool/internal/errors"
	"github.com/wagiedev/procpool/internal/slot"
)

// waitResult is one scripted answer from fakeControl.Wait.
type waitResult struct {
	exited bool
	status syscall.WaitStatus
	err    error
}

// fakeControl answers Wait calls from a script and records signals.
type fakeControl struct {
	mu       sync.Mutex
	polls    []waitResult
	blocking waitResult
	signals  []syscall.Signal
	blocked  int
}

var _ config.ProcessControl = (*fakeControl)(nil)

func (f *fakeControl) Signal(_ int, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signals = append(f.signals, sig)

	return nil
}

func (f *fakeControl) Wait(_ int, block bool) (bool, syscall.WaitStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if block {
		f.blocked++

		return f.blocking.exited, f.blocking.status, f.blocking.err
	}

	if len(f.polls) == 0 {
		return false, 0, nil
	}

	next := f.polls[0]
	f.polls = f.polls[1:]

	return next.exited, next.status, next.err
}

func (f *fakeControl) Signals() []syscall.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]syscall.Signal(nil), f.signals...)
}

// fakeClock records sleeps without waiting.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

// exitStatus builds a wait status for a normal exit with code.
func exitStatus(code int) syscall.WaitStatus {
	return syscall.WaitStatus(code << 8)
}

// killStatus builds a wait status for termination by sig.
func killStatus(sig syscall.Signal) syscall.WaitStatus {
	return syscall.WaitStatus(sig)
}

// installFakeSlot activates a slot backed by real pipes and a pid that only
// exists in the fake control.
func installFakeSlot(t *testing.T, s *Supervisor, pid int) int {
	t.Helper()

	id, err := s.table.Allocate()
	require.NoError(t, err)

	var in, out [2]int

	require.NoError(t, unix.Pipe2(in[:], unix.O_CLOEXEC))
	require.NoError(t, unix.Pipe2(out[:], unix.O_CLOEXEC|unix.O_NONBLOCK))

	t.Cleanup(func() {
		closeFds(in[0], out[1])
	})

	require.NoError(t, s.table.Activate(id, pid,
		slot.NewHandle(in[1], "stdin"),
		slot.NewHandle(out[0], "stdout"),
		slot.Meta{Token: fmt.Sprintf("token-%d", pid), Command: "fake", StartedAt: s.clock.Now()},
	))

	return id
}

func newFakeSupervisor(t *testing.T, ctl *fakeControl, grace time.Duration) (*Supervisor, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	s := New(nil, &config.Options{
		Capacity:       2,
		GracePeriod:    grace,
		ProcessControl: ctl,
		Clock:          clock,
	})

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s, clock
}

func TestTerminate_StateMachine(t *testing.T) {
	const grace = 250 * time.Millisecond

	tests := []struct {
		name         string
		polls        []waitResult
		blocking     waitResult
		wantSignals  []syscall.Signal
		wantSleeps   []time.Duration
		wantBlocking int
		wantExitCode int
		wantSignal   syscall.Signal
	}{
		{
			name:         "exits on SIGTERM before first probe",
			polls:        []waitResult{{exited: true, status: killStatus(syscall.SIGTERM)}},
			wantSignals:  []syscall.Signal{syscall.SIGTERM},
			wantSleeps:   nil,
			wantExitCode: -1,
			wantSignal:   syscall.SIGTERM,
		},
		{
			name: "exits during grace period",
			polls: []waitResult{
				{},
				{exited: true, status: exitStatus(0)},
			},
			wantSignals:  []syscall.Signal{syscall.SIGTERM},
			wantSleeps:   []time.Duration{grace},
			wantExitCode: 0,
		},
		{
			name:         "ignores SIGTERM",
			polls:        []waitResult{{}, {}},
			blocking:     waitResult{exited: true, status: killStatus(syscall.SIGKILL)},
			wantSignals:  []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL},
			wantSleeps:   []time.Duration{grace},
			wantBlocking: 1,
			wantExitCode: -1,
			wantSignal:   syscall.SIGKILL,
		},
		{
			name:         "already reaped elsewhere",
			polls:        []waitResult{{err: unix.ECHILD}},
			wantSignals:  []syscall.Signal{syscall.SIGTERM},
			wantExitCode: -1,
		},
		{
			name:         "probe errors fall through to kill",
			polls:        []waitResult{{err: unix.EINVAL}, {err: unix.EINVAL}},
			blocking:     waitResult{exited: true, status: killStatus(syscall.SIGKILL)},
			wantSignals:  []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL},
			wantSleeps:   []time.Duration{grace},
			wantBlocking: 1,
			wantExitCode: -1,
			wantSignal:   syscall.SIGKILL,
		},
		{
			name:         "blocking reap fails",
			polls:        []waitResult{{}, {}},
			blocking:     waitResult{err: unix.EINVAL},
			wantSignals:  []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL},
			wantSleeps:   []time.Duration{grace},
			wantBlocking: 1,
			wantExitCode: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &fakeControl{polls: tt.polls, blocking: tt.blocking}
			s, clock := newFakeSupervisor(t, ctl, grace)

			id := installFakeSlot(t, s, 4242)

			require.NoError(t, s.Terminate(id))

			require.Equal(t, tt.wantSignals, ctl.Signals())
			require.Equal(t, tt.wantSleeps, clock.sleeps)
			require.Equal(t, tt.wantBlocking, ctl.blocked)

			require.False(t, s.Validate(id), "slot is reclaimed on every path")

			st, ok := s.LastExit(id)
			require.True(t, ok)
			require.False(t, st.Alive)
			require.Equal(t, tt.wantExitCode, st.ExitCode)
			require.Equal(t, tt.wantSignal, st.Signal)
			require.Equal(t, 4242, st.PID)
		})
	}
}

func TestProbe_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		poll      waitResult
		wantAlive bool
		wantValid bool
		wantErr   error
		wantCode  int
	}{
		{
			name:      "running",
			poll:      waitResult{},
			wantAlive: true,
			wantValid: true,
			wantCode:  -1,
		},
		{
			name:      "exited with code",
			poll:      waitResult{exited: true, status: exitStatus(127)},
			wantAlive: false,
			wantValid: false,
			wantCode:  127,
		},
		{
			name:      "child gone",
			poll:      waitResult{err: unix.ECHILD},
			wantAlive: false,
			wantValid: false,
			wantCode:  -1,
		},
		{
			name:      "probe failure",
			poll:      waitResult{err: unix.EINVAL},
			wantAlive: true,
			wantValid: true,
			wantErr:   errors.ErrProbe,
			wantCode:  -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &fakeControl{polls: []waitResult{tt.poll}}
			s, _ := newFakeSupervisor(t, ctl, time.Second)

			id := installFakeSlot(t, s, 99)

			st, err := s.Probe(id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.ErrorIs(t, err, unix.EINVAL)
			} else {
				require.NoError(t, err)
			}

			require.Equal(t, tt.wantAlive, st.Alive)
			require.Equal(t, tt.wantCode, st.ExitCode)
			require.Equal(t, tt.wantValid, s.Validate(id))
			require.Empty(t, ctl.Signals(), "probing never signals")
		})
	}
}

func TestIsAlive_ProbeFailureReportsAlive(t *testing.T) {
	ctl := &fakeControl{polls: []waitResult{{err: unix.EINVAL}}}
	s, _ := newFakeSupervisor(t, ctl, time.Second)

	id := installFakeSlot(t, s, 7)

	require.True(t, s.IsAlive(id))
	require.True(t, s.Validate(id))

	// The next probe sees the exit and reclaims.
	ctl.polls = []waitResult{{exited: true, status: exitStatus(1)}}

	require.False(t, s.IsAlive(id))
	require.False(t, s.Validate(id))
}

func TestIsAlive_InvalidSlot(t *testing.T) {
	s, _ := newFakeSupervisor(t, &fakeControl{}, time.Second)

	for _, id := range []int{-1, 0, 1, 2, 100} {
		require.False(t, s.IsAlive(id), "slot %d", id)
	}

	_, err := s.Probe(0)
	require.ErrorIs(t, err, errors.ErrInvalidSlot)
}

func TestReclaim_SkipsReusedSlot(t *testing.T) {
	s, _ := newFakeSupervisor(t, &fakeControl{}, time.Second)

	id := installFakeSlot(t, s, 10)

	stale, ok := s.table.Get(id)
	require.True(t, ok)

	s.table.Release(id)

	reused := installFakeSlot(t, s, 11)
	require.Equal(t, id, reused)

	// A late reclaim for the earlier child must not free the new one.
	s.reclaim(stale, statusFrom(stale, exitStatus(0), true))

	require.True(t, s.Validate(id))

	cur, ok := s.table.Get(id)
	require.True(t, ok)
	require.Equal(t, 11, cur.PID)
}

func TestStatusFrom(t *testing.T) {
	sl := slot.Slot{ID: 3, PID: 30, Token: "t"}

	st := statusFrom(sl, exitStatus(2), true)
	require.True(t, st.Exited())
	require.False(t, st.Signaled())
	require.Equal(t, 2, st.ExitCode)

	st = statusFrom(sl, killStatus(syscall.SIGKILL), true)
	require.False(t, st.Exited())
	require.True(t, st.Signaled())
	require.Equal(t, -1, st.ExitCode)

	st = statusFrom(sl, 0, false)
	require.False(t, st.Exited())
	require.False(t, st.Signaled())
	require.Equal(t, 3, st.Slot)
	require.Equal(t, "t", st.Token)
}
