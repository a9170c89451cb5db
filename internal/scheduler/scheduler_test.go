package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

type fakeSupervisor struct {
	mu         sync.Mutex
	next       int
	alive      map[int]bool
	spawned    []string
	terminated []int
	spawnErr   error
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{alive: make(map[int]bool)}
}

func (f *fakeSupervisor) Spawn(_ context.Context, command string, _ []string, _ map[string]string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.spawnErr != nil {
		return -1, f.spawnErr
	}

	id := f.next
	f.next++
	f.alive[id] = true
	f.spawned = append(f.spawned, command)

	return id, nil
}

func (f *fakeSupervisor) IsAlive(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.alive[id]
}

func (f *fakeSupervisor) Terminate(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.alive[id] = false
	f.terminated = append(f.terminated, id)

	return nil
}

func (f *fakeSupervisor) kill(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.alive[id] = false
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time        { return c.now }
func (c *manualClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func fixedBackoff(clock *manualClock) func() *backoff.ExponentialBackOff {
	return func() *backoff.ExponentialBackOff {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = time.Second
		bo.RandomizationFactor = 0
		bo.Multiplier = 2
		bo.MaxInterval = 8 * time.Second
		bo.MaxElapsedTime = 0
		bo.Clock = clock
		bo.Reset()

		return bo
	}
}

func newTestScheduler(t *testing.T, sup Supervisor) (*Scheduler, *manualClock) {
	t.Helper()

	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}

	s := New(nil, sup,
		WithClock(clock),
		WithStableAfter(10*time.Second),
		WithBackoff(fixedBackoff(clock)),
	)

	return s, clock
}

func TestAdd_Duplicate(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeSupervisor())

	require.NoError(t, s.Add(Worker{Name: "echo", Command: "cat"}))
	require.ErrorIs(t, s.Add(Worker{Name: "echo", Command: "cat"}), ErrDuplicateWorker)
	require.Error(t, s.Add(Worker{Command: "cat"}))
}

func TestStart_SpawnsAllWorkers(t *testing.T) {
	sup := newFakeSupervisor()
	s, _ := newTestScheduler(t, sup)

	require.NoError(t, s.Add(Worker{Name: "b", Command: "cmd-b"}))
	require.NoError(t, s.Add(Worker{Name: "a", Command: "cmd-a"}))

	require.NoError(t, s.Start(context.Background()))

	require.Equal(t, []string{"cmd-a", "cmd-b"}, sup.spawned)
	require.Equal(t, 2, s.Sessions())

	id, ok := s.Slot("a")
	require.True(t, ok)
	require.Equal(t, 0, id)
}

func TestTick_RespawnsWithBackoff(t *testing.T) {
	sup := newFakeSupervisor()
	s, clock := newTestScheduler(t, sup)
	ctx := context.Background()

	require.NoError(t, s.Add(Worker{Name: "w", Command: "worker", Restart: true}))
	require.NoError(t, s.Start(ctx))

	// First crash: respawn after 1s.
	sup.kill(0)
	s.Tick(ctx)
	require.Equal(t, 0, s.Sessions())

	clock.Sleep(500 * time.Millisecond)
	s.Tick(ctx)
	require.Len(t, sup.spawned, 1, "too early")

	clock.Sleep(500 * time.Millisecond)
	s.Tick(ctx)
	require.Len(t, sup.spawned, 2)

	id, ok := s.Slot("w")
	require.True(t, ok)
	require.Equal(t, 1, id)

	// Second crash before the stability window: delay doubles.
	sup.kill(1)
	s.Tick(ctx)

	clock.Sleep(time.Second)
	s.Tick(ctx)
	require.Len(t, sup.spawned, 2)

	clock.Sleep(time.Second)
	s.Tick(ctx)
	require.Len(t, sup.spawned, 3)

	statuses := s.Workers()
	require.Len(t, statuses, 1)
	require.Equal(t, 2, statuses[0].Restarts)
	require.True(t, statuses[0].Running)
}

func TestTick_ResetsBackoffAfterStableRun(t *testing.T) {
	sup := newFakeSupervisor()
	s, clock := newTestScheduler(t, sup)
	ctx := context.Background()

	require.NoError(t, s.Add(Worker{Name: "w", Command: "worker", Restart: true}))
	require.NoError(t, s.Start(ctx))

	sup.kill(0)
	s.Tick(ctx)
	clock.Sleep(time.Second)
	s.Tick(ctx)
	require.Len(t, sup.spawned, 2)

	// Stays up past the stability window.
	clock.Sleep(11 * time.Second)
	s.Tick(ctx)

	sup.kill(1)
	s.Tick(ctx)

	clock.Sleep(time.Second)
	s.Tick(ctx)
	require.Len(t, sup.spawned, 3, "delay is back to the initial interval")
}

func TestTick_NoRestart(t *testing.T) {
	sup := newFakeSupervisor()
	s, clock := newTestScheduler(t, sup)
	ctx := context.Background()

	require.NoError(t, s.Add(Worker{Name: "once", Command: "job"}))
	require.NoError(t, s.Start(ctx))

	sup.kill(0)
	s.Tick(ctx)

	clock.Sleep(time.Minute)
	s.Tick(ctx)

	require.Len(t, sup.spawned, 1)

	_, ok := s.Slot("once")
	require.False(t, ok)
}

func TestTick_SpawnFailureRetries(t *testing.T) {
	sup := newFakeSupervisor()
	sup.spawnErr = errors.New("no slots")

	s, clock := newTestScheduler(t, sup)
	ctx := context.Background()

	require.NoError(t, s.Add(Worker{Name: "w", Command: "worker", Restart: true}))
	require.Error(t, s.Start(ctx))

	statuses := s.Workers()
	require.ErrorContains(t, statuses[0].LastError, "no slots")

	// The first retry happens on the first tick.
	s.Tick(ctx)
	require.Empty(t, sup.spawned)

	sup.mu.Lock()
	sup.spawnErr = nil
	sup.mu.Unlock()

	clock.Sleep(time.Second)
	s.Tick(ctx)
	require.Len(t, sup.spawned, 1)
	require.NoError(t, s.Workers()[0].LastError)
}

func TestStop(t *testing.T) {
	sup := newFakeSupervisor()
	s, clock := newTestScheduler(t, sup)
	ctx := context.Background()

	require.NoError(t, s.Add(Worker{Name: "w", Command: "worker", Restart: true}))
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.Stop("w"))
	require.Equal(t, []int{0}, sup.terminated)

	clock.Sleep(time.Minute)
	s.Tick(ctx)
	require.Len(t, sup.spawned, 1, "stopped workers are not respawned")
	require.True(t, s.Workers()[0].Stopped)

	require.ErrorIs(t, s.Stop("missing"), ErrUnknownWorker)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := newTestScheduler(t, newFakeSupervisor())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- s.Run(ctx, time.Millisecond)
	}()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type countingRecorder struct {
	respawns map[string]int
}

func (r *countingRecorder) Respawned(worker string) {
	r.respawns[worker]++
}

func TestTick_RecordsRespawns(t *testing.T) {
	sup := newFakeSupervisor()
	rec := &countingRecorder{respawns: make(map[string]int)}
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}

	s := New(nil, sup, WithClock(clock), WithBackoff(fixedBackoff(clock)), WithRecorder(rec))
	ctx := context.Background()

	require.NoError(t, s.Add(Worker{Name: "w", Command: "worker", Restart: true}))
	require.NoError(t, s.Start(ctx))
	require.Empty(t, rec.respawns, "initial start is not a respawn")

	sup.kill(0)
	s.Tick(ctx)

	clock.Sleep(time.Second)
	s.Tick(ctx)

	require.Equal(t, map[string]int{"w": 1}, rec.respawns)
}
