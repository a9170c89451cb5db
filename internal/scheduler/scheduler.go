package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wagiedev/procpool/internal/config"
)

const (
	// DefaultInitialDelay is the first respawn delay after a worker exits.
	DefaultInitialDelay = 100 * time.Millisecond

	// DefaultMaxDelay caps the respawn delay.
	DefaultMaxDelay = 30 * time.Second

	// DefaultStableAfter is how long a worker must stay up before its
	// backoff is reset.
	DefaultStableAfter = 5 * time.Second
)

var (
	// ErrUnknownWorker indicates a worker name that was never added.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrDuplicateWorker indicates a worker name that is already in use.
	ErrDuplicateWorker = errors.New("duplicate worker")
)

// Supervisor is the subset of the process supervisor the scheduler drives.
type Supervisor interface {
	Spawn(ctx context.Context, command string, args []string, env map[string]string) (int, error)
	IsAlive(id int) bool
	Terminate(id int) error
}

// Worker defines a named command the scheduler keeps running.
type Worker struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string

	// Restart respawns the worker whenever it is found dead.
	Restart bool
}

// WorkerStatus is a snapshot of one worker.
type WorkerStatus struct {
	Name      string
	Slot      int
	Running   bool
	Stopped   bool
	Restarts  int
	StartedAt time.Time
	NextSpawn time.Time
	LastError error
}

type worker struct {
	def Worker

	slot      int
	startedAt time.Time
	nextSpawn time.Time
	restarts  int
	stopped   bool
	lastErr   error
	bo        *backoff.ExponentialBackOff
}

// Recorder counts respawns.
type Recorder interface {
	Respawned(worker string)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the time source.
func WithClock(clock config.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithStableAfter sets how long a worker must run before its respawn delay
// is reset.
func WithStableAfter(d time.Duration) Option {
	return func(s *Scheduler) {
		s.stableAfter = d
	}
}

// WithBackoff sets the constructor for each worker's backoff policy.
func WithBackoff(factory func() *backoff.ExponentialBackOff) Option {
	return func(s *Scheduler) {
		s.newBackoff = factory
	}
}

// WithRecorder reports each respawn attempt to rec.
func WithRecorder(rec Recorder) Option {
	return func(s *Scheduler) {
		s.rec = rec
	}
}

// Scheduler keeps workers running on a Supervisor.
type Scheduler struct {
	log         *slog.Logger
	sup         Supervisor
	clock       config.Clock
	stableAfter time.Duration
	newBackoff  func() *backoff.ExponentialBackOff
	rec         Recorder

	mu      sync.Mutex
	workers map[string]*worker
}

// New creates a scheduler for sup.
func New(log *slog.Logger, sup Supervisor, opts ...Option) *Scheduler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Scheduler{
		log:         log.With("component", "scheduler"),
		sup:         sup,
		clock:       config.WallClock{},
		stableAfter: DefaultStableAfter,
		workers:     make(map[string]*worker, 8),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.newBackoff == nil {
		s.newBackoff = s.defaultBackoff
	}

	return s
}

func (s *Scheduler) defaultBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = DefaultInitialDelay
	bo.MaxInterval = DefaultMaxDelay
	bo.MaxElapsedTime = 0
	bo.Clock = s.clock
	bo.Reset()

	return bo
}

// Add registers w. It is spawned by the next Start or Tick.
func (s *Scheduler) Add(w Worker) error {
	if w.Name == "" {
		return fmt.Errorf("worker name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workers[w.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, w.Name)
	}

	w.Args = slices.Clone(w.Args)
	w.Env = maps.Clone(w.Env)

	s.workers[w.Name] = &worker{def: w, slot: -1, bo: s.newBackoff()}

	return nil
}

// Start spawns every worker that is not running. Errors are joined; a
// worker that failed to start is retried by Tick when it has Restart set.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	for _, name := range s.names() {
		w := s.workers[name]
		if w.slot >= 0 || w.stopped {
			continue
		}

		if err := s.spawn(ctx, w); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Tick probes every running worker and respawns those that are due.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	for _, name := range s.names() {
		w := s.workers[name]

		if w.slot >= 0 {
			if s.sup.IsAlive(w.slot) {
				if now.Sub(w.startedAt) >= s.stableAfter {
					w.bo.Reset()
				}

				continue
			}

			s.log.Info("Worker exited", "worker", name, "slot", w.slot, "uptime", now.Sub(w.startedAt))
			w.slot = -1

			if !w.def.Restart || w.stopped {
				continue
			}

			s.schedule(w, now)

			continue
		}

		if !w.def.Restart || w.stopped || now.Before(w.nextSpawn) {
			continue
		}

		w.restarts++

		if s.rec != nil {
			s.rec.Respawned(name)
		}

		if err := s.spawn(ctx, w); err != nil {
			s.schedule(w, now)
		}
	}
}

// Run calls Tick every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop terminates the named worker and keeps it from being respawned.
func (s *Scheduler) Stop(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, name)
	}

	w.stopped = true

	if w.slot < 0 {
		return nil
	}

	id := w.slot
	w.slot = -1

	s.log.Info("Stopping worker", "worker", name, "slot", id)

	return s.sup.Terminate(id)
}

// Slot returns the slot of the named worker while it is running.
func (s *Scheduler) Slot(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[name]
	if !ok || w.slot < 0 {
		return -1, false
	}

	return w.slot, true
}

// Sessions returns the number of running workers.
func (s *Scheduler) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, w := range s.workers {
		if w.slot >= 0 {
			n++
		}
	}

	return n
}

// Workers returns a snapshot of every worker, sorted by name.
func (s *Scheduler) Workers() []WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WorkerStatus, 0, len(s.workers))

	for _, name := range s.names() {
		w := s.workers[name]
		out = append(out, WorkerStatus{
			Name:      name,
			Slot:      w.slot,
			Running:   w.slot >= 0,
			Stopped:   w.stopped,
			Restarts:  w.restarts,
			StartedAt: w.startedAt,
			NextSpawn: w.nextSpawn,
			LastError: w.lastErr,
		})
	}

	return out
}

// spawn starts w. The caller holds s.mu.
func (s *Scheduler) spawn(ctx context.Context, w *worker) error {
	id, err := s.sup.Spawn(ctx, w.def.Command, w.def.Args, w.def.Env)
	if err != nil {
		w.lastErr = err
		s.log.Warn("Failed to spawn worker", "worker", w.def.Name, "command", w.def.Command, "error", err)

		return fmt.Errorf("spawn %s: %w", w.def.Name, err)
	}

	w.slot = id
	w.startedAt = s.clock.Now()
	w.lastErr = nil

	s.log.Info("Worker started", "worker", w.def.Name, "slot", id, "restarts", w.restarts)

	return nil
}

// schedule sets the next spawn time for w from its backoff.
func (s *Scheduler) schedule(w *worker, now time.Time) {
	delay := w.bo.NextBackOff()
	if delay == backoff.Stop {
		w.stopped = true
		s.log.Warn("Giving up on worker", "worker", w.def.Name, "restarts", w.restarts)

		return
	}

	w.nextSpawn = now.Add(delay)

	s.log.Debug("Respawn scheduled", "worker", w.def.Name, "delay", delay)
}

// names returns worker names in sorted order. The caller holds s.mu.
func (s *Scheduler) names() []string {
	return slices.Sorted(maps.Keys(s.workers))
}
