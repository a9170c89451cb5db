package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/procpool"
	"github.com/wagiedev/procpool/internal/health"
	"github.com/wagiedev/procpool/internal/hostfs"
	"github.com/wagiedev/procpool/internal/lineedit"
	"github.com/wagiedev/procpool/internal/metrics"
	"github.com/wagiedev/procpool/internal/scheduler"
)

const (
	// tickInterval is how often workers are probed for respawn.
	tickInterval = 250 * time.Millisecond

	// healthPollInterval is how often the health listener is polled.
	healthPollInterval = 100 * time.Millisecond

	prompt = "procpool> "
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the workers in the manifest and open an interactive prompt",
		Long: `Start every worker in the manifest, keep restartable workers alive,
answer health checks when health_port is set, and read commands from
standard input until quit or end of input. Type help for commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(flags.logLevel)
			if err != nil {
				return err
			}

			m, err := LoadManifest(flags.manifest)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runPool(ctx, log, m, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runPool runs the manifest's workers until the interactive session ends
// or ctx is cancelled, then terminates them all.
func runPool(ctx context.Context, log *slog.Logger, m *Manifest, in io.Reader, out io.Writer) error {
	stats := metrics.New()

	sup := procpool.New(
		procpool.WithLogger(log),
		procpool.WithCapacity(m.Capacity),
		procpool.WithGracePeriod(m.GracePeriod),
		procpool.WithStderr(os.Stderr),
		procpool.WithRecorder(stats),
	)

	defer func() {
		if err := sup.Close(); err != nil {
			log.Warn("Failed to close supervisor", "error", err)
		}
	}()

	sched := scheduler.New(log, sup, scheduler.WithRecorder(stats))

	for _, w := range m.SchedulerWorkers() {
		if err := sched.Add(w); err != nil {
			return err
		}
	}

	if err := sched.Start(ctx); err != nil {
		log.Warn("Some workers failed to start", "error", err)
	}

	var hs *health.Server

	if m.HealthPort > 0 {
		hs = health.NewServer(log)
		hs.ServeMetrics(stats)

		if err := hs.Start(m.HealthPort); err != nil {
			return err
		}

		defer hs.Stop()
	}

	editor := lineedit.New(in, out)

	history := m.HistoryPath()
	if history != "" {
		if err := editor.LoadHistory(history); err != nil && !errors.Is(err, hostfs.ErrNotFound) {
			log.Warn("Failed to load history", "path", history, "error", err)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	loopCtx, cancel := context.WithCancel(gCtx)

	g.Go(func() error {
		return ignoreCanceled(sched.Run(loopCtx, tickInterval))
	})

	if hs != nil {
		g.Go(func() error {
			return ignoreCanceled(pollHealth(loopCtx, hs, sched))
		})
	}

	r := &repl{pool: sup, workers: sched, out: out, now: time.Now}

	err := interact(loopCtx, editor, r, out)

	cancel()

	if waitErr := g.Wait(); waitErr != nil && err == nil {
		err = waitErr
	}

	if history != "" {
		if saveErr := editor.SaveHistory(history); saveErr != nil {
			log.Warn("Failed to save history", "path", history, "error", saveErr)
		}
	}

	return err
}

// pollHealth answers pending health checks until ctx is done.
func pollHealth(ctx context.Context, hs *health.Server, sched *scheduler.Scheduler) error {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Drain every queued check before sleeping again.
			for {
				handled, err := hs.Poll(sched.Sessions())
				if err != nil {
					return err
				}

				if !handled {
					break
				}
			}
		}
	}
}

type lineResult struct {
	line string
	err  error
}

// interact reads commands until quit, end of input or ctx is done.
// Input is read on a separate goroutine so cancellation is not held up by
// a blocked read.
func interact(ctx context.Context, editor *lineedit.Editor, r *repl, out io.Writer) error {
	next := make(chan struct{})
	lines := make(chan lineResult)

	go func() {
		for range next {
			line, err := editor.ReadLine(prompt)

			select {
			case lines <- lineResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}

			if err != nil {
				return
			}
		}
	}()
	defer close(next)

	for {
		select {
		case next <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		var res lineResult

		select {
		case res = <-lines:
		case <-ctx.Done():
			return nil
		}

		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return nil
			}

			return res.err
		}

		editor.AppendHistory(res.line)

		if err := r.Execute(ctx, res.line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}

			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
