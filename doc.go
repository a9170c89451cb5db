// Package procpool supervises a bounded pool of child processes.
//
// A Supervisor launches commands into numbered slots, connects to each child
// through a pair of pipes, and lets callers write to the child's standard
// input and poll its standard output without blocking. Children are probed
// for liveness and stopped with SIGTERM, followed by SIGKILL once a grace
// period has passed.
//
// # Basic Usage
//
//	sup := procpool.New(
//	    procpool.WithCapacity(4),
//	    procpool.WithGracePeriod(200*time.Millisecond),
//	)
//	defer sup.Close()
//
//	id, err := sup.Spawn(ctx, "cat", nil, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := sup.Write(id, []byte("hello\n")); err != nil {
//	    log.Fatal(err)
//	}
//
//	for sup.IsAlive(id) {
//	    out, err := sup.Read(id, 0)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if len(out) > 0 {
//	        fmt.Print(string(out))
//	        break
//	    }
//	    time.Sleep(10 * time.Millisecond)
//	}
//
//	_ = sup.Terminate(id)
//
// Read never waits: an empty slice means no output is pending. Callers poll
// at their own cadence.
//
// # Lifecycle Helper
//
// WithSupervisor creates a supervisor, runs a callback and closes it,
// terminating every child that is still running:
//
//	err := procpool.WithSupervisor(ctx, func(sup *procpool.Supervisor) error {
//	    id, err := sup.Spawn(ctx, "my-worker", []string{"--stdio"}, nil)
//	    if err != nil {
//	        return err
//	    }
//	    // talk to the worker...
//	    return sup.Terminate(id)
//	}, procpool.WithLogger(slog.Default()))
//
// # Missing Commands
//
// Spawn succeeds even when the command cannot be found or cannot be
// executed. The child exits with status 127, which callers observe through
// IsAlive or Probe:
//
//	st, err := sup.Probe(id)
//	if err == nil && st.Exited() && st.ExitCode == 127 {
//	    // command not found or not executable
//	}
//
// # Error Handling
//
// Errors are typed and match sentinel values with errors.Is:
//
//	id, err := sup.Spawn(ctx, "worker", nil, nil)
//	if errors.Is(err, procpool.ErrSlotExhausted) {
//	    // every slot is busy; terminate something first
//	}
//	if forkErr, ok := errors.AsType[*procpool.ForkError](err); ok {
//	    log.Printf("could not start %s: %v", forkErr.Command, forkErr.Err)
//	}
//
// # Platform
//
// procpool works with POSIX pipes, signals and wait status, and runs on
// Unix systems only.
package procpool
