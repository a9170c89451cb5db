package procpool

import "context"

// WithSupervisor manages supervisor lifecycle with automatic cleanup.
//
// It creates a supervisor from opts, runs fn, and closes the supervisor when
// fn returns, terminating any child still running. The callback's error is
// returned to the caller. If Close fails, a warning is logged but does not
// override the callback's error.
//
// Example usage:
//
//	err := procpool.WithSupervisor(ctx, func(sup *procpool.Supervisor) error {
//	    id, err := sup.Spawn(ctx, "cat", nil, nil)
//	    if err != nil {
//	        return err
//	    }
//	    _, err = sup.Write(id, []byte("ping\n"))
//	    return err
//	},
//	    procpool.WithLogger(log),
//	    procpool.WithCapacity(8),
//	)
func WithSupervisor(ctx context.Context, fn func(*Supervisor) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	sup := New(opts...)

	defer func() {
		if closeErr := sup.Close(); closeErr != nil {
			log.Warn("failed to close supervisor", "error", closeErr)
		}
	}()

	return fn(sup)
}
