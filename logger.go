package procpool

import "log/slog"

// NopLogger returns a logger that discards all output.
// Supervisors created without WithLogger use it.
func NopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
