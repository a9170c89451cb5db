// Package errors defines error types for the process pool.
//
// This package provides structured error types for each failure scenario of
// the supervisor: admission control, pipe and fork failures, stale slot ids,
// transport I/O failures and liveness probe failures. All error types support
// error unwrapping and can be checked using errors.Is, errors.As, and
// errors.AsType. Each type also matches its sentinel via errors.Is.
package errors
