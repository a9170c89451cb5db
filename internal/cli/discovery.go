package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrCommandNotFound indicates a command could not be resolved.
var ErrCommandNotFound = stderrors.New("command not found")

// Config holds configuration for command resolution.
type Config struct {
	// Path overrides the search path for every lookup. If empty, the
	// search path passed to Resolve is used, and when that is empty too,
	// the supervisor's own PATH.
	Path string

	// Logger is an optional logger for resolution operations.
	// If nil, a default no-op logger is used.
	Logger *slog.Logger
}

// Resolver locates the executable for a command name.
type Resolver interface {
	// Resolve returns the path to execute for command, searching
	// searchPath for bare names, or an error wrapping ErrCommandNotFound.
	Resolve(command, searchPath string) (string, error)
}

// resolver implements the Resolver interface.
type resolver struct {
	cfg *Config
	log *slog.Logger
}

// Compile-time verification that resolver implements Resolver.
var _ Resolver = (*resolver)(nil)

// NewResolver creates a new command resolver with the given configuration.
func NewResolver(cfg *Config) Resolver {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &resolver{
		cfg: cfg,
		log: log,
	}
}

// Resolve locates command.
func (r *resolver) Resolve(command, searchPath string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("%w: empty command", ErrCommandNotFound)
	}

	// Paths are used as-is, like execvp does.
	if strings.ContainsRune(command, os.PathSeparator) {
		if isExecutable(command) {
			return command, nil
		}

		r.log.Debug("Command path is not executable", "command", command)

		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, command)
	}

	if r.cfg.Path != "" {
		searchPath = r.cfg.Path
	}

	if searchPath == "" {
		path, err := exec.LookPath(command)
		if err != nil {
			r.log.Debug("Command not found in PATH", "command", command, "error", err)

			return "", fmt.Errorf("%w: %s", ErrCommandNotFound, command)
		}

		return path, nil
	}

	for _, dir := range strings.Split(searchPath, string(os.PathListSeparator)) {
		if dir == "" {
			dir = "."
		}

		candidate := dir + string(os.PathSeparator) + command
		if isExecutable(candidate) {
			r.log.Debug("Resolved command", "command", command, "path", candidate)

			return candidate, nil
		}
	}

	r.log.Debug("Command not found in search path", "command", command, "path", searchPath)

	return "", fmt.Errorf("%w: %s", ErrCommandNotFound, command)
}

// isExecutable reports whether path is a regular file with an execute bit.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
