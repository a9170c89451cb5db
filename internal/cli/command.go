package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/wagiedev/procpool/internal/errors"
)

// standInScript is run in place of a command that cannot be executed.
const standInScript = "exit 127"

// Command represents a child process ready to start.
type Command struct {
	// Path is the executable handed to the kernel. It is empty when Missing.
	Path string

	// Argv is the full argument vector, including argv[0].
	Argv []string

	// Env is the complete child environment as key=value pairs.
	Env []string

	// Missing is true when the command could not be resolved on the
	// child's PATH.
	Missing bool
}

// Build validates command, args and env and assembles a Command.
//
// argv[0] is command exactly as given, followed by args in order. The child
// environment is the supervisor's environment overlaid by base and then by
// env; a later layer overwrites a variable of the same name. Bare command
// names are looked up on the PATH of that child environment. A command the
// resolver cannot find comes back with Missing set.
func Build(
	r Resolver,
	command string,
	args []string,
	env map[string]string,
	base map[string]string,
) (*Command, error) {
	if err := Validate(command, args, env); err != nil {
		return nil, err
	}

	if err := validateEnv(base); err != nil {
		return nil, err
	}

	cmd := &Command{
		Argv: append([]string{command}, args...),
		Env:  BuildEnvironment(os.Environ(), base, env),
	}

	path, err := r.Resolve(command, LookupEnv(cmd.Env, "PATH"))

	switch {
	case err == nil:
		cmd.Path = path
	case stderrors.Is(err, ErrCommandNotFound):
		cmd.Missing = true
	default:
		return nil, err
	}

	return cmd, nil
}

// StandIn returns a Command that runs shell only to exit with status 127.
// It takes the place of a command whose exec failed.
func StandIn(shell string, env []string) *Command {
	return &Command{
		Path: shell,
		Argv: []string{shell, "-c", standInScript},
		Env:  env,
	}
}

// LookupEnv returns the value of the last key entry in env, or "".
func LookupEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v
		}
	}

	return ""
}

// Validate checks that command, args and env survive the exec boundary.
// Exec takes NUL-terminated strings and key=value environment entries, so
// NUL anywhere and '=' in a key would corrupt the boundary.
func Validate(command string, args []string, env map[string]string) error {
	if command == "" {
		return &errors.InvalidCommandError{Reason: "empty command"}
	}

	if strings.ContainsRune(command, 0) {
		return &errors.InvalidCommandError{Reason: "command contains NUL"}
	}

	for i, arg := range args {
		if strings.ContainsRune(arg, 0) {
			return &errors.InvalidCommandError{Reason: fmt.Sprintf("argument %d contains NUL", i)}
		}
	}

	return validateEnv(env)
}

func validateEnv(env map[string]string) error {
	for key, value := range env {
		switch {
		case key == "":
			return &errors.InvalidCommandError{Reason: "empty environment key"}
		case strings.ContainsAny(key, "=\x00"):
			return &errors.InvalidCommandError{Reason: fmt.Sprintf("environment key %q contains '=' or NUL", key)}
		case strings.ContainsRune(value, 0):
			return &errors.InvalidCommandError{Reason: fmt.Sprintf("environment value for %q contains NUL", key)}
		}
	}

	return nil
}

// BuildEnvironment overlays layers onto environ. Existing variables keep
// their position; new ones are appended in key order.
func BuildEnvironment(environ []string, layers ...map[string]string) []string {
	merged := make(map[string]string, len(environ))
	order := make([]string, 0, len(environ))

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		if _, seen := merged[key]; !seen {
			order = append(order, key)
		}

		merged[key] = value
	}

	for _, layer := range layers {
		keys := make([]string, 0, len(layer))
		for key := range layer {
			keys = append(keys, key)
		}

		slices.Sort(keys)

		for _, key := range keys {
			if _, seen := merged[key]; !seen {
				order = append(order, key)
			}

			merged[key] = layer[key]
		}
	}

	out := make([]string, 0, len(order))
	for _, key := range order {
		out = append(out, key+"="+merged[key])
	}

	return out
}
