// Package cli resolves worker commands and builds the argument and
// environment vectors passed to exec.
//
// # Command Resolution
//
// The Resolver locates the executable for a worker command:
//
//	resolver := cli.NewResolver(&cli.Config{Logger: slog.Default()})
//	path, err := resolver.Resolve("my-worker", "/usr/local/bin:/usr/bin")
//
// Commands containing a slash are used as given; bare names are searched
// on the given path, which Build takes from the child's environment.
//
// # Command Building
//
// Build turns a command, its arguments and an environment overlay into a
// Command ready for os.StartProcess:
//
//	cmd, err := cli.Build(resolver, "cat", []string{"-u"}, env, base)
//
// argv[0] is always the command as the caller wrote it. A command that
// cannot be resolved is marked Missing; the launcher then starts StandIn,
// a shell that exits with status 127, in its place.
package cli
