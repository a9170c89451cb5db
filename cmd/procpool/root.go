package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix namespaces the environment variables bound to global flags,
// e.g. PROCPOOL_CONFIG and PROCPOOL_LOG_LEVEL.
const envPrefix = "PROCPOOL"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	manifest string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	v := viper.New()

	root := &cobra.Command{
		Use:   "procpool",
		Short: "Supervise a pool of worker processes",
		Long: `procpool runs worker processes in a fixed pool of slots, talks to them
over their standard input and output, and restarts the ones that exit.

Configuration:
  Workers are described in a YAML manifest (default procpool.yaml).
  Global flags can also be set from the environment:
    PROCPOOL_CONFIG       manifest path
    PROCPOOL_LOG_LEVEL    debug, info, warn or error`,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			flags.manifest = v.GetString("config")
			flags.logLevel = v.GetString("log-level")
		},
	}

	root.PersistentFlags().StringP("config", "c", "procpool.yaml", "path to the worker manifest")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newRunCmd(flags),
		newToolsCmd(flags),
		newCallCmd(flags),
		newServeCmd(flags),
	)

	return root
}

// newLogger builds the process logger. Logs go to stderr so they never mix
// with protocol traffic on stdout.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level

	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
