package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wagiedev/procpool/internal/mcp"
	"github.com/wagiedev/procpool/internal/webfetch"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var fetchTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve host tools over MCP on standard input and output",
		Long: `Serve file system, environment and HTTP fetch tools as an MCP server
on standard input and output. Add it to a manifest as a worker to expose
the host to other workers or call it with "procpool call".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(flags.logLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := mcp.NewHostServer(log, &webfetch.Fetcher{Timeout: fetchTimeout})

			return mcp.ServeStdio(ctx, server)
		},
	}

	cmd.Flags().DurationVar(&fetchTimeout, "fetch-timeout", webfetch.DefaultTimeout, "timeout for the fetch tool")

	return cmd
}
