package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wagiedev/procpool"
	"github.com/wagiedev/procpool/internal/mcp"
)

// toolTimeout bounds a tools or call invocation, including the handshake.
const toolTimeout = 30 * time.Second

func newToolsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools <worker>",
		Short: "List the MCP tools a worker serves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withToolHost(cmd.Context(), flags, args[0], func(ctx context.Context, host *mcp.ToolHost) error {
				return listTools(ctx, host, cmd.OutOrStdout())
			})
		},
	}
}

func newCallCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "call <worker> <tool> [json-arguments]",
		Short: "Call one MCP tool on a worker",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			toolArgs := map[string]any{}

			if len(args) == 3 {
				if err := json.Unmarshal([]byte(args[2]), &toolArgs); err != nil {
					return fmt.Errorf("parse tool arguments: %w", err)
				}
			}

			return withToolHost(cmd.Context(), flags, args[0], func(ctx context.Context, host *mcp.ToolHost) error {
				res, err := host.CallTool(ctx, args[1], toolArgs)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), mcp.ResultText(res))

				if res.IsError {
					return fmt.Errorf("tool %s reported an error", args[1])
				}

				return nil
			})
		},
	}
}

// withToolHost starts the named manifest worker as an MCP server, runs fn
// against it and shuts it down.
func withToolHost(
	ctx context.Context,
	flags *globalFlags,
	worker string,
	fn func(context.Context, *mcp.ToolHost) error,
) error {
	log, err := newLogger(flags.logLevel)
	if err != nil {
		return err
	}

	m, err := LoadManifest(flags.manifest)
	if err != nil {
		return err
	}

	w, err := m.Worker(worker)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	return procpool.WithSupervisor(ctx, func(sup *procpool.Supervisor) error {
		host := mcp.NewToolHost(log, sup, worker)

		if err := host.Connect(ctx, &w.StdioServerConfig); err != nil {
			return err
		}

		defer func() {
			if err := host.Close(); err != nil {
				log.Debug("Failed to close tool host", "error", err)
			}
		}()

		return fn(ctx, host)
	},
		procpool.WithLogger(log),
		procpool.WithCapacity(1),
		procpool.WithGracePeriod(m.GracePeriod),
	)
}

func listTools(ctx context.Context, host *mcp.ToolHost, out io.Writer) error {
	tools, err := host.ListTools(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tDESCRIPTION")

	for _, t := range tools {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
	}

	return tw.Flush()
}
