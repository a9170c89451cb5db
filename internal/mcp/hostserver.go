package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/procpool/internal/hostfs"
	"github.com/wagiedev/procpool/internal/webfetch"
)

// HostServerName is the implementation name of the built-in tool server.
const HostServerName = "procpool-host"

// hostTool is one built-in tool: its definition and a handler that works on
// decoded arguments.
type hostTool struct {
	tool *mcp.Tool
	run  func(ctx context.Context, args map[string]any) (string, error)
}

// NewHostServer builds an MCP server exposing host file system,
// environment and HTTP fetch tools.
func NewHostServer(log *slog.Logger, fetcher *webfetch.Fetcher) *mcp.Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	log = log.With("component", "host_server")

	if fetcher == nil {
		fetcher = &webfetch.Fetcher{}
	}

	server := mcp.NewServer(&mcp.Implementation{Name: HostServerName, Version: ClientVersion}, nil)

	for _, t := range hostTools(fetcher) {
		server.AddTool(t.tool, t.handler(log))
	}

	return server
}

// ServeStdio runs server over the process's standard input and output
// until ctx is done or the peer disconnects.
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

func (t hostTool) handler(log *slog.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := ParseArguments(req)
		if err != nil {
			return ErrorResult(err.Error()), nil
		}

		out, err := t.run(ctx, args)
		if err != nil {
			log.Debug("Tool failed", "tool", t.tool.Name, "error", err)

			return ErrorResult(err.Error()), nil
		}

		return TextResult(out), nil
	}
}

func hostTools(fetcher *webfetch.Fetcher) []hostTool {
	return []hostTool{
		{
			tool: NewTool("echo", "Returns the given text unchanged.",
				SimpleSchema(map[string]string{"text": "string"})),
			run: func(_ context.Context, args map[string]any) (string, error) {
				return stringArg(args, "text"), nil
			},
		},
		{
			tool: NewTool("read_file", "Reads a file from the host.",
				SimpleSchema(map[string]string{"path": "string"})),
			run: func(_ context.Context, args map[string]any) (string, error) {
				data, err := hostfs.ReadFile(stringArg(args, "path"))

				return string(data), err
			},
		},
		{
			tool: NewTool("write_file", "Creates or replaces a file on the host.",
				SimpleSchema(map[string]string{"path": "string", "content": "string"})),
			run: func(_ context.Context, args map[string]any) (string, error) {
				n, err := hostfs.WriteFile(stringArg(args, "path"), []byte(stringArg(args, "content")))
				if err != nil {
					return "", err
				}

				return fmt.Sprintf("wrote %d bytes", n), nil
			},
		},
		{
			tool: NewTool("list_dir", "Lists a directory, one name per line, hidden entries omitted.",
				SimpleSchema(map[string]string{"path": "string"})),
			run: func(_ context.Context, args map[string]any) (string, error) {
				names, err := hostfs.ListDir(stringArg(args, "path"))

				return strings.Join(names, "\n"), err
			},
		},
		{
			tool: NewTool("make_dir", "Creates a directory and its parents.",
				SimpleSchema(map[string]string{"path": "string"})),
			run: func(_ context.Context, args map[string]any) (string, error) {
				return "ok", hostfs.MakeDirAll(stringArg(args, "path"))
			},
		},
		{
			tool: NewTool("remove", "Removes a file or directory tree.",
				SimpleSchema(map[string]string{"path": "string"})),
			run: func(_ context.Context, args map[string]any) (string, error) {
				return "ok", hostfs.RemoveAll(stringArg(args, "path"))
			},
		},
		{
			tool: NewTool("make_executable", "Adds execute permission to a file.",
				SimpleSchema(map[string]string{"path": "string"})),
			run: func(_ context.Context, args map[string]any) (string, error) {
				return "ok", hostfs.MakeExecutable(stringArg(args, "path"))
			},
		},
		{
			tool: NewTool("getenv", "Looks up an environment variable.",
				SimpleSchema(map[string]string{"name": "string"})),
			run: func(_ context.Context, args map[string]any) (string, error) {
				name := stringArg(args, "name")

				v, ok := hostfs.GetEnv(name)
				if !ok {
					return "", fmt.Errorf("%s is not set", name)
				}

				return v, nil
			},
		},
		{
			tool: NewTool("fetch", "Fetches a plain http URL with a short timeout.",
				SimpleSchema(map[string]string{"url": "string"})),
			run: func(ctx context.Context, args map[string]any) (string, error) {
				body, err := fetcher.Get(ctx, stringArg(args, "url"))

				return string(body), err
			},
		},
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)

	return s
}
