package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	perrors "github.com/wagiedev/procpool/internal/errors"
)

// ClientName and ClientVersion identify procpool during the handshake.
const (
	ClientName    = "procpool"
	ClientVersion = "0.1.0"
)

var (
	// ErrNotConnected indicates a ToolHost with no live session.
	ErrNotConnected = errors.New("tool host not connected")

	// ErrAlreadyConnected indicates Connect on a connected ToolHost.
	ErrAlreadyConnected = errors.New("tool host already connected")

	// ErrUnknownTool indicates a tool the server does not advertise.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments indicates arguments rejected by the tool's input
	// schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Launcher starts and stops children and gives duplex access to them.
// *subprocess.Supervisor satisfies it.
type Launcher interface {
	Channel
	Spawn(ctx context.Context, command string, args []string, env map[string]string) (int, error)
	Terminate(id int) error
	Token(id int) (string, bool)
}

// ToolHost runs one stdio MCP server in a slot and calls its tools.
type ToolHost struct {
	log      *slog.Logger
	launcher Launcher
	name     string
	poll     time.Duration

	mu      sync.Mutex
	slot    int
	token   string
	session *mcp.ClientSession
	tools   map[string]*mcp.Tool
	schemas map[string]*jsonschema.Resolved
}

// NewToolHost creates a disconnected host for the server called name.
func NewToolHost(log *slog.Logger, launcher Launcher, name string) *ToolHost {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &ToolHost{
		log:      log.With("component", "tool_host", "server", name),
		launcher: launcher,
		name:     name,
		poll:     DefaultPollInterval,
		slot:     -1,
	}
}

// Connect spawns the server described by cfg and performs the MCP
// handshake. The slot is terminated again if the handshake fails.
func (h *ToolHost) Connect(ctx context.Context, cfg *StdioServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session != nil {
		return ErrAlreadyConnected
	}

	id, err := h.launcher.Spawn(ctx, cfg.Command, cfg.Args, cfg.Env)
	if err != nil {
		return fmt.Errorf("spawn MCP server %s: %w", h.name, err)
	}

	token, ok := h.launcher.Token(id)
	if !ok {
		return fmt.Errorf("MCP server %s exited during startup: %w", h.name, &perrors.InvalidSlotError{Slot: id})
	}

	transport := &SlotTransport{
		Channel:      h.launcher,
		Slot:         id,
		Token:        token,
		PollInterval: h.poll,
		Logger:       h.log,
	}

	client := mcp.NewClient(&mcp.Implementation{Name: ClientName, Version: ClientVersion}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		h.terminate(id)

		return fmt.Errorf("initialize MCP server %s: %w", h.name, err)
	}

	h.slot = id
	h.token = token
	h.session = session
	h.tools = nil
	h.schemas = nil

	h.log.Info("Connected to MCP server", "slot", id, "session", token, "command", cfg.Command)

	return nil
}

// Slot returns the slot the server runs in, or -1 when disconnected.
func (h *ToolHost) Slot() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.slot
}

// ListTools fetches every tool the server advertises and caches their
// input schemas for CallTool.
func (h *ToolHost) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.listTools(ctx)
}

func (h *ToolHost) listTools(ctx context.Context) ([]*mcp.Tool, error) {
	if h.session == nil {
		return nil, ErrNotConnected
	}

	var (
		tools  []*mcp.Tool
		cursor string
	)

	for {
		res, err := h.session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("list tools on %s: %w", h.name, err)
		}

		tools = append(tools, res.Tools...)

		if res.NextCursor == "" {
			break
		}

		cursor = res.NextCursor
	}

	byName := make(map[string]*mcp.Tool, len(tools))
	schemas := make(map[string]*jsonschema.Resolved, len(tools))

	for _, tool := range tools {
		byName[tool.Name] = tool

		resolved, err := resolveInputSchema(tool.InputSchema)
		if err != nil {
			h.log.Warn("Ignoring unusable input schema", "tool", tool.Name, "error", err)

			continue
		}

		schemas[tool.Name] = resolved
	}

	h.tools = byName
	h.schemas = schemas

	h.log.Debug("Listed tools", "count", len(tools))

	return tools, nil
}

// CallTool validates args against the tool's input schema and calls it.
// A tool that reports failure returns a result with IsError set and a nil
// error.
func (h *ToolHost) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session == nil {
		return nil, ErrNotConnected
	}

	if h.tools == nil {
		if _, err := h.listTools(ctx); err != nil {
			return nil, err
		}
	}

	if _, ok := h.tools[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	normalized, err := normalizeArguments(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidArguments, name, err)
	}

	if resolved := h.schemas[name]; resolved != nil {
		if err := resolved.Validate(normalized); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidArguments, name, err)
		}
	}

	h.log.Debug("Calling tool", "tool", name)

	res, err := h.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: normalized})
	if err != nil {
		return nil, fmt.Errorf("call tool %s on %s: %w", name, h.name, err)
	}

	return res, nil
}

// Status reports the connection state of the host.
func (h *ToolHost) Status() ServerStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := ServerStatus{Name: h.name, Status: StatusDisconnected, Slot: h.slot, Tools: len(h.tools)}

	if h.session == nil {
		return st
	}

	st.Session = h.token

	if h.launcher.IsAlive(h.slot) {
		st.Status = StatusConnected
	} else {
		st.Status = StatusExited
	}

	return st
}

// Close ends the session and terminates the server's slot.
func (h *ToolHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session == nil {
		return nil
	}

	err := h.session.Close()

	h.terminate(h.slot)

	h.session = nil
	h.slot = -1
	h.token = ""
	h.tools = nil
	h.schemas = nil

	h.log.Info("Disconnected from MCP server")

	return err
}

// terminate stops slot id. A slot already reclaimed is not an error.
func (h *ToolHost) terminate(id int) {
	if err := h.launcher.Terminate(id); err != nil && !errors.Is(err, perrors.ErrInvalidSlot) {
		h.log.Debug("Failed to terminate MCP server", "slot", id, "error", err)
	}
}
