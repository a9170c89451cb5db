package mcp

// Connection states reported in ServerStatus.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusExited       = "exited"
)

// ServerStatus represents the connection status of a single MCP server.
type ServerStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Slot   int    `json:"slot"`
	Tools  int    `json:"tools"`

	// Session is the spawn token of the server's child, empty when
	// disconnected.
	Session string `json:"session,omitempty"`
}
