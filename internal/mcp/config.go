package mcp

import (
	"fmt"
	"maps"
	"slices"
)

// ServerType represents the type of MCP server.
type ServerType string

// ServerTypeStdio uses stdio for communication.
const ServerTypeStdio ServerType = "stdio"

// StdioServerConfig configures a stdio-based MCP server.
type StdioServerConfig struct {
	Type    *ServerType       `json:"type,omitempty" yaml:"type,omitempty"`
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// GetType returns the configured type, defaulting to stdio.
func (m *StdioServerConfig) GetType() ServerType {
	if m.Type != nil {
		return *m.Type
	}

	return ServerTypeStdio
}

// Validate checks that the config describes a stdio server with a command.
func (m *StdioServerConfig) Validate() error {
	if t := m.GetType(); t != ServerTypeStdio {
		return fmt.Errorf("unsupported MCP server type %q", t)
	}

	if m.Command == "" {
		return fmt.Errorf("MCP server command is empty")
	}

	return nil
}

// Clone returns a deep copy of the config.
func (m *StdioServerConfig) Clone() *StdioServerConfig {
	c := *m
	c.Args = slices.Clone(m.Args)
	c.Env = maps.Clone(m.Env)

	if m.Type != nil {
		t := *m.Type
		c.Type = &t
	}

	return &c
}
