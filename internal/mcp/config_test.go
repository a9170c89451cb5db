package mcp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStdioServerConfig(t *testing.T) {
	t.Run("defaults to stdio type when nil", func(t *testing.T) {
		cfg := &StdioServerConfig{Command: "server-binary"}

		require.Equal(t, ServerTypeStdio, cfg.GetType())
		require.NoError(t, cfg.Validate())
	})

	t.Run("rejects other types", func(t *testing.T) {
		sse := ServerType("sse")
		cfg := &StdioServerConfig{Type: &sse, Command: "server-binary"}

		require.Equal(t, sse, cfg.GetType())
		require.ErrorContains(t, cfg.Validate(), "unsupported")
	})

	t.Run("requires a command", func(t *testing.T) {
		require.Error(t, (&StdioServerConfig{}).Validate())
	})

	t.Run("decodes from yaml", func(t *testing.T) {
		var cfg StdioServerConfig

		err := yaml.Unmarshal([]byte("command: npx\nargs: [server, --stdio]\nenv: {TOKEN: abc}\n"), &cfg)
		require.NoError(t, err)
		require.Equal(t, "npx", cfg.Command)
		require.Equal(t, []string{"server", "--stdio"}, cfg.Args)
		require.Equal(t, map[string]string{"TOKEN": "abc"}, cfg.Env)
	})

	t.Run("clone is deep", func(t *testing.T) {
		cfg := &StdioServerConfig{Command: "x", Args: []string{"a"}, Env: map[string]string{"K": "v"}}
		c := cfg.Clone()

		c.Args[0] = "b"
		c.Env["K"] = "w"

		require.Equal(t, "a", cfg.Args[0])
		require.Equal(t, "v", cfg.Env["K"])
	})
}
