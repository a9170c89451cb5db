// Package mcp bridges supervised child processes to the Model Context
// Protocol.
//
// SlotTransport carries newline-delimited JSON-RPC over a slot's pipes,
// polling the non-blocking output side. ToolHost spawns a stdio MCP server
// into a slot, performs the protocol handshake and calls its tools,
// validating arguments against each tool's input schema first.
// NewHostServer builds the server side: a small set of host tools served
// over standard input and output.
package mcp
