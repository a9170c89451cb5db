// Package hostfs wraps the host file system and environment calls used by
// the procpool command and its built-in tool server.
package hostfs
