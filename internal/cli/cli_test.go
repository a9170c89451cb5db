package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/procpool/internal/errors"
)

// writeExecutable creates an executable script in dir.
func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	return path
}

func TestResolver_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "worker")

	resolver := NewResolver(nil)

	got, err := resolver.Resolve(path, "")
	require.NoError(t, err)
	require.Equal(t, path, got)
}

func TestResolver_ExplicitPathNotExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := NewResolver(nil).Resolve(path, "")
	require.ErrorIs(t, err, ErrCommandNotFound)
}

func TestResolver_ConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "worker")

	resolver := NewResolver(&Config{Path: "/nonexistent" + string(os.PathListSeparator) + dir})

	got, err := resolver.Resolve("worker", "")
	require.NoError(t, err)
	require.Equal(t, path, got)

	_, err = resolver.Resolve("missing-worker", "")
	require.ErrorIs(t, err, ErrCommandNotFound)
}

func TestResolver_NotFound(t *testing.T) {
	_, err := NewResolver(nil).Resolve("procpool-definitely-not-a-command", "")
	require.ErrorIs(t, err, ErrCommandNotFound)

	_, err = NewResolver(nil).Resolve("", "")
	require.ErrorIs(t, err, ErrCommandNotFound)
}

func TestBuild_ResolvedCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "worker")
	resolver := NewResolver(&Config{Path: dir})

	cmd, err := Build(resolver, "worker", []string{"--stdio", "two words"}, nil, nil)
	require.NoError(t, err)
	require.False(t, cmd.Missing)
	require.Equal(t, path, cmd.Path)
	require.Equal(t, []string{"worker", "--stdio", "two words"}, cmd.Argv)
}

func TestBuild_MarksMissingCommand(t *testing.T) {
	resolver := NewResolver(&Config{Path: t.TempDir()})

	cmd, err := Build(resolver, "missing", []string{"a", "b"}, nil, nil)
	require.NoError(t, err)
	require.True(t, cmd.Missing)
	require.Empty(t, cmd.Path)
	require.Equal(t, []string{"missing", "a", "b"}, cmd.Argv)
}

func TestBuild_DirectoryPathIsMissing(t *testing.T) {
	cmd, err := Build(NewResolver(nil), t.TempDir(), nil, nil, nil)
	require.NoError(t, err)
	require.True(t, cmd.Missing)
}

func TestStandIn(t *testing.T) {
	env := []string{"A=1"}

	cmd := StandIn("/bin/sh", env)
	require.Equal(t, "/bin/sh", cmd.Path)
	require.Equal(t, []string{"/bin/sh", "-c", standInScript}, cmd.Argv)
	require.Equal(t, env, cmd.Env)
	require.False(t, cmd.Missing)
}

func TestResolver_SearchPathArgument(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	path := writeExecutable(t, second, "worker")

	got, err := NewResolver(nil).Resolve("worker", first+string(os.PathListSeparator)+second)
	require.NoError(t, err)
	require.Equal(t, path, got)

	_, err = NewResolver(nil).Resolve("worker", first)
	require.ErrorIs(t, err, ErrCommandNotFound)
}

func TestBuild_SearchesChildPath(t *testing.T) {
	dir := t.TempDir()
	path := writeExecutable(t, dir, "procpool-child-path-worker")

	// The supervisor's own PATH does not contain dir.
	cmd, err := Build(
		NewResolver(nil),
		"procpool-child-path-worker",
		nil,
		map[string]string{"PATH": dir},
		nil,
	)
	require.NoError(t, err)
	require.False(t, cmd.Missing)
	require.Equal(t, path, cmd.Path)

	// Without the overlay the supervisor's PATH is searched and misses.
	cmd, err = Build(NewResolver(nil), "procpool-child-path-worker", nil, nil, nil)
	require.NoError(t, err)
	require.True(t, cmd.Missing)
}

func TestLookupEnv_LastEntryWins(t *testing.T) {
	env := []string{"PATH=/a", "HOME=/root", "PATH=/b", "BROKEN"}

	require.Equal(t, "/b", LookupEnv(env, "PATH"))
	require.Equal(t, "/root", LookupEnv(env, "HOME"))
	require.Empty(t, LookupEnv(env, "MISSING"))
}

func TestBuild_EnvOverlay(t *testing.T) {
	t.Setenv("PROCPOOL_TEST_KEEP", "kept")
	t.Setenv("PROCPOOL_TEST_OVERRIDE", "old")

	cmd, err := Build(
		NewResolver(nil),
		"sh",
		nil,
		map[string]string{"PROCPOOL_TEST_OVERRIDE": "call", "PROCPOOL_TEST_NEW": "new"},
		map[string]string{"PROCPOOL_TEST_OVERRIDE": "base", "PROCPOOL_TEST_BASE": "base"},
	)
	require.NoError(t, err)

	require.Contains(t, cmd.Env, "PROCPOOL_TEST_KEEP=kept")
	require.Contains(t, cmd.Env, "PROCPOOL_TEST_OVERRIDE=call")
	require.Contains(t, cmd.Env, "PROCPOOL_TEST_NEW=new")
	require.Contains(t, cmd.Env, "PROCPOOL_TEST_BASE=base")
	require.NotContains(t, cmd.Env, "PROCPOOL_TEST_OVERRIDE=old")
	require.NotContains(t, cmd.Env, "PROCPOOL_TEST_OVERRIDE=base")
}

func TestBuildEnvironment_KeepsOrderAndAppendsSorted(t *testing.T) {
	env := BuildEnvironment(
		[]string{"B=1", "A=2", "malformed", "B=3"},
		map[string]string{"Z": "z", "C": "c", "A": "override"},
	)

	require.Equal(t, []string{"B=3", "A=override", "C=c", "Z=z"}, env)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		command string
		args    []string
		env     map[string]string
		wantErr bool
	}{
		{name: "valid", command: "cat", args: []string{"-u"}, env: map[string]string{"A": "b=c"}},
		{name: "value may contain newline", command: "cat", env: map[string]string{"A": "x\ny"}},
		{name: "argument may contain newline", command: "cat", args: []string{"x\ny"}},
		{name: "empty command", command: "", wantErr: true},
		{name: "NUL in command", command: "ca\x00t", wantErr: true},
		{name: "NUL in argument", command: "cat", args: []string{"ok", "b\x00d"}, wantErr: true},
		{name: "empty env key", command: "cat", env: map[string]string{"": "v"}, wantErr: true},
		{name: "equals in env key", command: "cat", env: map[string]string{"A=B": "v"}, wantErr: true},
		{name: "NUL in env value", command: "cat", env: map[string]string{"A": "v\x00"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.command, tc.args, tc.env)
			if tc.wantErr {
				require.ErrorIs(t, err, errors.ErrInvalidCommand)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestBuild_RejectsInvalidBaseEnv(t *testing.T) {
	_, err := Build(NewResolver(nil), "cat", nil, nil, map[string]string{"BAD=KEY": "v"})
	require.ErrorIs(t, err, errors.ErrInvalidCommand)
}
