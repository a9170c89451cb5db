//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wagiedev/procpool"
)

// skipIfBinaryNotInstalled skips the test unless name is on PATH.
func skipIfBinaryNotInstalled(t *testing.T, name string) {
	t.Helper()

	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not installed", name)
	}
}

// openFds counts the descriptors open in this process.
func openFds(t *testing.T) int {
	t.Helper()

	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("/proc/self/fd not available")
	}

	return len(entries)
}

// readLine polls slot id until a newline-terminated line arrives.
func readLine(sup *procpool.Supervisor, id int) (string, error) {
	var buf []byte

	deadline := time.Now().Add(10 * time.Second)

	for time.Now().Before(deadline) {
		chunk, err := sup.Read(id, 0)
		if err != nil {
			return "", err
		}

		buf = append(buf, chunk...)

		if n := len(buf); n > 0 && buf[n-1] == '\n' {
			return string(buf[:n-1]), nil
		}

		time.Sleep(5 * time.Millisecond)
	}

	return "", fmt.Errorf("no line from slot %d, got %q", id, buf)
}

func newSupervisor(t *testing.T, opts ...procpool.Option) (*procpool.Supervisor, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	t.Cleanup(cancel)

	sup := procpool.New(opts...)
	t.Cleanup(func() { require.NoError(t, sup.Close()) })

	return sup, ctx
}
