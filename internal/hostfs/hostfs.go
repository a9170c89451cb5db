package hostfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
)

// ErrNotFound indicates the requested file does not exist.
var ErrNotFound = errors.New("not found")

// ReadFile returns the contents of path.
// A missing file returns an error matching ErrNotFound.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}

		return nil, err
	}

	return data, nil
}

// WriteFile creates or truncates path and writes data to it.
// It returns the number of bytes written.
func WriteFile(path string, data []byte) (int, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	n, err := f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	return n, err
}

// ListDir returns the names in directory path, sorted, skipping entries
// whose name begins with a dot.
func ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}

		return nil, err
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}

		names = append(names, e.Name())
	}

	slices.Sort(names)

	return names, nil
}

// MakeDirAll creates path and any missing parents.
func MakeDirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

// RemoveAll removes path and everything below it.
// A missing path is not an error.
func RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// MakeExecutable adds execute permission for user, group and others.
func MakeExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	return os.Chmod(path, info.Mode().Perm()|0o111)
}

// GetEnv returns the value of the environment variable name and whether it
// is set. A variable set to the empty string is reported as set.
func GetEnv(name string) (string, bool) {
	return os.LookupEnv(name)
}
