package lineedit

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/wagiedev/procpool/internal/hostfs"
)

// MaxHistory is the number of lines kept; older lines are dropped first.
const MaxHistory = 500

// Editor reads lines from an input stream after printing a prompt.
type Editor struct {
	in  *bufio.Reader
	out io.Writer

	mu      sync.Mutex
	history []string
}

// New creates an editor that reads from in and prints prompts to out.
func New(in io.Reader, out io.Writer) *Editor {
	return &Editor{
		in:      bufio.NewReader(in),
		out:     out,
		history: make([]string, 0, 64),
	}
}

// ReadLine prints prompt and returns the next input line without its
// trailing line terminator. It returns io.EOF when input is exhausted.
// A final line without a newline is returned before io.EOF.
func (e *Editor) ReadLine(prompt string) (string, error) {
	if prompt != "" && e.out != nil {
		if _, err := io.WriteString(e.out, prompt); err != nil {
			return "", err
		}
	}

	line, err := e.in.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) || line == "" {
			return "", err
		}
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// AppendHistory records line. Empty lines are ignored.
func (e *Editor) AppendHistory(line string) {
	if line == "" {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.history) >= MaxHistory {
		e.history = append(e.history[:0], e.history[len(e.history)-MaxHistory+1:]...)
	}

	e.history = append(e.history, line)
}

// History returns a copy of the recorded lines, oldest first.
func (e *Editor) History() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.history...)
}

// LoadHistory appends every non-empty line of the file at path.
// A missing file returns an error matching hostfs.ErrNotFound.
func (e *Editor) LoadHistory(path string) error {
	data, err := hostfs.ReadFile(path)
	if err != nil {
		return err
	}

	for line := range strings.SplitSeq(string(data), "\n") {
		e.AppendHistory(strings.TrimRight(line, "\r"))
	}

	return nil
}

// SaveHistory writes the history to path, one line per entry.
func (e *Editor) SaveHistory(path string) error {
	var b strings.Builder

	for _, line := range e.History() {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	_, err := hostfs.WriteFile(path, []byte(b.String()))

	return err
}
