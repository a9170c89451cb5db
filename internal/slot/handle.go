package slot

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by I/O on a handle after Close.
var ErrClosed = errors.New("handle closed")

// Handle is an owned pipe file descriptor.
//
// The descriptor is closed at most once; later Close calls return the result
// of the first one. Read, Write and WaitWritable run under a shared lock that
// Close takes exclusively, so the descriptor number is never used after it
// has been handed back to the kernel.
type Handle struct {
	fd       int
	name     string
	once     sync.Once
	closeErr error
	closed   bool
	mu       sync.RWMutex
}

// NewHandle takes ownership of fd.
func NewHandle(fd int, name string) *Handle {
	return &Handle{fd: fd, name: name}
}

// Fd returns the descriptor, or -1 once the handle is closed.
func (h *Handle) Fd() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return -1
	}

	return h.fd
}

// Name returns the label the handle was created with.
func (h *Handle) Name() string {
	return h.name
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.closed
}

// Read makes a single read(2) call on the descriptor.
func (h *Handle) Read(p []byte) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0, ErrClosed
	}

	return unix.Read(h.fd, p)
}

// Write makes a single write(2) call on the descriptor.
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0, ErrClosed
	}

	return unix.Write(h.fd, p)
}

// WaitWritable waits up to timeout for the descriptor to accept a write.
// Close is held off for at most timeout while it waits.
func (h *Handle) WaitWritable(timeout time.Duration) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}

	fds := []unix.PollFd{{Fd: int32(h.fd), Events: unix.POLLOUT}}

	_, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if errors.Is(err, unix.EINTR) {
		return nil
	}

	return err
}

// Close closes the descriptor. It is safe to call more than once.
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.closeErr = unix.Close(h.fd)
		h.closed = true
	})

	return h.closeErr
}
