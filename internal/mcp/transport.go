package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	perrors "github.com/wagiedev/procpool/internal/errors"
)

// DefaultPollInterval is how often a connection polls an idle slot.
const DefaultPollInterval = 10 * time.Millisecond

// ErrConnectionClosed indicates a write on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Channel is duplex access to a supervised child by slot id.
type Channel interface {
	Write(id int, payload []byte) (int, error)
	Read(id int, maxLen int) ([]byte, error)
	IsAlive(id int) bool
}

// Compile-time verification that SlotTransport implements mcp.Transport.
var _ mcp.Transport = (*SlotTransport)(nil)

// SlotTransport is an mcp.Transport over the pipes of a running slot.
// Messages are newline-delimited JSON-RPC, as with stdio servers.
type SlotTransport struct {
	Channel Channel
	Slot    int

	// Token identifies the session; it is reported as the session id.
	Token string

	// PollInterval is the wait between reads of an idle slot.
	// Zero uses DefaultPollInterval.
	PollInterval time.Duration

	Logger *slog.Logger
}

// Connect implements mcp.Transport.
func (t *SlotTransport) Connect(_ context.Context) (mcp.Connection, error) {
	if t.Channel == nil {
		return nil, fmt.Errorf("slot transport has no channel")
	}

	poll := t.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	log := t.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &slotConn{
		ch:    t.Channel,
		slot:  t.Slot,
		token: t.Token,
		poll:  poll,
		log:   log.With("component", "mcp_transport", "slot", t.Slot),
		done:  make(chan struct{}),
	}, nil
}

// slotConn implements mcp.Connection.
type slotConn struct {
	ch    Channel
	slot  int
	token string
	poll  time.Duration
	log   *slog.Logger

	readMu sync.Mutex
	buf    []byte

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

var _ mcp.Connection = (*slotConn)(nil)

// Read returns the next JSON-RPC message from the child. Lines that do
// not decode are logged and skipped. Read returns io.EOF once the child
// has exited or the connection is closed.
func (c *slotConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if line, ok := c.nextLine(); ok {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}

			msg, err := jsonrpc.DecodeMessage(line)
			if err != nil {
				c.log.Debug("Skipping non-JSON-RPC output", "line", string(line), "error", err)

				continue
			}

			return msg, nil
		}

		select {
		case <-c.done:
			return nil, io.EOF
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		chunk, err := c.ch.Read(c.slot, 0)
		if err != nil {
			if errors.Is(err, perrors.ErrInvalidSlot) {
				return nil, io.EOF
			}

			return nil, err
		}

		if len(chunk) > 0 {
			c.buf = append(c.buf, chunk...)

			continue
		}

		if !c.ch.IsAlive(c.slot) {
			c.log.Debug("Child exited, ending session")

			return nil, io.EOF
		}

		timer := time.NewTimer(c.poll)

		select {
		case <-c.done:
			timer.Stop()

			return nil, io.EOF
		case <-ctx.Done():
			timer.Stop()

			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// nextLine removes and returns the first complete line in the buffer.
func (c *slotConn) nextLine() ([]byte, bool) {
	i := bytes.IndexByte(c.buf, '\n')
	if i < 0 {
		return nil, false
	}

	line := bytes.Clone(c.buf[:i])
	c.buf = c.buf[i+1:]

	return line, true
}

// Write sends msg to the child followed by a newline.
func (c *slotConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	n, err := c.ch.Write(c.slot, data)
	if err != nil {
		return err
	}

	if n < len(data) {
		return io.ErrShortWrite
	}

	return nil
}

// Close ends the connection. The child keeps running.
func (c *slotConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})

	return nil
}

// SessionID implements mcp.Connection.
func (c *slotConn) SessionID() string {
	return c.token
}
