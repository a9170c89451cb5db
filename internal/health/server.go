package health

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// requestReadTimeout bounds how long Poll waits for a client's request.
const requestReadTimeout = 100 * time.Millisecond

// MetricsPath is the request path answered with metrics when a
// MetricsWriter is installed.
const MetricsPath = "/metrics"

// metricsContentType is the Prometheus text exposition content type.
const metricsContentType = "text/plain; version=0.0.4; charset=utf-8"

// ErrNotStarted indicates Poll was called before Start or after Stop.
var ErrNotStarted = errors.New("health server not started")

// MetricsWriter renders metrics in the text exposition format.
type MetricsWriter interface {
	WriteText(w io.Writer) error
}

// Report is the body returned to every health check.
type Report struct {
	Status   string `json:"status"`
	Uptime   int64  `json:"uptime"`
	Sessions int    `json:"sessions"`
}

// Server is a polled health responder.
type Server struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	ln      *net.TCPListener
	started time.Time
	metrics MetricsWriter
}

// NewServer creates a stopped server.
func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Server{
		log: log.With("component", "health"),
		now: time.Now,
	}
}

// Start listens on port on all interfaces. Port 0 picks a free port.
// Calling Start on a running server does nothing.
func (s *Server) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return nil
	}

	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}

	s.ln = ln
	s.started = s.now()

	s.log.Info("Health server listening", "addr", ln.Addr().String())

	return nil
}

// ServeMetrics answers requests for MetricsPath from m. Every other path,
// and any request that cannot be parsed, still gets the health report.
func (s *Server) ServeMetrics(m MetricsWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = m
}

// Addr returns the listening address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}

	return s.ln.Addr()
}

// Poll answers one pending health check, if any, reporting sessions as
// the active session count. It returns true when a request was handled.
func (s *Server) Poll(sessions int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return false, ErrNotStarted
	}

	conn, err := s.acceptPending()
	if err != nil {
		return false, err
	}

	if conn == nil {
		return false, nil
	}
	defer conn.Close()

	s.respond(conn, sessions)

	return true, nil
}

// acceptPending takes one queued connection off the listener without
// blocking. It returns a nil conn when the accept queue is empty.
func (s *Server) acceptPending() (net.Conn, error) {
	rc, err := s.ln.SyscallConn()
	if err != nil {
		return nil, err
	}

	var (
		nfd       int
		acceptErr error
	)

	err = rc.Read(func(fd uintptr) bool {
		for {
			nfd, _, acceptErr = unix.Accept4(int(fd), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
			if acceptErr != unix.EINTR && acceptErr != unix.ECONNABORTED {
				return true
			}
		}
	})
	if err != nil {
		return nil, err
	}

	if acceptErr != nil {
		if errors.Is(acceptErr, unix.EAGAIN) || errors.Is(acceptErr, unix.EWOULDBLOCK) {
			return nil, nil
		}

		return nil, fmt.Errorf("accept health connection: %w", acceptErr)
	}

	f := os.NewFile(uintptr(nfd), "health-conn")
	defer f.Close()

	// FileConn dups the descriptor, so f is closed either way.
	return net.FileConn(f)
}

func (s *Server) respond(conn net.Conn, sessions int) {
	_ = conn.SetDeadline(time.Now().Add(requestReadTimeout))

	path := "/"

	if req, err := http.ReadRequest(bufio.NewReader(conn)); err == nil {
		path = req.URL.Path
	}

	contentType := "application/json"

	var body []byte

	if path == MetricsPath && s.metrics != nil {
		var buf bytes.Buffer

		if err := s.metrics.WriteText(&buf); err != nil {
			s.log.Error("Failed to render metrics", "error", err)

			return
		}

		body = buf.Bytes()
		contentType = metricsContentType
	} else {
		var err error

		body, err = json.Marshal(Report{
			Status:   "ok",
			Uptime:   int64(s.now().Sub(s.started) / time.Second),
			Sessions: sessions,
		})
		if err != nil {
			s.log.Error("Failed to encode health report", "error", err)

			return
		}
	}

	header := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: " + contentType + "\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"Connection: close\r\n" +
		"\r\n"

	if _, err := conn.Write(append([]byte(header), body...)); err != nil {
		s.log.Debug("Failed to write health response", "error", err)

		return
	}

	s.log.Debug("Answered health check", "remote", conn.RemoteAddr().String(), "path", path, "sessions", sessions)
}

// Stop closes the listener. Calling Stop on a stopped server does nothing.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return
	}

	_ = s.ln.Close()
	s.ln = nil

	s.log.Info("Health server stopped")
}
