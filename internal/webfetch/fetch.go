package webfetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultTimeout bounds the whole request, from dial to last body byte.
	DefaultTimeout = 2 * time.Second

	// DefaultMaxBytes is the largest body Get returns.
	DefaultMaxBytes = 1 << 20 // 1MB

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "procpool/1.0"
)

var (
	// ErrUnsupportedScheme indicates a URL that is not plain http.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrBodyTooLarge indicates a response body over the size limit.
	ErrBodyTooLarge = errors.New("response body too large")
)

// StatusError reports a response outside the 2xx range, including redirects.
type StatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *StatusError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("GET %s: status %d (redirect to %s not followed)", e.URL, e.StatusCode, e.Location)
	}

	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// Fetcher issues GET requests. The zero value uses the defaults.
type Fetcher struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// Get fetches rawURL with the default Fetcher.
func Get(ctx context.Context, rawURL string) ([]byte, error) {
	var f Fetcher

	return f.Get(ctx, rawURL)
}

// Get fetches rawURL and returns the response body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	if u.Scheme != "http" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("parse URL: missing host in %q", rawURL)
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}

	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := f.writeRequest(conn, u); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: http.MethodGet, URL: u})
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if int64(len(body)) > limit {
		return nil, ErrBodyTooLarge
	}

	return body, nil
}

func (f *Fetcher) writeRequest(w io.Writer, u *url.URL) error {
	agent := f.UserAgent
	if agent == "" {
		agent = DefaultUserAgent
	}

	_, err := fmt.Fprintf(w,
		"GET %s HTTP/1.0\r\nHost: %s\r\nUser-Agent: %s\r\nAccept: */*\r\nConnection: close\r\n\r\n",
		u.RequestURI(), u.Host, agent)

	return err
}
