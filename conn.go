package air

// conn.go implements the HTTP/1.1 connection state machine that drives the
// plaintext (non-TLS, non-ACME) listening path directly off a `net.Conn`,
// rather than delegating connection framing to the `net/http.Server` as the
// TLS/ALPN path still does. It owns idle timeouts, head parsing, keep-alive
// decisions, and draining an unread request body before the next request
// head is read (no pipelining), per the one-request-in-flight contract of
// this server.
//
// The incremental "peek, then parse" technique below is the same one
// `proxyConn.readHeader` (see listener.go) already uses to pull a PROXY
// protocol header off the wire a few bytes at a time; here it is applied to
// HTTP/1.1 request heads instead.

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/http/httpguts"
)

// connState is a state of the per-connection HTTP/1.1 state machine.
type connState uint8

const (
	// csIdle is entered between requests (and before the first one) while
	// waiting for the peer to send more bytes. An idle connection that
	// exceeds its idle timeout is closed.
	csIdle connState = iota

	// csReadingHead is entered once at least one byte of a new request
	// has arrived, while the request line and header block are parsed.
	csReadingHead

	// csReadingBody is entered once the head has been parsed, to arm the
	// read deadline that bounds reading the request body.
	csReadingBody

	// csResponding covers dispatch to the registered `Handler` chain (which
	// may or may not consume the request body) and writing the status line,
	// headers and body of the response to the wire.
	csResponding

	// csDraining runs after the handler has returned: any request body
	// bytes the handler left unread are discarded so the next request's
	// head can be read from a known-good offset.
	csDraining

	// csClosing is terminal: the connection is being torn down, either
	// because the peer closed it, an error occurred, or keep-alive was
	// declined.
	csClosing
)

func (s connState) String() string {
	switch s {
	case csIdle:
		return "idle"
	case csReadingHead:
		return "reading-head"
	case csReadingBody:
		return "reading-body"
	case csResponding:
		return "responding"
	case csDraining:
		return "draining"
	case csClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// maxDrainBytes bounds how much of an unread request body `csDraining` will
// discard before giving up and closing the connection instead of risking an
// unbounded read from an uncooperative peer.
const maxDrainBytes = 4 << 20 // 4 MiB

// conn holds the per-connection state driven through the state machine by
// `conn.serve`.
type conn struct {
	a     *Air
	rwc   net.Conn
	br    *bufio.Reader
	bw    *bufio.Writer
	state atomic.Int32
}

// setState atomically records c's current FSM state.
func (c *conn) setState(s connState) {
	c.state.Store(int32(s))
}

// State atomically reports c's current FSM state. It is safe to call from a
// goroutine other than the one driving c (e.g. during a graceful shutdown
// sweep for idle connections).
func (c *conn) State() connState {
	return connState(c.state.Load())
}

// newConn returns a pointer of a new instance of the `conn` wrapping rwc.
func newConn(a *Air, rwc net.Conn) *conn {
	return &conn{
		a:   a,
		rwc: rwc,
		br:  bufio.NewReader(rwc),
		bw:  bufio.NewWriter(rwc),
	}
}

// serve drives c's underlying connection through the state machine, one
// request at a time, until the peer disconnects, an idle or read/write
// timeout fires, or keep-alive is declined.
func (c *conn) serve() {
	defer c.rwc.Close()

	for {
		if !c.awaitRequest() {
			return
		}

		hr, err := c.readHead()
		if err != nil {
			return
		}

		if !c.respond(hr) {
			return
		}
	}
}

// awaitRequest parks the connection in `csIdle` until either a byte arrives
// or the idle timeout elapses.
func (c *conn) awaitRequest() bool {
	c.setState(csIdle)

	idleTimeout := c.a.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = c.a.ReadTimeout
	}
	if idleTimeout > 0 {
		c.rwc.SetReadDeadline(time.Now().Add(idleTimeout))
	} else {
		c.rwc.SetReadDeadline(time.Time{})
	}

	_, err := c.br.Peek(1)
	return err == nil
}

// readHead parses the request line and header block of the next request.
func (c *conn) readHead() (*http.Request, error) {
	c.setState(csReadingHead)

	headTimeout := c.a.ReadHeaderTimeout
	if headTimeout == 0 {
		headTimeout = c.a.ReadTimeout
	}
	if headTimeout > 0 {
		c.rwc.SetReadDeadline(time.Now().Add(headTimeout))
	}

	hr, err := http.ReadRequest(c.br)
	if err != nil {
		return nil, err
	}

	if !httpguts.ValidHostHeader(hr.Host) {
		return nil, fmt.Errorf("air: malformed host header %q", hr.Host)
	}

	for name, values := range hr.Header {
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("air: malformed header field name %q", name)
		}
		for _, value := range values {
			if !httpguts.ValidHeaderFieldValue(value) {
				return nil, fmt.Errorf(
					"air: malformed header field value for %q",
					name,
				)
			}
		}
	}

	hr.RemoteAddr = c.rwc.RemoteAddr().String()
	if hr.TLS == nil {
		hr.URL.Scheme = "http"
	}
	hr.URL.Host = hr.Host

	return hr, nil
}

// respond dispatches hr to the registered `Handler` chain, writes the
// response to the wire, drains whatever body bytes the handler left unread,
// and reports whether the connection should stay open for another request.
func (c *conn) respond(hr *http.Request) bool {
	c.setState(csReadingBody)

	if c.a.ReadTimeout > 0 {
		c.rwc.SetReadDeadline(time.Now().Add(c.a.ReadTimeout))
	}

	c.setState(csResponding)

	if c.a.WriteTimeout > 0 {
		c.rwc.SetWriteDeadline(time.Now().Add(c.a.WriteTimeout))
	}

	ctx, cancel := context.WithCancel(hr.Context())
	hr = hr.WithContext(ctx)

	cw := newConnResponseWriter(c)
	c.a.ServeHTTP(cw, hr)
	cw.finish()
	cancel()

	c.setState(csDraining)

	n, _ := io.Copy(io.Discard, io.LimitReader(hr.Body, maxDrainBytes+1))
	if n > maxDrainBytes {
		c.bw.Flush()
		c.setState(csClosing)
		return false
	}

	hr.Body.Close()

	if err := c.bw.Flush(); err != nil {
		c.setState(csClosing)
		return false
	}

	if !keepAliveAllowed(hr, cw.header) {
		c.setState(csClosing)
		return false
	}

	return true
}

// keepAliveAllowed reports whether the connection that served hr may be
// reused for another request, honoring an explicit "Connection: close" on
// either the request or the response and the HTTP/1.0 opt-in requirement.
func keepAliveAllowed(hr *http.Request, resHeader http.Header) bool {
	if connTokenContains(resHeader, "close") {
		return false
	}
	if connTokenContains(hr.Header, "close") {
		return false
	}
	if hr.ProtoAtLeast(1, 1) {
		return true
	}
	return connTokenContains(hr.Header, "keep-alive")
}

// connTokenContains reports whether h's "Connection" header contains token,
// matched case-insensitively against each comma-separated entry.
func connTokenContains(h http.Header, token string) bool {
	for _, v := range strings.Split(h.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(v), token) {
			return true
		}
	}
	return false
}

// connResponseWriter implements `http.ResponseWriter` directly on top of a
// `conn`'s buffered writer, producing either a `Content-Length`-framed body
// or a chunked one when the handler never set a length, without involving
// `net/http.Server`'s own response writer.
type connResponseWriter struct {
	c           *conn
	header      http.Header
	status      int
	wroteHeader bool
	chunked     bool
}

func newConnResponseWriter(c *conn) *connResponseWriter {
	return &connResponseWriter{
		c:      c,
		header: http.Header{},
		status: http.StatusOK,
	}
}

// Header implements the `http.ResponseWriter`.
func (w *connResponseWriter) Header() http.Header {
	return w.header
}

// WriteHeader implements the `http.ResponseWriter`.
func (w *connResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status

	if w.header.Get("Content-Length") == "" {
		w.chunked = true
		w.header.Set("Transfer-Encoding", "chunked")
	}

	fmt.Fprintf(w.c.bw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	w.header.Write(w.c.bw)
	io.WriteString(w.c.bw, "\r\n")
}

// Write implements the `http.ResponseWriter`.
func (w *connResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}

	if !w.chunked {
		return w.c.bw.Write(p)
	}

	if len(p) == 0 {
		return 0, nil
	}

	fmt.Fprintf(w.c.bw, "%x\r\n", len(p))
	n, err := w.c.bw.Write(p)
	if err == nil {
		_, err = io.WriteString(w.c.bw, "\r\n")
	}
	return n, err
}

// Flush implements the `http.Flusher`.
func (w *connResponseWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
	w.c.bw.Flush()
}

// finish terminates the response, emitting the trailing zero-length chunk
// when the body was chunk-framed.
func (w *connResponseWriter) finish() {
	if !w.wroteHeader {
		w.WriteHeader(w.status)
	}
	if w.chunked {
		io.WriteString(w.c.bw, "0\r\n\r\n")
	}
}
