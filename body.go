package air

import (
	"errors"
	"io"
	"net/http"
	"sync"
)

// ErrPayloadTooLarge is returned by `RequestBody.Collect` when the body
// exceeds the requested maximum.
var ErrPayloadTooLarge = errors.New("air: request payload too large")

// RequestBody is a streaming handle onto an HTTP request body.
//
// It satisfies `io.Reader` so it is a drop-in replacement everywhere an
// `io.Reader`/`io.ReadCloser` is expected (form parsing, `Bind`, proxying),
// and it can also be consumed chunk-by-chunk via `Next`. Reads pull bytes
// from the underlying `*http.Request` body on demand; nothing is read ahead
// of the caller.
type RequestBody struct {
	src           io.ReadCloser
	contentLength int64

	mu     sync.Mutex
	err    error
	closed bool
}

// newRequestBody returns a pointer of a new instance of the `RequestBody`
// for the r, fed from the hr.
func newRequestBody(r *Request, hr *http.Request) *RequestBody {
	src := hr.Body
	if src == nil {
		src = http.NoBody
	}

	return &RequestBody{
		src: &requestBody{
			r:  r,
			hr: hr,
			rc: src,
		},
		contentLength: hr.ContentLength,
	}
}

// requestBody wraps the body reader of an `*http.Request`, synthesizing an
// early `io.EOF` once the declared Content-Length has been fully read
// (mirroring how the standard library's own internal request body reader
// behaves) and promoting the hr's trailer into the r's `Header` once the
// body has been exhausted.
type requestBody struct {
	r  *Request
	hr *http.Request
	rc io.ReadCloser

	read   int64
	sawEOF bool
}

// Read implements the `io.Reader`.
func (rb *requestBody) Read(p []byte) (int, error) {
	if rb.sawEOF {
		return 0, io.EOF
	}

	n, err := rb.rc.Read(p)
	rb.read += int64(n)

	if err == nil &&
		rb.hr.ContentLength >= 0 &&
		rb.read >= rb.hr.ContentLength {
		err = io.EOF
	}

	if err == io.EOF {
		rb.sawEOF = true
		for name, values := range rb.hr.Trailer {
			rb.r.Header[name] = values
		}
	}

	return n, err
}

// Close implements the `io.Closer`.
func (rb *requestBody) Close() error {
	return rb.rc.Close()
}

// Read implements the `io.Reader`.
func (b *RequestBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return 0, b.err
	}

	n, err := b.src.Read(p)
	if err != nil && err != io.EOF {
		b.err = err
	}

	return n, err
}

// Close implements the `io.Closer`.
func (b *RequestBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	return b.src.Close()
}

// Replace swaps the b's underlying source for src, closing the previous
// source first. This lets a `Gas` (e.g. a request-decompression middleware)
// substitute a transformed body before a handler ever reads from it, without
// needing access to `RequestBody`'s unexported fields. Because the previous
// source is closed, src must not read from it (nor from b itself); whatever
// src needs from the old body has to be read out first, e.g. via `Collect`.
func (b *RequestBody) Replace(src io.ReadCloser) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.src.Close()
	}

	b.src = src
	b.err = nil
	b.closed = false

	return nil
}

// Next reads and returns the next chunk of up to len(buf) bytes, reusing buf
// as scratch space. It returns `io.EOF` once the body has been fully
// consumed. It is the chunk-by-chunk counterpart of `Read`, for callers that
// relay a request body without buffering it whole.
func (b *RequestBody) Next(buf []byte) ([]byte, error) {
	n, err := b.Read(buf)
	return buf[:n], err
}

// Collect reads the entirety of the b, up to maxBytes, and returns it. If
// the body exceeds maxBytes, it returns `ErrPayloadTooLarge` without having
// consumed an unbounded amount of memory.
func (b *RequestBody) Collect(maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = 1 << 20 // 1 MiB
	}

	lr := io.LimitReader(b, maxBytes+1)

	buf := make([]byte, 0, 512)
	for {
		if int64(len(buf)) > maxBytes {
			return nil, ErrPayloadTooLarge
		}

		if len(buf) == cap(buf) {
			buf = append(buf, 0)[:len(buf)]
		}

		n, err := lr.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]

		if err != nil {
			if err == io.EOF {
				err = nil
			}

			if int64(len(buf)) > maxBytes {
				return nil, ErrPayloadTooLarge
			}

			return buf, err
		}
	}
}
