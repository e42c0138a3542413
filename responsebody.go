package air

import (
	"bytes"
	"net/http"
	"strconv"
)

// ResponseBody is the message body abstraction of a `Response`. It
// generalizes the teacher's bare `http.ResponseWriter` sink into three
// shapes that all honor the same head -> body* -> end(trailer) contract: the
// status line/headers are finalized exactly once (lazily, on the first
// write or on `End`), the body is written in zero or more chunks, and `End`
// flushes any trailer header and releases the underlying writer.
//
// `Response.Body` is exported so a `Handler` may stream directly to the
// wire, exactly as the teacher's plain `io.Writer` field did; the concrete
// variant chosen underneath only changes how the bytes in between the head
// and the end are buffered.
type ResponseBody interface {
	// Write appends p to the body. For the `emptyBody` variant, it is a
	// no-op that reports success without touching the wire.
	Write(p []byte) (int, error)

	// End finalizes the body. It flushes the trailer (if any) into the
	// `Response`'s `Header` before the head is written, then flushes any
	// buffered content. It must be called exactly once per response.
	End(trailer http.Header) error
}

// emptyBody is the `ResponseBody` variant for responses that carry no body
// at all — HEAD requests, 1xx/204/304 responses, and the "no benefit" short
// circuit in `Response.Write` when content is nil. Grounded on
// `response.go`'s existing `if content == nil { ... WriteHeader ... }`
// short circuit, pulled out into its own named shape.
type emptyBody struct {
	r *Response
}

func newEmptyBody(r *Response) *emptyBody {
	return &emptyBody{r: r}
}

func (b *emptyBody) Write(p []byte) (int, error) {
	return len(p), nil
}

func (b *emptyBody) End(trailer http.Header) error {
	mergeTrailer(b.r, trailer)

	if !b.r.Written {
		b.r.hrw.WriteHeader(b.r.Status)
	}

	return nil
}

// singleBody is the `ResponseBody` variant for a fully-buffered, known-size
// body: writes accumulate into a single in-memory buffer, the
// Content-Length header is finalized from the buffer's size, and the whole
// buffer is flushed to the wire exactly once, on `End`. Grounded on
// `response.go`'s status->=400 branch, which already computes a
// Content-Length from a seekable source before writing once.
type singleBody struct {
	r   *Response
	buf bytes.Buffer
}

func newSingleBody(r *Response) *singleBody {
	return &singleBody{r: r}
}

func (b *singleBody) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

func (b *singleBody) End(trailer http.Header) error {
	mergeTrailer(b.r, trailer)

	if b.r.Header.Get("Content-Encoding") == "" {
		b.r.Header.Set("Content-Length", strconv.Itoa(b.buf.Len()))
	}

	if !b.r.Written {
		b.r.hrw.WriteHeader(b.r.Status)
	}

	if b.r.req.Method == http.MethodHead {
		return nil
	}

	_, err := b.r.hrw.Write(b.buf.Bytes())

	return err
}

// streamBody is the `ResponseBody` variant for open-ended, producer-driven
// content whose length is not known up front: every write passes straight
// through to the underlying `http.ResponseWriter`, which (per `net/http`'s
// own writer, already relied upon implicitly by the teacher) switches to
// chunked transfer encoding once no Content-Length has been set. This is
// the variant `Response.Body` defaults to, matching the teacher's original
// passthrough behavior.
type streamBody struct {
	r *Response
}

func newStreamBody(r *Response) *streamBody {
	return &streamBody{r: r}
}

func (b *streamBody) Write(p []byte) (int, error) {
	if !b.r.Written {
		b.r.hrw.WriteHeader(b.r.Status)
	}

	return b.r.hrw.Write(p)
}

func (b *streamBody) End(trailer http.Header) error {
	mergeTrailer(b.r, trailer)

	if !b.r.Written {
		b.r.hrw.WriteHeader(b.r.Status)
	}

	return nil
}

// mergeTrailer copies trailer into the Header of r, so a late "end of
// stream" trailer set by a `Handler` still reaches the client the way
// spec.md's `end(trailers)` step describes, regardless of which
// `ResponseBody` variant is in play.
func mergeTrailer(r *Response, trailer http.Header) {
	for name, values := range trailer {
		r.Header[name] = values
	}
}
