package air

import (
	"log"
	"net/http"
	"runtime"
	"time"
)

// discardResponseWriter is an `http.ResponseWriter` that throws away
// everything written to it, so a benchmark measures routing/middleware
// overhead instead of I/O.
type discardResponseWriter struct{}

func (discardResponseWriter) Header() http.Header { return http.Header{} }

func (discardResponseWriter) Write(p []byte) (int, error) { return len(p), nil }

func (discardResponseWriter) WriteHeader(int) {}

func init() {
	runtime.GOMAXPROCS(1)
	log.SetOutput(discardResponseWriter{})
}

// benchJSONHandler writes a small, fixed JSON body, for benchmarking the
// JSON response path without the cost of a real payload.
func benchJSONHandler(req *Request, res *Response) error {
	var body struct {
		Name string `json:"user"`
	}
	body.Name = "Hello"
	return res.WriteJSON(body)
}

// benchEchoPathHandler writes back the request path, for benchmarking the
// plain-text response path plus routing/param overhead.
func benchEchoPathHandler(req *Request, res *Response) error {
	return res.WriteString(req.Path)
}

// benchTimingGas times the downstream call and discards the measurement,
// for benchmarking the `Gas` chain-dispatch overhead itself.
func benchTimingGas(next Handler) Handler {
	return func(req *Request, res *Response) error {
		start := time.Now()
		err := next(req, res)
		_ = time.Since(start)
		return err
	}
}

// benchApp returns an `*Air` with a single route registered under method at
// path, wrapped in `benchTimingGas`, for use as a benchmark fixture.
func benchApp(method, path string, h Handler) *Air {
	a := New()

	switch method {
	case http.MethodGet:
		a.GET(path, h, benchTimingGas)
	case http.MethodPost:
		a.POST(path, h, benchTimingGas)
	case http.MethodPut:
		a.PUT(path, h, benchTimingGas)
	case http.MethodPatch:
		a.PATCH(path, h, benchTimingGas)
	case http.MethodDelete:
		a.DELETE(path, h, benchTimingGas)
	default:
		panic("air: unsupported benchmark method: " + method)
	}

	return a
}
