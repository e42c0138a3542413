package gas

import (
	"bytes"
	"compress/gzip"
	"net/http"

	"github.com/airframe/airframe"
)

// Compress returns a `Gas` that transparently gunzips a request body
// carrying a "Content-Encoding: gzip" header before handing it to the next
// `Handler`, the request-side counterpart of `response.go`'s own
// response-body gzip compression (which this module already does on the
// way out). The compressed body is first read in full, up to the request's
// `RequestContext().MaxUploadSize` (a larger one is rejected with 413), and
// then decompressed from memory.
func Compress() Gas {
	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) error {
			if req.Header.Get("Content-Encoding") != "gzip" {
				return next(req, res)
			}

			compressed, err := req.Body.Collect(
				req.RequestContext().MaxUploadSize,
			)
			if err != nil {
				if err == air.ErrPayloadTooLarge {
					res.Status = http.StatusRequestEntityTooLarge
				}

				return err
			}

			gr, err := gzip.NewReader(bytes.NewReader(compressed))
			if err != nil {
				res.Status = http.StatusBadRequest
				return err
			}

			if err := req.Body.Replace(gr); err != nil {
				return err
			}

			req.Header.Del("Content-Encoding")
			req.ContentLength = -1

			return next(req, res)
		}
	}
}

// Gzip is an alias of `Compress`, matching the teacher's naming for the
// symmetric response-side concern.
func Gzip() Gas {
	return Compress()
}
