package gas

import (
	"net/http"
	"path/filepath"

	"github.com/airframe/airframe"
)

// Static returns a `Gas` that serves a file from root for any request that
// the rest of the `Handler` chain could not resolve (i.e. ended in a 404),
// using `Response.WriteFile` (and so the same coffer-backed asset cache and
// minification the framework already gives every other static response).
// This complements `Air.FILES`, which registers explicit routes up front;
// `Static` instead acts as a catch-all fallback, the shape the teacher's
// dropped `gases/static.go` generation used for serving single-page-app
// bundles.
func Static(root string) Gas {
	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) error {
			err := next(req, res)

			if res.Status != http.StatusNotFound || res.Written {
				return err
			}

			res.Status = http.StatusOK

			if ferr := res.WriteFile(
				filepath.Join(root, req.RawPath()),
			); ferr != nil {
				res.Status = http.StatusNotFound
				return err
			}

			return nil
		}
	}
}
