package gas

import (
	"crypto/subtle"
	"net/http"

	"github.com/airframe/airframe"
)

// BasicAuthValidator validates a username/password pair extracted from an
// "Authorization: Basic" header.
type BasicAuthValidator func(username, password string) bool

// BasicAuth returns a `Gas` that enforces HTTP Basic authentication (RFC
// 7617) using validate to check the decoded credentials.
func BasicAuth(realm string, validate BasicAuthValidator) Gas {
	if realm == "" {
		realm = "Restricted"
	}

	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) error {
			username, password, ok := req.HTTPRequest().BasicAuth()
			if ok {
				ok = validate(username, password)
			}

			if !ok {
				res.Header.Set(
					"WWW-Authenticate",
					`Basic realm="`+realm+`"`,
				)
				res.Status = http.StatusUnauthorized
				return res.WriteString("Unauthorized")
			}

			return next(req, res)
		}
	}
}

// ConstantTimeEqual compares a and b without leaking timing information
// about where they first differ, for use inside a `BasicAuthValidator`.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
