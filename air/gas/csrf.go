package gas

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"github.com/airframe/airframe"
)

// CSRFConfig configures `CSRF`.
type CSRFConfig struct {
	// CookieName is the name of the cookie carrying the token. Default:
	// "_csrf".
	CookieName string

	// HeaderName is the request header (or, for a form submission, the
	// form field with the same name) expected to echo the token back.
	// Default: "X-CSRF-Token".
	HeaderName string

	// TokenLength is the number of random bytes making up a token before
	// base64 encoding. Default: 32.
	TokenLength int
}

// CSRF returns a `Gas` implementing the double-submit-cookie pattern: a
// random token is set in a cookie on every request, and every unsafe
// (non-GET/HEAD/OPTIONS/TRACE) request must echo that same token back via a
// header or form field, proving the request did not originate from a
// third-party site that can't read the cookie.
func CSRF(config CSRFConfig) Gas {
	cookieName := config.CookieName
	if cookieName == "" {
		cookieName = "_csrf"
	}

	headerName := config.HeaderName
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}

	tokenLength := config.TokenLength
	if tokenLength <= 0 {
		tokenLength = 32
	}

	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) error {
			token := ""
			if c := req.Cookie(cookieName); c != nil {
				token = c.Value
			}

			if token == "" {
				t, err := newCSRFToken(tokenLength)
				if err != nil {
					return err
				}

				token = t
			}

			res.SetCookie(&air.Cookie{
				Name:     cookieName,
				Value:    token,
				Path:     "/",
				HTTPOnly: true,
			})

			switch req.Method {
			case http.MethodGet,
				http.MethodHead,
				http.MethodOptions,
				http.MethodTrace:
				return next(req, res)
			}

			sent := req.Header.Get(headerName)
			if sent == "" {
				if p := req.Param(headerName); p != nil && p.Value() != nil {
					sent = p.Value().String()
				}
			}

			if sent == "" || !ConstantTimeEqual(sent, token) {
				res.Status = http.StatusForbidden
				return res.WriteString("invalid CSRF token")
			}

			return next(req, res)
		}
	}
}

// newCSRFToken returns a random, URL-safe base64-encoded token of n random
// bytes.
func newCSRFToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
