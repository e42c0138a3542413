package gas

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/airframe/airframe"
)

// CORSConfig configures `CORS`.
type CORSConfig struct {
	// AllowOrigins is the set of origins allowed to make cross-origin
	// requests. A single "*" allows any origin.
	AllowOrigins []string

	// AllowMethods is the set of methods advertised in response to a
	// preflight request.
	AllowMethods []string

	// AllowHeaders is the set of request headers advertised as allowed
	// in response to a preflight request.
	AllowHeaders []string

	// AllowCredentials sets the "Access-Control-Allow-Credentials"
	// header.
	AllowCredentials bool

	// MaxAge is, in seconds, how long a preflight response may be
	// cached by the client.
	MaxAge int
}

// CORS returns a `Gas` that implements Cross-Origin Resource Sharing, per
// the Fetch Standard's CORS protocol.
func CORS(config CORSConfig) Gas {
	allowMethods := strings.Join(config.AllowMethods, ", ")
	allowHeaders := strings.Join(config.AllowHeaders, ", ")

	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) error {
			origin := req.Header.Get("Origin")
			if origin == "" {
				return next(req, res)
			}

			allowOrigin := corsAllowOrigin(config.AllowOrigins, origin)
			if allowOrigin == "" {
				return next(req, res)
			}

			res.Header.Add("Vary", "Origin")
			res.Header.Set("Access-Control-Allow-Origin", allowOrigin)
			if config.AllowCredentials {
				res.Header.Set(
					"Access-Control-Allow-Credentials",
					"true",
				)
			}

			if req.Method != http.MethodOptions {
				return next(req, res)
			}

			res.Header.Add("Vary", "Access-Control-Request-Method")
			res.Header.Add("Vary", "Access-Control-Request-Headers")
			res.Header.Set("Access-Control-Allow-Methods", allowMethods)
			if allowHeaders != "" {
				res.Header.Set(
					"Access-Control-Allow-Headers",
					allowHeaders,
				)
			} else if rh := req.Header.Get(
				"Access-Control-Request-Headers",
			); rh != "" {
				res.Header.Set("Access-Control-Allow-Headers", rh)
			}

			if config.MaxAge > 0 {
				res.Header.Set(
					"Access-Control-Max-Age",
					strconv.Itoa(config.MaxAge),
				)
			}

			res.Status = http.StatusNoContent

			return res.Write(nil)
		}
	}
}

// corsAllowOrigin reports the value the "Access-Control-Allow-Origin"
// header should carry for origin given the allowed set, or "" if origin is
// not allowed.
func corsAllowOrigin(allowed []string, origin string) string {
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		if strings.EqualFold(o, origin) {
			return origin
		}
	}

	return ""
}
