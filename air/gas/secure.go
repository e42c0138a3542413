package gas

import (
	"fmt"
	"strconv"

	"github.com/airframe/airframe"
)

// SecureConfig configures `Secure`.
type SecureConfig struct {
	// XSSProtection sets "X-XSS-Protection". Default: "1; mode=block".
	XSSProtection string

	// ContentTypeNosniff sets "X-Content-Type-Options". Default: "nosniff".
	ContentTypeNosniff string

	// XFrameOptions sets "X-Frame-Options". Default: "SAMEORIGIN".
	XFrameOptions string

	// HSTSMaxAge, if > 0, sets "Strict-Transport-Security" on requests
	// served over TLS.
	HSTSMaxAge int

	// HSTSIncludeSubdomains adds the "includeSubDomains" directive to the
	// HSTS header.
	HSTSIncludeSubdomains bool

	// ContentSecurityPolicy sets "Content-Security-Policy", if non-empty.
	ContentSecurityPolicy string
}

// Secure returns a `Gas` that sets a conventional set of security-related
// response headers, the way the teacher's dropped `gases/secure.go`
// generation did.
func Secure(config SecureConfig) Gas {
	xssProtection := config.XSSProtection
	if xssProtection == "" {
		xssProtection = "1; mode=block"
	}

	contentTypeNosniff := config.ContentTypeNosniff
	if contentTypeNosniff == "" {
		contentTypeNosniff = "nosniff"
	}

	xFrameOptions := config.XFrameOptions
	if xFrameOptions == "" {
		xFrameOptions = "SAMEORIGIN"
	}

	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) error {
			res.Header.Set("X-XSS-Protection", xssProtection)
			res.Header.Set("X-Content-Type-Options", contentTypeNosniff)
			res.Header.Set("X-Frame-Options", xFrameOptions)

			if config.HSTSMaxAge > 0 && req.Scheme == "https" {
				v := fmt.Sprintf(
					"max-age=%s",
					strconv.Itoa(config.HSTSMaxAge),
				)
				if config.HSTSIncludeSubdomains {
					v += "; includeSubDomains"
				}

				res.Header.Set("Strict-Transport-Security", v)
			}

			if config.ContentSecurityPolicy != "" {
				res.Header.Set(
					"Content-Security-Policy",
					config.ContentSecurityPolicy,
				)
			}

			return next(req, res)
		}
	}
}
