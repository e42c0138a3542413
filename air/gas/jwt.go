package gas

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/airframe/airframe"
	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingOrMalformedJWT is returned (via the response) when the
// "Authorization" header is absent or not a well-formed bearer token.
var ErrMissingOrMalformedJWT = errors.New("air/gas: missing or malformed JWT")

// jwtClaimsContextKey is the type of `JWTClaimsContextKey`, the key `JWT`
// stores the parsed claims under in the request's `Context`.
type jwtClaimsContextKey struct{}

// JWTClaimsContextKey is the key used to retrieve the validated claims from
// the request's `Context` (via `req.Context.Value`) inside a downstream
// `Handler`.
var JWTClaimsContextKey = jwtClaimsContextKey{}

// JWT returns a `Gas` that requires a "Authorization: Bearer <token>"
// header, validates the token's signature with secret (HS256), and rejects
// the request with 401 if it is missing, malformed, or invalid/expired.
func JWT(secret []byte) Gas {
	return func(next Handler) Handler {
		return func(req *air.Request, res *air.Response) error {
			auth := req.Header.Get("Authorization")

			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) {
				res.Status = http.StatusUnauthorized
				return res.WriteString(ErrMissingOrMalformedJWT.Error())
			}

			token, err := jwt.Parse(
				strings.TrimPrefix(auth, prefix),
				func(t *jwt.Token) (interface{}, error) {
					if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
						return nil, errors.New(
							"air/gas: unexpected JWT signing method",
						)
					}

					return secret, nil
				},
			)
			if err != nil || !token.Valid {
				res.Status = http.StatusUnauthorized
				return res.WriteString("invalid or expired token")
			}

			req.Context = context.WithValue(
				req.Context,
				JWTClaimsContextKey,
				token.Claims,
			)

			return next(req, res)
		}
	}
}
