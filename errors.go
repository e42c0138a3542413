package air

import (
	"fmt"
	"net/http"
)

// HTTPError is an error that carries an HTTP status code, so it can flow
// through a `Handler`/`Gas` chain and still be translated into the right
// response by the `ErrorHandler` without the handler having to set
// `Response.Status` itself.
type HTTPError struct {
	Code    int
	Message string
}

// NewHTTPError returns a new instance of the `HTTPError` with the code and an
// optional message. When no message is given, the standard library's textual
// representation of the code is used.
func NewHTTPError(code int, message ...string) *HTTPError {
	he := &HTTPError{
		Code:    code,
		Message: http.StatusText(code),
	}

	if len(message) > 0 {
		he.Message = message[0]
	}

	return he
}

// Error implements the `error` interface.
func (he *HTTPError) Error() string {
	return fmt.Sprintf("code=%d, message=%s", he.Code, he.Message)
}

// ErrUnsupportedMediaType is returned by the `Binder` when it cannot find a
// codec for the request's "Content-Type" header.
var ErrUnsupportedMediaType = NewHTTPError(http.StatusUnsupportedMediaType)

// ErrNotFound is returned by a `Handler` to indicate the requested resource
// could not be located.
var ErrNotFound = NewHTTPError(http.StatusNotFound)

// ErrMethodNotAllowed is an `*HTTPError` carrying 405 that a `Handler` may
// return. The router's `DefaultMethodNotAllowedHandler` sets the 405 status
// itself and does not return this value.
var ErrMethodNotAllowed = NewHTTPError(http.StatusMethodNotAllowed)

// ErrInternalServerError is an `*HTTPError` carrying 500 that a `Handler` may
// return. A handler error that is not an `*HTTPError` is answered with 500
// directly, without this value.
var ErrInternalServerError = NewHTTPError(http.StatusInternalServerError)
