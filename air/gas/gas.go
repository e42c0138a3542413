// Package gas provides a set of first-party `air.Gas` middleware, the way
// the teacher's own (since-superseded) `gases` sub-tree did, but targeting
// this module's current `Request`/`Response`/`Gas` shapes instead of a
// foreign import path.
package gas

import "github.com/airframe/airframe"

// Handler is an alias of `air.Handler`, kept local so every file in this
// package can avoid repeating the qualified name.
type Handler = air.Handler

// Gas is an alias of `air.Gas`.
type Gas = air.Gas
