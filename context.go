package air

import "context"

// RequestContext carries the state that threads through a single request's
// gas/handler chain beyond the `Request`/`Response` pair themselves: the
// request's own `context.Context`, a `Logger`, a back-reference to the
// owning `Air`, the route pattern that was matched, the upload-size policy
// in effect, and an extension bag gases use to pass values further down the
// chain.
//
// Unlike the teacher's old generation `Context`, the `RequestContext` does
// not wrap or replace the `Request`/`Response` pair — handlers still take
// `(*Request, *Response) error` — it is reached via
// `Request.RequestContext()` when a gas or handler needs the extension bag,
// the logger, or the resolved route pattern.
type RequestContext struct {
	context.Context

	// Logger is the logger of the `Air` that owns the request.
	Logger *Logger

	// Air is where the request belongs.
	Air *Air

	// EndpointPattern is the route pattern that matched the request (e.g.
	// "/users/:id"), as originally registered, not the request's actual
	// path.
	EndpointPattern string

	// MaxUploadSize is the maximum number of bytes a handler should read
	// from the request body via `RequestBody.Collect`.
	MaxUploadSize int64

	req *Request

	values map[interface{}]extensionEntry
	order  []interface{}
}

// extensionEntry is a value stored in the `RequestContext`'s extension bag,
// along with an optional teardown to run when the bag is released.
type extensionEntry struct {
	value    interface{}
	teardown func()
}

// RequestContext returns the `*RequestContext` of the r, building it lazily
// on first use.
func (r *Request) RequestContext() *RequestContext {
	if r.rc == nil {
		r.rc = &RequestContext{
			Context:         r.Context,
			Logger:          r.Air.logger,
			Air:             r.Air,
			EndpointPattern: r.routePattern,
			MaxUploadSize:   r.Air.MaxRequestBodyBytes,
			req:             r,
		}
	}

	return r.rc
}

// Set stores the value in the rc's extension bag under the key, running the
// teardown (if any) when the rc is released. Setting the same key again
// overwrites the previous entry without invoking its teardown early.
func (rc *RequestContext) Set(key, value interface{}, teardown func()) {
	if rc.values == nil {
		rc.values = map[interface{}]extensionEntry{}
	}

	if _, ok := rc.values[key]; !ok {
		rc.order = append(rc.order, key)
	}

	rc.values[key] = extensionEntry{value: value, teardown: teardown}
}

// Get returns the value stored in the rc's extension bag under the key.
func (rc *RequestContext) Get(key interface{}) (interface{}, bool) {
	e, ok := rc.values[key]
	return e.value, ok
}

// release runs the teardown of every entry in the rc's extension bag, in
// the reverse order they were `Set`, and clears the bag.
func (rc *RequestContext) release() {
	for i := len(rc.order) - 1; i >= 0; i-- {
		if e := rc.values[rc.order[i]]; e.teardown != nil {
			e.teardown()
		}
	}

	rc.order = nil
	rc.values = nil
}
