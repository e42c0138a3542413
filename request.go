package air

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
)

// Request is an HTTP request.
//
// The `Request` not only represents HTTP/1.x requests, but also represents
// HTTP/2 requests, and always show as HTTP/2 requests.
type Request struct {
	// Air is where the request belongs.
	Air *Air

	// Method is the method.
	//
	// See RFC 7231, section 4.3.
	//
	// E.g.: "GET"
	Method string

	// Scheme is the scheme, inferred from the TLS status of the
	// underlying connection.
	//
	// E.g.: "http"
	Scheme string

	// Authority is the authority, taken from the "Host" header (or the
	// HTTP/2 ":authority" pseudo-header).
	//
	// E.g.: "example.com"
	Authority string

	// Path is the path, optionally followed by a "?" and the query, but
	// never the fragment.
	//
	// E.g.: "/foo/bar?foo=bar"
	Path string

	// Header is the header map.
	//
	// See RFC 7231, section 5.
	Header http.Header

	// Body is the message body. Reads pull bytes from the connection on
	// demand; whatever the handler leaves unread is discarded after it
	// returns, before the next request's head on the same connection is
	// read.
	Body *RequestBody

	// ContentLength records the length of the `Body`. The value -1
	// indicates that the length is unknown. Values >= 0 indicate the
	// number of bytes that can be read from the `Body`.
	ContentLength int64

	// Context is the context of the request. It is canceled once the
	// request has been fully handled. When the connection is served by the
	// `net/http.Server` (the TLS path), that server also cancels it when
	// the client's connection closes; on the plaintext path, a client
	// closing the connection while the handler runs does not cancel it.
	Context context.Context

	res *Response
	hr  *http.Request

	params               []*RequestParam
	routeParamNames      []string
	routeParamValues     []string
	routePattern         string
	allowedMethods       string
	parseRouteParamsOnce *requestOnce
	parseOtherParamsOnce *requestOnce

	localizedString func(key string) string
	rc              *RequestContext
}

// requestOnce is a single-use gate, semantically equivalent to `sync.Once`.
// A plain `sync.Once` cannot be reused, and the r is recycled through a
// `sync.Pool`, so `reset` swaps in a fresh one on every checkout instead of
// trying to un-fire an already-fired one.
type requestOnce struct {
	done bool
}

// Do calls f if the o has not already gated a call.
func (o *requestOnce) Do(f func()) {
	if o.done {
		return
	}

	o.done = true

	f()
}

// reset resets the r with the a, hr and res.
func (r *Request) reset(a *Air, hr *http.Request, res *Response) {
	r.Air = a
	r.res = res

	r.params = r.params[:0]
	r.routeParamNames = nil
	r.routeParamValues = nil
	r.routePattern = ""
	r.allowedMethods = ""
	r.parseRouteParamsOnce = &requestOnce{}
	r.parseOtherParamsOnce = &requestOnce{}
	r.localizedString = nil
	r.rc = nil

	r.SetHTTPRequest(hr)
}

// HTTPRequest returns an `*http.Request` that is based on the underlying
// state of the r.
func (r *Request) HTTPRequest() *http.Request {
	if r.hr != nil &&
		r.hr.Method == r.Method &&
		r.hr.Host == r.Authority &&
		r.hr.RequestURI == r.Path {
		return r.hr
	}

	hr := r.hr.Clone(r.Context)
	hr.Method = r.Method
	hr.Host = r.Authority
	hr.RequestURI = r.Path
	hr.Header = r.Header
	hr.ContentLength = r.ContentLength

	if r.Body != nil {
		hr.Body = r.Body
	}

	return hr
}

// RawPath returns the path part of the r's `Path`, with the query (and, if
// somehow present, fragment) parts stripped off.
func (r *Request) RawPath() string {
	p, _, _ := parseTarget(r.Path)
	return p
}

// RawQuery returns the query part of the r's `Path`, without the leading
// "?". It returns an empty string when the r's `Path` carries no query.
func (r *Request) RawQuery() string {
	_, q, _ := parseTarget(r.Path)
	return q
}

// Fragment returns the fragment part of the r's `Path`, without the leading
// "#". Per RFC 7230, a request target sent over the wire never carries a
// fragment, so this is always empty for a real request; it exists so
// `parseTarget` can be reused against a full URI string assembled
// elsewhere (e.g. a redirect target).
func (r *Request) Fragment() string {
	_, _, f := parseTarget(r.Path)
	return f
}

// Query parses and returns the r's query parameters as an ordered `Values`
// multimap. It returns an error only when a percent-escape in the query
// string is malformed.
func (r *Request) Query() (*Values, error) {
	return ParseQuery(r.RawQuery())
}

// SetHTTPRequest sets the hr to the underlying state of the r.
func (r *Request) SetHTTPRequest(hr *http.Request) {
	r.hr = hr
	r.Method = hr.Method

	r.Scheme = "http"
	if hr.TLS != nil {
		r.Scheme = "https"
	}

	r.Authority = hr.Host
	r.Path = hr.RequestURI

	r.Header = hr.Header
	for name := range hr.Trailer {
		r.Header.Add("Trailer", name)
	}

	r.ContentLength = hr.ContentLength
	r.Context = hr.Context()
	r.Body = newRequestBody(r, hr)
}

// RemoteAddress returns the network address that sent the request, in the
// form "IP:port".
func (r *Request) RemoteAddress() string {
	return r.hr.RemoteAddr
}

// ClientAddress returns the real network address of the client that sent the
// request, honoring the "Forwarded" header (RFC 7239) first, then
// "X-Forwarded-For", and finally falling back to the `RemoteAddress`.
func (r *Request) ClientAddress() string {
	if f := r.Header.Get("Forwarded"); f != "" {
		pair := strings.SplitN(f, ",", 2)[0]
		for _, field := range strings.Split(pair, ";") {
			field = strings.TrimSpace(field)
			if len(field) < 3 || !strings.EqualFold(field[:3], "for") {
				continue
			}

			v := strings.TrimPrefix(field[3:], "=")
			v = strings.Trim(v, `"`)

			return v
		}
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}

		return strings.TrimSpace(xff)
	}

	return r.RemoteAddress()
}

// Cookie returns the matched `Cookie` for the name. It returns nil if not
// found.
func (r *Request) Cookie(name string) *Cookie {
	sc, err := r.HTTPRequest().Cookie(name)
	if err != nil {
		return nil
	}

	return newCookie(sc)
}

// Cookies returns the HTTP cookies sent with the request.
func (r *Request) Cookies() []*Cookie {
	scs := r.HTTPRequest().Cookies()

	cs := make([]*Cookie, len(scs))
	for i, sc := range scs {
		cs[i] = newCookie(sc)
	}

	return cs
}

// Param returns the matched `RequestParam` for the name. It returns nil if
// not found. Route params (captured from the path trie) come before query
// and body params of the same name.
func (r *Request) Param(name string) *RequestParam {
	r.parseRouteParamsOnce.Do(r.parseRouteParams)
	r.parseOtherParamsOnce.Do(r.parseOtherParams)

	for _, p := range r.params {
		if p.Name == name {
			return p
		}
	}

	return nil
}

// Params returns all the `RequestParam`s.
func (r *Request) Params() []*RequestParam {
	r.parseRouteParamsOnce.Do(r.parseRouteParams)
	r.parseOtherParamsOnce.Do(r.parseOtherParams)

	return r.params
}

// growParams grows the capacity of the `params` of the r, if necessary, to
// guarantee space for another n params.
func (r *Request) growParams(n int) {
	if cap(r.params)-len(r.params) >= n {
		return
	}

	params := make([]*RequestParam, len(r.params), len(r.params)+n)
	copy(params, r.params)
	r.params = params
}

// parseRouteParams parses the route params matched by the router into the
// `params` of the r.
func (r *Request) parseRouteParams() {
	defer func() {
		r.routeParamNames = nil
		r.routeParamValues = nil
	}()

	n := len(r.routeParamValues)
	if len(r.routeParamNames) < n {
		n = len(r.routeParamNames)
	}

	r.growParams(n)

	for i := 0; i < n; i++ {
		r.addParamValue(r.routeParamNames[i], r.routeParamValues[i])
	}
}

// parseOtherParams parses the query and body params into the `params` of the
// r.
func (r *Request) parseOtherParams() {
	hr := r.HTTPRequest()

	if qs, err := r.Query(); err == nil {
		for _, name := range qs.Keys() {
			for _, v := range qs.Values(name) {
				r.addParamValue(name, v)
			}
		}
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		hr.ParseMultipartForm(32 << 20)
	} else {
		hr.ParseForm()
	}

	for name, values := range hr.PostForm {
		for _, v := range values {
			r.addParamValue(name, v)
		}
	}

	if hr.MultipartForm != nil {
		for name, values := range hr.MultipartForm.Value {
			for _, v := range values {
				r.addParamValue(name, v)
			}
		}

		for name, fhs := range hr.MultipartForm.File {
			for _, fh := range fhs {
				r.addParamValue(name, fh)
			}
		}
	}
}

// addParamValue appends a value to the `RequestParam` named name, creating it
// if it does not already exist. The value is either a string (query/form/
// path param) or a `*multipart.FileHeader` (multipart file param).
func (r *Request) addParamValue(name string, value interface{}) {
	for _, p := range r.params {
		if p.Name == name {
			p.Values = append(p.Values, &RequestParamValue{i: value})
			return
		}
	}

	r.growParams(1)
	r.params = append(r.params, &RequestParam{
		Name:   name,
		Values: []*RequestParamValue{{i: value}},
	})
}

// Bind binds the r into the v.
func (r *Request) Bind(v interface{}) error {
	return r.Air.binder.Bind(v, r)
}

// LocalizedString returns a localized string for the key based on the
// languages accepted by the client.
func (r *Request) LocalizedString(key string) string {
	if !r.Air.I18nEnabled {
		return key
	}

	if r.localizedString == nil {
		r.Air.i18n.localize(r)
	}

	return r.localizedString(key)
}

// RequestParam is an HTTP request param.
type RequestParam struct {
	// Name is the name.
	Name string

	// Values is the list of values.
	Values []*RequestParamValue
}

// Value returns the first value of the rp. It returns nil if the rp is nil
// or there are no values.
func (rp *RequestParam) Value() *RequestParamValue {
	if rp == nil || len(rp.Values) == 0 {
		return nil
	}

	return rp.Values[0]
}

// RequestParamValue is a value of the `RequestParam`. The underlying value
// held by the i varies by where it came from: a query/form/path param holds
// a string, while a multipart file param holds a `*multipart.FileHeader`.
type RequestParamValue struct {
	i interface{}

	b    *bool
	i64  *int64
	ui64 *uint64
	f64  *float64
	s    *string
	f    *multipart.File
}

// raw returns a string representation of the rpv's underlying value, without
// populating any of the rpv's cache fields.
func (rpv *RequestParamValue) raw() string {
	if s, ok := rpv.i.(string); ok {
		return s
	}

	return fmt.Sprint(rpv.i)
}

// Bool returns a bool representation of the rpv.
func (rpv *RequestParamValue) Bool() (bool, error) {
	if rpv.b != nil {
		return *rpv.b, nil
	}

	b, err := strconv.ParseBool(rpv.raw())
	if err != nil {
		return false, err
	}

	rpv.b = &b

	return b, nil
}

// Int returns an int representation of the rpv.
func (rpv *RequestParamValue) Int() (int, error) {
	i, err := rpv.Int64()
	return int(i), err
}

// Int8 returns an int8 representation of the rpv.
func (rpv *RequestParamValue) Int8() (int8, error) {
	i, err := rpv.Int64()
	return int8(i), err
}

// Int16 returns an int16 representation of the rpv.
func (rpv *RequestParamValue) Int16() (int16, error) {
	i, err := rpv.Int64()
	return int16(i), err
}

// Int32 returns an int32 representation of the rpv.
func (rpv *RequestParamValue) Int32() (int32, error) {
	i, err := rpv.Int64()
	return int32(i), err
}

// Int64 returns an int64 representation of the rpv.
func (rpv *RequestParamValue) Int64() (int64, error) {
	if rpv.i64 != nil {
		return *rpv.i64, nil
	}

	i, err := strconv.ParseInt(rpv.raw(), 10, 64)
	if err != nil {
		return 0, err
	}

	rpv.i64 = &i

	return i, nil
}

// Uint returns a uint representation of the rpv.
func (rpv *RequestParamValue) Uint() (uint, error) {
	u, err := rpv.Uint64()
	return uint(u), err
}

// Uint8 returns a uint8 representation of the rpv.
func (rpv *RequestParamValue) Uint8() (uint8, error) {
	u, err := rpv.Uint64()
	return uint8(u), err
}

// Uint16 returns a uint16 representation of the rpv.
func (rpv *RequestParamValue) Uint16() (uint16, error) {
	u, err := rpv.Uint64()
	return uint16(u), err
}

// Uint32 returns a uint32 representation of the rpv.
func (rpv *RequestParamValue) Uint32() (uint32, error) {
	u, err := rpv.Uint64()
	return uint32(u), err
}

// Uint64 returns a uint64 representation of the rpv.
func (rpv *RequestParamValue) Uint64() (uint64, error) {
	if rpv.ui64 != nil {
		return *rpv.ui64, nil
	}

	u, err := strconv.ParseUint(rpv.raw(), 10, 64)
	if err != nil {
		return 0, err
	}

	rpv.ui64 = &u

	return u, nil
}

// Float32 returns a float32 representation of the rpv.
func (rpv *RequestParamValue) Float32() (float32, error) {
	f, err := rpv.Float64()
	return float32(f), err
}

// Float64 returns a float64 representation of the rpv.
func (rpv *RequestParamValue) Float64() (float64, error) {
	if rpv.f64 != nil {
		return *rpv.f64, nil
	}

	f, err := strconv.ParseFloat(rpv.raw(), 64)
	if err != nil {
		return 0, err
	}

	rpv.f64 = &f

	return f, nil
}

// String returns a string representation of the rpv.
func (rpv *RequestParamValue) String() string {
	if rpv.s != nil {
		return *rpv.s
	}

	s := rpv.raw()
	rpv.s = &s

	return s
}

// File returns a `multipart.File` representation of the rpv. It returns
// `http.ErrMissingFile` if the rpv does not hold a `*multipart.FileHeader`.
func (rpv *RequestParamValue) File() (multipart.File, error) {
	if rpv.f != nil {
		return *rpv.f, nil
	}

	fh, ok := rpv.i.(*multipart.FileHeader)
	if !ok {
		return nil, http.ErrMissingFile
	}

	f, err := fh.Open()
	if err != nil {
		f = &emptyFile{}
	}

	rpv.f = &f

	return f, nil
}

// emptyFile is a `multipart.File` that reports itself as empty. It is used
// as the `RequestParamValue.File` of a `*multipart.FileHeader` that carries
// no actual underlying content (such as a zero-value one).
type emptyFile struct{}

// Read implements the `io.Reader`.
func (f *emptyFile) Read(p []byte) (int, error) {
	return 0, io.EOF
}

// ReadAt implements the `io.ReaderAt`.
func (f *emptyFile) ReadAt(p []byte, off int64) (int, error) {
	return 0, io.EOF
}

// Seek implements the `io.Seeker`.
func (f *emptyFile) Seek(offset int64, whence int) (int64, error) {
	return 0, nil
}

// Close implements the `io.Closer`.
func (f *emptyFile) Close() error {
	return nil
}
