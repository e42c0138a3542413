package air

import (
	"net/url"
	"strings"
)

// parseTarget splits a raw HTTP request target into its path, query and
// fragment parts, per spec.md §4.1: split on the first "?" and the first
// "#"; either may be absent, and a "#" found while still inside the query
// terminates it. The path is returned exactly as received — no
// percent-decoding happens here; that only ever happens later, during
// routing, for a captured parameter value a handler actually asks for.
func parseTarget(target string) (path, rawQuery, fragment string) {
	path = target

	if i := strings.IndexByte(path, '#'); i >= 0 {
		path, fragment = path[:i], path[i+1:]
	}

	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, rawQuery = path[:i], path[i+1:]
	}

	return path, rawQuery, fragment
}

// Values is an ordered multimap of query parameter names to their values,
// preserving the order keys were first seen and the order repeated values
// for the same key appeared in, per spec.md §4.1's "repeated keys preserved
// in order".
type Values struct {
	keys   []string
	values map[string][]string
}

// newValues returns a new, empty instance of the `Values`.
func newValues() *Values {
	return &Values{values: map[string][]string{}}
}

// add appends value under key, tracking key's first-seen position.
func (vs *Values) add(key, value string) {
	if _, ok := vs.values[key]; !ok {
		vs.keys = append(vs.keys, key)
	}

	vs.values[key] = append(vs.values[key], value)
}

// Get returns the first value associated with key, or an empty string if
// key was never seen.
func (vs *Values) Get(key string) string {
	if vs == nil {
		return ""
	}

	v := vs.values[key]
	if len(v) == 0 {
		return ""
	}

	return v[0]
}

// Values returns every value associated with key, in the order they were
// parsed.
func (vs *Values) Values(key string) []string {
	if vs == nil {
		return nil
	}

	return vs.values[key]
}

// Keys returns every distinct key, in the order they were first seen.
func (vs *Values) Keys() []string {
	if vs == nil {
		return nil
	}

	return vs.keys
}

// urlValues converts vs into a stdlib `url.Values`, for collaborators (such
// as the reflect-based form binder) that are built against that interface.
// Key ordering is lost in the conversion, as `url.Values` is a bare map.
func (vs *Values) urlValues() url.Values {
	uv := url.Values{}
	if vs == nil {
		return uv
	}

	for k, v := range vs.values {
		uv[k] = v
	}

	return uv
}

// MalformedURIError reports that a percent-escape sequence encountered while
// decoding a URI component (query key or value) was malformed, per spec.md
// §4.1's "Fails with MalformedURI only when a percent escape is required
// for decoding and malformed."
type MalformedURIError struct {
	// Component names what was being decoded, e.g. "query".
	Component string

	// Value is the raw, still-encoded text that failed to decode.
	Value string
}

// Error implements the `error` interface.
func (e *MalformedURIError) Error() string {
	return "air: malformed percent-escape in " + e.Component + ": " + e.Value
}

// ParseQuery parses rawQuery (the part of a target after "?", before any
// "#") into an ordered `Values` multimap, percent-decoding every key and
// value. A key with no "=" maps to an empty string, per spec.md §4.1.
func ParseQuery(rawQuery string) (*Values, error) {
	vs := newValues()

	for rawQuery != "" {
		var pair string

		if i := strings.IndexByte(rawQuery, '&'); i >= 0 {
			pair, rawQuery = rawQuery[:i], rawQuery[i+1:]
		} else {
			pair, rawQuery = rawQuery, ""
		}

		if pair == "" {
			continue
		}

		key, value := pair, ""
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key, value = pair[:i], pair[i+1:]
		}

		key = strings.ReplaceAll(key, "+", " ")
		value = strings.ReplaceAll(value, "+", " ")

		dk, err := percentDecode(key)
		if err != nil {
			return nil, &MalformedURIError{Component: "query", Value: key}
		}

		dv, err := percentDecode(value)
		if err != nil {
			return nil, &MalformedURIError{Component: "query", Value: value}
		}

		vs.add(dk, dv)
	}

	return vs, nil
}

// percentDecode returns s with every "%XX" escape replaced by the byte it
// encodes. It reports an error if a "%" is not followed by two valid hex
// digits, generalized from the `unescape`/`ishex`/`unhex` trio already used
// by `router.go` to decode a single captured path segment.
func percentDecode(s string) (string, error) {
	n := strings.Count(s, "%")
	if n == 0 {
		return s, nil
	}

	t := make([]byte, len(s)-2*n)
	j := 0
	for i := 0; i < len(s); {
		if s[i] == '%' {
			if i+2 >= len(s) || !ishex(s[i+1]) || !ishex(s[i+2]) {
				return "", &MalformedURIError{Component: "percent-escape", Value: s}
			}

			t[j] = unhex(s[i+1])<<4 | unhex(s[i+2])
			i += 3
		} else {
			t[j] = s[i]
			i++
		}

		j++
	}

	return string(t[:j]), nil
}
