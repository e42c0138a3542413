package air

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTarget(t *testing.T) {
	p, q, f := parseTarget("/foo/bar")
	assert.Equal(t, "/foo/bar", p)
	assert.Empty(t, q)
	assert.Empty(t, f)

	p, q, f = parseTarget("/foo/bar?foo=bar")
	assert.Equal(t, "/foo/bar", p)
	assert.Equal(t, "foo=bar", q)
	assert.Empty(t, f)

	p, q, f = parseTarget("/foo/bar?foo=bar#section")
	assert.Equal(t, "/foo/bar", p)
	assert.Equal(t, "foo=bar", q)
	assert.Equal(t, "section", f)

	p, q, f = parseTarget("/foo/bar#section?notquery")
	assert.Equal(t, "/foo/bar", p)
	assert.Empty(t, q)
	assert.Equal(t, "section?notquery", f)
}

func TestParseQuery(t *testing.T) {
	vs, err := ParseQuery("")
	assert.NoError(t, err)
	assert.Empty(t, vs.Keys())

	vs, err = ParseQuery("foo=bar&baz&foo=qux")
	assert.NoError(t, err)
	assert.Equal(t, []string{"foo", "baz"}, vs.Keys())
	assert.Equal(t, "bar", vs.Get("foo"))
	assert.Equal(t, []string{"bar", "qux"}, vs.Values("foo"))
	assert.Equal(t, "", vs.Get("baz"))

	vs, err = ParseQuery("name=Hello%2C+World")
	assert.NoError(t, err)
	assert.Equal(t, "Hello, World", vs.Get("name"))

	_, err = ParseQuery("broken=%zz")
	assert.Error(t, err)

	var merr *MalformedURIError
	assert.ErrorAs(t, err, &merr)
}

func TestValuesNilSafety(t *testing.T) {
	var vs *Values
	assert.Empty(t, vs.Get("foo"))
	assert.Empty(t, vs.Values("foo"))
	assert.Empty(t, vs.Keys())
	assert.Empty(t, vs.urlValues())
}

func TestRequestRawPathRawQueryFragment(t *testing.T) {
	a := New()
	req, _, _ := fakeRRCycle(a, "GET", "/foo/bar?a=1&b=2", nil)

	assert.Equal(t, "/foo/bar", req.RawPath())
	assert.Equal(t, "a=1&b=2", req.RawQuery())
	assert.Empty(t, req.Fragment())

	qs, err := req.Query()
	assert.NoError(t, err)
	assert.Equal(t, "1", qs.Get("a"))
	assert.Equal(t, "2", qs.Get("b"))
}
