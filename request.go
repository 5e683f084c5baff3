// Package lightning holds the HTTP message model shared by the server, the
// router and every handler: parsed requests, responses built by handlers, and
// their wire encodings.
package lightning

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRequest is returned when raw bytes cannot be parsed as a request.
var ErrMalformedRequest = errors.New("malformed request")

// Header is a single name/value pair. Order and duplicates are preserved.
type Header struct {
	Name  string
	Value string
}

// Request is a parsed HTTP request. It is immutable once constructed.
type Request struct {
	method  string
	uri     string
	version string
	headers []Header
	body    []byte
	raw     []byte
}

// ParseRequest splits raw into a request line, header lines and a body.
//
// The request line must contain exactly three whitespace separated tokens;
// their values are not validated. Header lines without a colon are skipped.
// Everything after the first blank line is body. A buffer without a blank
// line is treated as a head without body.
func ParseRequest(raw []byte) (*Request, error) {
	head, body := splitHead(raw)

	lines := splitLines(head)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty request", ErrMalformedRequest)
	}

	fields := strings.Fields(lines[0])
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: invalid request line %q", ErrMalformedRequest, lines[0])
	}

	headers, _ := parseHeaders(lines[1:], false)

	return &Request{
		method:  fields[0],
		uri:     fields[1],
		version: fields[2],
		headers: headers,
		body:    bytes.Clone(body),
		raw:     bytes.Clone(raw),
	}, nil
}

// Method returns the request method token.
func (r *Request) Method() string { return r.method }

// URI returns the request target exactly as received.
func (r *Request) URI() string { return r.uri }

// Version returns the protocol version token, e.g. "HTTP/1.1".
func (r *Request) Version() string { return r.version }

// Headers returns a copy of the header pairs in received order.
func (r *Request) Headers() []Header {
	return append([]Header(nil), r.headers...)
}

// Header returns the first value for name, compared case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	return lookupHeader(r.headers, name)
}

// Body returns the bytes following the blank line.
func (r *Request) Body() []byte { return r.body }

// Raw returns the original bytes the request was parsed from. For requests
// assembled with a RequestBuilder this is their serialized form.
func (r *Request) Raw() []byte { return r.raw }

// String serializes the request: request line, headers, blank line, body.
func (r *Request) String() string {
	var b strings.Builder
	b.WriteString(r.method)
	b.WriteByte(' ')
	b.WriteString(r.uri)
	b.WriteByte(' ')
	b.WriteString(r.version)
	b.WriteString(crlf)
	writeHeaders(&b, r.headers)
	b.WriteString(crlf)
	b.Write(r.body)
	return b.String()
}

// RequestBuilder assembles an outbound request, e.g. the one a reverse proxy
// sends upstream.
type RequestBuilder struct {
	req Request
}

// NewRequestBuilder starts a request with the given request line.
func NewRequestBuilder(method, uri, version string) *RequestBuilder {
	return &RequestBuilder{req: Request{method: method, uri: uri, version: version}}
}

// AddHeader appends a header; duplicates are kept.
func (b *RequestBuilder) AddHeader(name, value string) *RequestBuilder {
	b.req.headers = append(b.req.headers, Header{Name: name, Value: value})
	return b
}

// SetBody replaces the body.
func (b *RequestBuilder) SetBody(body []byte) *RequestBuilder {
	b.req.body = bytes.Clone(body)
	return b
}

// Build returns the finished request. The builder may keep being used; the
// returned request does not share state with it.
func (b *RequestBuilder) Build() *Request {
	req := &Request{
		method:  b.req.method,
		uri:     b.req.uri,
		version: b.req.version,
		headers: append([]Header(nil), b.req.headers...),
		body:    bytes.Clone(b.req.body),
	}
	req.raw = []byte(req.String())
	return req
}
