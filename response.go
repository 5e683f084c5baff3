package lightning

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedResponse is returned when raw bytes cannot be parsed as a response.
var ErrMalformedResponse = errors.New("malformed response")

// StatusCode is an HTTP status code known to this server.
type StatusCode int

const (
	StatusOK         StatusCode = 200
	StatusFound      StatusCode = 302
	StatusBadRequest StatusCode = 400
	StatusNotFound   StatusCode = 404
	StatusBadGateway StatusCode = 502
)

const responseVersion = "HTTP/1.1"

var reasonPhrases = map[StatusCode]string{
	StatusOK:         "OK",
	StatusFound:      "FOUND",
	StatusBadRequest: "BAD REQUEST",
	StatusNotFound:   "NOT FOUND",
	StatusBadGateway: "BAD GATEWAY",
}

// ReasonPhrase returns the registered reason phrase for code.
func ReasonPhrase(code StatusCode) (string, bool) {
	p, ok := reasonPhrases[code]
	return p, ok
}

// Response is an HTTP response under construction by a handler.
//
// Usage:
//
//	r := NewResponse()
//	r.SetStatus(StatusOK)
//	r.AddHeader("Content-Type", "text/plain")
//	r.SetBody(body)
//	_, err := r.WriteTo(conn)
type Response struct {
	code       StatusCode
	statusLine string
	headers    []Header
	body       []byte
}

// NewResponse returns an empty response with no status line.
func NewResponse() *Response {
	return &Response{}
}

// SetStatus sets the status line to "HTTP/1.1 <code> <reason>". It panics if
// code has no registered reason phrase.
func (r *Response) SetStatus(code StatusCode) {
	reason, ok := reasonPhrases[code]
	if !ok {
		panic(fmt.Sprintf("lightning: no reason phrase registered for status %d", code))
	}
	r.code = code
	r.statusLine = responseVersion + " " + strconv.Itoa(int(code)) + " " + reason
}

// AddHeader appends a header. Duplicates are not merged.
func (r *Response) AddHeader(name, value string) {
	r.headers = append(r.headers, Header{Name: name, Value: value})
}

// SetBody replaces the body.
func (r *Response) SetBody(body []byte) {
	r.body = body
}

// StatusCode returns the status code, or zero when no status was set.
func (r *Response) StatusCode() StatusCode { return r.code }

// StatusLine returns the first line of the serialized response.
func (r *Response) StatusLine() string { return r.statusLine }

// Headers returns a copy of the header pairs in insertion order.
func (r *Response) Headers() []Header {
	return append([]Header(nil), r.headers...)
}

// Header returns the first value for name, compared case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	return lookupHeader(r.headers, name)
}

// Body returns the response body.
func (r *Response) Body() []byte { return r.body }

// String serializes the response as
//
//	status-line CRLF (header CRLF)* CRLF body CRLF
//
// The trailing CRLF after the body is part of this server's framing.
func (r *Response) String() string {
	var b strings.Builder
	b.Grow(len(r.statusLine) + len(r.body) + 64*len(r.headers) + 6)
	b.WriteString(r.statusLine)
	b.WriteString(crlf)
	writeHeaders(&b, r.headers)
	b.WriteString(crlf)
	b.Write(r.body)
	b.WriteString(crlf)
	return b.String()
}

// WriteTo writes the serialized response to w.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.String())
	return int64(n), err
}

// ParseResponse parses a response read from an upstream peer.
//
// The status code must be a three digit number. Known codes take the
// registered reason phrase; unknown codes keep the peer's status line as-is.
// When Content-Length is present it bounds the body. Otherwise the body runs
// to the end of raw, minus one trailing CRLF, so that ParseResponse inverts
// Response.String.
func ParseResponse(raw []byte) (*Response, error) {
	head, body := splitHead(raw)

	lines := splitLines(head)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	statusLine := lines[0]
	version, rest, ok := strings.Cut(statusLine, " ")
	if !ok || !strings.HasPrefix(version, "HTTP/") {
		return nil, fmt.Errorf("%w: invalid status line %q", ErrMalformedResponse, statusLine)
	}
	codeStr, _, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil || len(codeStr) != 3 || code < 100 {
		return nil, fmt.Errorf("%w: invalid status code %q", ErrMalformedResponse, codeStr)
	}

	headers, err := parseHeaders(lines[1:], true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if cl, ok := lookupHeader(headers, "Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid content length %q", ErrMalformedResponse, cl)
		}
		if n > len(body) {
			return nil, fmt.Errorf("%w: body truncated, want %d bytes got %d", ErrMalformedResponse, n, len(body))
		}
		body = body[:n]
	} else {
		body = bytes.TrimSuffix(body, []byte(crlf))
	}

	resp := &Response{
		code:    StatusCode(code),
		headers: headers,
		body:    bytes.Clone(body),
	}
	if _, known := reasonPhrases[resp.code]; known {
		resp.SetStatus(resp.code)
	} else {
		resp.statusLine = statusLine
	}
	return resp, nil
}
