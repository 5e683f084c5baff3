package lightning

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	raw := "GET /echo/foo HTTP/1.1\r\nHost: localhost:8080\r\nAccept: */*\r\nAccept: text/plain\r\n\r\n"

	req, err := ParseRequest([]byte(raw))
	require.NoError(t, err)

	require.Equal(t, "GET", req.Method())
	require.Equal(t, "/echo/foo", req.URI())
	require.Equal(t, "HTTP/1.1", req.Version())
	require.Equal(t, []Header{
		{Name: "Host", Value: "localhost:8080"},
		{Name: "Accept", Value: "*/*"},
		{Name: "Accept", Value: "text/plain"},
	}, req.Headers())
	require.Empty(t, req.Body())
	require.Equal(t, raw, string(req.Raw()))
}

func TestParseRequest_Body(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello world"

	req, err := ParseRequest([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(req.Body()))

	cl, ok := req.Header("content-length")
	require.True(t, ok)
	require.Equal(t, "11", cl)
}

func TestParseRequest_BareLF(t *testing.T) {
	req, err := ParseRequest([]byte("GET / HTTP/1.0\nHost: a\n\n"))
	require.NoError(t, err)
	require.Equal(t, "/", req.URI())
	require.Equal(t, []Header{{Name: "Host", Value: "a"}}, req.Headers())
}

func TestParseRequest_NoBlankLine(t *testing.T) {
	req, err := ParseRequest([]byte("GET /x HTTP/1.1\r\nHost: a\r\n"))
	require.NoError(t, err)
	require.Equal(t, "/x", req.URI())
	require.Len(t, req.Headers(), 1)
}

func TestParseRequest_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"two tokens", "GET /\r\n\r\n"},
		{"four tokens", "GET / HTTP/1.1 extra\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			require.ErrorIs(t, err, ErrMalformedRequest)
			require.Nil(t, req)
		})
	}
}

func TestParseRequest_SkipsInvalidHeaderLines(t *testing.T) {
	raw := "GET /echo HTTP/1.1\r\nbroken header\r\n: no name\r\nHost: a\r\n\r\n"

	req, err := ParseRequest([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "/echo", req.URI())
	require.Equal(t, []Header{{Name: "Host", Value: "a"}}, req.Headers())
	require.Equal(t, raw, string(req.Raw()))
}

func TestParseRequest_HeaderValueWhitespace(t *testing.T) {
	req, err := ParseRequest([]byte("GET / HTTP/1.1\r\nA:tight\r\nB:\tx\r\nC:  padded \r\n\r\n"))
	require.NoError(t, err)
	require.Equal(t, []Header{
		{Name: "A", Value: "tight"},
		{Name: "B", Value: "x"},
		{Name: "C", Value: " padded "},
	}, req.Headers())
}

func TestParseRequest_RawIsCopied(t *testing.T) {
	buf := []byte("GET /a HTTP/1.1\r\n\r\n")
	req, err := ParseRequest(buf)
	require.NoError(t, err)

	buf[5] = 'b'
	require.Equal(t, "GET /a HTTP/1.1\r\n\r\n", string(req.Raw()))
}

func TestRequestBuilder(t *testing.T) {
	b := NewRequestBuilder("GET", "/", "HTTP/1.1").
		AddHeader("Host", "example.com").
		AddHeader("Accept", "*/*").
		AddHeader("Connection", "close")
	req := b.Build()

	want := "GET / HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\nConnection: close\r\n\r\n"
	require.Equal(t, want, req.String())
	require.Equal(t, want, string(req.Raw()))

	// Later builder use does not leak into the built request.
	b.AddHeader("X-Extra", "1")
	require.Len(t, req.Headers(), 3)
}

func TestRequestBuilder_ParseRoundTrip(t *testing.T) {
	req := NewRequestBuilder("POST", "/upload", "HTTP/1.1").
		AddHeader("Content-Type", "text/plain").
		SetBody([]byte("payload")).
		Build()

	parsed, err := ParseRequest([]byte(req.String()))
	require.NoError(t, err)
	require.Equal(t, req.Method(), parsed.Method())
	require.Equal(t, req.URI(), parsed.URI())
	require.Equal(t, req.Headers(), parsed.Headers())
	require.Equal(t, "payload", string(parsed.Body()))
}
