package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/config"
)

func TestEchoReturnsRequestVerbatim(t *testing.T) {
	raw := "GET /echo/foo HTTP/1.1\r\nHost: localhost:8080\r\nAccept: */*\r\n\r\n"
	req, err := lightning.ParseRequest([]byte(raw))
	require.NoError(t, err)

	h := &EchoHandler{}
	require.NoError(t, h.Init("/echo", config.NewBlock(nil)))

	status, resp := h.HandleRequest(context.Background(), req)
	require.Equal(t, OK, status)
	require.Equal(t, lightning.StatusOK, resp.StatusCode())
	require.Equal(t, "HTTP/1.1 200 OK", resp.StatusLine())

	ct, ok := resp.Header("Content-Type")
	require.True(t, ok)
	require.Equal(t, "text/plain", ct)
	require.Equal(t, raw, string(resp.Body()))
}

func TestNotFoundHandler(t *testing.T) {
	h := &NotFoundHandler{}
	require.NoError(t, h.Init("default", config.NewBlock(nil)))

	req := lightning.NewRequestBuilder("GET", "/nope", "HTTP/1.1").Build()
	status, resp := h.HandleRequest(context.Background(), req)
	require.Equal(t, NotFound, status)
	require.Equal(t, "HTTP/1.1 404 NOT FOUND", resp.StatusLine())
	require.Equal(t, notFoundHTML, string(resp.Body()))

	ct, _ := resp.Header("Content-Type")
	require.Equal(t, "text/html", ct)
}
