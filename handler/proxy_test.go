package handler

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/config"
)

// startOrigin runs a one-shot TCP origin on a random local port. It reads
// the request head, passes it to received, writes reply and closes.
func startOrigin(t *testing.T, reply string, received chan<- string) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		var head strings.Builder
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			head.WriteString(line)
			if err != nil || line == "\r\n" {
				break
			}
		}
		if received != nil {
			received <- head.String()
		}
		_, _ = conn.Write([]byte(reply))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// unusedPort returns a local port with nothing listening on it.
func unusedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func newTestProxy(t *testing.T, props map[string]any) *ReverseProxyHandler {
	t.Helper()
	h := &ReverseProxyHandler{dialTimeout: time.Second, readTimeout: 5 * time.Second}
	require.NoError(t, h.Init("/proxy", config.NewBlock(props)))
	return h
}

func TestReverseProxyRelaysUpstreamResponse(t *testing.T) {
	received := make(chan string, 1)
	host, port := startOrigin(t,
		"HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nX-Origin: yes\r\n\r\n<p>origin</p>",
		received)

	h := newTestProxy(t, map[string]any{"reverse_proxy_host": host, "reverse_proxy_port": port})

	req := lightning.NewRequestBuilder("POST", "/proxy/deep/path", "HTTP/1.1").SetBody([]byte("ignored")).Build()
	status, resp := h.HandleRequest(context.Background(), req)
	require.Equal(t, OK, status)
	require.Equal(t, lightning.StatusOK, resp.StatusCode())
	require.Equal(t, "<p>origin</p>", string(resp.Body()))

	v, ok := resp.Header("X-Origin")
	require.True(t, ok)
	require.Equal(t, "yes", v)

	// The upstream always sees a synthetic GET /
	require.Equal(t, "GET / HTTP/1.1\r\nHost: 127.0.0.1\r\nAccept: */*\r\nConnection: close\r\n\r\n", <-received)
}

func TestReverseProxyPassesRedirectThrough(t *testing.T) {
	host, port := startOrigin(t, "HTTP/1.1 302 Found\r\nLocation: http://elsewhere/\r\nContent-Length: 0\r\n\r\n", nil)

	h := newTestProxy(t, map[string]any{"reverse_proxy_host": host, "reverse_proxy_port": port})

	status, resp := get(t, h, "/proxy")
	require.Equal(t, OK, status)
	require.Equal(t, lightning.StatusFound, resp.StatusCode())
	loc, _ := resp.Header("Location")
	require.Equal(t, "http://elsewhere/", loc)
}

func TestReverseProxyUnreachableHost(t *testing.T) {
	h := newTestProxy(t, map[string]any{
		"reverse_proxy_host":    "127.0.0.1",
		"reverse_proxy_port":    unusedPort(t),
		"reverse_proxy_timeout": "200ms",
	})

	status, resp := get(t, h, "/proxy")
	require.Equal(t, NotFound, status)
	require.Equal(t, lightning.StatusNotFound, resp.StatusCode())
	require.Equal(t, notFoundHTML, string(resp.Body()))
}

func TestReverseProxyReportsUpstreamErrors(t *testing.T) {
	h := newTestProxy(t, map[string]any{
		"reverse_proxy_host":     "127.0.0.1",
		"reverse_proxy_port":     unusedPort(t),
		"report_upstream_errors": true,
	})

	status, resp := get(t, h, "/proxy")
	require.Equal(t, BadGateway, status)
	require.Equal(t, lightning.StatusBadGateway, resp.StatusCode())
}

func TestReverseProxyUnparsableResponse(t *testing.T) {
	host, port := startOrigin(t, "SSH-2.0-OpenSSH_9.6\r\n", nil)

	h := newTestProxy(t, map[string]any{"reverse_proxy_host": host, "reverse_proxy_port": port})

	status, resp := get(t, h, "/proxy")
	require.Equal(t, NotFound, status)
	require.Equal(t, lightning.StatusNotFound, resp.StatusCode())
}

func TestReverseProxySilentUpstreamTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		select {
		case conn := <-accepted:
			_ = conn.Close()
		default:
		}
	})

	h := newTestProxy(t, map[string]any{
		"reverse_proxy_host":         "127.0.0.1",
		"reverse_proxy_port":         ln.Addr().(*net.TCPAddr).Port,
		"reverse_proxy_read_timeout": "150ms",
	})

	start := time.Now()
	status, _ := get(t, h, "/proxy")
	require.Equal(t, NotFound, status)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestReverseProxyHonoursCancellation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		select {
		case conn := <-accepted:
			_ = conn.Close()
		default:
		}
	})

	h := newTestProxy(t, map[string]any{
		"reverse_proxy_host": "127.0.0.1",
		"reverse_proxy_port": ln.Addr().(*net.TCPAddr).Port,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := lightning.NewRequestBuilder("GET", "/proxy", "HTTP/1.1").Build()
	status, _ := h.HandleRequest(ctx, req)
	require.Equal(t, NotFound, status)
}

func TestReverseProxyInit(t *testing.T) {
	h := &ReverseProxyHandler{}
	require.ErrorIs(t, h.Init("/proxy", config.NewBlock(nil)), ErrMissingProperty)

	h = &ReverseProxyHandler{}
	require.Error(t, h.Init("/proxy", config.NewBlock(map[string]any{
		"reverse_proxy_host": "example.com",
		"reverse_proxy_port": "http",
	})))

	h = &ReverseProxyHandler{}
	require.Error(t, h.Init("/proxy", config.NewBlock(map[string]any{
		"reverse_proxy_host": "example.com",
		"reverse_proxy_port": 70000,
	})))

	h = &ReverseProxyHandler{}
	require.NoError(t, h.Init("/proxy", config.NewBlock(map[string]any{"reverse_proxy_host": "example.com"})))
	require.Equal(t, "example.com:80", h.addr)
}
