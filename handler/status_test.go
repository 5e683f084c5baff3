package handler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/config"
	"github.com/wolfeidau/lightning/stats"
)

func TestStatusRendersRoutesAndCounts(t *testing.T) {
	st, err := stats.New()
	require.NoError(t, err)
	st.SetRoutes(map[string]string{
		"/echo":   TypeEcho,
		"/status": TypeStatus,
		"default": TypeNotFound,
	})
	st.Record("/echo", 200)
	st.Record("/echo", 200)
	st.Record("/missing", 404)

	h := &StatusHandler{}
	require.NoError(t, h.Init("/status", config.NewBlock(nil)))
	h.SetStats(st)

	status, resp := get(t, h, "/status")
	require.Equal(t, OK, status)
	require.Equal(t, lightning.StatusOK, resp.StatusCode())
	ct, _ := resp.Header("Content-Type")
	require.Equal(t, "text/plain", ct)

	want := "Available Handlers\n" +
		"/echo <--- EchoHandler\n" +
		"/status <--- StatusHandler\n" +
		"default <--- NotFoundHandler\n" +
		"\n" +
		statusTableHeader +
		statusTableRule +
		"2     | /echo                                           | 200       \n" +
		"1     | /missing                                        | 404       \n"
	require.Equal(t, want, string(resp.Body()))
}

func TestStatusColumnsAlignWithHeader(t *testing.T) {
	body := renderStatus(nil, map[stats.Call]int{{URL: "/a", Code: 200}: 12345})
	lines := strings.Split(body, "\n")
	row := lines[len(lines)-2]

	header := strings.TrimSuffix(statusTableHeader, "\n")
	require.Equal(t, strings.Index(header, "|"), strings.Index(row, "|"))
	require.Equal(t, strings.LastIndex(header, "|"), strings.LastIndex(row, "|"))
}

func TestStatusWithoutStats(t *testing.T) {
	h := &StatusHandler{}
	require.NoError(t, h.Init("/status", config.NewBlock(nil)))

	status, resp := h.HandleRequest(context.Background(), lightning.NewRequestBuilder("GET", "/status", "HTTP/1.1").Build())
	require.Equal(t, OK, status)
	require.Equal(t, "Available Handlers\n\n"+statusTableHeader+statusTableRule, string(resp.Body()))
}
