package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/config"
	"github.com/wolfeidau/lightning/handler"
	"github.com/wolfeidau/lightning/stats"
)

const routesYAML = `
paths:
  - prefix: /echo
    handler: EchoHandler
  - prefix: /echo/deep
    handler: EchoHandler
  - prefix: /a/b/c
    handler: EchoHandler
  - prefix: /status
    handler: StatusHandler
default:
  handler: NotFoundHandler
`

func parseConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc), config.FormatYAML)
	require.NoError(t, err)
	return cfg
}

func newTestRegistry(t *testing.T, extra ...handler.Entry) *handler.Registry {
	t.Helper()
	reg, err := handler.NewRegistry(append(handler.Builtins(), extra...)...)
	require.NoError(t, err)
	return reg
}

func newTestRouter(t *testing.T, doc string) (*Router, *stats.Stats) {
	t.Helper()
	st, err := stats.New()
	require.NoError(t, err)
	r, err := BuildRoutes(parseConfig(t, doc), newTestRegistry(t), st)
	require.NoError(t, err)
	return r, st
}

func TestRouteLongestPrefix(t *testing.T) {
	r, _ := newTestRouter(t, routesYAML)

	tests := []struct {
		uri  string
		want string
	}{
		{"/echo", "/echo"},
		{"/echo/", "/echo"},
		{"/echo/foo", "/echo"},
		{"/echo/foo/bar", "/echo"},
		{"/echo/deep", "/echo/deep"},
		{"/echo/deep/er", "/echo/deep"},
		{"/echo/deeper", "/echo"},
		{"/echoes", config.DefaultPrefix},
		{"/echo?x=/status", "/echo"},
		{"/a/b/c/d", "/a/b/c"},
		{"/a/b", config.DefaultPrefix},
		{"/status", "/status"},
		{"/", config.DefaultPrefix},
		{"", config.DefaultPrefix},
		{"nothing", config.DefaultPrefix},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			require.Equal(t, tt.want, r.Route(tt.uri).Prefix)
		})
	}
}

// naiveRoute picks the longest configured prefix aligned to a '/'
// boundary of the path by checking every prefix.
func naiveRoute(prefixes []string, uri string) string {
	path, _, _ := strings.Cut(uri, "?")
	best := config.DefaultPrefix
	bestLen := -1
	for _, p := range prefixes {
		aligned := path == p || strings.HasPrefix(path, p+"/") || (p == "/" && strings.HasPrefix(path, "/"))
		if aligned && len(p) > bestLen {
			best, bestLen = p, len(p)
		}
	}
	return best
}

func TestRouteMatchesNaiveLongestPrefix(t *testing.T) {
	doc := `
paths:
  - prefix: /
    handler: EchoHandler
  - prefix: /x
    handler: EchoHandler
  - prefix: /x/y
    handler: EchoHandler
  - prefix: /y/x
    handler: EchoHandler
  - prefix: /xy
    handler: EchoHandler
default:
  handler: NotFoundHandler
`
	r, _ := newTestRouter(t, doc)
	prefixes := []string{"/", "/x", "/x/y", "/y/x", "/xy"}

	segments := []string{"x", "y", "xy", "z", ""}
	var uris []string
	for _, a := range segments {
		uris = append(uris, "/"+a)
		for _, b := range segments {
			uris = append(uris, "/"+a+"/"+b)
			for _, c := range segments {
				uris = append(uris, "/"+a+"/"+b+"/"+c, "/"+a+"/"+b+"/"+c+"?q=1")
			}
		}
	}

	for _, uri := range uris {
		require.Equal(t, naiveRoute(prefixes, uri), r.Route(uri).Prefix, uri)
	}
}

func TestBuildRoutesWiresStats(t *testing.T) {
	r, st := newTestRouter(t, routesYAML)

	want := map[string]string{
		"/echo":              handler.TypeEcho,
		"/echo/deep":         handler.TypeEcho,
		"/a/b/c":             handler.TypeEcho,
		"/status":            handler.TypeStatus,
		config.DefaultPrefix: handler.TypeNotFound,
	}
	require.Equal(t, want, r.Routes())
	require.Equal(t, want, st.AllRoutes())

	st.Record("/echo", 200)

	rt := r.Route("/status")
	require.Equal(t, handler.TypeStatus, rt.Type)
	req := lightning.NewRequestBuilder("GET", "/status", "HTTP/1.1").Build()
	status, resp := rt.Handler.HandleRequest(context.Background(), req)
	require.Equal(t, handler.OK, status)
	require.Contains(t, string(resp.Body()), "/status <--- StatusHandler\n")
	require.Contains(t, string(resp.Body()), "| /echo ")
}

func TestBuildRoutesNotFoundFallback(t *testing.T) {
	r, _ := newTestRouter(t, routesYAML)

	nf := r.NotFound()
	require.NotNil(t, nf)

	status, resp := nf.HandleRequest(context.Background(), lightning.NewRequestBuilder("GET", "??", "HTTP/1.1").Build())
	require.Equal(t, handler.NotFound, status)
	require.Equal(t, lightning.StatusNotFound, resp.StatusCode())
}

type failingHandler struct{}

func (failingHandler) Init(string, config.Properties) error {
	return errors.New("refusing to start")
}

func (failingHandler) HandleRequest(context.Context, *lightning.Request) (handler.Status, *lightning.Response) {
	panic("never routed")
}

func TestBuildRoutesFailsClosed(t *testing.T) {
	reg := newTestRegistry(t, handler.Entry{Name: "FailingHandler", Factory: func() handler.Handler { return failingHandler{} }})

	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{
			name: "unknown handler type",
			doc:  "paths:\n  - prefix: /x\n    handler: TeapotHandler\ndefault:\n  handler: NotFoundHandler\n",
			err:  handler.ErrUnknownHandler,
		},
		{
			name: "init failure",
			doc:  "paths:\n  - prefix: /x\n    handler: FailingHandler\ndefault:\n  handler: NotFoundHandler\n",
		},
		{
			name: "static without root",
			doc:  "paths:\n  - prefix: /static\n    handler: StaticHandler\ndefault:\n  handler: NotFoundHandler\n",
			err:  handler.ErrMissingProperty,
		},
		{
			name: "proxy without host",
			doc:  "paths:\n  - prefix: /proxy\n    handler: ReverseProxyHandler\ndefault:\n  handler: NotFoundHandler\n",
			err:  handler.ErrMissingProperty,
		},
		{
			name: "no default",
			doc:  "paths:\n  - prefix: /echo\n    handler: EchoHandler\n",
			err:  ErrNoDefaultRoute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := stats.New()
			require.NoError(t, err)

			r, err := BuildRoutes(parseConfig(t, tt.doc), reg, st)
			require.Error(t, err)
			require.Nil(t, r)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			}
			require.Empty(t, st.AllRoutes(), "routes must not be published on failure")
		})
	}
}

func TestBuildRoutesWithoutStats(t *testing.T) {
	r, err := BuildRoutes(parseConfig(t, routesYAML), newTestRegistry(t), nil)
	require.NoError(t, err)

	status, resp := r.Route("/status").Handler.HandleRequest(context.Background(),
		lightning.NewRequestBuilder("GET", "/status", "HTTP/1.1").Build())
	require.Equal(t, handler.OK, status)
	require.True(t, strings.HasPrefix(string(resp.Body()), "Available Handlers\n\n"))
}
