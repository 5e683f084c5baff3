package handler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	reg, err := NewRegistry(Builtins(opts...)...)
	require.NoError(t, err)
	return reg
}

func TestRegistryCreateByName(t *testing.T) {
	reg := newTestRegistry(t)

	require.Equal(t, []string{TypeEcho, TypeNotFound, TypeReverseProxy, TypeStatic, TypeStatus}, reg.Names())

	h, err := reg.CreateByName(TypeEcho)
	require.NoError(t, err)
	require.IsType(t, &EchoHandler{}, h)

	// Each call yields a fresh instance
	h2, err := reg.CreateByName(TypeEcho)
	require.NoError(t, err)
	require.NotSame(t, h, h2)
}

func TestRegistryUnknownName(t *testing.T) {
	reg := newTestRegistry(t)

	h, err := reg.CreateByName("TeapotHandler")
	require.ErrorIs(t, err, ErrUnknownHandler)
	require.Nil(t, h)
}

func TestNewRegistryRejectsBadEntries(t *testing.T) {
	factory := func() Handler { return &NotFoundHandler{} }

	_, err := NewRegistry(Entry{Name: "A", Factory: factory}, Entry{Name: "A", Factory: factory})
	require.ErrorIs(t, err, ErrDuplicateHandler)

	_, err = NewRegistry(Entry{Name: "", Factory: factory})
	require.Error(t, err)

	_, err = NewRegistry(Entry{Name: "A"})
	require.Error(t, err)
}

func TestOnlyStatusWantsStats(t *testing.T) {
	reg := newTestRegistry(t)
	for _, name := range reg.Names() {
		h, err := reg.CreateByName(name)
		require.NoError(t, err)
		_, ok := h.(WantsStats)
		require.Equal(t, name == TypeStatus, ok, name)
	}
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "ok", OK.String())
	require.Equal(t, "not_found", NotFound.String())
	require.Equal(t, "bad_request", BadRequest.String())
	require.Equal(t, "bad_gateway", BadGateway.String())
	require.Equal(t, "status(9)", Status(9).String())
}

func TestExtensionToType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/static/index.html", "text/html"},
		{"/static/img/a.PNG", "image/png"},
		{"/static/app.js", "text/javascript"},
		{"/static/README", ""},
		{"/static.d/README", ""},
		{"/static/archive.nosuchext", ""},
		{"/static/trailing.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := ExtensionToType(extension(tt.path))
			if tt.want == "" {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tt.want, got)
		})
	}
}
