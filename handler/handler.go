// Package handler defines the request handler capability, the registry that
// constructs handlers from configured type names, and the built-in handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/config"
	"github.com/wolfeidau/lightning/stats"
)

var (
	// ErrUnknownHandler is returned by CreateByName for unregistered type names.
	ErrUnknownHandler = errors.New("unknown handler type")

	// ErrDuplicateHandler is returned by NewRegistry when a name is registered twice.
	ErrDuplicateHandler = errors.New("duplicate handler type")

	// ErrFileTooLarge is returned when a static file exceeds max_size.
	ErrFileTooLarge = errors.New("file too large")

	// ErrMissingProperty is returned by Init when a required property is absent.
	ErrMissingProperty = errors.New("missing required property")
)

// Built-in handler type names, as referenced from configuration.
const (
	TypeEcho         = "EchoHandler"
	TypeStatic       = "StaticHandler"
	TypeNotFound     = "NotFoundHandler"
	TypeReverseProxy = "ReverseProxyHandler"
	TypeStatus       = "StatusHandler"
)

// Status is the outcome of handling a request. It usually, but not always,
// agrees with the HTTP status code of the response.
type Status int

const (
	OK Status = iota
	NotFound
	BadRequest
	BadGateway
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case NotFound:
		return "not_found"
	case BadRequest:
		return "bad_request"
	case BadGateway:
		return "bad_gateway"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Handler turns a parsed request into a response for requests matching the
// one prefix it was bound to by Init.
//
// Init is called once, before any request is handled. HandleRequest may be
// called concurrently and must always return a well-formed response.
type Handler interface {
	Init(uriPrefix string, props config.Properties) error
	HandleRequest(ctx context.Context, req *lightning.Request) (Status, *lightning.Response)
}

// StatsReader is the read side of the server stats.
type StatsReader interface {
	AllRoutes() map[string]string
	HandlerCallDistribution() map[stats.Call]int
}

// WantsStats is implemented by handlers that report on server stats. The
// router hands them the shared stats after Init.
type WantsStats interface {
	SetStats(StatsReader)
}

// Factory creates a new, uninitialised handler.
type Factory func() Handler

// Entry pairs a handler type name with its factory.
type Entry struct {
	Name    string
	Factory Factory
}

// Registry maps handler type names to factories. It is built once and is
// read-only afterwards, so it is safe for concurrent use.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a registry from entries.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{factories: make(map[string]Factory, len(entries))}
	for _, e := range entries {
		if e.Name == "" || e.Factory == nil {
			return nil, fmt.Errorf("registering handler %q: name and factory are required", e.Name)
		}
		if _, exists := r.factories[e.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHandler, e.Name)
		}
		r.factories[e.Name] = e.Factory
	}
	return r, nil
}

// CreateByName returns a new handler of the named type.
func (r *Registry) CreateByName(name string) (Handler, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, name)
	}
	return factory(), nil
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

const (
	// DefaultDialTimeout bounds the reverse proxy's outbound connect.
	DefaultDialTimeout = 5 * time.Second

	// DefaultReadTimeout bounds the reverse proxy's whole upstream exchange.
	DefaultReadTimeout = 30 * time.Second
)

type options struct {
	logger      *slog.Logger
	workDir     string
	dialTimeout time.Duration
	readTimeout time.Duration
}

// Option configures the built-in handlers.
type Option func(*options)

// WithLogger sets the logger for the built-in handlers.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithWorkDir sets the directory static roots are resolved against.
// Defaults to the process working directory.
func WithWorkDir(dir string) Option {
	return func(o *options) {
		o.workDir = dir
	}
}

// WithDialTimeout sets the default reverse proxy connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// WithReadTimeout sets the default reverse proxy exchange timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readTimeout = d
	}
}

// Builtins returns registry entries for the built-in handlers.
func Builtins(opts ...Option) []Entry {
	o := &options{
		logger:      slog.Default(),
		dialTimeout: DefaultDialTimeout,
		readTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	return []Entry{
		{Name: TypeEcho, Factory: func() Handler { return &EchoHandler{logger: o.logger} }},
		{Name: TypeStatic, Factory: func() Handler { return &StaticHandler{logger: o.logger, workDir: o.workDir} }},
		{Name: TypeNotFound, Factory: func() Handler { return &NotFoundHandler{} }},
		{Name: TypeReverseProxy, Factory: func() Handler {
			return &ReverseProxyHandler{logger: o.logger, dialTimeout: o.dialTimeout, readTimeout: o.readTimeout}
		}},
		{Name: TypeStatus, Factory: func() Handler { return &StatusHandler{} }},
	}
}

// workingDir resolves dir, falling back to the process working directory.
func workingDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return wd, nil
}
