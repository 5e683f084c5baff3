// Package stats aggregates what the server has been asked to do: the
// configured routes and how often each (URL, status) pair was served.
package stats

import (
	"log/slog"
	"maps"
	"sync"
)

// Call identifies a completed request by requested URL and response status.
type Call struct {
	URL  string
	Code int
}

// Store persists call counts across restarts.
type Store interface {
	// Load returns every persisted count.
	Load() (map[Call]int, error)
	// Increment adds one to the persisted count for call.
	Increment(call Call) error
}

// Stats is shared by the dispatch path, which writes, and the status
// handler, which reads. It is safe for concurrent use; readers always get
// a copy.
type Stats struct {
	mu     sync.RWMutex
	routes map[string]string
	calls  map[Call]int

	store  Store
	logger *slog.Logger
}

// Option configures Stats.
type Option func(*Stats)

// WithStore persists counts through store. Existing counts are loaded by New.
func WithStore(store Store) Option {
	return func(s *Stats) {
		s.store = store
	}
}

// WithLogger sets the logger used to report store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stats) {
		s.logger = logger
	}
}

// New creates an empty Stats, seeded from the store when one is configured.
func New(opts ...Option) (*Stats, error) {
	s := &Stats{
		routes: make(map[string]string),
		calls:  make(map[Call]int),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store != nil {
		calls, err := s.store.Load()
		if err != nil {
			return nil, err
		}
		maps.Copy(s.calls, calls)
	}
	return s, nil
}

// SetRoutes replaces the prefix -> handler type table.
func (s *Stats) SetRoutes(routes map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = maps.Clone(routes)
}

// AllRoutes returns a copy of the prefix -> handler type table.
func (s *Stats) AllRoutes() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.routes)
}

// Record counts one completed request.
func (s *Stats) Record(url string, code int) {
	call := Call{URL: url, Code: code}

	s.mu.Lock()
	s.calls[call]++
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	if err := s.store.Increment(call); err != nil {
		s.logger.Warn("persisting call count failed", "url", url, "code", code, "error", err)
	}
}

// HandlerCallDistribution returns a copy of the (URL, status) -> count table.
func (s *Stats) HandlerCallDistribution() map[Call]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.calls)
}
