// Package server accepts TCP connections, reads one request per connection,
// dispatches it through the router and writes the response back.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfeidau/lightning/handler"
	"github.com/wolfeidau/lightning/router"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// ErrServerClosed is returned by Start and Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// AdminAddress serves /health, /metrics and /stats over HTTP.
	// Empty disables the admin listener.
	AdminAddress string

	// MaxConnections caps concurrently served connections. Zero means no cap.
	MaxConnections int

	// ReadTimeout bounds reading a request. Default 30s.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing a response. Default 30s.
	WriteTimeout time.Duration

	// MaxRequestSize caps the request head plus body in bytes. Default 1 MiB.
	MaxRequestSize int64

	// Logger for the server
	Logger *slog.Logger
}

// Router resolves request URIs to handlers.
type Router interface {
	Route(uri string) router.Route
	NotFound() handler.Handler
}

// Stats records completed requests and exposes the aggregates.
type Stats interface {
	handler.StatsReader
	Record(url string, code int)
}

// Server is the lightning server.
type Server struct {
	config Config
	router Router
	stats  Stats
	logger *slog.Logger
	admin  *http.Server

	// Handlers run under baseCtx; it is canceled when Shutdown gives up waiting.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closing  atomic.Bool
}

// New creates a new server. stats may be nil.
func New(cfg Config, rt Router, stats Stats) (*Server, error) {
	if rt == nil {
		return nil, errors.New("creating server: router is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.MaxRequestSize == 0 {
		cfg.MaxRequestSize = 1 << 20
	}
	if cfg.MaxConnections < 0 {
		return nil, fmt.Errorf("creating server: invalid max connections %d", cfg.MaxConnections)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:  cfg,
		router:  rt,
		stats:   stats,
		logger:  cfg.Logger,
		baseCtx: ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}

	if cfg.AdminAddress != "" {
		mux := http.NewServeMux()
		s.registerAdminRoutes(mux)
		s.admin = &http.Server{
			Addr:         cfg.AdminAddress,
			Handler:      s.loggingMiddleware(mux),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
	}

	return s, nil
}

// Start listens on the configured address and serves until Shutdown.
// The admin listener, when configured, runs alongside.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address, err)
	}

	var adminLn net.Listener
	if s.admin != nil {
		adminLn, err = net.Listen("tcp", s.admin.Addr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listening on admin %s: %w", s.admin.Addr, err)
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		return s.Serve(ln)
	})
	if adminLn != nil {
		g.Go(func() error {
			s.logger.Info("starting admin server", "address", adminLn.Addr().String())
			if err := s.admin.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving admin: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Serve accepts connections on ln, handling each on its own goroutine.
// It always returns a non-nil error; ErrServerClosed after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if s.config.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConnections)
	}

	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.logger.Info("starting server", "address", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				s.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		backoff = 0

		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting connections and waits for in-flight requests.
// When ctx expires first, in-flight handlers are canceled, their
// connections closed, and ctx's error returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	s.mu.Lock()
	s.closing.Store(true)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	var adminErr error
	if s.admin != nil {
		adminErr = s.admin.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return adminErr
	case <-ctx.Done():
		s.cancel()
		s.closeConns()
		<-done
		return ctx.Err()
	}
}

// Address returns the address the server is listening on, or the
// configured address before it starts.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
