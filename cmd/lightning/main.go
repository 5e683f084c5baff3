// Command lightning is a config-routed HTTP server with pluggable handlers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"
	"github.com/wolfeidau/lightning/config"
	"github.com/wolfeidau/lightning/handler"
	"github.com/wolfeidau/lightning/router"
	"github.com/wolfeidau/lightning/server"
	"github.com/wolfeidau/lightning/stats"
	"github.com/wolfeidau/lightning/telemetry"
)

var version = "dev"

// CLI is the command line of the lightning server.
type CLI struct {
	Config string `arg:"" type:"existingfile" help:"Server configuration file (.yaml, .yml or .toml)."`

	LogLevel  string `enum:"debug,info,warn,error" default:"info" help:"Log level (${enum})."`
	LogFormat string `enum:"text,logfmt,json" default:"text" help:"Log format (${enum})."`

	OTLPEndpoint string `name:"otlp-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" help:"OTLP gRPC endpoint for metrics export."`
	Prometheus   bool   `negatable:"" default:"true" help:"Expose Prometheus metrics on the admin listener."`

	Version kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("lightning"),
		kong.Description("A config-routed HTTP server with pluggable handlers."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cli CLI) error {
	logger, err := newLogger(os.Stderr, cli.LogLevel, cli.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	settings, err := serverSettings(cfg)
	if err != nil {
		return err
	}
	settings.Server.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "lightning",
		ServiceVersion:   version,
		OTLPEndpoint:     cli.OTLPEndpoint,
		EnablePrometheus: cli.Prometheus,
	})
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("shutting down metrics failed", "error", err)
		}
	}()

	statsOpts := []stats.Option{stats.WithLogger(logger.With("component", "stats"))}
	if settings.StatsDB != "" {
		store, err := stats.OpenBolt(settings.StatsDB, stats.WithBoltLogger(logger.With("component", "stats")))
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		statsOpts = append(statsOpts, stats.WithStore(store))
	}
	st, err := stats.New(statsOpts...)
	if err != nil {
		return fmt.Errorf("creating stats: %w", err)
	}

	reg, err := handler.NewRegistry(handler.Builtins(handler.WithLogger(logger))...)
	if err != nil {
		return fmt.Errorf("creating handler registry: %w", err)
	}
	logger.Debug("handlers registered", "handlers", reg.Names())

	rt, err := router.BuildRoutes(cfg, reg, st, router.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("building routes: %w", err)
	}

	srv, err := server.New(settings.Server, rt, st)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("server started",
		"address", settings.Server.Address,
		"admin_address", settings.Server.AdminAddress,
		"routes", len(rt.Routes()),
		"version", version,
	)

	// Wait for shutdown or error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// newLogger builds the root logger. The text format is colourised for
// terminals; logfmt and json suit log shippers.
func newLogger(w io.Writer, levelName, format string) (*slog.Logger, error) {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", levelName)
	}

	var h slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "text":
		h = tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	case "logfmt":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(h), nil
}

// settings are the process level values read from the server block.
type settings struct {
	Server  server.Config
	StatsDB string
}

// serverSettings reads the server block of cfg.
func serverSettings(cfg config.Properties) (settings, error) {
	var s settings

	listen, ok := cfg.Lookup("server", "listen")
	if !ok || listen == "" {
		return s, fmt.Errorf("%w: server.listen", handler.ErrMissingProperty)
	}
	s.Server.Address = listenAddress(listen)

	if admin, ok := cfg.Lookup("server", "admin_listen"); ok {
		s.Server.AdminAddress = listenAddress(admin)
	}

	var err error
	if s.Server.MaxConnections, err = config.Int(cfg, 0, "server", "max_connections"); err != nil {
		return s, err
	}
	if s.Server.ReadTimeout, err = config.Duration(cfg, 0, "server", "read_timeout"); err != nil {
		return s, err
	}
	if s.Server.WriteTimeout, err = config.Duration(cfg, 0, "server", "write_timeout"); err != nil {
		return s, err
	}
	maxSize, err := config.Int(cfg, 0, "server", "max_request_size")
	if err != nil {
		return s, err
	}
	s.Server.MaxRequestSize = int64(maxSize)
	s.StatsDB = config.String(cfg, "", "server", "stats_db")
	return s, nil
}

// listenAddress accepts a bare port or a host:port.
func listenAddress(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}
