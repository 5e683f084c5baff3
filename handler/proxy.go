package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/config"
	"github.com/wolfeidau/lightning/telemetry"
)

// ReverseProxyHandler relays each request to a fixed upstream as a
// synthetic "GET /" and returns the upstream's parsed response. Every
// request opens its own connection, which is read until the upstream closes
// it. Redirects are passed through, not followed.
//
// Properties:
//
//	reverse_proxy_host          required
//	reverse_proxy_port          optional, default 80
//	reverse_proxy_timeout       optional connect timeout
//	reverse_proxy_read_timeout  optional bound on the whole exchange
//	report_upstream_errors      optional, answer 502 instead of 404 on upstream failure
type ReverseProxyHandler struct {
	prefix       string
	host         string
	addr         string
	dialTimeout  time.Duration
	readTimeout  time.Duration
	reportErrors bool
	logger       *slog.Logger
}

func (h *ReverseProxyHandler) Init(uriPrefix string, props config.Properties) error {
	host, ok := props.Lookup("reverse_proxy_host")
	if !ok || host == "" {
		return fmt.Errorf("%w: reverse_proxy_host", ErrMissingProperty)
	}
	port, err := config.Int(props, 80, "reverse_proxy_port")
	if err != nil {
		return err
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid reverse_proxy_port %d", port)
	}
	if h.dialTimeout, err = config.Duration(props, h.dialTimeout, "reverse_proxy_timeout"); err != nil {
		return err
	}
	if h.readTimeout, err = config.Duration(props, h.readTimeout, "reverse_proxy_read_timeout"); err != nil {
		return err
	}
	if h.reportErrors, err = config.Bool(props, false, "report_upstream_errors"); err != nil {
		return err
	}

	h.prefix = uriPrefix
	h.host = host
	h.addr = net.JoinHostPort(host, strconv.Itoa(port))
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "handler", "handler", TypeReverseProxy, "prefix", uriPrefix, "upstream", h.addr)
	return nil
}

func (h *ReverseProxyHandler) HandleRequest(ctx context.Context, _ *lightning.Request) (Status, *lightning.Response) {
	telemetry.SetUpstream(ctx, h.addr)

	resp, err := h.fetch(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "upstream exchange failed", "error", err)
		if h.reportErrors {
			return BadGateway, badGatewayResponse()
		}
		return NotFound, NotFoundResponse()
	}

	if resp.StatusCode() == lightning.StatusFound {
		location, _ := resp.Header("Location")
		h.logger.DebugContext(ctx, "upstream redirect not followed", "location", location)
	}
	return OK, resp
}

// fetch performs one exchange with the upstream.
func (h *ReverseProxyHandler) fetch(ctx context.Context) (*lightning.Response, error) {
	start := time.Now()

	if h.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.readTimeout)
		defer cancel()
	}

	dialer := net.Dialer{Timeout: h.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", h.addr)
	if err != nil {
		telemetry.RecordDialFailure(ctx, h.addr, start, err)
		return nil, fmt.Errorf("connecting to upstream: %w", err)
	}
	ic := telemetry.NewInstrumentedConn(ctx, conn, h.addr, start)
	defer func() { _ = ic.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	out := lightning.NewRequestBuilder("GET", "/", "HTTP/1.1").
		AddHeader("Host", h.host).
		AddHeader("Accept", "*/*").
		AddHeader("Connection", "close").
		Build()
	if _, err := io.WriteString(ic, out.String()); err != nil {
		return nil, fmt.Errorf("writing upstream request: %w", err)
	}

	raw, err := io.ReadAll(ic)
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}

	resp, err := lightning.ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream response: %w", err)
	}
	h.logger.DebugContext(ctx, "upstream responded", "status", resp.StatusLine(), "bytes", ic.BytesRead())
	return resp, nil
}
