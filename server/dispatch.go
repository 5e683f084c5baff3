package server

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/lightning"
	"github.com/wolfeidau/lightning/handler"
	"github.com/wolfeidau/lightning/telemetry"
)

// serve dispatches raw, writes the response to conn and logs the exchange.
func (s *Server) serve(conn net.Conn, raw []byte) {
	start := time.Now()

	req, err := lightning.ParseRequest(raw)
	if err != nil {
		s.logger.Debug("parsing request failed", "remote_addr", conn.RemoteAddr().String(), "error", err)
	}

	ctx := telemetry.InjectTags(s.baseCtx, requestID(req))
	tags := telemetry.GetTags(ctx)

	resp := s.handle(ctx, req, raw)
	bytesSent := s.write(conn, resp)
	duration := time.Since(start)
	status := int(resp.StatusCode())

	method, uri := "", rawURI(raw)
	if req != nil {
		method, uri = req.Method(), req.URI()
	}

	attrs := []any{
		// Request identification
		"request_id", tags.RequestID,
		"method", method,
		"uri", uri,

		// Routing
		"prefix", tags.Prefix,
		"handler", tags.Handler,
		"outcome", tags.Outcome,

		// Response details
		"status", status,
		"status_class", telemetry.StatusClass(status),
		"bytes_sent", bytesSent,

		// Timing
		"duration_ms", duration.Milliseconds(),
		"duration", duration.String(),

		// Client info
		"remote_addr", conn.RemoteAddr().String(),
	}
	if req != nil {
		ua, _ := req.Header("User-Agent")
		attrs = append(attrs, "user_agent", ua, "version", req.Version())
	}
	if tags.Upstream != "" {
		attrs = append(attrs, "upstream", tags.Upstream)
	}
	if ct, ok := resp.Header("Content-Type"); ok {
		attrs = append(attrs, "content_type", ct)
	}

	s.logger.Info("http request", attrs...)

	telemetry.RecordHTTP(ctx, status, bytesSent, duration)
}

// Dispatch turns raw request bytes into a response: parse, route, handle
// and record the outcome in stats. It never returns nil.
func (s *Server) Dispatch(ctx context.Context, raw []byte) *lightning.Response {
	req, _ := lightning.ParseRequest(raw)
	return s.handle(ctx, req, raw)
}

// handle routes req, which is nil when raw failed to parse.
func (s *Server) handle(ctx context.Context, req *lightning.Request, raw []byte) *lightning.Response {
	var (
		status handler.Status
		resp   *lightning.Response
		uri    string
	)

	if req == nil {
		uri = rawURI(raw)
		status, resp = handler.BadRequest, handler.BadRequestResponse()
	} else {
		uri = req.URI()
		rt := s.router.Route(uri)
		telemetry.SetRoute(ctx, rt.Prefix, rt.Type)
		status, resp = rt.Handler.HandleRequest(ctx, req)
		if resp == nil || resp.StatusCode() == 0 {
			s.logger.Warn("handler returned no response", "prefix", rt.Prefix, "handler", rt.Type)
			status, resp = s.router.NotFound().HandleRequest(ctx, req)
		}
	}

	telemetry.SetOutcome(ctx, status.String())
	if s.stats != nil {
		s.stats.Record(uri, int(resp.StatusCode()))
	}
	return resp
}

// requestID returns the client supplied X-Request-ID or a new UUID.
func requestID(req *lightning.Request) string {
	if req != nil {
		if id, ok := req.Header("X-Request-ID"); ok && id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// rawURI extracts the second token of the first line of raw, if any.
func rawURI(raw []byte) string {
	line, _, _ := strings.Cut(string(raw), "\n")
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}
