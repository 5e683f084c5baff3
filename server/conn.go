package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wolfeidau/lightning/handler"
)

// errRequestTooLarge is returned by readRequest when the request exceeds
// the configured size.
var errRequestTooLarge = errors.New("request too large")

// handleConn serves the single request carried by conn and closes it.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	if s.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	raw, err := readRequest(conn, s.config.MaxRequestSize)
	switch {
	case errors.Is(err, errRequestTooLarge):
		s.logger.Warn("rejecting oversized request", "remote_addr", conn.RemoteAddr().String(), "limit", s.config.MaxRequestSize)
		s.write(conn, handler.BadRequestResponse())
		return
	case err != nil && len(raw) == 0:
		if !errors.Is(err, io.EOF) {
			s.logger.Debug("reading request failed", "remote_addr", conn.RemoteAddr().String(), "error", err)
		}
		return
	case err != nil:
		// Dispatch whatever arrived; a truncated head fails to parse and
		// gets the fallback response.
		s.logger.Debug("request cut short", "remote_addr", conn.RemoteAddr().String(), "error", err)
	}

	s.serve(conn, raw)
}

// write sends resp on conn, returning the bytes written.
func (s *Server) write(conn net.Conn, resp io.WriterTo) int64 {
	if s.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	n, err := resp.WriteTo(conn)
	if err != nil {
		msg := "writing response failed"
		if errors.Is(err, os.ErrDeadlineExceeded) {
			msg = "writing response timed out"
		}
		s.logger.Debug(msg, "remote_addr", conn.RemoteAddr().String(), "bytes", n, "error", err)
	}
	return n
}

// readRequest reads one request: lines up to and including the first empty
// line, then Content-Length bytes of body when the header is present. The
// bytes are returned exactly as received.
func readRequest(conn io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		conn = io.LimitReader(conn, limit+1)
	}
	r := bufio.NewReader(conn)

	var raw bytes.Buffer
	contentLength := 0
	for {
		line, err := r.ReadString('\n')
		raw.WriteString(line)
		if limit > 0 && int64(raw.Len()) > limit {
			return raw.Bytes(), errRequestTooLarge
		}
		if err != nil {
			return raw.Bytes(), err
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			if raw.Len() == len(line) {
				// Tolerate a stray CRLF before the request line.
				raw.Reset()
				continue
			}
			break
		}
		if name, value, ok := strings.Cut(trimmed, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return raw.Bytes(), fmt.Errorf("invalid content length %q", value)
			}
			contentLength = n
		}
	}

	if contentLength == 0 {
		return raw.Bytes(), nil
	}
	if limit > 0 && int64(raw.Len())+int64(contentLength) > limit {
		return raw.Bytes(), errRequestTooLarge
	}
	body := make([]byte, contentLength)
	n, err := io.ReadFull(r, body)
	raw.Write(body[:n])
	if err != nil {
		return raw.Bytes(), fmt.Errorf("reading body: %w", err)
	}
	return raw.Bytes(), nil
}
