package telemetry

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// InstrumentedConn wraps an upstream connection and records one upstream
// fetch, with the bytes read, when it is closed.
type InstrumentedConn struct {
	net.Conn
	ctx      context.Context
	upstream string
	start    time.Time
	bytes    int64
	err      error
	recorded bool
}

// NewInstrumentedConn wraps conn. start should be taken before dialing so
// the recorded duration covers the whole exchange.
func NewInstrumentedConn(ctx context.Context, conn net.Conn, upstream string, start time.Time) *InstrumentedConn {
	return &InstrumentedConn{Conn: conn, ctx: ctx, upstream: upstream, start: start}
}

func (c *InstrumentedConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.bytes += int64(n)
	if !errors.Is(err, io.EOF) {
		c.fail(err)
	}
	return n, err
}

func (c *InstrumentedConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	c.fail(err)
	return n, err
}

// fail keeps the first error seen on the connection.
func (c *InstrumentedConn) fail(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

// BytesRead returns the number of bytes read so far.
func (c *InstrumentedConn) BytesRead() int64 {
	return c.bytes
}

func (c *InstrumentedConn) Close() error {
	if !c.recorded {
		c.recorded = true
		RecordUpstreamFetch(c.ctx, c.upstream, time.Since(c.start), c.bytes, c.outcome())
	}
	return c.Conn.Close()
}

func (c *InstrumentedConn) outcome() string {
	switch {
	case c.err == nil:
		return "success"
	case errors.Is(c.ctx.Err(), context.Canceled):
		return "canceled"
	case errors.Is(c.err, os.ErrDeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// RecordDialFailure records an upstream fetch that never got a connection.
func RecordDialFailure(ctx context.Context, upstream string, start time.Time, err error) {
	outcome := "error"
	var netErr net.Error
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		outcome = "canceled"
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		outcome = "timeout"
	}
	RecordUpstreamFetch(ctx, upstream, time.Since(start), 0, outcome)
}
