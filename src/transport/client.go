package transport

import (
	"context"
	"net"
	"time"

	"github.com/danmuck/dps_backup/src/protocol"
	logs "github.com/danmuck/smplog"
	"github.com/pkg/errors"
)

const DefaultDialTimeout = 10 * time.Second

// Client dials the backup server once per request.
type Client struct {
	Addr        string
	DialTimeout time.Duration
	Timeout     time.Duration // whole-exchange deadline, 0 = none
	ProbeWindow time.Duration
	Framing     protocol.Framing
	MaxContent  uint32
}

// NewClient returns a client with the default dial timeout and no
// exchange deadline.
func NewClient(addr string) *Client {
	return &Client{
		Addr:        addr,
		DialTimeout: DefaultDialTimeout,
		ProbeWindow: protocol.DefaultProbeWindow,
		Framing:     protocol.FramingStatus,
		MaxContent:  protocol.DefaultMaxContent,
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, time.Time, error) {
	d := net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, time.Time{}, protocol.ConnectionError("connect "+c.Addr, err)
	}

	var deadline time.Time
	if c.Timeout > 0 {
		deadline = time.Now().Add(c.Timeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (deadline.IsZero() || ctxDeadline.Before(deadline)) {
		deadline = ctxDeadline
	}
	if !deadline.IsZero() {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, time.Time{}, protocol.ConnectionError("connect "+c.Addr, errors.Wrap(err, "set deadline"))
		}
	}
	return conn, deadline, nil
}

// Send opens a connection, writes request, decodes exactly one reply and
// closes the connection on every path.
func (c *Client) Send(ctx context.Context, request []byte) (*protocol.Response, error) {
	conn, deadline, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	logs.Debugf("Send(%s): %d byte request", c.Addr, len(request))

	// Closing the connection unblocks any pending read or write. Probes
	// reset read deadlines, so a deadline alone would not stick.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := writeAll(conn, request); err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, protocol.ConnectionError("send request", err)
	}

	stream := protocol.NewStream(conn,
		protocol.WithProbeWindow(c.ProbeWindow),
		protocol.WithReadDeadline(deadline),
	)
	resp, err := protocol.NewDecoder(stream,
		protocol.WithFraming(c.Framing),
		protocol.WithMaxContent(c.MaxContent),
	).Decode()
	if ctx.Err() != nil {
		// a probe cut short by the close can look like an absent field
		return nil, cancelled(ctx)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func cancelled(ctx context.Context) error {
	return protocol.ConnectionError("exchange", errors.Wrap(ctx.Err(), "cancelled"))
}

// writeAll keeps writing until request is drained or the connection fails.
func writeAll(conn net.Conn, request []byte) error {
	for sent := 0; sent < len(request); {
		n, err := conn.Write(request[sent:])
		sent += n
		if err != nil {
			return errors.Wrapf(err, "wrote %d of %d bytes", sent, len(request))
		}
		if n == 0 {
			return errors.Errorf("wrote %d of %d bytes", sent, len(request))
		}
	}
	return nil
}
