package wire

import (
	"net"
	"time"

	"github.com/mckoi/mckoiddb/pkg/mckoierr"
)

// Conn wraps a TCP connection authenticated with the cluster's shared
// network_password, providing a synchronous request/response call on top
// of the frame protocol. One Conn is used by one goroutine at a time;
// callers needing concurrency open a pool (spec.md §5: "a small pool of
// worker threads per connected peer").
type Conn struct {
	nc     net.Conn
	secret []byte
}

// Dial opens a TCP connection to addr with the given timeout. It does not
// perform a protocol handshake beyond what each request's frame tag
// already proves; the "handshake" of spec.md §6.2 is per-frame, not
// per-connection.
func Dial(addr string, secret []byte, timeout time.Duration) (*Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, mckoierr.Wrap(mckoierr.KindNetwork, "dial "+addr, err)
	}
	return &Conn{nc: nc, secret: secret}, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// Call sends one (opcode, body) request and reads back one response
// frame's body, enforcing a deadline covering both directions.
func (c *Conn) Call(op Opcode, body []byte, timeout time.Duration) (Opcode, []byte, error) {
	if timeout > 0 {
		if err := c.nc.SetDeadline(time.Now().Add(timeout)); err != nil {
			return 0, nil, mckoierr.Wrap(mckoierr.KindNetwork, "set deadline", err)
		}
	}
	if err := WriteFrame(c.nc, c.secret, op, body); err != nil {
		return 0, nil, err
	}
	return ReadFrame(c.nc, c.secret)
}

// Serve reads and dispatches frames from an accepted connection until the
// handler returns an error or the peer closes the socket. handler returns
// the response opcode/body for each request frame.
func Serve(nc net.Conn, secret []byte, handler func(Opcode, []byte) (Opcode, []byte, error)) error {
	defer nc.Close()
	for {
		op, body, err := ReadFrame(nc, secret)
		if err != nil {
			return err
		}
		respOp, respBody, err := handler(op, body)
		if err != nil {
			return err
		}
		if err := WriteFrame(nc, secret, respOp, respBody); err != nil {
			return err
		}
	}
}
