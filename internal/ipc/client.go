package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/justestif/go-music-agent/internal/apperr"
)

const defaultClientTimeout = 60 * time.Second

// ErrNotRunning is wrapped by Send errors that mean nothing listens on the
// socket. The request never reached a daemon, so it is safe to retry.
var ErrNotRunning = errors.New("daemon is not running")

// Client sends commands to a daemon. It holds no connection: every Send
// dials the socket afresh.
type Client struct {
	path    string
	timeout time.Duration
}

// NewClient returns a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{path: path, timeout: defaultClientTimeout}
}

// Send delivers command and returns the daemon's response. Failing to reach
// the daemon at all is a transport error wrapping ErrNotRunning. Write and
// read failures are transport errors too, but the daemon may already be
// running the command. A failure reported by the daemon is returned as the
// response, not as an error.
func (c *Client) Send(ctx context.Context, command string) (Response, error) {
	const op = "ipc.send"

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		if unreachable(err) {
			return Response{}, &apperr.Error{Kind: apperr.KindTransport, Op: op, Msg: ErrNotRunning.Error(), Err: fmt.Errorf("%w: %w", ErrNotRunning, err)}
		}
		return Response{}, apperr.Wrap(apperr.KindTransport, op, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	req := Request{Command: command, ID: uuid.NewString()}
	if err := newEncoder(conn).Encode(req); err != nil {
		return Response{}, apperr.Wrap(apperr.KindTransport, op, fmt.Errorf("writing request: %w", err))
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		uc.CloseWrite()
	}

	var resp Response
	if err := newDecoder(conn).Decode(&resp); err != nil {
		return Response{}, apperr.Wrap(apperr.KindTransport, op, fmt.Errorf("reading response: %w", err))
	}
	if resp.ID != "" && resp.ID != req.ID {
		return Response{}, apperr.New(apperr.KindTransport, op, "response id does not match request")
	}
	return resp, nil
}

// unreachable reports whether err means no daemon is listening.
func unreachable(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)
}
