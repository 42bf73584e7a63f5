package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/nbstore/internal/registry"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// ErrClientClosed is returned by calls on a closed Client.
var ErrClientClosed = errors.New("ipc client is closed")

// Client implements API by forwarding calls to a Daemon.
// Calls are serialised over one connection; subscriptions use their own.
type Client struct {
	socketPath string
	log        *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

var _ API = (*Client)(nil)

// Dial connects to the daemon at socketPath. An unreachable daemon is
// reported as CONTEXT_UNAVAILABLE.
func Dial(socketPath string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dial(socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		socketPath: socketPath,
		log:        logger,
		conn:       conn,
		reader:     bufio.NewReader(conn),
	}, nil
}

func dial(socketPath string) (net.Conn, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, &storage.Error{
			Code:    storage.ErrCodeContextUnavailable,
			Message: fmt.Sprintf("daemon not reachable at %s", socketPath),
			Err:     err,
		}
	}
	return conn, nil
}

// Disconnect hangs up on the daemon. Spaces are left as they are.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, MethodPing, Params{}, nil)
}

// call sends one request and decodes its result into out (if non-nil).
//
// A call that fails mid-exchange (timeout, cancellation, broken pipe) may
// leave its reply in flight, so the connection is dropped and the next call
// dials a fresh one.
func (c *Client) call(ctx context.Context, method string, params Params, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if c.conn == nil {
		conn, err := dial(c.socketPath)
		if err != nil {
			return err
		}
		c.conn, c.reader = conn, bufio.NewReader(conn)
	}

	resp, err := c.exchange(ctx, method, params)
	if err != nil {
		c.log.Debug("dropping daemon connection", "method", method, "error", err)
		c.conn.Close()
		c.conn, c.reader = nil, nil
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", method, ctxErr)
		}
		// The socket deadline can fire just before the context notices.
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			return fmt.Errorf("%s: %w", method, context.DeadlineExceeded)
		}
		return err
	}

	if !resp.OK {
		return decodeError(resp)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// exchange writes one request and reads its reply. Cancelling ctx forces
// the connection deadline into the past so a blocked read returns.
func (c *Client) exchange(ctx context.Context, method string, params Params) (Response, error) {
	conn := c.conn
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	req := Request{ID: uuid.Must(uuid.NewV7()).String(), Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", method, err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", method, err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("unmarshal %s response: %w", method, err)
	}
	if resp.ID != req.ID {
		return Response{}, fmt.Errorf("%s: response id %q does not match request %q", method, resp.ID, req.ID)
	}
	return resp, nil
}

// decodeError rebuilds a typed storage error from its wire form.
func decodeError(resp Response) error {
	if resp.Code == "" {
		return errors.New(resp.Error)
	}
	return &storage.Error{
		Code:    storage.ErrorCode(resp.Code),
		Message: strings.TrimPrefix(resp.Error, resp.Code+": "),
	}
}

func keyParams(key space.Key) Params {
	return Params{SpaceType: key.Type, SpaceID: key.ID}
}

func (c *Client) Connect(ctx context.Context, key space.Key) error {
	return c.call(ctx, MethodConnect, keyParams(key), nil)
}

func (c *Client) Close(ctx context.Context, key space.Key) error {
	return c.call(ctx, MethodClose, keyParams(key), nil)
}

func (c *Client) PushDocUpdate(ctx context.Context, key space.Key, update space.DocUpdate) (space.DocClock, error) {
	p := keyParams(key)
	p.Update = &update
	var clock space.DocClock
	err := c.call(ctx, MethodPushDocUpdate, p, &clock)
	return clock, err
}

func (c *Client) GetDoc(ctx context.Context, key space.Key, docID string) (*space.DocRecord, error) {
	p := keyParams(key)
	p.DocID = docID
	var rec *space.DocRecord
	err := c.call(ctx, MethodGetDoc, p, &rec)
	return rec, err
}

func (c *Client) DeleteDoc(ctx context.Context, key space.Key, docID string) error {
	p := keyParams(key)
	p.DocID = docID
	return c.call(ctx, MethodDeleteDoc, p, nil)
}

func (c *Client) GetDocTimestamps(ctx context.Context, key space.Key, after time.Time) (space.DocClocks, error) {
	p := keyParams(key)
	p.After = after
	clocks := space.DocClocks{}
	err := c.call(ctx, MethodGetDocTimestamps, p, &clocks)
	return clocks, err
}

func (c *Client) SetBlob(ctx context.Context, key space.Key, blob space.BlobRecord) error {
	p := keyParams(key)
	p.Blob = &blob
	return c.call(ctx, MethodSetBlob, p, nil)
}

func (c *Client) GetBlob(ctx context.Context, key space.Key, blobKey string) (*space.BlobRecord, error) {
	p := keyParams(key)
	p.Key = blobKey
	var rec *space.BlobRecord
	err := c.call(ctx, MethodGetBlob, p, &rec)
	return rec, err
}

func (c *Client) DeleteBlob(ctx context.Context, key space.Key, blobKey string, permanently bool) error {
	p := keyParams(key)
	p.Key = blobKey
	p.Permanently = permanently
	return c.call(ctx, MethodDeleteBlob, p, nil)
}

func (c *Client) ListBlobs(ctx context.Context, key space.Key) ([]space.BlobMeta, error) {
	metas := []space.BlobMeta{}
	err := c.call(ctx, MethodListBlobs, keyParams(key), &metas)
	return metas, err
}

func (c *Client) ReleaseBlobs(ctx context.Context, key space.Key) error {
	return c.call(ctx, MethodReleaseBlobs, keyParams(key), nil)
}

func (c *Client) GetPeerClocks(ctx context.Context, key space.Key, peer string) (space.DocClocks, error) {
	p := keyParams(key)
	p.Peer = peer
	clocks := space.DocClocks{}
	err := c.call(ctx, MethodGetPeerClocks, p, &clocks)
	return clocks, err
}

func (c *Client) SetPeerClock(ctx context.Context, key space.Key, peer string, clock space.DocClock) error {
	p := keyParams(key)
	p.Peer = peer
	p.Clock = &clock
	return c.call(ctx, MethodSetPeerClock, p, nil)
}

func (c *Client) GetPeerPushedClocks(ctx context.Context, key space.Key, peer string) (space.DocClocks, error) {
	p := keyParams(key)
	p.Peer = peer
	clocks := space.DocClocks{}
	err := c.call(ctx, MethodGetPeerPushedClocks, p, &clocks)
	return clocks, err
}

func (c *Client) SetPeerPushedClock(ctx context.Context, key space.Key, peer string, clock space.DocClock) error {
	p := keyParams(key)
	p.Peer = peer
	p.Clock = &clock
	return c.call(ctx, MethodSetPeerPushedClock, p, nil)
}

func (c *Client) ClearClocks(ctx context.Context, key space.Key) error {
	return c.call(ctx, MethodClearClocks, keyParams(key), nil)
}

// OnConnectionStatusChanged opens a dedicated connection streaming status
// events to fn until unsubscribe is called or the daemon goes away.
func (c *Client) OnConnectionStatusChanged(fn func(registry.StatusEvent)) (func(), error) {
	conn, err := dial(c.socketPath)
	if err != nil {
		return nil, err
	}

	req := Request{ID: uuid.Must(uuid.NewV7()).String(), Method: MethodSubscribe}
	data, err := json.Marshal(req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("marshal subscribe: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read subscribe ack: %w", err)
	}
	var ack Response
	if err := json.Unmarshal(line, &ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unmarshal subscribe ack: %w", err)
	}
	if !ack.OK {
		conn.Close()
		return nil, decodeError(ack)
	}

	go func() {
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				c.log.Debug("status stream ended", "error", err)
				return
			}
			var resp Response
			if err := json.Unmarshal(line, &resp); err != nil {
				c.log.Warn("malformed status event", "error", err)
				continue
			}
			if resp.Event != nil {
				fn(*resp.Event)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { conn.Close() })
	}, nil
}
