package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/roach88/nbstore/internal/registry"
	"github.com/roach88/nbstore/internal/storage"
)

// shutdownGrace bounds how long Serve waits for handlers after cancellation.
const shutdownGrace = 5 * time.Second

// Daemon serves an API over a Unix domain socket so that processes without
// the native backend can reach it.
type Daemon struct {
	api        API
	socketPath string
	log        *slog.Logger

	wg     sync.WaitGroup
	connMu sync.Mutex
	conns  map[net.Conn]struct{}
	ready  chan struct{}
}

// NewDaemon creates a daemon serving api on socketPath.
func NewDaemon(api API, socketPath string, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		api:        api,
		socketPath: socketPath,
		log:        logger,
		conns:      make(map[net.Conn]struct{}),
		ready:      make(chan struct{}),
	}
}

// Ready is closed once the socket accepts connections.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Serve accepts connections until ctx is cancelled, then closes every
// client connection and removes the socket file.
func (d *Daemon) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(d.socketPath), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.Remove(d.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.socketPath, err)
	}
	// Owner-only: the socket grants full access to every space.
	if err := os.Chmod(d.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	defer func() {
		ln.Close()
		os.Remove(d.socketPath)
	}()

	go func() {
		<-ctx.Done()
		ln.Close()
		d.connMu.Lock()
		for _, conn := range lo.Keys(d.conns) {
			conn.Close()
		}
		d.connMu.Unlock()
	}()

	d.log.Info("daemon listening", "socket", d.socketPath)
	close(d.ready)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				done := make(chan struct{})
				go func() { d.wg.Wait(); close(done) }()
				select {
				case <-done:
				case <-time.After(shutdownGrace):
					d.log.Warn("daemon shutdown timeout, forcing exit")
				}
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		d.connMu.Lock()
		d.conns[conn] = struct{}{}
		d.connMu.Unlock()

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handleConn(ctx, conn)
			d.connMu.Lock()
			delete(d.conns, conn)
			d.connMu.Unlock()
		}()
	}
}

// lineWriter serialises writes of one connection between request replies
// and subscription events.
type lineWriter struct {
	mu   sync.Mutex
	conn net.Conn
	log  *slog.Logger
}

func (w *lineWriter) write(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		w.log.Error("marshal response", "error", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.conn, "%s\n", data); err != nil {
		w.log.Debug("write response", "error", err)
	}
}

func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	w := &lineWriter{conn: conn, log: d.log}

	var unsubs []func()
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			w.write(Response{OK: false, Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		if req.Method == MethodSubscribe {
			id := req.ID
			unsub, err := d.api.OnConnectionStatusChanged(func(e registry.StatusEvent) {
				w.write(Response{ID: id, OK: true, Event: &e})
			})
			if err != nil {
				w.write(errorResponse(req.ID, err))
				continue
			}
			unsubs = append(unsubs, unsub)
			w.write(Response{ID: req.ID, OK: true})
			continue
		}

		w.write(d.dispatch(ctx, req))
	}

	if err := scanner.Err(); err != nil {
		d.log.Debug("connection read error", "error", err)
	}
}

// dispatch runs a single request against the API.
func (d *Daemon) dispatch(ctx context.Context, req Request) Response {
	p := req.Params
	key := p.SpaceKey()

	var (
		result any
		err    error
	)
	switch req.Method {
	case MethodPing:
	case MethodConnect:
		err = d.api.Connect(ctx, key)
	case MethodClose:
		err = d.api.Close(ctx, key)
	case MethodPushDocUpdate:
		if p.Update == nil {
			return invalidParams(req, "update")
		}
		result, err = d.api.PushDocUpdate(ctx, key, *p.Update)
	case MethodGetDoc:
		result, err = d.api.GetDoc(ctx, key, p.DocID)
	case MethodDeleteDoc:
		err = d.api.DeleteDoc(ctx, key, p.DocID)
	case MethodGetDocTimestamps:
		result, err = d.api.GetDocTimestamps(ctx, key, p.After)
	case MethodSetBlob:
		if p.Blob == nil {
			return invalidParams(req, "blob")
		}
		err = d.api.SetBlob(ctx, key, *p.Blob)
	case MethodGetBlob:
		result, err = d.api.GetBlob(ctx, key, p.Key)
	case MethodDeleteBlob:
		err = d.api.DeleteBlob(ctx, key, p.Key, p.Permanently)
	case MethodListBlobs:
		result, err = d.api.ListBlobs(ctx, key)
	case MethodReleaseBlobs:
		err = d.api.ReleaseBlobs(ctx, key)
	case MethodGetPeerClocks:
		result, err = d.api.GetPeerClocks(ctx, key, p.Peer)
	case MethodSetPeerClock:
		if p.Clock == nil {
			return invalidParams(req, "clock")
		}
		err = d.api.SetPeerClock(ctx, key, p.Peer, *p.Clock)
	case MethodGetPeerPushedClocks:
		result, err = d.api.GetPeerPushedClocks(ctx, key, p.Peer)
	case MethodSetPeerPushedClock:
		if p.Clock == nil {
			return invalidParams(req, "clock")
		}
		err = d.api.SetPeerPushedClock(ctx, key, p.Peer, *p.Clock)
	case MethodClearClocks:
		err = d.api.ClearClocks(ctx, key)
	default:
		return Response{ID: req.ID, OK: false, Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	if err != nil {
		d.log.Debug("request failed", "method", req.Method, "space", key.String(), "error", err)
		return errorResponse(req.ID, err)
	}
	if result == nil {
		return Response{ID: req.ID, OK: true}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, fmt.Errorf("marshal result: %w", err))
	}
	return Response{ID: req.ID, OK: true, Result: data}
}

func errorResponse(id string, err error) Response {
	return Response{ID: id, OK: false, Error: err.Error(), Code: string(storage.CodeOf(err))}
}

func invalidParams(req Request, field string) Response {
	return Response{ID: req.ID, OK: false, Error: fmt.Sprintf("%s: missing %s", req.Method, field)}
}
