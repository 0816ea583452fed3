package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Websocket timing
const (
	DefaultHandshakeTimeout = 10 * time.Second
	WriteTimeout            = 10 * time.Second
	PingInterval            = 30 * time.Second
	SendBufferSize          = 64
)

// WebsocketTransport exchanges JSON envelopes over a websocket. A writer
// and a reader goroutine run under one errgroup; when either fails both
// stop, and a disconnect envelope is delivered unless Close was called.
type WebsocketTransport struct {
	conn    *websocket.Conn
	send    chan Envelope
	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial connects to url and starts the transport. deliver is called from
// the reader goroutine for every inbound envelope.
func Dial(ctx context.Context, url string, header http.Header, deliver func(Envelope)) (*WebsocketTransport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with %s: %w", resp.Status, err)
		}
		return nil, err
	}
	return newWebsocketTransport(conn, deliver), nil
}

func newWebsocketTransport(conn *websocket.Conn, deliver func(Envelope)) *WebsocketTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &WebsocketTransport{
		conn:   conn,
		send:   make(chan Envelope, SendBufferSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.writeLoop(gctx) })
	g.Go(func() error { return t.readLoop(deliver) })
	g.Go(func() error {
		// unblocks the reader
		<-gctx.Done()
		conn.Close()
		return nil
	})

	go func() {
		defer close(t.done)
		t.err = g.Wait()
		if !t.closing.Load() {
			glog.Infof("[ws]<- error = %v", t.err)
			deliver(Envelope{Event: EventDisconnect})
		}
	}()
	return t
}

// Send queues env for the writer.
func (t *WebsocketTransport) Send(env Envelope) error {
	select {
	case <-t.ctx.Done():
		return fmt.Errorf("websocket transport closed")
	case t.send <- env:
		return nil
	}
}

// Close stops both goroutines without waiting for them.
func (t *WebsocketTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closing.Store(true)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.cancel()
	})
	return nil
}

// Wait blocks until both goroutines have stopped and returns the error
// that stopped them.
func (t *WebsocketTransport) Wait() error {
	<-t.done
	return t.err
}

func (t *WebsocketTransport) writeLoop(ctx context.Context) error {
	ping := time.NewTicker(PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := t.conn.WriteJSON(env); err != nil {
				return fmt.Errorf("write %s: %w", env.Event, err)
			}
			glog.V(2).Infof("[ws]-> %s", env.Event)
		case <-ping.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteTimeout)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (t *WebsocketTransport) readLoop(deliver func(Envelope)) error {
	for {
		var env Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		glog.V(2).Infof("[ws]<- %s", env.Event)
		deliver(env)
	}
}
