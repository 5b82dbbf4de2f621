// Package conn owns the websocket a game screen uses to talk to the game
// service. It moves frames and nothing else: inbound frames are decoded and
// handed to a single dispatch function in arrival order, outbound intents are
// queued for one writer goroutine.
package conn

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/duel/internal/failure"
	"github.com/DoyleJ11/duel/internal/protocol"
)

// Dispatch receives every inbound event. ctx is done once the connection is
// being closed; implementations must stop blocking when it is.
type Dispatch func(ctx context.Context, ev protocol.Inbound)

type Options struct {
	URL          string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	QueueSize    int
	ReadLimit    int64
	HTTPClient   *http.Client
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 16
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 16
	}
	return o
}

type Conn struct {
	ws       *websocket.Conn
	opts     Options
	dispatch Dispatch
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	outbox chan []byte

	// dispatchCtx is cancelled first on Close so a blocked dispatch lets
	// the reader take part in the close handshake.
	dispatchCtx  context.Context
	stopDispatch context.CancelFunc

	mu     sync.Mutex
	joined map[string]bool
	closed bool
	down   bool

	closeOnce sync.Once
	closeErr  error
}

// Dial opens an authenticated connection. A missing or refused credential is
// an AuthFailure; anything else that prevents the upgrade is a
// TransportFailure.
func Dial(ctx context.Context, opts Options, credential string, dispatch Dispatch, log *zap.Logger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, failure.New(failure.AuthFailure, "missing credential")
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)
	ws, resp, err := websocket.Dial(dialCtx, opts.URL, &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: opts.HTTPClient,
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, failure.Wrap(failure.AuthFailure, "credential refused", err)
		}
		return nil, failure.Wrap(failure.TransportFailure, "dial "+opts.URL, err)
	}
	ws.SetReadLimit(opts.ReadLimit)

	runCtx, runCancel := context.WithCancel(context.Background())
	dispatchCtx, stopDispatch := context.WithCancel(runCtx)
	c := &Conn{
		ws:       ws,
		opts:     opts,
		dispatch: dispatch,
		log:      log.Named("conn"),
		ctx:      runCtx,
		cancel:   runCancel,
		outbox:   make(chan []byte, opts.QueueSize),
		joined:   make(map[string]bool),

		dispatchCtx:  dispatchCtx,
		stopDispatch: stopDispatch,
	}
	c.group.Go(c.readLoop)
	c.group.Go(c.writeLoop)
	c.log.Info("connected", zap.String("url", opts.URL))
	return c, nil
}

// Join subscribes the connection to a session's events. Joining the same
// session again is a no-op.
func (c *Conn) Join(sessionID string) error {
	c.mu.Lock()
	if c.joined[sessionID] {
		c.mu.Unlock()
		return nil
	}
	c.joined[sessionID] = true
	c.mu.Unlock()

	if err := c.Send(protocol.Join{SessionID: sessionID}); err != nil {
		c.mu.Lock()
		delete(c.joined, sessionID)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Send queues an outbound intent. The outcome arrives later as an inbound
// event; the error only reports that the intent could not be queued.
func (c *Conn) Send(o protocol.Outbound) error {
	reqID := uuid.NewString()
	data, err := protocol.EncodeOutbound(o, reqID)
	if err != nil {
		return failure.Wrap(failure.LocalValidationFailure, "encode intent", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.down {
		return failure.New(failure.TransportFailure, "connection is closed")
	}
	select {
	case c.outbox <- data:
		c.log.Debug("queued", zap.String("session", o.Session()), zap.String("request", reqID))
		return nil
	default:
		return failure.New(failure.TransportFailure, "send queue full")
	}
}

// Down reports whether the transport dropped underneath us.
func (c *Conn) Down() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.down
}

// Close tears the connection down and waits for its goroutines. Once it
// returns, dispatch is never called again. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		wasDown := c.down
		c.mu.Unlock()

		c.stopDispatch()
		err := c.ws.Close(websocket.StatusNormalClosure, "bye")
		c.cancel()
		c.closeErr = c.group.Wait()
		if err != nil && !wasDown && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			// The peer may vanish mid-handshake; the socket is released either way.
			c.log.Debug("close handshake", zap.Error(err))
		}
		c.log.Info("closed")
	})
	return c.closeErr
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) readLoop() error {
	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.isClosed() || c.ctx.Err() != nil {
				return nil
			}
			c.mu.Lock()
			c.down = true
			c.mu.Unlock()

			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Info("service closed the connection", zap.Error(err))
			default:
				c.log.Warn("connection lost", zap.Error(err))
			}
			c.dispatch(c.dispatchCtx, protocol.Disconnected{Err: failure.Wrap(failure.TransportFailure, "connection lost", err)})
			return nil
		}

		ev, err := protocol.DecodeInbound(data)
		if err != nil {
			c.log.Warn("dropping undecodable frame", zap.Error(err))
			continue
		}
		if c.isClosed() {
			continue
		}
		c.dispatch(c.dispatchCtx, ev)
	}
}

func (c *Conn) writeLoop() error {
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case data := <-c.outbox:
			ctx, cancel := context.WithTimeout(c.ctx, c.opts.WriteTimeout)
			err := c.ws.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if c.isClosed() || errors.Is(err, context.Canceled) {
					return nil
				}
				c.log.Warn("write failed", zap.Error(err))
				// Unblocks the reader, which reports the disconnect.
				_ = c.ws.CloseNow()
				return err
			}
		}
	}
}
