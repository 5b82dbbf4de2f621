// Package ws serves the session websocket: one connection per player,
// multiplexing any number of joined sessions.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/duel/internal/auth"
	"github.com/DoyleJ11/duel/internal/engine"
	"github.com/DoyleJ11/duel/internal/hub"
	"github.com/DoyleJ11/duel/internal/lobby"
	"github.com/DoyleJ11/duel/internal/metrics"
	"github.com/DoyleJ11/duel/internal/protocol"
)

type Options struct {
	WriteTimeout time.Duration
	ReadLimit    int64
	OutboxSize   int
	Metrics      *metrics.Metrics
	Log          *zap.Logger
}

func (o *Options) defaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 16
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 16
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}

// Handler upgrades authenticated requests. It must sit behind
// auth.Middleware so the player is known.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	opts.defaults()
	log := opts.Log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		player, ok := auth.PlayerFrom(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Debug("upgrade failed", zap.Error(err))
			return
		}
		conn.SetReadLimit(opts.ReadLimit)
		opts.Metrics.ConnectionOpened()
		defer opts.Metrics.ConnectionClosed()

		c := &client{
			id:     uuid.NewString(),
			player: player,
			conn:   conn,
			hub:    h,
			opts:   opts,
			joined: make(map[string]membership),
			log:    log.With(zap.String("player", player)),
		}
		c.writeCtx, c.writeCancel = context.WithCancel(context.Background())
		c.log.Debug("connected", zap.String("client", c.id))

		err = c.readLoop(r.Context())
		c.leaveAll()
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			_ = conn.CloseNow()
		default:
			c.log.Debug("connection ended", zap.Error(err))
			_ = conn.Close(websocket.StatusGoingAway, "closing")
		}
	}
}

type membership struct {
	lobby  *lobby.Lobby
	outbox chan protocol.Inbound
}

type client struct {
	id     string
	player string
	conn   *websocket.Conn
	hub    *hub.Hub
	opts   Options
	log    *zap.Logger

	writers     errgroup.Group
	writeCtx    context.Context
	writeCancel context.CancelFunc

	mu     sync.Mutex
	joined map[string]membership
}

func (c *client) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}

		out, requestID, err := protocol.DecodeOutbound(data)
		if err != nil {
			code := protocol.CodeBadFrame
			if errors.Is(err, protocol.ErrUnknownType) {
				code = protocol.CodeUnknownType
			}
			c.write(protocol.ErrorEvent{RequestID: requestID, Code: code, Message: err.Error()})
			continue
		}

		switch m := out.(type) {
		case protocol.Join:
			c.join(ctx, m.SessionID, requestID)
		case protocol.MoveIntent:
			c.command(ctx, m.SessionID, requestID, engine.Command{Type: engine.CmdMove, Player: c.player, Move: m.Move})
		case protocol.Forfeit:
			c.command(ctx, m.SessionID, requestID, engine.Command{Type: engine.CmdForfeit, Player: c.player})
		}
	}
}

// join subscribes the connection to a lobby. Every join hands the lobby a
// fresh outbox; the lobby closes the one it replaces, so only the lobby
// ever closes an outbox it has seen.
func (c *client) join(ctx context.Context, sessionID, requestID string) {
	c.mu.Lock()
	prev, again := c.joined[sessionID]
	c.mu.Unlock()

	lb := prev.lobby
	if !again {
		found, err := c.hub.Get(ctx, sessionID)
		if err != nil || found == nil {
			c.write(protocol.ErrorEvent{
				SessionID: sessionID, RequestID: requestID,
				Code: protocol.CodeNotFound, Message: "session not found",
			})
			return
		}
		lb = found
	}

	m := membership{lobby: lb, outbox: make(chan protocol.Inbound, c.opts.OutboxSize)}
	c.mu.Lock()
	c.joined[sessionID] = m
	c.mu.Unlock()
	c.writers.Go(func() error { return c.pump(sessionID, m.outbox) })

	if err := lb.Send(ctx, lobby.Join{ClientID: c.id, Player: c.player, Outbox: m.outbox}); err != nil {
		close(m.outbox) // never reached the lobby
		c.write(protocol.ErrorEvent{
			SessionID: sessionID, RequestID: requestID,
			Code: protocol.CodeNotFound, Message: err.Error(),
		})
	}
}

func (c *client) command(ctx context.Context, sessionID, requestID string, cmd engine.Command) {
	c.mu.Lock()
	m, ok := c.joined[sessionID]
	c.mu.Unlock()
	if !ok {
		c.write(protocol.ErrorEvent{
			SessionID: sessionID, RequestID: requestID,
			Code: protocol.CodeNotJoined, Message: "join the session first",
		})
		return
	}
	err := m.lobby.Send(ctx, lobby.FromClient{ClientID: c.id, RequestID: requestID, Cmd: cmd})
	if err != nil {
		c.write(protocol.ErrorEvent{
			SessionID: sessionID, RequestID: requestID,
			Code: protocol.CodeNotFound, Message: err.Error(),
		})
	}
}

// pump writes one lobby's frames until the lobby closes the outbox.
func (c *client) pump(sessionID string, outbox chan protocol.Inbound) error {
	defer c.forget(sessionID, outbox)
	for {
		select {
		case ev, ok := <-outbox:
			if !ok {
				return nil
			}
			c.write(ev)
		case <-c.writeCtx.Done():
			return nil
		}
	}
}

func (c *client) forget(sessionID string, outbox chan protocol.Inbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.joined[sessionID]; ok && m.outbox == outbox {
		delete(c.joined, sessionID)
	}
}

// write sends one frame. A failed write tears the connection down so the
// read loop ends.
func (c *client) write(ev protocol.Inbound) {
	data, err := protocol.EncodeInbound(ev)
	if err != nil {
		c.log.Error("failed to encode frame", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(c.writeCtx, c.opts.WriteTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.log.Debug("write failed", zap.Error(err))
		_ = c.conn.CloseNow()
	}
}

func (c *client) leaveAll() {
	c.mu.Lock()
	members := make([]membership, 0, len(c.joined))
	for _, m := range c.joined {
		members = append(members, m)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, m := range members {
		_ = m.lobby.Send(ctx, lobby.Leave{ClientID: c.id})
	}
	c.writeCancel()
	_ = c.writers.Wait()
}
