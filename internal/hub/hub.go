// Package hub is the registry of live lobbies. It owns the lookup tables and
// hands out lobbies; the lobbies own the sessions.
package hub

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

// CreateLobby starts a lobby for Session. If the pair already has an open
// session of the same kind, that lobby is returned instead.
type CreateLobby struct {
	Session *game.Session
	Reply   chan *lobby.Lobby
}

type GetLobby struct {
	ID    string
	Reply chan *lobby.Lobby
}

// FindActive looks up the open lobby of Kind between two players.
type FindActive struct {
	Kind    game.Kind
	Players [2]string
	Reply   chan *lobby.Lobby
}

// Finished is sent when a lobby's session reaches a terminal status. The
// lobby stays reachable by id for the linger period, then is shut down.
type Finished struct {
	ID      string
	Kind    game.Kind
	Players [2]string
}

type RemoveLobby struct {
	ID string
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (FindActive) isHubMsg()  {}
func (Finished) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Lobby  lobby.Options
	Linger time.Duration
}

type pairKey struct {
	kind game.Kind
	a, b string
}

func keyFor(kind game.Kind, players [2]string) pairKey {
	a, b := players[0], players[1]
	if b < a {
		a, b = b, a
	}
	return pairKey{kind: kind, a: a, b: b}
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	open    map[pairKey]string
	opts    Options
	clock   clock.Clock
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Linger <= 0 {
		opts.Linger = time.Minute
	}
	if opts.Lobby.Clock == nil {
		opts.Lobby.Clock = clock.New()
	}
	if opts.Lobby.Log == nil {
		opts.Lobby.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		open:    make(map[pairKey]string),
		opts:    opts,
		clock:   opts.Lobby.Clock,
		log:     opts.Lobby.Log.Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

// Create asks the loop for a lobby for s. The returned lobby may hold an
// earlier session between the same players.
func (h *Hub) Create(ctx context.Context, s *game.Session) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return h.ask(ctx, CreateLobby{Session: s, Reply: reply}, reply)
}

// Get returns the lobby for id, or nil.
func (h *Hub) Get(ctx context.Context, id string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return h.ask(ctx, GetLobby{ID: id, Reply: reply}, reply)
}

// Active returns the open lobby of kind between the two players, or nil.
func (h *Hub) Active(ctx context.Context, kind game.Kind, players [2]string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return h.ask(ctx, FindActive{Kind: kind, Players: players, Reply: reply}, reply)
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return lobby.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) ask(ctx context.Context, m HubMsg, reply chan *lobby.Lobby) (*lobby.Lobby, error) {
	if err := h.send(ctx, m); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-h.done:
		return nil, lobby.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				key := keyFor(msg.Session.Kind, msg.Session.Players)
				if lb := h.openLobby(key); lb != nil {
					msg.Reply <- lb
					break
				}
				if lb := h.lobbies[msg.Session.ID]; lb != nil {
					msg.Reply <- lb
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.Session, h.lobbyOptions())
				h.lobbies[msg.Session.ID] = lb
				h.open[key] = msg.Session.ID
				h.opts.Lobby.Metrics.SessionCreated(string(msg.Session.Kind))
				h.log.Info("lobby created",
					zap.String("session", msg.Session.ID), zap.String("kind", string(msg.Session.Kind)))
				msg.Reply <- lb

			case GetLobby:
				msg.Reply <- h.lobbies[msg.ID] // May be nil

			case FindActive:
				msg.Reply <- h.openLobby(keyFor(msg.Kind, msg.Players)) // May be nil

			case Finished:
				key := keyFor(msg.Kind, msg.Players)
				if h.open[key] == msg.ID {
					delete(h.open, key)
				}
				id := msg.ID
				h.clock.AfterFunc(h.opts.Linger, func() {
					_ = h.send(h.ctx, RemoveLobby{ID: id})
				})

			case RemoveLobby:
				lb := h.lobbies[msg.ID]
				if lb == nil {
					break
				}
				delete(h.lobbies, msg.ID)
				for key, id := range h.open {
					if id == msg.ID {
						delete(h.open, key)
					}
				}
				select {
				case lb.Inbox() <- lobby.Shutdown{}:
				case <-lb.Done():
				}
				h.opts.Lobby.Metrics.SessionEvicted()
				h.log.Debug("lobby removed", zap.String("session", msg.ID))

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// openLobby returns the pair's open lobby. The finished notice travels
// asynchronously, so a lobby whose session already ended is unlinked here.
// Lobbies never wait on the hub, so asking one for its state cannot
// deadlock.
func (h *Hub) openLobby(key pairKey) *lobby.Lobby {
	id, ok := h.open[key]
	if !ok {
		return nil
	}
	lb := h.lobbies[id]
	if lb == nil {
		delete(h.open, key)
		return nil
	}
	v, err := lb.State(h.ctx)
	if err != nil || v.Session.Status.Terminal() {
		delete(h.open, key)
		return nil
	}
	return lb
}

// lobbyOptions wires the finished hook back into the hub. The hook runs on
// the lobby goroutine, so it must not wait for the hub loop.
func (h *Hub) lobbyOptions() lobby.Options {
	opts := h.opts.Lobby
	next := opts.OnFinished
	opts.OnFinished = func(s *game.Session) {
		if next != nil {
			next(s)
		}
		msg := Finished{ID: s.ID, Kind: s.Kind, Players: s.Players}
		go func() { _ = h.send(h.ctx, msg) }()
	}
	return opts
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		select {
		case lb.Inbox() <- lobby.Shutdown{}:
		case <-lb.Done():
		}
	}
	clear(h.lobbies)
	clear(h.open)
	h.cancel()
}
