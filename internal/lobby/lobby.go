// Package lobby runs one game session as an actor: it owns the
// authoritative session, applies player commands through the engine,
// enforces the turn clock and fans snapshots out to joined clients.
package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/DoyleJ11/duel/internal/engine"
	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/metrics"
	"github.com/DoyleJ11/duel/internal/protocol"
)

var ErrClosed = errors.New("lobby closed")

type Msg interface{ isLobbyMsg() }

// FromClient carries a command from a joined client. Cmd.Player must be the
// authenticated player behind ClientID.
type FromClient struct {
	ClientID  string
	RequestID string
	Cmd       engine.Command
}

func (FromClient) isLobbyMsg() {}

// Join registers a client and sends it the current snapshot. A join from
// someone who is not a player gets an error frame and its outbox closed.
type Join struct {
	ClientID string
	Player   string
	Outbox   chan protocol.Inbound // where this client wants to receive frames
}

func (Join) isLobbyMsg() {}

// Leave unregisters a client and closes its outbox.
type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

// TimerFired is sent by the turn timer. Fires from an older generation are
// ignored.
type TimerFired struct{ Gen uint64 }

func (TimerFired) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	Version    int64
	NumClients int
	TimerArmed bool
	Session    *game.Session
}

// Recorder persists sessions once they reach a terminal status.
type Recorder interface {
	SessionFinished(ctx context.Context, s *game.Session, at time.Time) error
}

type Options struct {
	Turn       time.Duration
	Clock      clock.Clock
	Recorder   Recorder
	Metrics    *metrics.Metrics
	Log        *zap.Logger
	OnFinished func(*game.Session)
}

func (o *Options) defaults() {
	if o.Turn <= 0 {
		o.Turn = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}

type client struct {
	player string
	outbox chan protocol.Inbound
}

type Lobby struct {
	id      string
	inbox   chan Msg
	session *game.Session
	clients map[string]client
	seen    map[string]bool
	opts    Options
	log     *zap.Logger

	timer    *clock.Timer
	timerGen uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLobby(parent context.Context, initial *game.Session, opts Options) *Lobby {
	opts.defaults()
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		id:      initial.ID,
		inbox:   make(chan Msg, 64),
		session: initial,
		clients: make(map[string]client),
		seen:    make(map[string]bool),
		opts:    opts,
		log:     opts.Log.Named("lobby").With(zap.String("session", initial.ID)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go l.loop()
	return l
}

func (l *Lobby) ID() string { return l.id }

// Expose the inbox so the hub and ws layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby has shut down.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Send delivers m unless the lobby has shut down or ctx ends first.
func (l *Lobby) Send(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State asks the loop for a copy of its current view.
func (l *Lobby) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.join(msg)

			case Leave:
				if c, ok := l.clients[msg.ClientID]; ok {
					close(c.outbox)
					delete(l.clients, msg.ClientID)
				}

			case FromClient:
				if _, ok := l.clients[msg.ClientID]; !ok {
					l.log.Debug("command from unjoined client", zap.String("client", msg.ClientID))
					break
				}
				l.apply(msg.ClientID, msg.RequestID, msg.Cmd)

			case TimerFired:
				if msg.Gen != l.timerGen || l.timer == nil {
					break // stale fire; the turn moved on
				}
				l.timer = nil
				l.apply("", "", engine.Command{Type: engine.CmdTimeoutAdvance})

			case GetState:
				msg.Reply <- View{
					Version:    l.session.Version,
					NumClients: len(l.clients),
					TimerArmed: l.timer != nil,
					Session:    l.session.Clone(),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) join(msg Join) {
	if !l.session.HasPlayer(msg.Player) {
		l.sendTo(msg.ClientID, msg.Outbox, protocol.ErrorEvent{
			SessionID: l.session.ID,
			Code:      protocol.CodeNotAPlayer,
			Message:   engine.ErrNotAPlayer.Error(),
		})
		close(msg.Outbox)
		return
	}
	if old, ok := l.clients[msg.ClientID]; ok && old.outbox != msg.Outbox {
		close(old.outbox)
	}
	l.clients[msg.ClientID] = client{player: msg.Player, outbox: msg.Outbox}
	l.seen[msg.Player] = true
	if !l.sendTo(msg.ClientID, msg.Outbox, protocol.StateEvent{Session: l.session}) {
		return
	}

	if l.session.Status == game.StatusWaiting && l.seen[l.session.Players[0]] && l.seen[l.session.Players[1]] {
		l.apply("", "", engine.Command{Type: engine.CmdStart})
	}
}

// apply runs cmd and broadcasts the outcome. Rejections go only to the
// client that sent the command.
func (l *Lobby) apply(clientID, requestID string, cmd engine.Command) {
	now := l.opts.Clock.Now()
	cmd.At = now
	events, next, err := engine.Apply(l.session, cmd)
	if cmd.Type == engine.CmdMove {
		l.opts.Metrics.Move(string(l.session.Kind), err == nil)
	}
	if err != nil {
		l.log.Debug("command rejected",
			zap.String("type", string(cmd.Type)), zap.String("player", cmd.Player), zap.Error(err))
		if c, ok := l.clients[clientID]; ok {
			l.sendTo(clientID, c.outbox, protocol.ErrorEvent{
				SessionID: l.session.ID,
				RequestID: requestID,
				Code:      errorCode(err),
				Message:   err.Error(),
			})
		}
		return
	}

	next.Version = l.session.Version + 1
	l.session = next
	l.broadcast(frameFor(next, events))

	switch {
	case next.Status.Terminal():
		l.stopTimer()
		l.finish(now)
	case next.Status == game.StatusActive:
		l.armTimer()
	}
}

func (l *Lobby) finish(at time.Time) {
	s := l.session
	l.log.Info("session finished",
		zap.String("status", string(s.Status)), zap.String("winner", s.Winner), zap.Bool("draw", s.IsDraw))
	l.opts.Metrics.SessionFinished(string(s.Kind), string(s.Status))
	if l.opts.Recorder != nil {
		if err := l.opts.Recorder.SessionFinished(l.ctx, s, at); err != nil {
			l.log.Error("failed to record session", zap.Error(err))
		}
	}
	if l.opts.OnFinished != nil {
		l.opts.OnFinished(s)
	}
}

func frameFor(s *game.Session, events []engine.Event) protocol.Inbound {
	if ev, ok := engine.FindEvent(events, engine.EvtGameCompleted); ok {
		return protocol.EndedEvent{SessionID: s.ID, Winner: ev.Winner, IsDraw: ev.IsDraw, Session: s}
	}
	if ev, ok := engine.FindEvent(events, engine.EvtTimedOut); ok {
		return protocol.TimeoutEvent{SessionID: s.ID, WinnerID: ev.Winner, Session: s}
	}
	if ev, ok := engine.FindEvent(events, engine.EvtForfeited); ok {
		return protocol.ForfeitedEvent{SessionID: s.ID, ForfeitedBy: ev.Player, Winner: ev.Winner, Session: s}
	}
	return protocol.UpdateEvent{Session: s}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotAPlayer):
		return protocol.CodeNotAPlayer
	case errors.Is(err, engine.ErrGameAlreadyCompleted):
		return protocol.CodeSessionEnded
	default:
		return protocol.CodeIllegalMove
	}
}

// armTimer replaces any running turn timer. Each arm bumps the generation
// so a fire already queued for the old turn is dropped.
func (l *Lobby) armTimer() {
	l.stopTimer()
	l.timerGen++
	gen := l.timerGen
	d := max(l.opts.Turn-l.opts.Clock.Since(l.session.TurnStartedAt), 0)
	l.timer = l.opts.Clock.AfterFunc(d, func() {
		select {
		case l.inbox <- TimerFired{Gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

func (l *Lobby) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Lobby) shutdown() {
	l.stopTimer()
	for id, c := range l.clients {
		close(c.outbox) // no more frames for this client
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(ev protocol.Inbound) {
	for id, c := range l.clients {
		l.sendTo(id, c.outbox, ev)
	}
}

// sendTo reports whether the frame was queued. A client whose outbox is
// full is dropped.
func (l *Lobby) sendTo(id string, outbox chan protocol.Inbound, ev protocol.Inbound) bool {
	select {
	case outbox <- ev:
		return true
	default:
		l.log.Warn("dropping slow client", zap.String("client", id))
		if _, ok := l.clients[id]; ok {
			close(outbox)
			delete(l.clients, id)
		}
		return false
	}
}
