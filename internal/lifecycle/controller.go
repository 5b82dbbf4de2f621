// Package lifecycle drives one game screen: it acquires a session, keeps the
// store, timer and submitter in step with inbound events, and publishes views.
//
// All state is owned by a single loop goroutine. Connection goroutines and
// callers only talk to it through the inbox.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/duel/internal/conn"
	"github.com/DoyleJ11/duel/internal/failure"
	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/protocol"
	"github.com/DoyleJ11/duel/internal/store"
	"github.com/DoyleJ11/duel/internal/submit"
	"github.com/DoyleJ11/duel/internal/turntimer"
)

type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseLoading       Phase = "loading"
	PhaseWaiting       Phase = "waiting"
	PhaseActive        Phase = "active"
	PhaseCompleted     Phase = "completed"
	PhaseTimedOut      Phase = "timedOut"
	PhaseAbandoned     Phase = "abandoned"
	PhaseFailed        Phase = "failed"
)

// Finished reports whether the session shown in this phase is over.
func (p Phase) Finished() bool {
	return p == PhaseCompleted || p == PhaseTimedOut || p == PhaseAbandoned
}

func phaseFor(s game.Status) Phase {
	switch s {
	case game.StatusWaiting:
		return PhaseWaiting
	case game.StatusActive:
		return PhaseActive
	case game.StatusCompleted:
		return PhaseCompleted
	case game.StatusTimedOut:
		return PhaseTimedOut
	case game.StatusAbandoned:
		return PhaseAbandoned
	}
	return PhaseFailed
}

var ErrClosed = errors.New("controller closed")
var ErrWrongPhase = errors.New("not allowed in this phase")

// Connection is an open session channel.
type Connection interface {
	Join(sessionID string) error
	Send(protocol.Outbound) error
	Close() error
}

// Dialer opens a connection whose inbound events go to dispatch.
type Dialer func(ctx context.Context, dispatch conn.Dispatch) (Connection, error)

// Sessions is the request/response side of the game service.
type Sessions interface {
	CreateSession(ctx context.Context, kind game.Kind, partnerID string) (*game.Session, error)
	ActiveSession(ctx context.Context, kind game.Kind, partnerID string) (*game.Session, error)
}

type Config struct {
	Self         string
	Partner      string
	Kind         game.Kind
	TurnDuration time.Duration
	TickInterval time.Duration
	ViewBuffer   int
	Clock        clock.Clock
}

// View is what the screen renders. Session is a private copy.
type View struct {
	Phase     Phase
	Session   *game.Session
	Remaining time.Duration
	// Turn is the full per-turn duration Remaining counts down from.
	Turn time.Duration
	// TimeUp is set once the visible countdown of an active turn hits
	// zero. The session stays active until the service ends it.
	TimeUp bool
	Stale  bool
	Draft  string
	// Err is the last connection or acquisition failure.
	Err error
	// Notice is the last rejected move, local or remote.
	Notice error
}

type msg interface{ isControllerMsg() }

type inbound struct {
	gen int
	ev  protocol.Inbound
}

type activate struct {
	ctx   context.Context
	reply chan error
}

type submitMove struct {
	move  game.Move
	reply chan error
}

type submitDraft struct {
	typ   game.MoveType
	reply chan error
}

type setDraft struct{ word string }

type forfeit struct{ reply chan error }

type playAgain struct {
	ctx   context.Context
	reply chan error
}

type refresh struct {
	ctx   context.Context
	reply chan error
}

type getView struct{ reply chan View }

func (inbound) isControllerMsg()     {}
func (activate) isControllerMsg()    {}
func (submitMove) isControllerMsg()  {}
func (submitDraft) isControllerMsg() {}
func (setDraft) isControllerMsg()    {}
func (forfeit) isControllerMsg()     {}
func (playAgain) isControllerMsg()   {}
func (refresh) isControllerMsg()     {}
func (getView) isControllerMsg()     {}

type Controller struct {
	cfg      Config
	dial     Dialer
	sessions Sessions
	log      *zap.Logger

	inbox chan msg
	views chan View
	ctx   context.Context
	stop  context.CancelFunc
	done  chan struct{}

	// loop-owned
	phase  Phase
	store  *store.Store
	timer  *turntimer.Timer
	sub    *submit.Submitter
	conn   Connection
	gen    int
	err    error
	notice error
}

func New(cfg Config, dial Dialer, sessions Sessions, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.TurnDuration <= 0 {
		cfg.TurnDuration = 30 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ViewBuffer <= 0 {
		cfg.ViewBuffer = 8
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      cfg,
		dial:     dial,
		sessions: sessions,
		log:      log.Named("lifecycle").With(zap.String("self", cfg.Self), zap.String("kind", string(cfg.Kind))),
		inbox:    make(chan msg, 64),
		views:    make(chan View, cfg.ViewBuffer),
		ctx:      ctx,
		stop:     cancel,
		done:     make(chan struct{}),
		phase:    PhaseUninitialized,
		store:    store.New(),
		timer:    turntimer.New(cfg.Clock, cfg.TurnDuration),
	}
	c.sub = submit.New(cfg.Self, nil, func(err error) { c.notice = err }, log)
	go c.loop()
	return c
}

// Views delivers a view after every change. When the reader falls behind the
// oldest views are dropped. The channel is closed by Close.
func (c *Controller) Views() <-chan View { return c.views }

// Activate connects and acquires the session with the configured partner,
// reusing an open one or creating a new one.
func (c *Controller) Activate(ctx context.Context) error {
	return c.request(ctx, func(r chan error) msg { return activate{ctx: ctx, reply: r} })
}

func (c *Controller) Submit(ctx context.Context, m game.Move) error {
	return c.request(ctx, func(r chan error) msg { return submitMove{move: m, reply: r} })
}

// SubmitDraft sends the pending word as a setWord or guess move.
func (c *Controller) SubmitDraft(ctx context.Context, typ game.MoveType) error {
	return c.request(ctx, func(r chan error) msg { return submitDraft{typ: typ, reply: r} })
}

func (c *Controller) SetDraft(word string) {
	select {
	case c.inbox <- setDraft{word: word}:
	case <-c.done:
	}
}

func (c *Controller) Forfeit(ctx context.Context) error {
	return c.request(ctx, func(r chan error) msg { return forfeit{reply: r} })
}

// PlayAgain starts a new session with the same partner and game once the
// current one is over.
func (c *Controller) PlayAgain(ctx context.Context) error {
	return c.request(ctx, func(r chan error) msg { return playAgain{ctx: ctx, reply: r} })
}

// Refresh replaces the connection and re-acquires the current session.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.request(ctx, func(r chan error) msg { return refresh{ctx: ctx, reply: r} })
}

func (c *Controller) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case c.inbox <- getView{reply: reply}:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		return View{}, ErrClosed
	}
}

// Close stops the loop, closes the connection and waits for both.
func (c *Controller) Close() {
	c.stop()
	<-c.done
}

func (c *Controller) request(ctx context.Context, build func(chan error) msg) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- build(reply):
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Controller) loop() {
	ticker := c.cfg.Clock.Ticker(c.cfg.TickInterval)
	defer func() {
		ticker.Stop()
		c.teardown()
		close(c.views)
		close(c.done)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case <-ticker.C:
			if c.phase == PhaseActive && c.timer.Running() {
				c.publish()
			}

		case m := <-c.inbox:
			switch m := m.(type) {
			case inbound:
				if m.gen != c.gen {
					c.log.Debug("dropping event from replaced connection", zap.Int("gen", m.gen))
					break
				}
				c.handle(m.ev)
				c.publish()

			case activate:
				m.reply <- c.activate(m.ctx)
				c.publish()

			case submitMove:
				m.reply <- c.sub.Submit(c.store.Session(), m.move)
				c.publish()

			case submitDraft:
				m.reply <- c.sub.SubmitDraft(c.store.Session(), m.typ)
				c.publish()

			case setDraft:
				c.sub.SetDraft(m.word)

			case forfeit:
				m.reply <- c.forfeit()
				c.publish()

			case playAgain:
				m.reply <- c.playAgain(m.ctx)
				c.publish()

			case refresh:
				m.reply <- c.refresh(m.ctx)
				c.publish()

			case getView:
				m.reply <- c.view()
			}
		}
	}
}

func (c *Controller) activate(ctx context.Context) error {
	if c.phase != PhaseUninitialized {
		return fmt.Errorf("%w: already activated", ErrWrongPhase)
	}
	if err := c.connect(ctx); err != nil {
		return c.fail(err)
	}
	c.phase = PhaseLoading

	sess, err := c.acquire(ctx)
	if err != nil {
		return c.fail(err)
	}
	return c.adopt(sess)
}

// acquire returns the open session with the partner, creating one if there
// is none.
func (c *Controller) acquire(ctx context.Context) (*game.Session, error) {
	active, findErr := c.sessions.ActiveSession(ctx, c.cfg.Kind, c.cfg.Partner)
	if findErr == nil && active != nil {
		if err := c.checkPairing(active, c.cfg.Kind); err != nil {
			return nil, err
		}
		c.log.Info("resuming session", zap.String("session", active.ID))
		return active, nil
	}
	if errors.Is(findErr, failure.ErrAuth) {
		return nil, findErr
	}

	created, createErr := c.sessions.CreateSession(ctx, c.cfg.Kind, c.cfg.Partner)
	if createErr != nil {
		if errors.Is(createErr, failure.ErrAuth) {
			return nil, createErr
		}
		return nil, failure.Wrap(failure.SessionUnavailable, "could not find or create a session", multierr.Combine(findErr, createErr))
	}
	if err := c.checkPairing(created, c.cfg.Kind); err != nil {
		return nil, err
	}
	c.log.Info("created session", zap.String("session", created.ID))
	return created, nil
}

func (c *Controller) checkPairing(s *game.Session, kind game.Kind) error {
	if s.Kind != kind || !s.HasPlayer(c.cfg.Self) || !s.HasPlayer(c.cfg.Partner) {
		return failure.New(failure.SessionUnavailable,
			fmt.Sprintf("service returned %s session for %v", s.Kind, s.Players))
	}
	return nil
}

// adopt makes sess the cached session on a fresh store and joins it.
func (c *Controller) adopt(sess *game.Session) error {
	c.store = store.New()
	c.timer.Stop()
	c.handle(protocol.StateEvent{Session: sess})
	if c.store.Session() == nil {
		return c.fail(failure.New(failure.SessionUnavailable, "service returned an invalid session"))
	}
	if err := c.conn.Join(sess.ID); err != nil {
		c.err = err
		return err
	}
	c.err = nil
	return nil
}

func (c *Controller) connect(ctx context.Context) error {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Debug("closing previous connection", zap.Error(err))
		}
		c.conn = nil
		c.sub.SetSender(nil)
	}
	c.gen++
	gen := c.gen
	cn, err := c.dial(ctx, func(ctx context.Context, ev protocol.Inbound) {
		select {
		case c.inbox <- inbound{gen: gen, ev: ev}:
		case <-ctx.Done():
		case <-c.ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	c.conn = cn
	c.sub.SetSender(cn)
	return nil
}

// handle applies one inbound event and brings phase and timer in line with
// the result.
func (c *Controller) handle(ev protocol.Inbound) {
	ch, err := c.store.Apply(ev)
	if err != nil {
		c.log.Warn("event refused", zap.String("event", fmt.Sprintf("%T", ev)), zap.Error(err))
		return
	}

	switch ch.Kind {
	case store.ChangeSnapshot:
		sess := ch.Session
		c.phase = phaseFor(sess.Status)
		if sess.Status != game.StatusActive {
			c.timer.Stop()
			break
		}
		// Every update restarts the countdown, redeliveries included.
		if _, isUpdate := ev.(protocol.UpdateEvent); isUpdate {
			c.timer.Reset()
		} else {
			c.timer.Sync(sess.TurnStartedAt)
		}

	case store.ChangeTerminal:
		c.timer.Stop()
		c.phase = phaseFor(ch.Session.Status)
		c.log.Info("session over",
			zap.String("session", ch.Session.ID),
			zap.String("status", string(ch.Session.Status)),
			zap.String("winner", ch.Session.Winner))

	case store.ChangeRejected:
		r := ch.Rejection
		c.notice = failure.New(failure.RejectedMove, r.Message)
		c.log.Info("service rejected request", zap.String("code", r.Code), zap.String("request", r.RequestID))

	case store.ChangeStale:
		if d, ok := ev.(protocol.Disconnected); ok && d.Err != nil {
			c.err = d.Err
		} else {
			c.err = failure.New(failure.TransportFailure, "connection lost")
		}

	case store.ChangeIgnored:
		c.log.Debug("dropping out-of-date snapshot")
	}
}

func (c *Controller) forfeit() error {
	sess := c.store.Session()
	if sess == nil || sess.Status.Terminal() {
		return failure.New(failure.LocalValidationFailure, "nothing to forfeit")
	}
	if c.conn == nil {
		return failure.New(failure.TransportFailure, "not connected")
	}
	return c.conn.Send(protocol.Forfeit{SessionID: sess.ID})
}

func (c *Controller) playAgain(ctx context.Context) error {
	if !c.phase.Finished() {
		return fmt.Errorf("%w: %s", ErrWrongPhase, c.phase)
	}
	old := c.store.Session()
	finished := c.phase
	// A failed rematch leaves the finished session on screen.
	abort := func(err error) error {
		c.phase = finished
		c.err = err
		return err
	}
	c.phase = PhaseLoading
	c.publish()

	if c.conn == nil || c.store.Stale() {
		if err := c.connect(ctx); err != nil {
			return abort(err)
		}
	}

	created, err := c.sessions.CreateSession(ctx, old.Kind, c.cfg.Partner)
	if err != nil {
		if !errors.Is(err, failure.ErrAuth) {
			err = failure.Wrap(failure.SessionUnavailable, "could not start a new session", err)
		}
		return abort(err)
	}
	if err := c.checkPairing(created, old.Kind); err != nil {
		return abort(err)
	}
	if created.ID == old.ID {
		return abort(failure.New(failure.SessionUnavailable, "service returned the finished session"))
	}
	c.notice = nil
	c.log.Info("rematch", zap.String("previous", old.ID), zap.String("session", created.ID))
	return c.adopt(created)
}

func (c *Controller) refresh(ctx context.Context) error {
	switch c.phase {
	case PhaseUninitialized, PhaseLoading:
		return fmt.Errorf("%w: %s", ErrWrongPhase, c.phase)
	}
	cur := c.store.Session()
	if err := c.connect(ctx); err != nil {
		if failure.IsFatal(err) {
			return c.fail(err)
		}
		c.err = err
		return err
	}
	if cur == nil {
		c.phase = PhaseLoading
		sess, err := c.acquire(ctx)
		if err != nil {
			return c.fail(err)
		}
		return c.adopt(sess)
	}

	fetched, err := c.sessions.ActiveSession(ctx, cur.Kind, c.cfg.Partner)
	switch {
	case errors.Is(err, failure.ErrAuth):
		return c.fail(err)
	case err != nil:
		c.log.Warn("refresh fetch failed; relying on join snapshot", zap.Error(err))
	case fetched != nil && fetched.ID == cur.ID:
		c.handle(protocol.StateEvent{Session: fetched})
	}

	if err := c.conn.Join(cur.ID); err != nil {
		c.err = err
		return err
	}
	c.err = nil
	return nil
}

// fail records a failure. Fatal ones end the screen.
func (c *Controller) fail(err error) error {
	c.err = err
	if failure.IsFatal(err) {
		c.phase = PhaseFailed
		c.timer.Stop()
	}
	c.log.Warn("session failure", zap.Error(err))
	return err
}

func (c *Controller) teardown() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.log.Debug("closing connection", zap.Error(err))
	}
	c.conn = nil
}

func (c *Controller) view() View {
	return View{
		Phase:     c.phase,
		Session:   c.store.Session(),
		Remaining: c.timer.Remaining(),
		Turn:      c.timer.Duration(),
		TimeUp:    c.timer.Expired(),
		Stale:     c.store.Stale(),
		Draft:     c.sub.Draft(),
		Err:       c.err,
		Notice:    c.notice,
	}
}

func (c *Controller) publish() {
	v := c.view()
	for {
		select {
		case c.views <- v:
			return
		default:
			select {
			case <-c.views:
			default:
			}
		}
	}
}
