// Package store holds the local cache of one game session.
//
// The cache is only ever replaced from inbound protocol events; nothing on
// the client side patches it. A Store is owned by a single goroutine (the
// screen loop) and is not safe for concurrent use.
package store

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/protocol"
)

var ErrMalformedEvent = errors.New("malformed event")
var ErrNoSession = errors.New("no session cached")
var ErrSessionMismatch = errors.New("event is for another session")

type ChangeKind string

const (
	// ChangeSnapshot: a state or update event replaced the cache.
	ChangeSnapshot ChangeKind = "snapshot"
	// ChangeTerminal: an ended, timeout or forfeited event closed the session.
	ChangeTerminal ChangeKind = "terminal"
	// ChangeIgnored: the event was older than the cache and was dropped.
	ChangeIgnored ChangeKind = "ignored"
	// ChangeRejected: the service reported an error; the cache is untouched.
	ChangeRejected ChangeKind = "rejected"
	// ChangeStale: the transport dropped; the cache is kept but marked stale.
	ChangeStale ChangeKind = "stale"
)

// Change describes what one Apply did. Session is a copy of the cache after
// the event, nil if nothing is cached.
type Change struct {
	Kind      ChangeKind
	Session   *game.Session
	Rejection *protocol.ErrorEvent
}

type Store struct {
	current *game.Session
	stale   bool
}

func New() *Store {
	return &Store{}
}

// Session returns a copy of the cached session, or nil.
func (s *Store) Session() *game.Session {
	return s.current.Clone()
}

// Stale reports whether inbound delivery stopped since the last snapshot.
func (s *Store) Stale() bool {
	return s.stale
}

// Apply is the single mutation point of the store. On error the cache is
// left as it was.
func (s *Store) Apply(ev protocol.Inbound) (Change, error) {
	switch e := ev.(type) {
	case protocol.StateEvent:
		return s.applySnapshot(e.Session)
	case protocol.UpdateEvent:
		return s.applySnapshot(e.Session)
	case protocol.EndedEvent:
		winner, draw := e.Winner, e.IsDraw
		if winner == "" && !draw && e.Session != nil {
			winner, draw = e.Session.Winner, e.Session.IsDraw
		}
		return s.applyTerminal(e.SessionID, e.Session, func(n *game.Session) {
			n.Status = game.StatusCompleted
			n.Winner = winner
			n.IsDraw = draw
		})
	case protocol.TimeoutEvent:
		winner := carriedWinner(e.WinnerID, e.Session)
		return s.applyTerminal(e.SessionID, e.Session, func(n *game.Session) {
			n.Status = game.StatusTimedOut
			n.Winner = winner
			n.IsDraw = false
		})
	case protocol.ForfeitedEvent:
		winner := carriedWinner(e.Winner, e.Session)
		return s.applyTerminal(e.SessionID, e.Session, func(n *game.Session) {
			n.Status = game.StatusAbandoned
			n.ForfeitedBy = e.ForfeitedBy
			n.Winner = winner
			n.IsDraw = false
		})
	case protocol.ErrorEvent:
		return Change{Kind: ChangeRejected, Session: s.Session(), Rejection: &e}, nil
	case protocol.Disconnected:
		s.stale = true
		return Change{Kind: ChangeStale, Session: s.Session()}, nil
	default:
		return Change{}, fmt.Errorf("%w: unsupported event %T", ErrMalformedEvent, ev)
	}
}

func (s *Store) applySnapshot(next *game.Session) (Change, error) {
	if next == nil {
		return Change{}, fmt.Errorf("%w: snapshot without session", ErrMalformedEvent)
	}
	if err := next.Validate(); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if cur := s.current; cur != nil {
		if cur.ID != next.ID {
			return Change{}, fmt.Errorf("%w: have %s, got %s", ErrSessionMismatch, cur.ID, next.ID)
		}
		if next.Version < cur.Version ||
			next.TurnStartedAt.Before(cur.TurnStartedAt) ||
			(cur.Status.Terminal() && !next.Status.Terminal()) {
			return Change{Kind: ChangeIgnored, Session: s.Session()}, nil
		}
	}
	s.current = next.Clone()
	s.stale = false
	return Change{Kind: ChangeSnapshot, Session: s.Session()}, nil
}

func (s *Store) applyTerminal(sessionID string, carried *game.Session, outcome func(*game.Session)) (Change, error) {
	var next *game.Session
	switch {
	case carried != nil:
		next = carried.Clone()
	case s.current != nil:
		next = s.current.Clone()
	default:
		return Change{}, ErrNoSession
	}
	if sessionID != "" && sessionID != next.ID {
		return Change{}, fmt.Errorf("%w: frame %s, session %s", ErrMalformedEvent, sessionID, next.ID)
	}
	if s.current != nil && s.current.ID != next.ID {
		return Change{}, fmt.Errorf("%w: have %s, got %s", ErrSessionMismatch, s.current.ID, next.ID)
	}
	outcome(next)
	next.CurrentTurn = ""
	if err := next.Validate(); err != nil {
		return Change{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	s.current = next
	s.stale = false
	return Change{Kind: ChangeTerminal, Session: s.Session()}, nil
}

// carriedWinner prefers the frame's winner and falls back to the one in the
// carried session.
func carriedWinner(winner string, carried *game.Session) string {
	if winner == "" && carried != nil {
		return carried.Winner
	}
	return winner
}
