// Package gametest builds sessions for tests.
package gametest

import (
	"time"

	"github.com/DoyleJ11/duel/internal/game"
)

const (
	Self    = "alice"
	Partner = "bob"
)

var Epoch = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

// Session returns a session between Self and Partner with a fresh board.
func Session(kind game.Kind, status game.Status, turn string) *game.Session {
	v, err := game.Lookup(kind)
	if err != nil {
		panic(err)
	}
	s := &game.Session{
		ID:            "sess-1",
		Kind:          kind,
		Status:        status,
		Players:       [2]string{Self, Partner},
		TurnStartedAt: Epoch,
		Version:       1,
		CreatedAt:     Epoch,
	}
	s.State = v.NewState(s.Players)
	if status == game.StatusActive {
		s.CurrentTurn = turn
	}
	return s
}

func Active(kind game.Kind, turn string) *game.Session {
	return Session(kind, game.StatusActive, turn)
}

// Next returns a copy of s one accepted move later: version bumped, turn
// flipped and the turn clock restarted d after the previous one.
func Next(s *game.Session, d time.Duration, mutate func(game.State)) *game.Session {
	n := s.Clone()
	n.Version++
	n.TurnStartedAt = s.TurnStartedAt.Add(d)
	if n.Status == game.StatusActive {
		n.CurrentTurn = n.Opponent(s.CurrentTurn)
	}
	if mutate != nil {
		mutate(n.State)
	}
	return n
}

// Word sets the word duel phase on s.
func Word(s *game.Session, phase game.WordPhase) *game.Session {
	s.State.(*game.WordState).Phase = phase
	return s
}
