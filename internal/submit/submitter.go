// Package submit turns local move attempts into move intents.
package submit

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/duel/internal/failure"
	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/protocol"
)

// Sender is the outbound half of a session connection.
type Sender interface {
	Send(protocol.Outbound) error
}

// Feedback is told about every locally rejected move, e.g. to buzz or flash
// the input. It must not block.
type Feedback func(err error)

// Submitter pre-checks moves against the cached session and forwards the ones
// that pass. It never touches the session itself.
type Submitter struct {
	self     string
	sender   Sender
	feedback Feedback
	log      *zap.Logger
	draft    string
}

func New(self string, sender Sender, feedback Feedback, log *zap.Logger) *Submitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{self: self, sender: sender, feedback: feedback, log: log.Named("submit")}
}

// SetSender swaps the outbound connection, e.g. after a refresh.
func (s *Submitter) SetSender(sender Sender) { s.sender = sender }

// Draft is the pending word input for the word game.
func (s *Submitter) Draft() string { return s.draft }

func (s *Submitter) SetDraft(word string) { s.draft = word }

// Check reports why m cannot be sent for sess, or nil if it may be.
func (s *Submitter) Check(sess *game.Session, m game.Move) error {
	if sess == nil {
		return failure.New(failure.LocalValidationFailure, "no session")
	}
	if sess.Status != game.StatusActive {
		return failure.New(failure.LocalValidationFailure, fmt.Sprintf("session is %s", sess.Status))
	}
	if sess.CurrentTurn != s.self {
		return failure.New(failure.LocalValidationFailure, "not your turn")
	}
	v, err := game.Lookup(sess.Kind)
	if err != nil {
		return failure.Wrap(failure.LocalValidationFailure, "unsupported game", err)
	}
	if err := v.ValidateMove(sess.State, s.self, m); err != nil {
		return failure.Wrap(failure.LocalValidationFailure, "illegal move", err)
	}
	return nil
}

// Submit forwards m as an intent when Check passes. Rejections are returned
// as LocalValidationFailure and reported to the feedback hook; no network
// call is made for them. A forwarded move clears the draft.
func (s *Submitter) Submit(sess *game.Session, m game.Move) error {
	if m.Type != "" {
		m.Word = game.NormalizeWord(m.Word)
	}
	if err := s.Check(sess, m); err != nil {
		s.log.Debug("move rejected locally", zap.Error(err))
		if s.feedback != nil {
			s.feedback(err)
		}
		return err
	}
	if s.sender == nil {
		return failure.New(failure.TransportFailure, "not connected")
	}
	if err := s.sender.Send(protocol.MoveIntent{SessionID: sess.ID, Move: m}); err != nil {
		return err
	}
	s.draft = ""
	s.log.Debug("move forwarded", zap.String("session", sess.ID))
	return nil
}

// SubmitDraft sends the draft word as a setWord or guess move.
func (s *Submitter) SubmitDraft(sess *game.Session, typ game.MoveType) error {
	return s.Submit(sess, game.Move{Type: typ, Word: s.draft})
}
