package submit

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/duel/internal/failure"
	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/game/gametest"
	"github.com/DoyleJ11/duel/internal/protocol"
)

type recordingSender struct {
	sent []protocol.Outbound
	err  error
}

func (r *recordingSender) Send(o protocol.Outbound) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, o)
	return nil
}

func TestSubmit_ForwardsOwnTurnEmptyCell(t *testing.T) {
	sender := &recordingSender{}
	sub := New(gametest.Self, sender, nil, nil)
	sess := gametest.Active(game.KindTicTacToe, gametest.Self)
	before := sess.Clone()

	require.NoError(t, sub.Submit(sess, game.PlaceAt(0, 0)))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, protocol.MoveIntent{SessionID: "sess-1", Move: game.PlaceAt(0, 0)}, sender.sent[0])
	assert.Equal(t, before, sess, "no optimistic mutation")
}

func TestSubmit_PartnersTurnMakesNoNetworkCall(t *testing.T) {
	sender := &recordingSender{}
	var feedback []error
	sub := New(gametest.Self, sender, func(err error) { feedback = append(feedback, err) }, nil)
	sess := gametest.Active(game.KindTicTacToe, gametest.Partner)
	before := sess.Clone()

	err := sub.Submit(sess, game.PlaceAt(1, 1))

	assert.ErrorIs(t, err, failure.ErrLocalValidation)
	assert.Empty(t, sender.sent)
	assert.Len(t, feedback, 1)
	assert.Equal(t, before, sess)
}

func TestSubmit_WordSettingLength(t *testing.T) {
	sender := &recordingSender{}
	sub := New(gametest.Self, sender, nil, nil)
	sess := gametest.Word(gametest.Active(game.KindWordDuel, gametest.Self), game.PhaseSetting)

	err := sub.Submit(sess, game.SetWord("CAT"))
	assert.ErrorIs(t, err, failure.ErrLocalValidation)
	assert.ErrorIs(t, err, game.ErrWordLength)
	assert.Empty(t, sender.sent)

	require.NoError(t, sub.Submit(sess, game.SetWord("CRANE")))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, protocol.MoveIntent{SessionID: "sess-1", Move: game.Move{Type: game.MoveSetWord, Word: "CRANE"}}, sender.sent[0])
}

func TestSubmit_WordCaseMappingCannotChangeLength(t *testing.T) {
	sender := &recordingSender{}
	sub := New(gametest.Self, sender, nil, nil)
	sess := gametest.Word(gametest.Active(game.KindWordDuel, gametest.Self), game.PhaseSetting)

	for _, word := range []string{"stuß", "ﬁne", "ﬁnal"} {
		err := sub.Submit(sess, game.SetWord(word))
		assert.ErrorIs(t, err, failure.ErrLocalValidation, word)
	}
	assert.Empty(t, sender.sent)
}

func TestSubmitDraft_ClearsBufferOnlyWhenForwarded(t *testing.T) {
	sender := &recordingSender{}
	sub := New(gametest.Partner, sender, nil, nil)
	sess := gametest.Word(gametest.Active(game.KindWordDuel, gametest.Partner), game.PhaseGuessing)

	sub.SetDraft("pl4nt")
	require.Error(t, sub.SubmitDraft(sess, game.MoveGuess))
	assert.Equal(t, "pl4nt", sub.Draft())

	sub.SetDraft(" plant ")
	require.NoError(t, sub.SubmitDraft(sess, game.MoveGuess))
	assert.Empty(t, sub.Draft())
	assert.Equal(t, game.GuessWord("PLANT"), sender.sent[0].(protocol.MoveIntent).Move)
}

func TestSubmit_GuessOnlyByGuesser(t *testing.T) {
	sender := &recordingSender{}
	sub := New(gametest.Self, sender, nil, nil)
	// alice is the setter in fixtures; even on her turn she may not guess.
	sess := gametest.Word(gametest.Active(game.KindWordDuel, gametest.Self), game.PhaseGuessing)

	err := sub.Submit(sess, game.GuessWord("PLANT"))
	assert.ErrorIs(t, err, game.ErrNotGuesser)
	assert.Empty(t, sender.sent)
}

func TestSubmit_SendFailureKeepsDraft(t *testing.T) {
	sender := &recordingSender{err: failure.New(failure.TransportFailure, "closed")}
	sub := New(gametest.Self, sender, nil, nil)
	sess := gametest.Word(gametest.Active(game.KindWordDuel, gametest.Self), game.PhaseSetting)
	sub.SetDraft("CRANE")

	err := sub.SubmitDraft(sess, game.MoveSetWord)
	assert.ErrorIs(t, err, failure.ErrTransport)
	assert.Equal(t, "CRANE", sub.Draft())
}

// expectForward is an independent statement of when a move may go out.
func expectForward(s *game.Session, self string, m game.Move) bool {
	if s.Status != game.StatusActive || s.CurrentTurn != self {
		return false
	}
	switch st := s.State.(type) {
	case *game.GridState:
		if m.Type != "" {
			return false
		}
		if s.Kind == game.KindTicTacToe {
			if m.Cell == nil || m.Column != nil {
				return false
			}
			r, c := m.Cell.Row, m.Cell.Col
			return r >= 0 && r < 3 && c >= 0 && c < 3 && st.Board[r][c] == game.Empty
		}
		if m.Column == nil || m.Cell != nil {
			return false
		}
		c := *m.Column
		if c < 0 || c >= 7 {
			return false
		}
		for r := 0; r < 6; r++ {
			if st.Board[r][c] == game.Empty {
				return true
			}
		}
		return false
	case *game.WordState:
		if m.Cell != nil || m.Column != nil {
			return false
		}
		w := strings.ToUpper(strings.TrimSpace(m.Word))
		if len(w) != 5 || strings.Trim(w, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") != "" {
			return false
		}
		switch m.Type {
		case game.MoveSetWord:
			return st.Phase == game.PhaseSetting && st.Setter == self
		case game.MoveGuess:
			return st.Phase == game.PhaseGuessing && st.Guesser == self
		}
		return false
	}
	return false
}

func randomSession(rng *rand.Rand) *game.Session {
	kinds := []game.Kind{game.KindTicTacToe, game.KindConnectFour, game.KindWordDuel}
	statuses := []game.Status{game.StatusWaiting, game.StatusActive, game.StatusCompleted, game.StatusTimedOut, game.StatusAbandoned}
	players := []string{gametest.Self, gametest.Partner}

	s := gametest.Session(kinds[rng.Intn(len(kinds))], statuses[rng.Intn(len(statuses))], "")
	if s.Status == game.StatusActive {
		s.CurrentTurn = players[rng.Intn(2)]
	}
	switch st := s.State.(type) {
	case *game.GridState:
		for r := range st.Board {
			for c := range st.Board[r] {
				if rng.Intn(3) == 0 {
					st.Board[r][c] = game.Mark([]string{"X", "O"}[rng.Intn(2)])
				}
			}
		}
	case *game.WordState:
		st.Phase = []game.WordPhase{game.PhaseSetting, game.PhaseGuessing}[rng.Intn(2)]
		if rng.Intn(2) == 0 {
			st.Setter, st.Guesser = st.Guesser, st.Setter
		}
	}
	return s
}

func randomMove(rng *rand.Rand) game.Move {
	words := []string{"CRANE", "crane", "CAT", "PL4NT", "", "GRAPES", " slate ", "ÉCRAN", "plant", "stuß", "ﬁne", "ﬁnal"}
	switch rng.Intn(4) {
	case 0:
		return game.PlaceAt(rng.Intn(5)-1, rng.Intn(5)-1)
	case 1:
		return game.DropIn(rng.Intn(9) - 1)
	case 2:
		return game.Move{
			Type: []game.MoveType{game.MoveSetWord, game.MoveGuess, "shout"}[rng.Intn(3)],
			Word: words[rng.Intn(len(words))],
		}
	default:
		m := game.PlaceAt(0, 0)
		m.Type = game.MoveGuess
		m.Word = "CRANE"
		return m
	}
}

func TestSubmit_ForwardsExactlyWhenAllowed(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	forwarded := 0
	for i := 0; i < 5000; i++ {
		sess := randomSession(rng)
		move := randomMove(rng)
		sender := &recordingSender{}
		sub := New(gametest.Self, sender, nil, nil)

		err := sub.Submit(sess, move)
		want := expectForward(sess, gametest.Self, move)

		if want {
			forwarded++
			if err != nil || len(sender.sent) != 1 {
				t.Fatalf("case %d: expected forward of %+v on %s/%s turn=%s, got err=%v sent=%d",
					i, move, sess.Kind, sess.Status, sess.CurrentTurn, err, len(sender.sent))
			}
			continue
		}
		if len(sender.sent) != 0 {
			t.Fatalf("case %d: unexpected network call for %+v on %s/%s turn=%s",
				i, move, sess.Kind, sess.Status, sess.CurrentTurn)
		}
		var fe *failure.Error
		if !errors.As(err, &fe) || fe.Kind != failure.LocalValidationFailure {
			t.Fatalf("case %d: want local validation failure, got %v", i, err)
		}
	}
	assert.Positive(t, forwarded, "generator should produce some legal moves")
}
