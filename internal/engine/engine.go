package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/duel/internal/game"
)

var ErrWrongTurn = errors.New("invalid turn")
var ErrNotAPlayer = errors.New("not a player in this session")
var ErrNotStarted = errors.New("game has not started")
var ErrIllegalMove = errors.New("illegal move")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrGameAlreadyCompleted = errors.New("game already completed")

type CommandType string

const (
	CmdStart          CommandType = "Start"
	CmdMove           CommandType = "Move"
	CmdForfeit        CommandType = "Forfeit"
	CmdTimeoutAdvance CommandType = "TimeoutAdvance"
)

/*
	CmdStart          -> EvtGameStarted -> EvtTimerStarted
	CmdMove           -> EvtMovePlayed -> EvtTurnAdvanced -> EvtTimerStarted, or EvtGameCompleted
	CmdForfeit        -> EvtForfeited
	CmdTimeoutAdvance -> EvtTimerExpired -> EvtTimedOut
*/

type Command struct {
	Type   CommandType
	Player string
	Move   game.Move
	At     time.Time
}

type EventType string

const (
	EvtGameStarted   EventType = "GameStarted"
	EvtMovePlayed    EventType = "MovePlayed"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtTimerStarted  EventType = "TimerStarted"
	EvtTimerExpired  EventType = "TimerExpired"
	EvtGameCompleted EventType = "GameCompleted"
	EvtTimedOut      EventType = "TimedOut"
	EvtForfeited     EventType = "Forfeited"
)

type Event struct {
	Type   EventType
	Player string
	Winner string
	IsDraw bool
}

// Apply runs cmd against s and returns the events and the next state. s is
// never modified; on error it is returned as is.
func Apply(s *game.Session, cmd Command) ([]Event, *game.Session, error) {
	if s.Status.Terminal() {
		return nil, s, ErrGameAlreadyCompleted
	}
	if cmd.Player != "" && !s.HasPlayer(cmd.Player) {
		return nil, s, ErrNotAPlayer
	}

	next := s.Clone()
	switch cmd.Type {
	case CmdStart:
		if s.Status != game.StatusWaiting {
			return nil, s, ErrUnsupportedCommand
		}
		next.Status = game.StatusActive
		next.CurrentTurn = firstTurn(next)
		next.TurnStartedAt = cmd.At
		return []Event{{Type: EvtGameStarted}, {Type: EvtTimerStarted, Player: next.CurrentTurn}}, next, nil

	case CmdMove:
		if s.Status != game.StatusActive {
			return nil, s, ErrNotStarted
		}
		if s.CurrentTurn != cmd.Player {
			return nil, s, ErrWrongTurn
		}
		v, err := game.Lookup(s.Kind)
		if err != nil {
			return nil, s, err
		}
		m := cmd.Move
		if m.Type != "" {
			m.Word = game.NormalizeWord(m.Word)
		}
		if err := v.ValidateMove(s.State, cmd.Player, m); err != nil {
			return nil, s, fmt.Errorf("%w: %w", ErrIllegalMove, err)
		}

		var out outcome
		switch st := next.State.(type) {
		case *game.GridState:
			out = playGrid(next.Kind, st, cmd.Player, m)
		case *game.WordState:
			out = playWord(st, cmd.Player, m)
		default:
			return nil, s, game.ErrStateMismatch
		}

		events := []Event{{Type: EvtMovePlayed, Player: cmd.Player}}
		if out.done {
			complete(next, out.winner, out.draw)
			events = append(events, Event{Type: EvtGameCompleted, Winner: out.winner, IsDraw: out.draw})
			return events, next, nil
		}
		next.CurrentTurn = turnAfter(next, cmd.Player)
		next.TurnStartedAt = cmd.At
		events = append(events,
			Event{Type: EvtTurnAdvanced, Player: next.CurrentTurn},
			Event{Type: EvtTimerStarted, Player: next.CurrentTurn})
		return events, next, nil

	case CmdForfeit:
		if cmd.Player == "" {
			return nil, s, ErrNotAPlayer
		}
		next.Status = game.StatusAbandoned
		next.ForfeitedBy = cmd.Player
		next.CurrentTurn = ""
		// Nobody wins a game that never started.
		if s.Status == game.StatusActive {
			next.Winner = next.Opponent(cmd.Player)
			next.Scores = map[string]int{next.Winner: 1, cmd.Player: 0}
		}
		reveal(next)
		return []Event{{Type: EvtForfeited, Player: cmd.Player, Winner: next.Winner}}, next, nil

	case CmdTimeoutAdvance:
		if s.Status != game.StatusActive {
			return nil, s, ErrNotStarted
		}
		late := s.CurrentTurn
		next.Status = game.StatusTimedOut
		next.Winner = next.Opponent(late)
		next.CurrentTurn = ""
		next.Scores = map[string]int{next.Winner: 1, late: 0}
		reveal(next)
		return []Event{
			{Type: EvtTimerExpired, Player: late},
			{Type: EvtTimedOut, Player: late, Winner: next.Winner},
		}, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

type outcome struct {
	done   bool
	winner string
	draw   bool
}

func playGrid(kind game.Kind, g *game.GridState, player string, m game.Move) outcome {
	mark := g.Symbols[player]
	var row, col int
	if kind == game.KindConnectFour {
		col = *m.Column
		row = g.DropRow(col)
	} else {
		row, col = m.Cell.Row, m.Cell.Col
	}
	g.Board[row][col] = mark

	if checkLine(g.Board, row, col, winLength(kind)) {
		return outcome{done: true, winner: player}
	}
	if g.Full() {
		return outcome{done: true, draw: true}
	}
	return outcome{}
}

func playWord(w *game.WordState, player string, m game.Move) outcome {
	switch m.Type {
	case game.MoveSetWord:
		w.Secret = m.Word
		w.Phase = game.PhaseGuessing
		return outcome{}
	default:
		result := ScoreGuess(w.Secret, m.Word)
		w.Guesses = append(w.Guesses, game.Guess{Word: m.Word, Result: result})
		if solved(result) {
			return outcome{done: true, winner: player}
		}
		if w.GuessesLeft() == 0 {
			return outcome{done: true, winner: w.Setter}
		}
		return outcome{}
	}
}

// ScoreGuess marks each letter of guess against secret. Repeated letters are
// only marked present as many times as they occur unmatched in the secret.
func ScoreGuess(secret, guess string) []game.LetterResult {
	result := make([]game.LetterResult, len(guess))
	unmatched := map[byte]int{}
	for i := 0; i < len(guess); i++ {
		if i < len(secret) && guess[i] == secret[i] {
			result[i] = game.LetterCorrect
			continue
		}
		if i < len(secret) {
			unmatched[secret[i]]++
		}
	}
	for i := 0; i < len(guess); i++ {
		if result[i] == game.LetterCorrect {
			continue
		}
		if unmatched[guess[i]] > 0 {
			unmatched[guess[i]]--
			result[i] = game.LetterPresent
		} else {
			result[i] = game.LetterAbsent
		}
	}
	return result
}

func solved(result []game.LetterResult) bool {
	for _, r := range result {
		if r != game.LetterCorrect {
			return false
		}
	}
	return len(result) > 0
}

func complete(s *game.Session, winner string, draw bool) {
	s.Status = game.StatusCompleted
	s.CurrentTurn = ""
	s.Winner = winner
	s.IsDraw = draw
	s.Scores = map[string]int{s.Players[0]: 0, s.Players[1]: 0}
	if winner != "" {
		s.Scores[winner] = 1
	}
	reveal(s)
}

// reveal publishes the word duel answer once the session is over.
func reveal(s *game.Session) {
	if w, ok := s.State.(*game.WordState); ok && w.Secret != "" {
		w.Answer = w.Secret
	}
}
