package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var ErrUnknownKind = errors.New("unknown game kind")
var ErrStateMismatch = errors.New("state does not match game kind")
var ErrMalformedMove = errors.New("malformed move")
var ErrOutOfBounds = errors.New("target outside the board")
var ErrCellOccupied = errors.New("cell already occupied")
var ErrColumnFull = errors.New("column is full")
var ErrWrongPhase = errors.New("move not allowed in this phase")
var ErrNotGuesser = errors.New("only the guesser may guess")
var ErrNotSetter = errors.New("only the setter may set the word")
var ErrWordLength = errors.New("word has the wrong length")
var ErrWordLetters = errors.New("word must contain letters only")

type MoveType string

const (
	MoveSetWord MoveType = "setWord"
	MoveGuess   MoveType = "guess"
)

type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Move is the kind-specific payload of a move intent. Grid games use Cell or
// Column, the word game uses Type and Word.
type Move struct {
	Cell   *Cell    `json:"cell,omitempty"`
	Column *int     `json:"column,omitempty"`
	Type   MoveType `json:"type,omitempty"`
	Word   string   `json:"word,omitempty"`
}

func PlaceAt(row, col int) Move { return Move{Cell: &Cell{Row: row, Col: col}} }

func DropIn(col int) Move { return Move{Column: &col} }

func SetWord(word string) Move { return Move{Type: MoveSetWord, Word: word} }

func GuessWord(word string) Move { return Move{Type: MoveGuess, Word: word} }

// Variant is the capability set a game kind plugs into the shared session
// core. ValidateMove is a local shape check only; the service may still
// reject a move that passes it.
type Variant interface {
	Kind() Kind
	NewState(players [2]string) State
	DecodeState(raw json.RawMessage) (State, error)
	ValidateMove(s State, self string, m Move) error
	Describe(s State) string
}

var variants = map[Kind]Variant{
	KindTicTacToe:   ticTacToe{},
	KindConnectFour: connectFour{},
	KindWordDuel:    wordDuel{},
}

func Lookup(k Kind) (Variant, error) {
	v, ok := variants[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return v, nil
}

func Kinds() []Kind {
	out := make([]Kind, 0, len(variants))
	for k := range variants {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, err := Lookup(k); err != nil {
		return "", err
	}
	return k, nil
}

// Describe renders the board of s with its kind's variant.
func Describe(s *Session) string {
	v, err := Lookup(s.Kind)
	if err != nil {
		return ""
	}
	return v.Describe(s.State)
}
