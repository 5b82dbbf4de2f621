package game

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const WordLength = 5
const MaxGuesses = 6

type WordPhase string

const (
	PhaseSetting  WordPhase = "setting"
	PhaseGuessing WordPhase = "guessing"
)

type LetterResult string

const (
	LetterCorrect LetterResult = "correct"
	LetterPresent LetterResult = "present"
	LetterAbsent  LetterResult = "absent"
)

type Guess struct {
	Word   string         `json:"word"`
	Result []LetterResult `json:"result"`
}

// WordState is the word duel board. Secret never leaves the service; Answer
// is only filled in once the session is over.
type WordState struct {
	Phase      WordPhase `json:"phase"`
	Setter     string    `json:"setter"`
	Guesser    string    `json:"guesser"`
	WordLength int       `json:"wordLength"`
	MaxGuesses int       `json:"maxGuesses"`
	Guesses    []Guess   `json:"guesses"`
	Answer     string    `json:"answer,omitempty"`

	Secret string `json:"-"`
}

func (w *WordState) Kind() Kind { return KindWordDuel }

func (w *WordState) Clone() State {
	c := *w
	c.Guesses = make([]Guess, len(w.Guesses))
	for i, g := range w.Guesses {
		c.Guesses[i] = Guess{Word: g.Word, Result: append([]LetterResult(nil), g.Result...)}
	}
	return &c
}

func (w *WordState) GuessesLeft() int {
	return max(w.MaxGuesses-len(w.Guesses), 0)
}

// NormalizeWord trims and upper-cases a candidate word. Input holding any
// non-ASCII rune is only trimmed, so case mapping never changes its length
// ("ß" would otherwise become "SS"). Casers are stateful, so one is built
// per call.
func NormalizeWord(word string) string {
	w := strings.TrimSpace(word)
	for _, r := range w {
		if r > unicode.MaxASCII {
			return w
		}
	}
	return cases.Upper(language.Und).String(w)
}

// CheckWord applies the shape rule shared by setting and guessing: exactly
// length letters A-Z after normalisation.
func CheckWord(word string, length int) error {
	w := NormalizeWord(word)
	if utf8.RuneCountInString(w) != length {
		return fmt.Errorf("%w: want %d letters, got %q", ErrWordLength, length, word)
	}
	for _, r := range w {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: %q", ErrWordLetters, word)
		}
	}
	return nil
}

type wordDuel struct{}

func (wordDuel) Kind() Kind { return KindWordDuel }

func (wordDuel) NewState(players [2]string) State {
	return &WordState{
		Phase:      PhaseSetting,
		Setter:     players[0],
		Guesser:    players[1],
		WordLength: WordLength,
		MaxGuesses: MaxGuesses,
		Guesses:    []Guess{},
	}
}

func (wordDuel) DecodeState(raw json.RawMessage) (State, error) {
	w := &WordState{}
	if err := json.Unmarshal(raw, w); err != nil {
		return nil, err
	}
	if w.WordLength == 0 {
		w.WordLength = WordLength
	}
	return w, nil
}

func (wordDuel) ValidateMove(s State, self string, m Move) error {
	w, ok := s.(*WordState)
	if !ok {
		return ErrStateMismatch
	}
	if m.Cell != nil || m.Column != nil {
		return ErrMalformedMove
	}
	switch m.Type {
	case MoveSetWord:
		if w.Phase != PhaseSetting {
			return ErrWrongPhase
		}
		if w.Setter != "" && w.Setter != self {
			return ErrNotSetter
		}
	case MoveGuess:
		if w.Phase != PhaseGuessing {
			return ErrWrongPhase
		}
		if w.Guesser != self {
			return ErrNotGuesser
		}
	default:
		return ErrMalformedMove
	}
	return CheckWord(m.Word, w.WordLength)
}

func (wordDuel) Describe(s State) string {
	w, ok := s.(*WordState)
	if !ok {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "phase: %s  setter: %s  guesser: %s  guesses left: %d\n",
		w.Phase, w.Setter, w.Guesser, w.GuessesLeft())
	for _, g := range w.Guesses {
		b.WriteString(g.Word)
		b.WriteString("  ")
		for _, r := range g.Result {
			switch r {
			case LetterCorrect:
				b.WriteByte('+')
			case LetterPresent:
				b.WriteByte('?')
			default:
				b.WriteByte('-')
			}
		}
		b.WriteByte('\n')
	}
	if w.Answer != "" {
		fmt.Fprintf(&b, "answer: %s\n", w.Answer)
	}
	return b.String()
}
