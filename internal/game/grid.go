package game

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

type Mark string

const Empty Mark = ""

// GridState is the board of a grid game. Row 0 is the top row; for column
// drop games discs settle towards the highest row index.
type GridState struct {
	Board   [][]Mark        `json:"board"`
	Symbols map[string]Mark `json:"symbols"`

	kind Kind
}

func NewGrid(kind Kind, rows, cols int, symbols map[string]Mark) *GridState {
	board := make([][]Mark, rows)
	for r := range board {
		board[r] = make([]Mark, cols)
	}
	return &GridState{Board: board, Symbols: symbols, kind: kind}
}

func (g *GridState) Kind() Kind { return g.kind }

func (g *GridState) Clone() State {
	c := &GridState{Board: make([][]Mark, len(g.Board)), Symbols: maps.Clone(g.Symbols), kind: g.kind}
	for r, row := range g.Board {
		c.Board[r] = append([]Mark(nil), row...)
	}
	return c
}

func (g *GridState) Rows() int { return len(g.Board) }

func (g *GridState) Cols() int {
	if len(g.Board) == 0 {
		return 0
	}
	return len(g.Board[0])
}

func (g *GridState) InBounds(row, col int) bool {
	return row >= 0 && row < g.Rows() && col >= 0 && col < g.Cols()
}

func (g *GridState) At(row, col int) Mark { return g.Board[row][col] }

// ColumnHasRoom reports whether a disc dropped in col would land.
func (g *GridState) ColumnHasRoom(col int) bool {
	if col < 0 || col >= g.Cols() {
		return false
	}
	for r := range g.Board {
		if g.Board[r][col] == Empty {
			return true
		}
	}
	return false
}

// DropRow returns the row a disc dropped in col settles on, or -1.
func (g *GridState) DropRow(col int) int {
	if col < 0 || col >= g.Cols() {
		return -1
	}
	for r := g.Rows() - 1; r >= 0; r-- {
		if g.Board[r][col] == Empty {
			return r
		}
	}
	return -1
}

func (g *GridState) Full() bool {
	for _, row := range g.Board {
		for _, m := range row {
			if m == Empty {
				return false
			}
		}
	}
	return true
}

func decodeGrid(kind Kind, raw json.RawMessage) (State, error) {
	g := &GridState{kind: kind}
	if err := json.Unmarshal(raw, g); err != nil {
		return nil, err
	}
	cols := g.Cols()
	for r, row := range g.Board {
		if len(row) != cols {
			return nil, fmt.Errorf("ragged board at row %d", r)
		}
	}
	return g, nil
}

func describeGrid(s State) string {
	g, ok := s.(*GridState)
	if !ok {
		return ""
	}
	var b strings.Builder
	b.WriteString("  ")
	for c := 0; c < g.Cols(); c++ {
		fmt.Fprintf(&b, " %d", c)
	}
	b.WriteByte('\n')
	for r, row := range g.Board {
		fmt.Fprintf(&b, "%2d", r)
		for _, m := range row {
			if m == Empty {
				b.WriteString(" .")
				continue
			}
			b.WriteString(" " + string(m))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

type ticTacToe struct{}

func (ticTacToe) Kind() Kind { return KindTicTacToe }

func (ticTacToe) NewState(players [2]string) State {
	return NewGrid(KindTicTacToe, 3, 3, map[string]Mark{players[0]: "X", players[1]: "O"})
}

func (ticTacToe) DecodeState(raw json.RawMessage) (State, error) {
	return decodeGrid(KindTicTacToe, raw)
}

func (ticTacToe) ValidateMove(s State, _ string, m Move) error {
	g, ok := s.(*GridState)
	if !ok {
		return ErrStateMismatch
	}
	if m.Cell == nil || m.Column != nil || m.Type != "" {
		return ErrMalformedMove
	}
	if !g.InBounds(m.Cell.Row, m.Cell.Col) {
		return ErrOutOfBounds
	}
	if g.At(m.Cell.Row, m.Cell.Col) != Empty {
		return ErrCellOccupied
	}
	return nil
}

func (ticTacToe) Describe(s State) string { return describeGrid(s) }

type connectFour struct{}

func (connectFour) Kind() Kind { return KindConnectFour }

func (connectFour) NewState(players [2]string) State {
	return NewGrid(KindConnectFour, 6, 7, map[string]Mark{players[0]: "R", players[1]: "Y"})
}

func (connectFour) DecodeState(raw json.RawMessage) (State, error) {
	return decodeGrid(KindConnectFour, raw)
}

func (connectFour) ValidateMove(s State, _ string, m Move) error {
	g, ok := s.(*GridState)
	if !ok {
		return ErrStateMismatch
	}
	if m.Column == nil || m.Cell != nil || m.Type != "" {
		return ErrMalformedMove
	}
	if *m.Column < 0 || *m.Column >= g.Cols() {
		return ErrOutOfBounds
	}
	if !g.ColumnHasRoom(*m.Column) {
		return ErrColumnFull
	}
	return nil
}

func (connectFour) Describe(s State) string { return describeGrid(s) }
