package engine

import "github.com/DoyleJ11/duel/internal/game"

// firstTurn is the player who moves when a session starts. In the word duel
// that is the setter.
func firstTurn(s *game.Session) string {
	if w, ok := s.State.(*game.WordState); ok {
		return w.Setter
	}
	return s.Players[0]
}

// turnAfter is who moves after player. The guesser keeps the turn for the
// whole guessing phase.
func turnAfter(s *game.Session, player string) string {
	if w, ok := s.State.(*game.WordState); ok {
		if w.Phase == game.PhaseGuessing {
			return w.Guesser
		}
		return w.Setter
	}
	return s.Opponent(player)
}

func winLength(kind game.Kind) int {
	if kind == game.KindConnectFour {
		return 4
	}
	return 3
}

// checkLine reports whether the mark at (row, col) is part of a run of at
// least n in any direction.
func checkLine(board [][]game.Mark, row, col, n int) bool {
	rows := len(board)
	if rows == 0 {
		return false
	}
	cols := len(board[0])
	mark := board[row][col]
	if mark == game.Empty {
		return false
	}

	dirs := [][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		count := 1
		for r, c := row+d[0], col+d[1]; r >= 0 && r < rows && c >= 0 && c < cols && board[r][c] == mark; r, c = r+d[0], c+d[1] {
			count++
		}
		for r, c := row-d[0], col-d[1]; r >= 0 && r < rows && c >= 0 && c < cols && board[r][c] == mark; r, c = r-d[0], c-d[1] {
			count++
		}
		if count >= n {
			return true
		}
	}
	return false
}
