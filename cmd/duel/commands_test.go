package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/game/gametest"
	"github.com/DoyleJ11/duel/internal/lifecycle"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line string
		want command
	}{
		{"place 1 2", command{kind: cmdMove, move: game.PlaceAt(1, 2)}},
		{"drop 6", command{kind: cmdMove, move: game.DropIn(6)}},
		{"set crane", command{kind: cmdWord, word: "crane", move: game.Move{Type: game.MoveSetWord}}},
		{"GUESS react", command{kind: cmdWord, word: "react", move: game.Move{Type: game.MoveGuess}}},
		{"history", command{kind: cmdHistory, page: 1}},
		{"history 3", command{kind: cmdHistory, page: 3}},
		{"  forfeit ", command{kind: cmdForfeit}},
		{"exit", command{kind: cmdQuit}},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			got, err := parseCommand(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	for _, line := range []string{"", "place 1", "drop x", "set two words", "jump"} {
		_, err := parseCommand(line)
		assert.Error(t, err, line)
	}
}

func TestWebsocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":        "ws://localhost:8080/ws",
		"https://duel.example.com/v1/": "wss://duel.example.com/v1/ws",
	}
	for in, want := range cases {
		got, err := websocketURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := websocketURL("ftp://x")
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	s := gametest.Active(game.KindTicTacToe, gametest.Self)
	out := describe(lifecycle.View{Phase: lifecycle.PhaseActive, Session: s, Remaining: 12500 * time.Millisecond, Turn: 30 * time.Second}, gametest.Self)
	assert.True(t, strings.Contains(out, "your turn, 12s/30s left"), out)

	out = describe(lifecycle.View{Phase: lifecycle.PhaseActive, Session: s, Turn: 30 * time.Second, TimeUp: true}, gametest.Self)
	assert.Contains(t, out, "time is up")

	s.Status, s.CurrentTurn, s.Winner = game.StatusTimedOut, "", gametest.Partner
	out = describe(lifecycle.View{Phase: lifecycle.PhaseTimedOut, Session: s, Stale: true}, gametest.Self)
	assert.Contains(t, out, "bob wins")
	assert.Contains(t, out, "connection lost")
}
