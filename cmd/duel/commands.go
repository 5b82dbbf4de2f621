package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/DoyleJ11/duel/internal/game"
)

type commandKind int

const (
	cmdMove commandKind = iota + 1
	cmdWord
	cmdForfeit
	cmdAgain
	cmdRefresh
	cmdHistory
	cmdStats
	cmdQuit
)

type command struct {
	kind commandKind
	move game.Move
	word string
	page int
}

var errUsage = errors.New("unknown command; try place, drop, set, guess, forfeit, again, refresh, history, stats or quit")

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, errUsage
	}
	args := fields[1:]
	switch strings.ToLower(fields[0]) {
	case "place":
		n, err := ints(args, 2)
		if err != nil {
			return command{}, fmt.Errorf("place ROW COL: %w", err)
		}
		return command{kind: cmdMove, move: game.PlaceAt(n[0], n[1])}, nil
	case "drop":
		n, err := ints(args, 1)
		if err != nil {
			return command{}, fmt.Errorf("drop COL: %w", err)
		}
		return command{kind: cmdMove, move: game.DropIn(n[0])}, nil
	case "set", "guess":
		if len(args) != 1 {
			return command{}, fmt.Errorf("%s WORD: need exactly one word", fields[0])
		}
		typ := game.MoveSetWord
		if strings.EqualFold(fields[0], "guess") {
			typ = game.MoveGuess
		}
		return command{kind: cmdWord, word: args[0], move: game.Move{Type: typ}}, nil
	case "forfeit":
		return command{kind: cmdForfeit}, nil
	case "again":
		return command{kind: cmdAgain}, nil
	case "refresh":
		return command{kind: cmdRefresh}, nil
	case "history":
		page := 1
		if len(args) > 0 {
			n, err := ints(args, 1)
			if err != nil {
				return command{}, fmt.Errorf("history [PAGE]: %w", err)
			}
			page = n[0]
		}
		return command{kind: cmdHistory, page: page}, nil
	case "stats":
		return command{kind: cmdStats}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	}
	return command{}, errUsage
}

func ints(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(args))
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", a)
		}
		out[i] = v
	}
	return out, nil
}
