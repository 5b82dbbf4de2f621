package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/game/gametest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "duel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func finished(id string, kind game.Kind, winner string, draw bool) *game.Session {
	s := gametest.Session(kind, game.StatusCompleted, "")
	s.ID = id
	s.Winner = winner
	s.IsDraw = draw
	return s
}

func TestSessionFinished_RejectsOpenSessions(t *testing.T) {
	st := openTemp(t)
	err := st.SessionFinished(context.Background(), gametest.Active(game.KindTicTacToe, gametest.Self), gametest.Epoch)
	assert.ErrorIs(t, err, ErrNotFinished)
}

func TestHistory_NewestFirstAndPaged(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s := finished(fmt.Sprintf("s%d", i), game.KindConnectFour, gametest.Self, false)
		require.NoError(t, st.SessionFinished(ctx, s, gametest.Epoch.Add(time.Duration(i)*time.Minute)))
	}
	// Someone else's game never shows up.
	other := finished("x", game.KindConnectFour, "carol", false)
	other.Players = [2]string{"carol", "dave"}
	require.NoError(t, st.SessionFinished(ctx, other, gametest.Epoch))

	page, next, err := st.History(ctx, gametest.Partner, game.KindConnectFour, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "s4", page[0].ID)
	assert.Equal(t, "s3", page[1].ID)
	assert.Equal(t, 2, next)
	assert.IsType(t, &game.GridState{}, page[0].State)

	page, next, err = st.History(ctx, gametest.Partner, "", 3, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "s0", page[0].ID)
	assert.Zero(t, next)
}

func TestSessionFinished_Overwrites(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	s := finished("s1", game.KindTicTacToe, gametest.Self, false)
	require.NoError(t, st.SessionFinished(ctx, s, gametest.Epoch))
	require.NoError(t, st.SessionFinished(ctx, s, gametest.Epoch))

	page, _, err := st.History(ctx, gametest.Self, "", 1, 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestStats_Streaks(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()
	results := []struct {
		winner string
		draw   bool
	}{
		{gametest.Self, false},
		{gametest.Self, false},
		{gametest.Self, false},
		{gametest.Partner, false},
		{"", true},
		{gametest.Self, false},
		{gametest.Self, false},
	}
	for i, r := range results {
		s := finished(fmt.Sprintf("s%d", i), game.KindTicTacToe, r.winner, r.draw)
		require.NoError(t, st.SessionFinished(ctx, s, gametest.Epoch.Add(time.Duration(i)*time.Minute)))
	}
	// Abandoned before the start: no result.
	void := gametest.Session(game.KindTicTacToe, game.StatusAbandoned, "")
	void.ID = "void"
	void.ForfeitedBy = gametest.Partner
	require.NoError(t, st.SessionFinished(ctx, void, gametest.Epoch.Add(time.Hour)))

	stats, err := st.Stats(ctx, gametest.Self, game.KindTicTacToe)
	require.NoError(t, err)
	assert.Equal(t, Stats{Played: 7, Wins: 5, Losses: 1, Draws: 1, CurrentStreak: 2, BestStreak: 3}, stats)

	stats, err = st.Stats(ctx, gametest.Self, game.KindWordDuel)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}
