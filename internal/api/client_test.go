package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/duel/internal/failure"
	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/game/gametest"
)

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateSession_PostsKindAndPartner(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sessions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, CreateRequest{GameKind: game.KindConnectFour, PartnerID: gametest.Partner}, req)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(gametest.Session(game.KindConnectFour, game.StatusWaiting, ""))
	})

	sess, err := NewClient(srv.URL, "tok", nil).CreateSession(context.Background(), game.KindConnectFour, gametest.Partner)
	require.NoError(t, err)
	assert.Equal(t, game.StatusWaiting, sess.Status)
	assert.IsType(t, &game.GridState{}, sess.State)
}

func TestActiveSession_NoContentMeansNone(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wordduel", r.URL.Query().Get("gameKind"))
		assert.Equal(t, gametest.Partner, r.URL.Query().Get("partnerId"))
		w.WriteHeader(http.StatusNoContent)
	})

	sess, err := NewClient(srv.URL, "tok", nil).ActiveSession(context.Background(), game.KindWordDuel, gametest.Partner)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestUnauthorizedIsAuthFailure(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	_, err := NewClient(srv.URL, "tok", nil).ActiveSession(context.Background(), game.KindTicTacToe, gametest.Partner)
	assert.ErrorIs(t, err, failure.ErrAuth)
}

func TestMissingCredentialNeverCallsOut(t *testing.T) {
	called := false
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := NewClient(srv.URL, "", nil).Stats(context.Background(), "")
	assert.ErrorIs(t, err, failure.ErrAuth)
	assert.False(t, called)
}

func TestUnreachableIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "tok", nil).CreateSession(context.Background(), game.KindTicTacToe, gametest.Partner)
	assert.ErrorIs(t, err, failure.ErrTransport)
}

func TestServerErrorIsNotClassified(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := NewClient(srv.URL, "tok", nil).CreateSession(context.Background(), game.KindTicTacToe, gametest.Partner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	_, classified := failure.KindOf(err)
	assert.False(t, classified)
}

func TestHistoryAndStats(t *testing.T) {
	done := gametest.Session(game.KindTicTacToe, game.StatusCompleted, "")
	done.Winner = gametest.Self

	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions/history":
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			assert.Equal(t, "10", r.URL.Query().Get("pageSize"))
			_ = json.NewEncoder(w).Encode(map[string]any{"sessions": []*game.Session{done}, "nextPage": 3})
		case "/stats":
			assert.Empty(t, r.URL.Query().Get("gameKind"))
			_ = json.NewEncoder(w).Encode(Stats{Played: 4, Wins: 3, Losses: 1, CurrentStreak: 2, BestStreak: 2})
		default:
			http.NotFound(w, r)
		}
	})
	c := NewClient(srv.URL+"/", "tok", nil)

	page, err := c.History(context.Background(), game.KindTicTacToe, 2, 10)
	require.NoError(t, err)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, gametest.Self, page.Sessions[0].Winner)
	assert.Equal(t, 3, page.NextPage)

	stats, err := c.Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, Stats{Played: 4, Wins: 3, Losses: 1, CurrentStreak: 2, BestStreak: 2}, *stats)
}
