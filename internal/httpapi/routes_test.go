package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/duel/internal/api"
	"github.com/DoyleJ11/duel/internal/auth"
	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/game/gametest"
	"github.com/DoyleJ11/duel/internal/httpapi"
	"github.com/DoyleJ11/duel/internal/hub"
	"github.com/DoyleJ11/duel/internal/lobby"
	"github.com/DoyleJ11/duel/internal/metrics"
	"github.com/DoyleJ11/duel/internal/storage"
)

type testServer struct {
	srv     *httptest.Server
	tokens  *auth.Tokens
	archive *storage.Store
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", time.Hour, nil)
	require.NoError(t, err)
	archive, err := storage.Open(filepath.Join(t.TempDir(), "duel.db"))
	require.NoError(t, err)

	m := metrics.New()
	h := hub.NewHub(context.Background(), hub.Options{
		Lobby: lobby.Options{Turn: 30 * time.Second, Recorder: archive, Metrics: m},
	})
	srv := httptest.NewServer(httpapi.SetupRoutes(httpapi.Deps{
		Hub:     h,
		Archive: archive,
		Tokens:  tokens,
		Metrics: m,
	}))
	t.Cleanup(func() {
		srv.Close()
		h.Inbox() <- hub.ShutdownHub{}
		<-h.Done()
		_ = archive.Close()
	})
	return &testServer{srv: srv, tokens: tokens, archive: archive}
}

func (s *testServer) token(t *testing.T, player string) string {
	t.Helper()
	tok, err := s.tokens.Issue(player)
	require.NoError(t, err)
	return tok
}

func (s *testServer) client(t *testing.T, player string) *api.Client {
	return api.NewClient(s.srv.URL, s.token(t, player), nil)
}

func (s *testServer) do(t *testing.T, player, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	if player != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, player))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestPublicRoutes(t *testing.T) {
	s := newServer(t)

	resp := s.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, "", http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, "", http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateThenFindActive(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	alice := s.client(t, gametest.Self)
	bob := s.client(t, gametest.Partner)

	none, err := bob.ActiveSession(ctx, game.KindTicTacToe, gametest.Self)
	require.NoError(t, err)
	assert.Nil(t, none)

	created, err := alice.CreateSession(ctx, game.KindTicTacToe, gametest.Partner)
	require.NoError(t, err)
	assert.Equal(t, game.StatusWaiting, created.Status)
	assert.Equal(t, [2]string{gametest.Self, gametest.Partner}, created.Players)
	assert.Equal(t, int64(1), created.Version)

	found, err := bob.ActiveSession(ctx, game.KindTicTacToe, gametest.Self)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	// A second create for the same pair and kind returns the open session.
	again, err := bob.CreateSession(ctx, game.KindTicTacToe, gametest.Self)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	other, err := alice.ActiveSession(ctx, game.KindWordDuel, gametest.Partner)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestCreateSession_BadRequests(t *testing.T) {
	s := newServer(t)
	cases := []struct {
		name string
		body any
	}{
		{"unknown kind", api.CreateRequest{GameKind: "chess", PartnerID: gametest.Partner}},
		{"missing partner", api.CreateRequest{GameKind: game.KindTicTacToe}},
		{"self as partner", api.CreateRequest{GameKind: game.KindTicTacToe, PartnerID: gametest.Self}},
		{"not json", "{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := s.do(t, gametest.Self, http.MethodPost, "/sessions", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHistoryAndStats(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	for i, winner := range []string{gametest.Self, gametest.Partner, gametest.Self} {
		sess := gametest.Session(game.KindConnectFour, game.StatusCompleted, "")
		sess.ID = "done-" + string(rune('a'+i))
		sess.Winner = winner
		require.NoError(t, s.archive.SessionFinished(ctx, sess, gametest.Epoch.Add(time.Duration(i)*time.Minute)))
	}

	alice := s.client(t, gametest.Self)
	page, err := alice.History(ctx, game.KindConnectFour, 1, 2)
	require.NoError(t, err)
	require.Len(t, page.Sessions, 2)
	assert.Equal(t, "done-c", page.Sessions[0].ID)
	assert.Equal(t, 2, page.NextPage)

	stats, err := alice.Stats(ctx, game.KindConnectFour)
	require.NoError(t, err)
	assert.Equal(t, api.Stats{Played: 3, Wins: 2, Losses: 1, CurrentStreak: 1, BestStreak: 1}, *stats)

	resp := s.do(t, gametest.Self, http.MethodGet, "/sessions/history?page=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = s.do(t, gametest.Self, http.MethodGet, "/stats?gameKind=chess", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func wsURL(s *testServer) string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}
