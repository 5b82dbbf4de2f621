package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/duel/internal/api"
	"github.com/DoyleJ11/duel/internal/auth"
	"github.com/DoyleJ11/duel/internal/engine"
	"github.com/DoyleJ11/duel/internal/game"
	"github.com/DoyleJ11/duel/internal/lobby"
	"github.com/DoyleJ11/duel/internal/storage"
)

// Archive is the finished-session store behind history and stats.
type Archive interface {
	History(ctx context.Context, player string, kind game.Kind, page, pageSize int) ([]*game.Session, int, error)
	Stats(ctx context.Context, player string, kind game.Kind) (storage.Stats, error)
}

func CreateSession(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player, _ := auth.PlayerFrom(r.Context())

		var req api.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		kind, err := game.ParseKind(string(req.GameKind))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		partner := strings.TrimSpace(req.PartnerID)
		if partner == "" || partner == player {
			http.Error(w, "partnerId must name another player", http.StatusBadRequest)
			return
		}

		s, err := engine.NewSession(uuid.NewString(), kind, [2]string{player, partner}, d.Clock.Now())
		if err != nil {
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}
		lb, err := d.Hub.Create(r.Context(), s)
		if err != nil {
			http.Error(w, "failed to create session", http.StatusServiceUnavailable)
			return
		}
		view, err := lb.State(r.Context())
		if err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusCreated, view.Session)
	}
}

func ActiveSession(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player, _ := auth.PlayerFrom(r.Context())
		q := r.URL.Query()
		kind, err := game.ParseKind(q.Get("gameKind"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		partner := q.Get("partnerId")
		if partner == "" {
			http.Error(w, "missing partnerId", http.StatusBadRequest)
			return
		}

		lb, err := d.Hub.Active(r.Context(), kind, [2]string{player, partner})
		if err != nil {
			http.Error(w, "session lookup failed", http.StatusServiceUnavailable)
			return
		}
		if lb == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		view, err := lb.State(r.Context())
		if errors.Is(err, lobby.ErrClosed) || (err == nil && view.Session.Status.Terminal()) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, view.Session)
	}
}

func History(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player, _ := auth.PlayerFrom(r.Context())
		q := r.URL.Query()
		kind, ok := optionalKind(w, q.Get("gameKind"))
		if !ok {
			return
		}
		page, err1 := intParam(q.Get("page"), 1)
		size, err2 := intParam(q.Get("pageSize"), 20)
		if err1 != nil || err2 != nil {
			http.Error(w, "page and pageSize must be integers", http.StatusBadRequest)
			return
		}

		sessions, next, err := d.Archive.History(r.Context(), player, kind, page, size)
		if err != nil {
			d.Log.Error("history query failed", zap.Error(err))
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, api.HistoryPage{Sessions: sessions, NextPage: next})
	}
}

func Stats(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player, _ := auth.PlayerFrom(r.Context())
		kind, ok := optionalKind(w, r.URL.Query().Get("gameKind"))
		if !ok {
			return
		}
		st, err := d.Archive.Stats(r.Context(), player, kind)
		if err != nil {
			d.Log.Error("stats query failed", zap.Error(err))
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func optionalKind(w http.ResponseWriter, raw string) (game.Kind, bool) {
	if raw == "" {
		return "", true
	}
	kind, err := game.ParseKind(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return kind, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
