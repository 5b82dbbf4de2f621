package httpapi

import (
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/duel/internal/auth"
	"github.com/DoyleJ11/duel/internal/hub"
	"github.com/DoyleJ11/duel/internal/metrics"
	"github.com/DoyleJ11/duel/internal/ws"
)

type Deps struct {
	Hub     *hub.Hub
	Archive Archive
	Tokens  *auth.Tokens
	Metrics *metrics.Metrics
	Clock   clock.Clock
	Log     *zap.Logger
	WS      ws.Options
}

func SetupRoutes(d Deps) http.Handler {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	d.Log = d.Log.Named("http")
	if d.WS.Log == nil {
		d.WS.Log = d.Log
	}
	if d.WS.Metrics == nil {
		d.WS.Metrics = d.Metrics
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", d.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(d.Tokens.Middleware)
		r.Post("/sessions", CreateSession(d))
		r.Get("/sessions/active", ActiveSession(d))
		r.Get("/sessions/history", History(d))
		r.Get("/stats", Stats(d))
		r.Get("/ws", ws.Handler(d.Hub, d.WS))
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
