package http

import (
	"context"
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/collab-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/collab-service/internal/transport/ws"
	"github.com/cwrk-planet/collab-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
)

type Deps struct {
	WS          *ws.Server
	Handler     *Handler
	Auth        httpmw.Authenticator
	Ready       func(ctx context.Context) error
	Metrics     http.Handler
	CORSOrigins []string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.WithRequestLogger)

	// ws: без обёрток ResponseWriter, апгрейду нужен http.Hijacker
	r.Get("/rooms/{"+ws.RoomKeyParam+"}/stream", d.WS.HandleWS)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			d.WS.Reject(w, r)
			return
		}
		httputil.Error(r.Context(), w, http.StatusNotFound, "not found")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				httputil.Error(r.Context(), w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		httputil.OK(w, map[string]string{"status": "ready"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmw.RequestLogger)
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.CORSOrigins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		api.Use(middlewareChi.Timeout(30 * time.Second))
		api.Use(httpmw.Auth(d.Auth))

		api.Get("/rooms", d.Handler.ListRooms)
		api.Get("/rooms/{"+ws.RoomKeyParam+"}/presence", d.Handler.Presence)
	})

	return r
}
