package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/tetris-together/internal/hub"
	"github.com/DoyleJ11/tetris-together/internal/ws"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func SetupRoutes(h *hub.Hub, wsOpts ws.Options, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Post("/sessions", CreateSession(h, log))
	r.Get("/sessions/{code}/values/{name}", GetValue(h))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, wsOpts, log))
	return r
}
