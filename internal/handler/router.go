package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/halcyonlabs/accord/backend/internal/handler/chat"
	"github.com/halcyonlabs/accord/backend/internal/handler/session"
	middlewarePkg "github.com/halcyonlabs/accord/backend/internal/middleware"
	"github.com/halcyonlabs/accord/backend/internal/service/realtime"
	routerService "github.com/halcyonlabs/accord/backend/internal/service/router"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(routerSvc *routerService.Service, st store.Store, hub *realtime.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(routerSvc)
	sessionHandler := session.New(st)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)

		if hub != nil {
			api.Get("/ws", hub.HandleWS)
		}
	})

	return r
}
