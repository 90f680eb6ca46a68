package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	eventloghandler "github.com/tapewise/backend/internal/handler/eventlog"
	transcripthandler "github.com/tapewise/backend/internal/handler/transcript"
	middlewarePkg "github.com/tapewise/backend/internal/middleware"
	"github.com/tapewise/backend/internal/notify"
	eventlogservice "github.com/tapewise/backend/internal/service/eventlog"
	transcriptservice "github.com/tapewise/backend/internal/service/transcript"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(ops *transcriptservice.Operations, ledger *eventlogservice.Service, hub *notify.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	r.Use(middlewarePkg.Actor)

	transcriptHandler := transcripthandler.New(ops)
	eventlogHandler := eventloghandler.New(ledger)

	r.Route("/api", func(api chi.Router) {
		transcriptHandler.RegisterRoutes(api)
		eventlogHandler.RegisterRoutes(api)
		if hub != nil {
			hub.RegisterRoutes(api)
		}
	})

	return r
}
