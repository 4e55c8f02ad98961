package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/signage-agent/internal/app"
	"github.com/Guilhem-Bonnet/signage-agent/internal/ports"
)

// Server expose l'état de l'agent en lecture seule, sur l'interface locale.
type Server struct {
	logger  zerolog.Logger
	status  *app.StatusTracker
	journal ports.SyncJournal
	bus     ports.EventBus
}

func NewServer(logger zerolog.Logger, status *app.StatusTracker, journal ports.SyncJournal, bus ports.EventBus) *Server {
	return &Server{logger: logger, status: status, journal: journal, bus: bus}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// le flux SSE reste ouvert: pas de timeout sur cette route
		if s.bus != nil {
			r.Get("/events", s.handleEvents)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))
			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			if s.status != nil {
				r.Get("/status", s.handleStatus)
			}
			if s.journal != nil {
				NewSyncsHandler(s.journal).Routes(r)
			}
		})
	})

	return r
}
