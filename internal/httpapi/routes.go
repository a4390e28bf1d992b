package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/courtside/internal/hub"
)

func SetupRoutes(h *hub.Hub, ws http.Handler, log *zap.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors(allowedOrigins))

	// Public routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/generate-key", GenerateKey(h, log))
		r.Get("/validate-key/{key}", ValidateKey(h))
	})
	r.Get("/healthz", Healthz(h))
	r.Method(http.MethodGet, "/ws", ws)
	return r
}
