package http

import (
	"net/http"

	"github.com/clinicore/session-lease-service/internal/application"
	"github.com/go-chi/chi/v5"
)

// Handler is the HTTP adapter entrypoint for lease use-cases.
type Handler struct {
	service *application.Service
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

// NewRouter registers the lease HTTP routes and middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/leases", handler.issueLease)

		r.Group(func(r chi.Router) {
			r.Use(bearerTokenMiddleware)
			r.Post("/leases/validate", handler.validateLease)
			r.Post("/leases/activity", handler.recordActivity)
			r.Get("/leases", handler.listLeases)
			r.Delete("/leases/others", handler.revokeOtherLeases)
			r.Delete("/leases/{lease_id}", handler.revokeLease)
			r.Delete("/leases", handler.revokeAllLeases)
			r.Get("/preferences/idle-timeout", handler.getIdleTimeout)
			r.Put("/preferences/idle-timeout", handler.setIdleTimeout)
		})
	})

	return r
}
