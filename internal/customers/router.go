package customers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/StricklySoft/storefront/pkg/auth"
	"github.com/StricklySoft/storefront/pkg/httpx"
)

// Router returns the customers HTTP API behind the authorization gate.
// Every route under /users/{user_id}/ resolves the user first, so unknown
// ids are 404 before any ownership check; reads skip the ownership check.
func (h *Handler) Router(gate *auth.Gate, health http.HandlerFunc, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httpx.RequestLogger(h.logger))
	r.Use(httpx.Recover)
	r.Use(middleware.Timeout(timeout))
	r.Use(gate.Middleware)
	r.NotFound(httpx.NotFoundHandler)
	r.MethodNotAllowed(httpx.MethodNotAllowedHandler)

	r.Get("/healthz", health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login/", h.Login)
		r.Post("/users/create/", h.CreateUser)
		r.Get("/users/list/", h.ListUsers)

		r.Route("/users/{"+paramUserID+"}", func(r chi.Router) {
			r.Use(auth.RequireOwnership(h.userOwner, http.MethodGet))
			r.Get("/", h.GetUser)
			r.Patch("/", h.UpdateUser)
			r.Delete("/", h.DeleteUser)
			r.Patch("/change-password/", h.ChangePassword)
		})
	})

	return otelhttp.NewHandler(r, ServiceName+".http")
}
