package cart

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/StricklySoft/storefront/pkg/auth"
	"github.com/StricklySoft/storefront/pkg/httpx"
)

// Router returns the cart HTTP API behind the authorization gate. Cart and
// cart item routes are restricted to the owning user and admins.
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
		r.Get("/products/list/", h.ListProducts)

		cartOwned := r.With(auth.RequireOwnership(h.cartOwner))
		cartOwned.Get("/cart/{"+paramUserID+"}/", h.GetCart)
		cartOwned.Delete("/cart/{"+paramUserID+"}/", h.ClearCart)

		r.With(auth.RequireOwnership(h.existingCartOwner)).
			Post("/cart-item/{"+paramCartID+"}/create", h.CreateItem)

		itemOwned := r.With(auth.RequireOwnership(h.itemOwner))
		itemOwned.Patch("/cart-item/{"+paramItemID+"}/", h.UpdateItem)
		itemOwned.Delete("/cart-item/{"+paramItemID+"}/", h.DeleteItem)
	})

	return otelhttp.NewHandler(r, ServiceName+".http")
}
