package cart

import (
	"log/slog"
	"net/http"

	"github.com/StricklySoft/storefront/pkg/auth"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/httpx"
	"github.com/StricklySoft/storefront/pkg/models"
)

// Path parameters.
const (
	paramUserID = "user_id"
	paramCartID = "cart_id"
	paramItemID = "item_id"
)

type createItemRequest struct {
	ProductID *int64 `json:"product_id" validate:"required,gte=0"`
	Quantity  *int   `json:"quantity" validate:"required,quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,quantity"`
}

// NewDecoder returns the request decoder with the cart field rules.
func NewDecoder() *httpx.Decoder {
	return httpx.NewDecoder().
		RegisterAlias("quantity", "gte=1,lte=5", "Must be greater than or equal to 1 and less than or equal to 5.")
}

// Handler serves the cart HTTP API.
type Handler struct {
	carts   Carts
	decoder *httpx.Decoder
	logger  *slog.Logger
}

// NewHandler returns a Handler. A nil logger selects slog.Default().
func NewHandler(carts Carts, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{carts: carts, decoder: NewDecoder(), logger: logger}
}

// ListProducts streams the catalog, filtered by the optional search query
// parameter.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	httpx.StreamData(w, r, func(emit httpx.EmitFunc) error {
		return h.carts.ListProducts(r.Context(), search, func(p *models.Product) error {
			return emit(p)
		})
	})
}

// GetCart returns the caller's cart, creating it on first access.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.OwnerFromContext(r.Context())
	cart, err := h.carts.GetOrCreateCart(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, cart)
}

// ClearCart empties a cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.OwnerFromContext(r.Context())
	if err := h.carts.ClearCart(r.Context(), userID); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// CreateItem adds a product to a cart.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	cartID, _ := auth.OwnerFromContext(r.Context())
	var req createItemRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	cart, err := h.carts.AddItem(r.Context(), cartID, *req.ProductID, *req.Quantity)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	h.logger.DebugContext(r.Context(), "cart item added", "cart_id", cartID, "product_id", *req.ProductID)
	httpx.WriteData(w, http.StatusCreated, cart)
}

// UpdateItem changes the quantity of a line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.PathInt64(r, paramItemID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	var req updateItemRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	cart, err := h.carts.UpdateItemQuantity(r.Context(), itemID, *req.Quantity)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, cart)
}

// DeleteItem removes a line.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpx.PathInt64(r, paramItemID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := h.carts.DeleteItem(r.Context(), itemID); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// cartOwner resolves /cart/{user_id}/. The cart may not exist yet.
func (h *Handler) cartOwner(r *http.Request) (int64, error) {
	return httpx.PathInt64(r, paramUserID)
}

// existingCartOwner resolves /cart-item/{cart_id}/create, answering 404
// when the cart does not exist.
func (h *Handler) existingCartOwner(r *http.Request) (int64, error) {
	cartID, err := httpx.PathInt64(r, paramCartID)
	if err != nil {
		return 0, err
	}
	exists, err := h.carts.CartExists(r.Context(), cartID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, sserr.NotFound()
	}
	return cartID, nil
}

// itemOwner resolves /cart-item/{item_id}/ to the owner of the line's
// cart.
func (h *Handler) itemOwner(r *http.Request) (int64, error) {
	itemID, err := httpx.PathInt64(r, paramItemID)
	if err != nil {
		return 0, err
	}
	return h.carts.ItemCart(r.Context(), itemID)
}
