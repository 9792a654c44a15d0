package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/meiduo/internal/cart"
	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/repository"
	"github.com/fjod/meiduo/pkg/logger"
	"github.com/shopspring/decimal"
)

const maxLineQuantity = 99

type CartService interface {
	Open(identity domain.Identity, token string) cart.Cart
	Merge(ctx context.Context, userID int64, token string) (int, error)
}

type CartHandler struct {
	carts        CartService
	products     repository.ProductRepository
	cookieMaxAge time.Duration
}

func NewCartHandler(carts CartService, products repository.ProductRepository, cookieMaxAge time.Duration) *CartHandler {
	return &CartHandler{carts: carts, products: products, cookieMaxAge: cookieMaxAge}
}

type CartItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Selected  *bool `json:"selected,omitempty"`
}

type RemoveItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
}

type SelectionRequestDTO struct {
	Selected bool `json:"selected"`
}

type CartLineDTO struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Selected  bool            `json:"selected"`
}

type CartItemResponseDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Selected  bool  `json:"selected"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	c := h.open(r)
	lines, err := c.List(r.Context())
	if err != nil {
		h.internalError(w, r, err, "failed to load cart")
		return
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := h.products.GetProducts(r.Context(), ids)
	if err != nil {
		h.internalError(w, r, err, "failed to load products")
		return
	}

	out := make([]CartLineDTO, 0, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue
		}
		out = append(out, CartLineDTO{
			ProductID: l.ProductID,
			Name:      p.Name,
			ImageURL:  p.ImageURL,
			Price:     p.Price,
			Quantity:  l.Quantity,
			Selected:  l.Selected,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeItem(w, r)
	if !ok {
		return
	}
	c := h.open(r)
	if err := c.Add(r.Context(), req.ProductID, req.Quantity, *req.Selected); err != nil {
		h.writeError(w, r, err, "failed to add item")
		return
	}
	if !h.saveCookie(w, r, c) {
		return
	}
	respondJSON(w, http.StatusCreated, CartItemResponseDTO{ProductID: req.ProductID, Quantity: req.Quantity, Selected: *req.Selected})
}

func (h *CartHandler) ReplaceItem(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeItem(w, r)
	if !ok {
		return
	}
	c := h.open(r)
	if err := c.Replace(r.Context(), req.ProductID, req.Quantity, *req.Selected); err != nil {
		h.writeError(w, r, err, "failed to update item")
		return
	}
	if !h.saveCookie(w, r, c) {
		return
	}
	respondJSON(w, http.StatusOK, CartItemResponseDTO{ProductID: req.ProductID, Quantity: req.Quantity, Selected: *req.Selected})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	var req RemoveItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	c := h.open(r)
	if err := c.Remove(r.Context(), req.ProductID); err != nil {
		h.internalError(w, r, err, "failed to remove item")
		return
	}
	if !h.saveCookie(w, r, c) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) SetSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	c := h.open(r)
	if err := c.SetAllSelected(r.Context(), req.Selected); err != nil {
		h.internalError(w, r, err, "failed to update selection")
		return
	}
	if !h.saveCookie(w, r, c) {
		return
	}
	respondJSON(w, http.StatusOK, req)
}

// Merge folds the anonymous cart cookie into the caller's cart and expires the
// cookie. It is called by the login flow right after authentication.
func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	merged, err := h.carts.Merge(r.Context(), identity.UserID, cookieValue(r))
	if err != nil {
		h.internalError(w, r, err, "failed to merge cart")
		return
	}

	http.SetCookie(w, &http.Cookie{Name: cart.CookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	respondJSON(w, http.StatusOK, map[string]int{"merged": merged})
}

func (h *CartHandler) decodeItem(w http.ResponseWriter, r *http.Request) (*CartItemRequestDTO, bool) {
	var req CartItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return nil, false
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return nil, false
	}
	if req.Quantity <= 0 || req.Quantity > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return nil, false
	}
	if req.Selected == nil {
		selected := true
		req.Selected = &selected
	}

	p, err := h.products.GetProduct(r.Context(), req.ProductID)
	if errors.Is(err, repository.ErrProductNotFound) {
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
		return nil, false
	}
	if err != nil {
		h.internalError(w, r, err, "failed to load product")
		return nil, false
	}
	if req.Quantity > p.Stock {
		respondError(w, http.StatusBadRequest, "insufficient_stock", p.Name+" is out of stock")
		return nil, false
	}
	return &req, true
}

func (h *CartHandler) open(r *http.Request) cart.Cart {
	return h.carts.Open(identityFromContext(r.Context()), cookieValue(r))
}

// saveCookie writes the anonymous cart back to the client. It must run before
// the response status is written.
func (h *CartHandler) saveCookie(w http.ResponseWriter, r *http.Request, c cart.Cart) bool {
	if !identityFromContext(r.Context()).IsAnonymous() {
		return true
	}
	token, err := c.Token()
	if err != nil {
		h.internalError(w, r, err, "failed to encode cart")
		return false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cart.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

func (h *CartHandler) writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, cart.ErrCartFull) {
		respondError(w, http.StatusBadRequest, "cart_full", "cart holds too many products, sign in to add more")
		return
	}
	h.internalError(w, r, err, msg)
}

func (h *CartHandler) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	logger.Ctx(r.Context()).Error().Err(err).Msg(msg)
	respondError(w, http.StatusInternalServerError, "internal_error", msg)
}

func cookieValue(r *http.Request) string {
	c, err := r.Cookie(cart.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
