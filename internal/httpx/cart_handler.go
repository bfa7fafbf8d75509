package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-bakery-cart/internal/cart"
	"github.com/ariefcatur/go-bakery-cart/internal/checkout"
	"github.com/go-chi/chi/v5"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type CartHandler struct {
	Cart     *cart.Service
	Checkout *checkout.Service
}

type AddItemReq struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(Identity)
		r.Get("/", h.getCart)
		r.Post("/", h.addItem)
		r.Delete("/{productId}", h.removeItem)
		r.Post("/checkout", h.checkout)
	})
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.Cart.GetCart(r.Context(), actorFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemReq
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.ProductID == "" {
		badRequest(w, "productId is required")
		return
	}
	items, err := h.Cart.AddItem(r.Context(), actorFrom(r.Context()).ID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	items, err := h.Cart.RemoveItem(r.Context(), actorFrom(r.Context()).ID, chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CartHandler) checkout(w http.ResponseWriter, r *http.Request) {
	res, err := h.Checkout.Checkout(r.Context(), actorFrom(r.Context()).ID, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, res.Order)
		return
	}
	writeJSON(w, http.StatusCreated, res.Order)
}
