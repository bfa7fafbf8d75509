package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/ariefcatur/go-bakery-cart/internal/store"
	"github.com/go-chi/chi/v5"
)

type ProductsHandler struct {
	Store store.Store
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	var ps []orders.Product
	err := h.Store.InTx(r.Context(), func(ctx context.Context, tx store.Tx) error {
		var err error
		ps, err = tx.ListProducts(ctx)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]orders.ProductView, 0, len(ps))
	for _, p := range ps {
		out = append(out, orders.ViewOf(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	var p orders.Product
	err := h.Store.InTx(r.Context(), func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.Product(ctx, chi.URLParam(r, "id"))
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders.ViewOf(p))
}
