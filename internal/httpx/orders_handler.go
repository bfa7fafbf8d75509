package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-bakery-cart/internal/fulfillment"
	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	Fulfillment *fulfillment.Service
}

type UpdateStatusReq struct {
	Status orders.Status `json:"status"`
}

type AssignReq struct {
	StaffID string `json:"staffId"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(Identity)
		r.Get("/", h.listOrders)
		r.Get("/reports", h.reports)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}/status", h.updateStatus)
		r.Patch("/{id}/assignee", h.assign)
		r.Delete("/{id}", h.cancel)
	})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	status := orders.Status(r.URL.Query().Get("status"))
	out, err := h.Fulfillment.ListOrders(r.Context(), actorFrom(r.Context()), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Fulfillment.GetOrder(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := decodeJSON(w, r, &req); err != nil || req.Status == "" {
		badRequest(w, "status is required")
		return
	}
	o, err := h.Fulfillment.UpdateStatus(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) assign(w http.ResponseWriter, r *http.Request) {
	var req AssignReq
	if err := decodeJSON(w, r, &req); err != nil || req.StaffID == "" {
		badRequest(w, "staffId is required")
		return
	}
	o, err := h.Fulfillment.AssignStaff(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), req.StaffID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Fulfillment.Cancel(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) reports(w http.ResponseWriter, r *http.Request) {
	out, err := h.Fulfillment.Reports(r.Context(), actorFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
