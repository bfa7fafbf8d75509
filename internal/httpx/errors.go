package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-bakery-cart/internal/orders"
	"github.com/rs/zerolog/hlog"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	ProductID string `json:"productId,omitempty"`
}

type errMapping struct {
	target    error
	status    int
	code      string
	retryable bool
}

// first match wins
var errTable = []errMapping{
	{orders.ErrInsufficientStock, http.StatusBadRequest, "InsufficientStock", false},
	{orders.ErrInvalidQuantity, http.StatusBadRequest, "InvalidQuantity", false},
	{orders.ErrProductNotFound, http.StatusNotFound, "ProductNotFound", false},
	{orders.ErrCartItemNotFound, http.StatusNotFound, "CartItemNotFound", false},
	{orders.ErrReservationNotFound, http.StatusConflict, "ReservationExpired", true},
	{orders.ErrEmptyCart, http.StatusBadRequest, "EmptyCart", false},
	{orders.ErrReservationMismatch, http.StatusBadRequest, "ReservationMismatch", true},
	{orders.ErrOrderNotFound, http.StatusNotFound, "OrderNotFound", false},
	{orders.ErrInvalidStatus, http.StatusBadRequest, "InvalidStatus", false},
	{orders.ErrInvalidTransition, http.StatusConflict, "InvalidTransition", false},
	{orders.ErrOrderNotCancellable, http.StatusConflict, "OrderNotCancellable", false},
	{orders.ErrOrderCompleted, http.StatusConflict, "OrderCompleted", false},
	{orders.ErrForbidden, http.StatusForbidden, "Forbidden", false},
	{orders.ErrStorageUnavailable, http.StatusServiceUnavailable, "StorageUnavailable", true},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, "Timeout", true},
}

var reservationExpiredMessage = "your reservation expired, please re-add the item"

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errTable {
		if !errors.Is(err, m.target) {
			continue
		}
		body := ErrorBody{Error: m.code, Message: err.Error(), Retryable: m.retryable}
		switch m.target {
		case orders.ErrReservationNotFound:
			body.Message = reservationExpiredMessage
		case orders.ErrReservationMismatch:
			var mm *orders.MismatchError
			if errors.As(err, &mm) {
				body.ProductID = mm.ProductID
			}
			body.Message = reservationExpiredMessage + ": " + err.Error()
		case orders.ErrStorageUnavailable, context.DeadlineExceeded:
			hlog.FromRequest(r).Error().Err(err).Msg("request failed")
			body.Message = "service temporarily unavailable, please retry"
		}
		writeJSON(w, m.status, body)
		return
	}
	hlog.FromRequest(r).Error().Err(err).Msg("unhandled error")
	writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "Internal", Message: "internal error"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "BadRequest", Message: msg})
}
