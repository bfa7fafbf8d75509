package orders

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationMismatch = errors.New("reservation does not cover cart line")
	ErrCartItemNotFound    = errors.New("cart item not found")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrStorageUnavailable  = errors.New("storage unavailable")

	ErrProductNotFound     = errors.New("product not found")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidStatus       = errors.New("unknown order status")
	ErrOrderNotCancellable = errors.New("order can only be cancelled while pending")
	ErrOrderCompleted      = errors.New("order is completed")
	ErrForbidden           = errors.New("forbidden")
)

// MismatchError names the cart line whose reservation was missing or too small.
type MismatchError struct {
	ProductID string
	InCart    int
	Reserved  int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("reservation for product %s holds %d, cart needs %d", e.ProductID, e.Reserved, e.InCart)
}

func (e *MismatchError) Is(target error) bool { return target == ErrReservationMismatch }

// Unavailable wraps an infrastructure error so callers can match ErrStorageUnavailable.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
