package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrOrderNotFound     = errors.New("order not found")
	ErrSKUNotFound       = errors.New("sku not found")
	ErrItemNotFound      = errors.New("order item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotOwner          = errors.New("order does not belong to user")

	// ErrInvalidState covers every transition whose precondition is not
	// met; the named variants below wrap it so callers can branch on
	// either the family or the specific condition.
	ErrInvalidState           = errors.New("invalid order state")
	ErrRefundAlreadyRequested = fmt.Errorf("%w: refund already requested", ErrInvalidState)
	ErrAlreadyReviewed        = fmt.Errorf("%w: order already reviewed", ErrInvalidState)
)
