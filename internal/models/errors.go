package models

import "errors"

var (
	// ErrInvalidOrderID is returned when the client omits the order identifier.
	ErrInvalidOrderID = errors.New("order id is required")
	// ErrNegativeAmount is returned when the order amount is below zero.
	ErrNegativeAmount = errors.New("order amount must not be negative")
	// ErrDuplicateOrder signals that the order identifier was already committed.
	ErrDuplicateOrder = errors.New("order id already processed")
	// ErrOrderNotFound is returned when no order exists for an identifier.
	ErrOrderNotFound = errors.New("order not found")
)
