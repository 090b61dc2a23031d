// Package models defines the domain records persisted by the service.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the business record. The identifier is supplied by the client and
// doubles as the idempotency key; once committed the row is immutable.
type Order struct {
	ID        uuid.UUID       `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// OrderRequest carries the intake parameters for a new order.
type OrderRequest struct {
	ID     uuid.UUID       `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

// Validate checks the request preconditions before any storage work.
func (r *OrderRequest) Validate() error {
	if r.ID == uuid.Nil {
		return ErrInvalidOrderID
	}
	if r.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// OrderCreatedPayload is the event snapshot staged in the outbox. It carries
// everything a downstream consumer needs without querying back.
type OrderCreatedPayload struct {
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
