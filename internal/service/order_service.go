// Package service holds the intake and relay business logic.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orderproc/order-outbox/internal/models"
	"github.com/orderproc/order-outbox/pkg/metrics"

	"github.com/google/uuid"
)

// OrderStore is the storage contract for the intake path.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CreateOrderWithEvent(ctx context.Context, order *models.Order, event *models.OutboxEvent) error
}

// OrderService accepts order submissions and stages their OrderCreated event
// in the outbox. It never talks to the broker: order creation must succeed
// even while the broker is down.
type OrderService struct {
	store  OrderStore
	logger *slog.Logger
	now    func() time.Time
}

func NewOrderService(store OrderStore, l *slog.Logger) *OrderService {
	return &OrderService{
		store:  store,
		logger: l,
		now:    time.Now,
	}
}

// CreateOrder validates the request and commits the order together with its
// outbox event in one transaction. A duplicate identifier yields
// models.ErrDuplicateOrder, whether caught by the pre-check or by the
// storage constraint.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.OrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	l := s.logger.With("order_id", req.ID)

	// Cheap pre-check to skip a doomed transaction. The primary key on
	// orders.id remains the authoritative guard against a concurrent
	// duplicate.
	existing, err := s.store.GetOrder(ctx, req.ID)
	if err != nil && !errors.Is(err, models.ErrOrderNotFound) {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if existing != nil {
		l.Warn("duplicate order submission rejected")
		metrics.OrderConflicts.Inc()
		return nil, models.ErrDuplicateOrder
	}

	order := &models.Order{
		ID:        req.ID,
		Amount:    req.Amount,
		CreatedAt: s.now().UTC(),
	}

	event, err := newOrderCreatedEvent(order)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateOrderWithEvent(ctx, order, event); err != nil {
		if errors.Is(err, models.ErrDuplicateOrder) {
			l.Warn("duplicate order lost the race to the uniqueness constraint")
			metrics.OrderConflicts.Inc()
			return nil, models.ErrDuplicateOrder
		}
		l.Error("order transaction failed", "error", err)
		return nil, fmt.Errorf("order transaction failed: %w", err)
	}

	metrics.OrdersCreated.Inc()
	l.Info("order persisted and event staged in outbox", "event_id", event.ID)

	return order, nil
}

// GetOrder retrieves a committed order by identifier.
func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.store.GetOrder(ctx, id)
}

func newOrderCreatedEvent(order *models.Order) (*models.OutboxEvent, error) {
	payload, err := json.Marshal(models.OrderCreatedPayload{
		OrderID:   order.ID,
		Amount:    order.Amount,
		CreatedAt: order.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return &models.OutboxEvent{
		ID:        uuid.New(),
		EventType: models.EventTypeOrderCreated,
		Payload:   payload,
		CreatedAt: order.CreatedAt,
	}, nil
}
