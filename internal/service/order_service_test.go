package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/orderproc/order-outbox/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderStore struct {
	orders    map[uuid.UUID]*models.Order
	events    []models.OutboxEvent
	getErr    error
	createErr error
	getCalls  int
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[uuid.UUID]*models.Order)}
}

func (f *fakeOrderStore) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if order, ok := f.orders[id]; ok {
		return order, nil
	}
	return nil, models.ErrOrderNotFound
}

func (f *fakeOrderStore) CreateOrderWithEvent(_ context.Context, order *models.Order, event *models.OutboxEvent) error {
	if f.createErr != nil {
		// Rolled back: neither row persists
		return f.createErr
	}
	f.orders[order.ID] = order
	f.events = append(f.events, *event)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateOrder_CommitsOrderAndEventTogether(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, discardLogger())

	req := &models.OrderRequest{ID: uuid.New(), Amount: decimal.RequireFromString("100.00")}
	order, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, req.ID, order.ID)
	assert.True(t, order.Amount.Equal(req.Amount))
	assert.False(t, order.CreatedAt.IsZero(), "creation timestamp is set server-side")

	require.Len(t, store.orders, 1)
	require.Len(t, store.events, 1)

	event := store.events[0]
	assert.Equal(t, models.EventTypeOrderCreated, event.EventType)
	assert.False(t, event.Processed)
	assert.Nil(t, event.ProcessedAt)
	assert.Equal(t, order.CreatedAt, event.CreatedAt)

	var payload models.OrderCreatedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, order.ID, payload.OrderID)
	assert.True(t, payload.Amount.Equal(order.Amount))
	assert.True(t, payload.CreatedAt.Equal(order.CreatedAt), "payload is self-contained for downstream consumers")
}

func TestCreateOrder_DuplicateRejectedByPreCheck(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, discardLogger())

	req := &models.OrderRequest{ID: uuid.New(), Amount: decimal.RequireFromString("100.00")}
	_, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	resubmit := &models.OrderRequest{ID: req.ID, Amount: decimal.RequireFromString("999.00")}
	_, err = svc.CreateOrder(context.Background(), resubmit)
	require.ErrorIs(t, err, models.ErrDuplicateOrder)

	// No new rows, original amount untouched
	require.Len(t, store.orders, 1)
	require.Len(t, store.events, 1)
	assert.True(t, store.orders[req.ID].Amount.Equal(req.Amount))
}

func TestCreateOrder_ConcurrentDuplicateSurfacesAsConflict(t *testing.T) {
	// The pre-check misses, but the uniqueness constraint fires at commit
	store := newFakeOrderStore()
	store.createErr = models.ErrDuplicateOrder
	svc := NewOrderService(store, discardLogger())

	req := &models.OrderRequest{ID: uuid.New(), Amount: decimal.NewFromInt(50)}
	_, err := svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrDuplicateOrder)
}

func TestCreateOrder_TransactionFailureLeavesNoRows(t *testing.T) {
	store := newFakeOrderStore()
	store.createErr = errors.New("connection reset")
	svc := NewOrderService(store, discardLogger())

	req := &models.OrderRequest{ID: uuid.New(), Amount: decimal.NewFromInt(50)}
	_, err := svc.CreateOrder(context.Background(), req)

	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrDuplicateOrder)
	assert.Empty(t, store.orders)
	assert.Empty(t, store.events)
}

func TestCreateOrder_PreCheckFailurePropagates(t *testing.T) {
	store := newFakeOrderStore()
	store.getErr = errors.New("storage unavailable")
	svc := NewOrderService(store, discardLogger())

	req := &models.OrderRequest{ID: uuid.New(), Amount: decimal.NewFromInt(10)}
	_, err := svc.CreateOrder(context.Background(), req)

	require.Error(t, err)
	assert.Empty(t, store.orders)
}

func TestCreateOrder_ValidationSkipsStorage(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, discardLogger())

	_, err := svc.CreateOrder(context.Background(), &models.OrderRequest{Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, models.ErrInvalidOrderID)

	_, err = svc.CreateOrder(context.Background(), &models.OrderRequest{ID: uuid.New(), Amount: decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, models.ErrNegativeAmount)

	assert.Zero(t, store.getCalls, "invalid requests never reach storage")
}

func TestGetOrder_PassesThrough(t *testing.T) {
	store := newFakeOrderStore()
	svc := NewOrderService(store, discardLogger())

	req := &models.OrderRequest{ID: uuid.New(), Amount: decimal.NewFromInt(25)}
	created, err := svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	found, err := svc.GetOrder(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.GetOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}
