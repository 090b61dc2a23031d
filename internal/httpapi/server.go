// Package httpapi exposes the order intake over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/orderproc/order-outbox/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderService is the business contract the HTTP layer depends on.
type OrderService interface {
	CreateOrder(ctx context.Context, req *models.OrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// Server translates HTTP requests into service calls and errors into status
// codes.
type Server struct {
	orders OrderService
	logger *slog.Logger
}

func NewServer(orders OrderService, l *slog.Logger) *Server {
	return &Server{
		orders: orders,
		logger: l,
	}
}

// Routes wires the handlers onto a mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", s.handleCreateOrder)
	mux.HandleFunc("GET /orders/{id}", s.handleGetOrder)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	order, err := s.orders.CreateOrder(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicateOrder):
			writeError(w, http.StatusConflict, "order id already processed")
		case errors.Is(err, models.ErrInvalidOrderID), errors.Is(err, models.ErrNegativeAmount):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("order creation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal processing error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := s.orders.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		s.logger.Error("order lookup failed", "order_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal processing error")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
