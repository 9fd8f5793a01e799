package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"stockbot/src/model"
	"stockbot/src/repository"
)

type orderReader interface {
	List(ctx context.Context, options repository.OrderListOptions) ([]model.Order, int64, error)
	FindByID(ctx context.Context, id string) (*model.Order, error)
	ListAuditLogs(ctx context.Context, page, limit int) ([]model.AuditLog, error)
}

type orderListResponse struct {
	Orders []model.Order `json:"orders"`
	Total  int64         `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

// ListOrdersHandler returns a handler that lists locally mirrored orders.
// Supports pagination and filters (status, symbol, from, to).
func ListOrdersHandler(repo orderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		options := repository.OrderListOptions{
			Status: r.URL.Query().Get("status"),
			Symbol: r.URL.Query().Get("symbol"),
		}

		if fromParam := r.URL.Query().Get("from"); fromParam != "" {
			parsed, err := time.Parse(time.RFC3339, fromParam)
			if err != nil {
				http.Error(w, "invalid from", http.StatusBadRequest)
				return
			}
			options.From = &parsed
		}

		if toParam := r.URL.Query().Get("to"); toParam != "" {
			parsed, err := time.Parse(time.RFC3339, toParam)
			if err != nil {
				http.Error(w, "invalid to", http.StatusBadRequest)
				return
			}
			options.To = &parsed
		}

		options.Page = 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsed, err := strconv.Atoi(pageParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			options.Page = parsed
		}

		options.Limit = 50
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			options.Limit = parsed
		}

		orders, total, err := repo.List(r.Context(), options)
		if err != nil {
			logger.WithError(err).Error("failed to list orders")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if orders == nil {
			orders = []model.Order{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orderListResponse{
			Orders: orders,
			Total:  total,
			Page:   options.Page,
			Limit:  options.Limit,
		}); err != nil {
			logger.WithError(err).Error("failed to encode order list response")
		}
	}
}

// GetOrderHandler returns a handler that fetches one order by its local id.
func GetOrderHandler(repo orderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "missing order id", http.StatusBadRequest)
			return
		}

		order, err := repo.FindByID(r.Context(), id)
		if err != nil {
			logger.WithError(err).Error("failed to fetch order")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if order == nil {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(order); err != nil {
			logger.WithError(err).Error("failed to encode order response")
		}
	}
}

// ListAuditLogsHandler returns a handler that lists the audit trail, newest
// first.
func ListAuditLogsHandler(repo orderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsed, err := strconv.Atoi(pageParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsed
		}

		limit := 50
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		logs, err := repo.ListAuditLogs(r.Context(), page, limit)
		if err != nil {
			logger.WithError(err).Error("failed to list audit logs")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if logs == nil {
			logs = []model.AuditLog{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(logs); err != nil {
			logger.WithError(err).Error("failed to encode audit log response")
		}
	}
}
