package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"stockbot/src/model"
	"stockbot/src/queue"
)

type botConfigStore interface {
	Get(ctx context.Context) (*model.BotConfig, error)
	Update(ctx context.Context, fields map[string]interface{}) (*model.BotConfig, error)
}

type queueRunner interface {
	ProcessQueuedOrders(ctx context.Context, maxPerRun, maxRetries int) (queue.ProcessResult, error)
	ProcessQueuedOrderByID(ctx context.Context, id string, maxRetries int) (queue.ProcessResult, error)
}

// GetBotConfigHandler returns the current trading configuration.
func GetBotConfigHandler(repo botConfigStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := repo.Get(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to fetch bot config")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(cfg); err != nil {
			logger.WithError(err).Error("failed to encode bot config response")
		}
	}
}

// UpdateBotConfigHandler merges the posted fields into the configuration
// row and returns the updated row. Unknown fields are rejected.
func UpdateBotConfigHandler(repo botConfigStore) http.HandlerFunc {
	allowed := map[string]bool{
		"strategy":             true,
		"amount":               true,
		"percent":              true,
		"symbol":               true,
		"daily_loss_cap":       true,
		"per_trade_max_shares": true,
		"cooldown_seconds":     true,
		"stop_loss_pct":        true,
		"take_profit_pct":      true,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if len(fields) == 0 {
			http.Error(w, "no fields to update", http.StatusBadRequest)
			return
		}
		for key := range fields {
			if !allowed[key] {
				http.Error(w, "unknown field: "+key, http.StatusBadRequest)
				return
			}
		}
		if strategy, ok := fields["strategy"].(string); ok {
			if strategy != model.StrategyFixed && strategy != model.StrategyPercent {
				http.Error(w, "invalid strategy", http.StatusBadRequest)
				return
			}
		}

		cfg, err := repo.Update(r.Context(), fields)
		if err != nil {
			logger.WithError(err).Error("failed to update bot config")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(cfg); err != nil {
			logger.WithError(err).Error("failed to encode bot config response")
		}
	}
}

// ProcessQueueHandler triggers one drain pass over the queued orders.
func ProcessQueueHandler(runner queueRunner, maxPerRun, maxRetries int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := runner.ProcessQueuedOrders(r.Context(), maxPerRun, maxRetries)
		if err != nil {
			logger.WithError(err).Error("failed to process queue")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.WithError(err).Error("failed to encode queue process response")
		}
	}
}

// ProcessQueuedOrderHandler triggers a single order attempt by id.
func ProcessQueuedOrderHandler(runner queueRunner, maxRetries int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "missing order id", http.StatusBadRequest)
			return
		}

		result, err := runner.ProcessQueuedOrderByID(r.Context(), id, maxRetries)
		if err != nil {
			logger.WithError(err).Error("failed to process queued order")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !result.Found {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.WithError(err).Error("failed to encode queue process response")
		}
	}
}
