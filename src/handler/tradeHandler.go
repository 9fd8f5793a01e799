package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"stockbot/src/controller"
)

type tradeSubmitter interface {
	SubmitTrade(ctx context.Context, req controller.TradeRequest) (controller.SubmitResult, error)
}

// SubmitTradeHandler returns a handler that runs a trade request through the
// risk gate and submission path. Gate refusals come back as 409, queued
// submissions as 202, terminal broker rejections as 422.
func SubmitTradeHandler(submitter tradeSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req controller.TradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := submitter.SubmitTrade(r.Context(), req)
		if err != nil {
			logger.WithError(err).Error("failed to submit trade")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		status := http.StatusOK
		switch {
		case result.Blocked:
			status = http.StatusConflict
		case result.Queued:
			status = http.StatusAccepted
		case result.Failed:
			status = http.StatusUnprocessableEntity
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			logger.WithError(err).Error("failed to encode trade response")
		}
	}
}
