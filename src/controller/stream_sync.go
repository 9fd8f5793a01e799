package controller

import (
	"context"
	"strconv"
	"strings"

	logger "github.com/sirupsen/logrus"

	"stockbot/src/connectors"
	"stockbot/src/model"
)

type orderUpdater interface {
	MergeUpdate(ctx context.Context, id string, fields map[string]interface{}) (*model.Order, error)
}

// localOrderID recovers the local order id from a broker client order id.
// Submissions carry either the bare local id or the id with a retry suffix
// ("<id>-r2", "<id>-r2-oco") appended by the queue processor.
func localOrderID(clientOrderID string) string {
	if i := strings.Index(clientOrderID, "-r"); i > 0 {
		suffix := clientOrderID[i+2:]
		if n := strings.IndexByte(suffix, '-'); n >= 0 {
			suffix = suffix[:n]
		}
		if suffix != "" && isDigits(suffix) {
			return clientOrderID[:i]
		}
	}
	return clientOrderID
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NewTradeUpdateHandler returns a stream handler that mirrors broker-side
// status transitions into the local store. Events for orders that were never
// mirrored locally are ignored.
func NewTradeUpdateHandler(store orderUpdater) connectors.TradeUpdateHandler {
	return func(ctx context.Context, update connectors.TradeUpdate) error {
		if update.Order.ClientOrderID == "" {
			return nil
		}
		id := localOrderID(update.Order.ClientOrderID)

		fields := map[string]interface{}{}
		switch update.Event {
		case "fill":
			fields["status"] = model.OrderStatusFilled
		case "partial_fill":
			// Status stays as-is until the terminal fill arrives.
		case "canceled", "expired":
			fields["status"] = model.OrderStatusCanceled
		case "rejected":
			fields["status"] = model.OrderStatusRejected
		default:
			return nil
		}
		if update.Order.FilledAvgPrice != nil {
			if price, err := strconv.ParseFloat(*update.Order.FilledAvgPrice, 64); err == nil {
				fields["filled_avg_price"] = price
			}
		}
		if len(fields) == 0 {
			return nil
		}

		order, err := store.MergeUpdate(ctx, id, fields)
		if err != nil {
			return err
		}
		if order == nil {
			logger.WithFields(map[string]interface{}{
				"component":       "TradeUpdateSync",
				"client_order_id": update.Order.ClientOrderID,
				"event":           update.Event,
			}).Debug("Trade update for unknown local order, ignoring")
			return nil
		}

		logger.WithFields(map[string]interface{}{
			"component": "TradeUpdateSync",
			"order_id":  order.ID,
			"event":     update.Event,
			"status":    order.Status,
		}).Info("Applied broker trade update")
		return nil
	}
}
