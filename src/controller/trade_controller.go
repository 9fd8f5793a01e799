// Package controller holds the trade submission path shared by the HTTP
// handler and the worker loop.
package controller

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"stockbot/src/connectors"
	"stockbot/src/model"
	"stockbot/src/repository"
	"stockbot/src/risk"
)

type orderStore interface {
	Append(ctx context.Context, order *model.Order) error
	AddAuditLog(ctx context.Context, orderID, event string, meta map[string]interface{}) (*model.AuditLog, error)
}

type configStore interface {
	Get(ctx context.Context) (*model.BotConfig, error)
}

type riskGate interface {
	CanPlaceTrade(ctx context.Context, symbol string, qty float64, side string) (risk.GateResult, error)
	NoteTrade(ctx context.Context, symbol string) error
}

// TradeRequest is a proposed trade.
type TradeRequest struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Qty    float64 `json:"qty"`
}

// SubmitResult is the structured outcome of a submission: executed at the
// broker, refused by the risk gate, queued for retry, or terminally failed.
type SubmitResult struct {
	OrderID    string `json:"order_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Blocked    bool   `json:"blocked,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Queued     bool   `json:"queued,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
	Error      string `json:"error,omitempty"`
}

type TradeController struct {
	broker connectors.BrokerClient
	store  orderStore
	config configStore
	gate   riskGate
}

func NewTradeController(broker connectors.BrokerClient, store orderStore, config configStore, gate riskGate) *TradeController {
	return &TradeController{
		broker: broker,
		store:  store,
		config: config,
		gate:   gate,
	}
}

// SubmitTrade runs a proposed trade through the risk gate and, when allowed,
// submits it to the broker. A transient broker failure enqueues the order
// locally for the queue processor; a client rejection is terminal. Once the
// broker has accepted the order, persistence of the local mirror is
// best-effort: a store failure is logged, never surfaced as a trade failure.
func (c *TradeController) SubmitTrade(ctx context.Context, req TradeRequest) (SubmitResult, error) {
	if err := req.validate(); err != nil {
		return SubmitResult{}, err
	}

	log := logger.WithFields(map[string]interface{}{
		"component": "TradeController",
		"symbol":    req.Symbol,
		"side":      req.Side,
		"qty":       req.Qty,
	})

	gateResult, err := c.gate.CanPlaceTrade(ctx, req.Symbol, req.Qty, req.Side)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("risk gate check: %w", err)
	}
	if !gateResult.OK {
		log.WithField("reason", gateResult.Reason).Warn("Trade blocked by risk gate")
		return SubmitResult{Blocked: true, Reason: gateResult.Reason}, nil
	}

	cfg, err := c.config.Get(ctx)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("loading bot config: %w", err)
	}

	order := &model.Order{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Qty:           req.Qty,
		OrderType:     model.OrderTypeMarket,
		TimeInForce:   model.TimeInForceDay,
		StopLossPct:   cfg.StopLossPct,
		TakeProfitPct: cfg.TakeProfitPct,
	}
	order.ID = repository.NewOrderID()

	brokerOrder, submitErr := c.broker.CreateOrder(ctx, connectors.CreateOrderRequest{
		Symbol:        req.Symbol,
		Qty:           req.Qty,
		Side:          req.Side,
		Type:          order.OrderType,
		TimeInForce:   order.TimeInForce,
		ClientOrderID: order.ID,
	})

	// The broker saw the request either way; start the cooldown window.
	if err := c.gate.NoteTrade(ctx, req.Symbol); err != nil {
		log.WithError(err).Error("Failed to record trade stamp")
	}

	if submitErr != nil {
		if connectors.IsClientRejection(submitErr) {
			return c.recordRejection(ctx, order, submitErr, log), nil
		}
		return c.enqueue(ctx, order, submitErr, log)
	}

	order.ExternalID = brokerOrder.ID
	order.Status = brokerOrder.Status
	if order.Status == "" {
		order.Status = model.OrderStatusAccepted
	}

	if err := c.store.Append(ctx, order); err != nil {
		log.WithError(err).WithField("external_id", brokerOrder.ID).
			Error("Broker accepted order but local mirror write failed")
	} else if _, err := c.store.AddAuditLog(ctx, order.ID, model.AuditEventExecuted, map[string]interface{}{
		"new_id": brokerOrder.ID,
		"symbol": order.Symbol,
		"qty":    order.Qty,
	}); err != nil {
		log.WithError(err).Error("Failed to append executed audit entry")
	}

	log.WithField("external_id", brokerOrder.ID).Info("Trade submitted")
	return SubmitResult{
		OrderID:    order.ID,
		ExternalID: brokerOrder.ID,
		Status:     order.Status,
	}, nil
}

// enqueue persists the order as queued so the queue processor picks it up.
func (c *TradeController) enqueue(ctx context.Context, order *model.Order, cause error, log *logger.Entry) (SubmitResult, error) {
	now := nowUTC()
	errMsg := cause.Error()
	order.Status = model.OrderStatusQueued
	order.QueuedAt = &now
	order.LastError = &errMsg

	if err := c.store.Append(ctx, order); err != nil {
		// Losing both the broker submission and the local queue entry
		// means the trade is gone; this one is a real error.
		return SubmitResult{}, fmt.Errorf("queueing order after broker failure: %w", err)
	}
	if _, err := c.store.AddAuditLog(ctx, order.ID, model.AuditEventQueued, map[string]interface{}{
		"symbol": order.Symbol,
		"qty":    order.Qty,
		"error":  errMsg,
	}); err != nil {
		log.WithError(err).Error("Failed to append queued audit entry")
	}

	log.WithError(cause).Warn("Broker submission failed, order queued for retry")
	return SubmitResult{
		OrderID: order.ID,
		Status:  model.OrderStatusQueued,
		Queued:  true,
		Error:   errMsg,
	}, nil
}

// recordRejection marks a client-rejected order as terminally rejected.
// Retrying a request the broker has already ruled invalid cannot succeed,
// so the order never enters the retry queue; the failed status stays
// reserved for orders that exhausted their retries there.
func (c *TradeController) recordRejection(ctx context.Context, order *model.Order, cause error, log *logger.Entry) SubmitResult {
	now := nowUTC()
	errMsg := cause.Error()
	order.Status = model.OrderStatusRejected
	order.FailedAt = &now
	order.LastError = &errMsg

	if err := c.store.Append(ctx, order); err != nil {
		log.WithError(err).Error("Failed to persist rejected order")
	} else if _, err := c.store.AddAuditLog(ctx, order.ID, model.AuditEventRejected, map[string]interface{}{
		"error": errMsg,
	}); err != nil {
		log.WithError(err).Error("Failed to append rejected audit entry")
	}

	log.WithError(cause).Error("Broker rejected order")
	return SubmitResult{
		OrderID: order.ID,
		Status:  model.OrderStatusRejected,
		Failed:  true,
		Error:   errMsg,
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (r TradeRequest) validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if r.Side != model.OrderSideBuy && r.Side != model.OrderSideSell {
		return fmt.Errorf("side must be %q or %q", model.OrderSideBuy, model.OrderSideSell)
	}
	if r.Qty <= 0 {
		return fmt.Errorf("qty must be positive")
	}
	return nil
}
