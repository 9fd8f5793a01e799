// Package queue drains locally queued orders toward the brokerage with
// exponential-backoff retries and a terminal failure state.
package queue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"stockbot/src/connectors"
	"stockbot/src/model"
	"stockbot/src/notify"
	"stockbot/src/repository"
)

const (
	// DefaultMaxPerRun bounds a single drain pass.
	DefaultMaxPerRun = 10
	// DefaultMaxRetries is the retry ceiling before an order goes terminal.
	DefaultMaxRetries = 5
	// DefaultBackoffBase is the base of the exponential backoff schedule.
	DefaultBackoffBase = time.Second

	// jitterCeiling caps the random addition to a backoff delay.
	jitterCeiling = time.Second

	persistedByProcessor = "queue-processor"
)

type orderStore interface {
	List(ctx context.Context, options repository.OrderListOptions) ([]model.Order, int64, error)
	FindByID(ctx context.Context, id string) (*model.Order, error)
	MergeUpdate(ctx context.Context, id string, fields map[string]interface{}) (*model.Order, error)
	AddAuditLog(ctx context.Context, orderID, event string, meta map[string]interface{}) (*model.AuditLog, error)
}

// ProcessResult reports the outcome of a drain pass.
type ProcessResult struct {
	Processed int  `json:"processed"`
	Skipped   int  `json:"skipped"`
	Found     bool `json:"found"`
}

// Processor attempts execution of queued orders. A run-level mutex
// serializes concurrent invocations (cycle-triggered vs admin-triggered) in
// process; broker submissions additionally carry a client order token
// derived from the order id and retry count, so an at-least-once overlap
// across processes cannot double-fill.
type Processor struct {
	broker      connectors.BrokerClient
	store       orderStore
	notifier    notify.Notifier
	notifyCfg   notify.Config
	backoffBase time.Duration
	now         func() time.Time
	jitter      func(max time.Duration) time.Duration

	runMu sync.Mutex
}

func NewProcessor(broker connectors.BrokerClient, store orderStore, notifier notify.Notifier) *Processor {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Processor{
		broker:      broker,
		store:       store,
		notifier:    notifier,
		notifyCfg:   notify.GetConfig(),
		backoffBase: DefaultBackoffBase,
		now:         time.Now,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// WithBackoffBase overrides the backoff base. Used by tests and env wiring.
func (p *Processor) WithBackoffBase(base time.Duration) *Processor {
	if base > 0 {
		p.backoffBase = base
	}
	return p
}

// WithNow overrides the clock. Used by tests.
func (p *Processor) WithNow(now func() time.Time) *Processor {
	p.now = now
	return p
}

// WithJitter overrides the jitter source. Used by tests.
func (p *Processor) WithJitter(jitter func(max time.Duration) time.Duration) *Processor {
	p.jitter = jitter
	return p
}

// Backoff returns the delay before retry attempt n (n = current retry
// count): base * 2^max(0, n-1).
func (p *Processor) Backoff(retryCount int) time.Duration {
	exp := retryCount - 1
	if exp < 0 {
		exp = 0
	}
	return p.backoffBase * time.Duration(int64(1)<<uint(exp))
}

// dueForAttempt reports whether the order is eligible for a new attempt: it
// has never been attempted, or the backoff window since the last attempt has
// elapsed. A bounded random jitter avoids thundering-herd retries.
func (p *Processor) dueForAttempt(order *model.Order) bool {
	if order.LastAttemptAt == nil {
		return true
	}

	delay := p.Backoff(order.RetryCount)
	maxJitter := delay
	if maxJitter > jitterCeiling {
		maxJitter = jitterCeiling
	}

	due := order.LastAttemptAt.Add(delay + p.jitter(maxJitter))
	return !p.now().Before(due)
}

// ProcessQueuedOrders fetches up to maxPerRun queued orders and attempts
// execution of the ones whose backoff window has elapsed. Orders are
// processed sequentially within a run; each order gets at most one broker
// submission per invocation.
func (p *Processor) ProcessQueuedOrders(ctx context.Context, maxPerRun, maxRetries int) (ProcessResult, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if maxPerRun <= 0 {
		maxPerRun = DefaultMaxPerRun
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	queued, _, err := p.store.List(ctx, repository.OrderListOptions{
		Status: model.OrderStatusQueued,
		Page:   1,
		Limit:  maxPerRun,
	})
	if err != nil {
		return ProcessResult{}, err
	}
	if len(queued) == 0 {
		return ProcessResult{}, nil
	}

	result := ProcessResult{}
	for i := range queued {
		r := p.processOne(ctx, &queued[i], maxRetries)
		result.Processed += r.Processed
		result.Skipped += r.Skipped
	}

	logger.WithFields(map[string]interface{}{
		"component": "QueueProcessor",
		"queued":    len(queued),
		"processed": result.Processed,
		"skipped":   result.Skipped,
	}).Info("Queue drain pass finished")

	return result, nil
}

// ProcessQueuedOrderByID attempts a single order, typically from the admin
// trigger. A missing order is reported in the result, not as an error.
func (p *Processor) ProcessQueuedOrderByID(ctx context.Context, id string, maxRetries int) (ProcessResult, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	order, err := p.store.FindByID(ctx, id)
	if err != nil {
		return ProcessResult{}, err
	}
	if order == nil {
		return ProcessResult{Found: false}, nil
	}

	result := p.processOne(ctx, order, maxRetries)
	result.Found = true
	return result, nil
}

// clientOrderToken derives an idempotency token for the broker submission.
// The same order at the same retry count always submits the same token, so
// a duplicate invocation cannot create a second broker order.
func clientOrderToken(order *model.Order, bracket bool) string {
	if bracket {
		return fmt.Sprintf("%s-r%d-oco", order.ID, order.RetryCount)
	}
	return fmt.Sprintf("%s-r%d", order.ID, order.RetryCount)
}

func (p *Processor) processOne(ctx context.Context, order *model.Order, maxRetries int) ProcessResult {
	// Terminal and non-queued states are never reprocessed.
	if order.Status != model.OrderStatusQueued {
		return ProcessResult{Skipped: 1}
	}
	if !p.dueForAttempt(order) {
		return ProcessResult{Skipped: 1}
	}

	log := logger.WithFields(map[string]interface{}{
		"component":   "QueueProcessor",
		"order_id":    order.ID,
		"symbol":      order.Symbol,
		"qty":         order.Qty,
		"side":        order.Side,
		"retry_count": order.RetryCount,
	})
	log.Info("Processing queued order")

	brokerOrder, err := p.attemptSubmission(ctx, order)
	if err != nil {
		p.recordFailure(ctx, order, err, maxRetries)
		return ProcessResult{}
	}

	now := p.now().UTC()
	status := brokerOrder.Status
	if status == "" {
		status = model.OrderStatusAccepted
	}

	fields := map[string]interface{}{
		"external_id":  brokerOrder.ID,
		"status":       status,
		"persisted_by": persistedByProcessor,
		"persisted_at": now,
	}
	if _, err := p.store.MergeUpdate(ctx, order.ID, fields); err != nil {
		// The broker order exists; losing the bookkeeping write must not
		// hide that. The audit below still references the broker id.
		log.WithError(err).Error("Failed to persist execution result")
	}

	if _, err := p.store.AddAuditLog(ctx, order.ID, model.AuditEventExecuted, map[string]interface{}{
		"new_id": brokerOrder.ID,
		"symbol": order.Symbol,
		"qty":    order.Qty,
	}); err != nil {
		log.WithError(err).Error("Failed to append executed audit entry")
	}

	if p.notifyCfg.NotifyOnSuccess {
		p.notifier.Send(
			fmt.Sprintf("Order executed: %s", brokerOrder.ID),
			fmt.Sprintf("Order %s executed as %s (%s %g)", order.ID, brokerOrder.ID, order.Symbol, order.Qty),
		)
	}

	log.WithField("external_id", brokerOrder.ID).Info("Queued order executed")
	return ProcessResult{Processed: 1}
}

// attemptSubmission submits the order, preferring a bracket order when
// stop/take parameters are present and a current price is available, and
// falling back to a plain market order when the bracket submission fails.
func (p *Processor) attemptSubmission(ctx context.Context, order *model.Order) (*connectors.BrokerOrder, error) {
	orderType := order.OrderType
	if orderType == "" {
		orderType = model.OrderTypeMarket
	}
	tif := order.TimeInForce
	if tif == "" {
		tif = model.TimeInForceDay
	}

	plain := connectors.CreateOrderRequest{
		Symbol:        order.Symbol,
		Qty:           order.Qty,
		Side:          order.Side,
		Type:          orderType,
		TimeInForce:   tif,
		ClientOrderID: clientOrderToken(order, false),
	}

	if order.StopLossPct <= 0 && order.TakeProfitPct <= 0 {
		return p.broker.CreateOrder(ctx, plain)
	}

	entry, err := p.broker.GetLatestTrade(ctx, order.Symbol)
	if err != nil {
		logger.WithError(err).WithField("order_id", order.ID).
			Warn("Could not fetch latest trade for bracket sizing, submitting plain order")
		return p.broker.CreateOrder(ctx, plain)
	}

	bracket := connectors.CreateOrderRequest{
		Symbol:        order.Symbol,
		Qty:           order.Qty,
		Side:          order.Side,
		Type:          model.OrderTypeMarket,
		TimeInForce:   tif,
		ClientOrderID: clientOrderToken(order, true),
	}
	hundred := decimal.NewFromInt(100)
	if order.StopLossPct > 0 {
		stop := entry.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(order.StopLossPct).Div(hundred)))
		bracket.StopLossStop = &stop
	}
	if order.TakeProfitPct > 0 {
		limit := entry.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(order.TakeProfitPct).Div(hundred)))
		bracket.TakeProfitLimit = &limit
	}

	brokerOrder, err := p.broker.CreateOrder(ctx, bracket)
	if err == nil {
		return brokerOrder, nil
	}

	logger.WithError(err).WithField("order_id", order.ID).
		Warn("Bracket order failed, falling back to plain order")
	return p.broker.CreateOrder(ctx, plain)
}

// recordFailure increments the retry bookkeeping and, at the ceiling,
// transitions the order to the terminal failed state with an audit entry.
func (p *Processor) recordFailure(ctx context.Context, order *model.Order, attemptErr error, maxRetries int) {
	now := p.now().UTC()
	retryCount := order.RetryCount + 1
	errMsg := attemptErr.Error()

	log := logger.WithFields(map[string]interface{}{
		"component":   "QueueProcessor",
		"order_id":    order.ID,
		"retry_count": retryCount,
		"max_retries": maxRetries,
	})
	log.WithError(attemptErr).Error("Failed to process queued order")

	fields := map[string]interface{}{
		"retry_count":     retryCount,
		"last_error":      errMsg,
		"last_attempt_at": now,
	}

	if retryCount >= maxRetries {
		fields["status"] = model.OrderStatusFailed
		fields["failed_at"] = now

		if _, err := p.store.AddAuditLog(ctx, order.ID, model.AuditEventFailed, map[string]interface{}{
			"error": errMsg,
		}); err != nil {
			log.WithError(err).Error("Failed to append failed audit entry")
		}

		if p.notifyCfg.NotifyOnFailure {
			p.notifier.Send(
				fmt.Sprintf("Order failed: %s", order.ID),
				fmt.Sprintf("Order %s failed after %d attempts: %s", order.ID, retryCount, errMsg),
			)
		}

		log.Warn("Order reached retry ceiling, marked failed")
	}

	if _, err := p.store.MergeUpdate(ctx, order.ID, fields); err != nil {
		log.WithError(err).Error("Failed to persist retry bookkeeping")
	}
}
