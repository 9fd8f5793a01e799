// Package executors drives the periodic trade cycle: consult the market
// clock, size a trade from the configured strategy, run it through the
// submission path, then drain the retry queue.
package executors

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"stockbot/src/connectors"
	"stockbot/src/controller"
	"stockbot/src/model"
	"stockbot/src/queue"
)

type configStore interface {
	Get(ctx context.Context) (*model.BotConfig, error)
}

type tradeSubmitter interface {
	SubmitTrade(ctx context.Context, req controller.TradeRequest) (controller.SubmitResult, error)
}

// SignalFunc decides the trade direction for a cycle. Returning an empty
// side skips the cycle. The default is a coin-flip stand-in for a real
// signal source.
type SignalFunc func(ctx context.Context, symbol string) (side string, err error)

// RandomSignal picks buy or sell at random.
func RandomSignal(_ context.Context, _ string) (string, error) {
	if rand.Intn(2) == 0 {
		return model.OrderSideBuy, nil
	}
	return model.OrderSideSell, nil
}

// Executor owns the trade cycle loop.
type Executor struct {
	broker    connectors.BrokerClient
	config    configStore
	submitter tradeSubmitter
	processor *queue.Processor
	signal    SignalFunc
	cfg       Config

	running atomic.Bool
}

func NewExecutor(
	broker connectors.BrokerClient,
	config configStore,
	submitter tradeSubmitter,
	processor *queue.Processor,
	signal SignalFunc,
) *Executor {
	if signal == nil {
		signal = RandomSignal
	}
	return &Executor{
		broker:    broker,
		config:    config,
		submitter: submitter,
		processor: processor,
		signal:    signal,
		cfg:       GetConfig(),
	}
}

// WithConfig overrides the env-derived settings. Used by tests.
func (e *Executor) WithConfig(cfg Config) *Executor {
	e.cfg = cfg
	return e
}

// StartLoop runs trade cycles on the worker interval until the context is
// canceled. A cycle still in flight when the ticker fires makes the new
// tick a no-op; cycle errors are logged and never stop the loop.
func (e *Executor) StartLoop(ctx context.Context) {
	logger.WithFields(map[string]interface{}{
		"component": "TradeCycle",
		"interval":  e.cfg.WorkerInterval.String(),
	}).Info("Starting trade cycle loop")

	ticker := time.NewTicker(e.cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.WithField("component", "TradeCycle").Info("Trade cycle loop stopped")
			return
		case <-ticker.C:
			if !e.running.CompareAndSwap(false, true) {
				logger.WithField("component", "TradeCycle").
					Warn("Previous cycle still running, skipping tick")
				continue
			}
			if err := e.RunTradeCycle(ctx); err != nil {
				logger.WithError(err).WithField("component", "TradeCycle").
					Error("Trade cycle failed")
			}
			e.running.Store(false)
		}
	}
}

// RunTradeCycle executes one cycle. The market-clock check fails soft: an
// unreachable clock skips the whole cycle, queue drain included, rather
// than submitting blind. A closed market likewise ends the cycle before the
// drain so queued orders do not burn retries against a closed exchange.
func (e *Executor) RunTradeCycle(ctx context.Context) error {
	log := logger.WithField("component", "TradeCycle")

	clock, err := e.broker.GetClock(ctx)
	if err != nil {
		log.WithError(err).Warn("Could not fetch market clock, skipping cycle")
		return nil
	}
	if !clock.IsOpen {
		log.Info("Market closed, skipping cycle")
		return nil
	}

	cfg, err := e.config.Get(ctx)
	if err != nil {
		log.WithError(err).Error("Could not load bot config, skipping cycle")
		return e.drainQueue(ctx)
	}

	side, err := e.signal(ctx, cfg.Symbol)
	if err != nil {
		log.WithError(err).Warn("Signal source failed, skipping cycle")
		return e.drainQueue(ctx)
	}
	if side == "" {
		log.Info("No signal this cycle")
		return e.drainQueue(ctx)
	}

	qty := e.sizeTrade(ctx, cfg)

	result, err := e.submitter.SubmitTrade(ctx, controller.TradeRequest{
		Symbol: cfg.Symbol,
		Side:   side,
		Qty:    qty,
	})
	switch {
	case err != nil:
		log.WithError(err).Error("Trade submission failed")
	case result.Blocked:
		log.WithField("reason", result.Reason).Info("Cycle trade blocked by risk gate")
	case result.Queued:
		log.WithField("order_id", result.OrderID).Info("Cycle trade queued for retry")
	default:
		log.WithFields(map[string]interface{}{
			"order_id":    result.OrderID,
			"external_id": result.ExternalID,
		}).Info("Cycle trade submitted")
	}

	return e.drainQueue(ctx)
}

func (e *Executor) drainQueue(ctx context.Context) error {
	if e.processor == nil {
		return nil
	}
	_, err := e.processor.ProcessQueuedOrders(ctx, e.cfg.QueueMaxPerRun, e.cfg.QueueMaxRetries)
	return err
}

// sizeTrade computes the share quantity for this cycle. Percent sizing
// spends cfg.Percent of current cash at the latest price, floored at one
// share; any account or price fetch failure falls back to the fixed amount.
func (e *Executor) sizeTrade(ctx context.Context, cfg *model.BotConfig) float64 {
	if cfg.Strategy != model.StrategyPercent {
		return cfg.Amount
	}

	account, err := e.broker.GetAccount(ctx)
	if err != nil {
		logger.WithError(err).WithField("component", "TradeCycle").
			Warn("Could not fetch account for percent sizing, using fixed amount")
		return cfg.Amount
	}

	price, err := e.broker.GetLatestTrade(ctx, cfg.Symbol)
	if err != nil || !price.IsPositive() {
		logger.WithError(err).WithField("component", "TradeCycle").
			Warn("Could not fetch latest trade for percent sizing, using fixed amount")
		return cfg.Amount
	}

	budget := account.Cash.Mul(decimal.NewFromFloat(cfg.Percent)).Div(decimal.NewFromInt(100))
	shares := budget.Div(price).Floor()
	if shares.LessThan(decimal.NewFromInt(1)) {
		return 1
	}
	qty, _ := shares.Float64()
	return qty
}
