// Package monitor watches open positions and exits the ones that have moved
// past the configured stop-loss or take-profit thresholds.
package monitor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"stockbot/src/connectors"
	"stockbot/src/model"
	"stockbot/src/notify"
)

type auditStore interface {
	AddAuditLog(ctx context.Context, orderID, event string, meta map[string]interface{}) (*model.AuditLog, error)
}

type pnlRecorder interface {
	RecordPnL(ctx context.Context, delta decimal.Decimal) (*model.RiskState, error)
}

type configStore interface {
	Get(ctx context.Context) (*model.BotConfig, error)
}

// Monitor runs periodic sweeps over open positions. Threshold breaches are
// closed with a market order in the opposite direction and the realized
// move is fed back into the daily PnL accounting.
type Monitor struct {
	broker    connectors.BrokerClient
	audits    auditStore
	risk      pnlRecorder
	config    configStore
	notifier  notify.Notifier
	notifyCfg notify.Config

	running atomic.Bool
}

func NewMonitor(
	broker connectors.BrokerClient,
	audits auditStore,
	risk pnlRecorder,
	config configStore,
	notifier notify.Notifier,
) *Monitor {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Monitor{
		broker:    broker,
		audits:    audits,
		risk:      risk,
		config:    config,
		notifier:  notifier,
		notifyCfg: notify.GetConfig(),
	}
}

// MonitorResult reports one sweep.
type MonitorResult struct {
	Positions int `json:"positions"`
	Exited    int `json:"exited"`
}

// RunMonitor performs one sweep over all open positions. A failure on one
// position is logged and does not stop the sweep.
func (m *Monitor) RunMonitor(ctx context.Context) (MonitorResult, error) {
	cfg, err := m.config.Get(ctx)
	if err != nil {
		return MonitorResult{}, fmt.Errorf("loading bot config: %w", err)
	}

	positions, err := m.broker.GetPositions(ctx)
	if err != nil {
		return MonitorResult{}, fmt.Errorf("fetching positions: %w", err)
	}

	result := MonitorResult{Positions: len(positions)}
	for i := range positions {
		exited, err := m.checkPosition(ctx, &positions[i], cfg)
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"component": "PositionMonitor",
				"symbol":    positions[i].Symbol,
			}).Error("Position check failed")
			continue
		}
		if exited {
			result.Exited++
		}
	}

	logger.WithFields(map[string]interface{}{
		"component": "PositionMonitor",
		"positions": result.Positions,
		"exited":    result.Exited,
	}).Info("Monitor sweep finished")

	return result, nil
}

// checkPosition evaluates one position against the stop/take thresholds and
// exits it when either is breached.
func (m *Monitor) checkPosition(ctx context.Context, pos *connectors.BrokerPosition, cfg *model.BotConfig) (bool, error) {
	if pos.AvgEntryPrice.IsZero() {
		return false, nil
	}

	price, err := m.broker.GetLatestTrade(ctx, pos.Symbol)
	if err != nil {
		return false, fmt.Errorf("fetching latest trade for %s: %w", pos.Symbol, err)
	}

	// Thresholds are a price band around the entry, the same for long and
	// short positions; only the realized PnL sign depends on the side.
	hundred := decimal.NewFromInt(100)
	stopPrice := pos.AvgEntryPrice.Mul(hundred.Sub(decimal.NewFromFloat(cfg.StopLossPct))).Div(hundred)
	takePrice := pos.AvgEntryPrice.Mul(hundred.Add(decimal.NewFromFloat(cfg.TakeProfitPct))).Div(hundred)

	stopBreached := cfg.StopLossPct > 0 && price.LessThanOrEqual(stopPrice)
	takeBreached := cfg.TakeProfitPct > 0 && price.GreaterThanOrEqual(takePrice)

	if !stopBreached && !takeBreached {
		return false, nil
	}

	reason := "take_profit"
	if stopBreached {
		reason = "stop_loss"
	}

	return true, m.exitPosition(ctx, pos, price, reason)
}

func (m *Monitor) exitPosition(ctx context.Context, pos *connectors.BrokerPosition, exitPrice decimal.Decimal, reason string) error {
	qty := pos.Qty.Abs()
	exitSide := model.OrderSideSell
	if pos.Side == "short" {
		exitSide = model.OrderSideBuy
	}

	log := logger.WithFields(map[string]interface{}{
		"component": "PositionMonitor",
		"symbol":    pos.Symbol,
		"qty":       qty.String(),
		"side":      exitSide,
		"entry":     pos.AvgEntryPrice.String(),
		"exit":      exitPrice.String(),
		"reason":    reason,
	})
	log.Info("Exiting position")

	qtyF, _ := qty.Float64()
	order, err := m.broker.CreateOrder(ctx, connectors.CreateOrderRequest{
		Symbol:      pos.Symbol,
		Qty:         qtyF,
		Side:        exitSide,
		Type:        model.OrderTypeMarket,
		TimeInForce: model.TimeInForceDay,
	})
	if err != nil {
		return fmt.Errorf("submitting exit order for %s: %w", pos.Symbol, err)
	}

	if _, err := m.audits.AddAuditLog(ctx, order.ID, model.AuditEventPositionExit, map[string]interface{}{
		"symbol": pos.Symbol,
		"qty":    qty.String(),
		"entry":  pos.AvgEntryPrice.String(),
		"exit":   exitPrice.String(),
		"reason": reason,
	}); err != nil {
		log.WithError(err).Error("Failed to append position exit audit entry")
	}

	// Realized move, signed: long gains when exit > entry, short the
	// opposite. Fills at the actual execution price can differ slightly;
	// the latest trade is the best estimate available here.
	delta := exitPrice.Sub(pos.AvgEntryPrice).Mul(qty)
	if pos.Side == "short" {
		delta = delta.Neg()
	}
	if _, err := m.risk.RecordPnL(ctx, delta); err != nil {
		log.WithError(err).Error("Failed to record realized PnL")
	}

	if m.notifyCfg.NotifyOnExit {
		m.notifier.Send(
			fmt.Sprintf("Position exited: %s", pos.Symbol),
			fmt.Sprintf("Exited %s x %s (%s) at %s, entry %s, realized %s",
				pos.Symbol, qty.String(), reason, exitPrice.String(), pos.AvgEntryPrice.String(), delta.String()),
		)
	}

	return nil
}

// StartLoop runs sweeps on a fixed interval until the context is canceled.
// A sweep still in flight when the ticker fires makes the new tick a no-op.
func (m *Monitor) StartLoop(ctx context.Context, interval time.Duration) {
	logger.WithFields(map[string]interface{}{
		"component": "PositionMonitor",
		"interval":  interval.String(),
	}).Info("Starting position monitor loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.WithField("component", "PositionMonitor").Info("Monitor loop stopped")
			return
		case <-ticker.C:
			if !m.running.CompareAndSwap(false, true) {
				logger.WithField("component", "PositionMonitor").
					Warn("Previous sweep still running, skipping tick")
				continue
			}
			if _, err := m.RunMonitor(ctx); err != nil {
				logger.WithError(err).WithField("component", "PositionMonitor").
					Error("Monitor sweep failed")
			}
			m.running.Store(false)
		}
	}
}
