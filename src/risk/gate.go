// Package risk implements the policy gate deciding whether a proposed trade
// is currently permitted, plus the daily PnL accounting behind it.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"stockbot/src/model"
	"stockbot/src/notify"
)

// Block reasons, in evaluation order.
const (
	ReasonDailyLossCap = "daily_loss_cap_exceeded"
	ReasonPerTradeMax  = "per_trade_max_exceeded"
	ReasonCooldown     = "cooldown_active"
)

type riskStore interface {
	GetState(ctx context.Context) (*model.RiskState, error)
	UpdateState(ctx context.Context, fn func(state *model.RiskState) error) (*model.RiskState, error)
	GetTradeStamp(ctx context.Context, symbol string) (*model.TradeStamp, error)
	SetTradeStamp(ctx context.Context, symbol string, at time.Time) error
}

type configStore interface {
	Get(ctx context.Context) (*model.BotConfig, error)
}

// GateResult is the structured outcome of a gate check.
type GateResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Gate consults the persisted risk state and the current bot config on every
// call; nothing is cached.
type Gate struct {
	store    riskStore
	config   configStore
	notifier notify.Notifier
	now      func() time.Time
}

func NewGate(store riskStore, config configStore, notifier notify.Notifier) *Gate {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Gate{
		store:    store,
		config:   config,
		notifier: notifier,
		now:      time.Now,
	}
}

// WithNow overrides the clock. Used by tests.
func (g *Gate) WithNow(now func() time.Time) *Gate {
	g.now = now
	return g
}

// sameUTCDay compares the calendar date portion of both times in UTC. The
// daily reset boundary is a UTC day.
func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// ensureDailyReset zeroes the daily accounting when the last reset happened
// on an earlier UTC day. The reset rides on whichever entry point touches
// the state first after midnight; the gate is consulted every cycle, so in
// practice this is prompt.
func (g *Gate) ensureDailyReset(ctx context.Context, state *model.RiskState) (*model.RiskState, error) {
	if sameUTCDay(state.LastReset, g.now()) {
		return state, nil
	}

	updated, err := g.store.UpdateState(ctx, func(s *model.RiskState) error {
		// Re-check under the lock; another caller may have reset already.
		if sameUTCDay(s.LastReset, g.now()) {
			return nil
		}
		s.DailyPnL = decimal.Zero
		s.DailyLossCapHit = false
		s.LastReset = g.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component":  "RiskGate",
		"last_reset": updated.LastReset,
	}).Info("Daily risk state reset")

	return updated, nil
}

// CanPlaceTrade reports whether the proposed trade is permitted. Reasons are
// evaluated in a fixed order: daily loss cap, per-trade share cap, per-symbol
// cooldown. The check has no side effects beyond the lazy daily reset.
func (g *Gate) CanPlaceTrade(ctx context.Context, symbol string, qty float64, side string) (GateResult, error) {
	state, err := g.store.GetState(ctx)
	if err != nil {
		return GateResult{}, err
	}
	state, err = g.ensureDailyReset(ctx, state)
	if err != nil {
		return GateResult{}, err
	}

	cfg, err := g.config.Get(ctx)
	if err != nil {
		return GateResult{}, err
	}

	if state.DailyLossCapHit {
		return GateResult{OK: false, Reason: ReasonDailyLossCap}, nil
	}

	if cfg.PerTradeMaxShares > 0 && qty > cfg.PerTradeMaxShares {
		return GateResult{OK: false, Reason: ReasonPerTradeMax}, nil
	}

	if cfg.CooldownSeconds > 0 {
		stamp, err := g.store.GetTradeStamp(ctx, symbol)
		if err != nil {
			return GateResult{}, err
		}
		if stamp != nil {
			cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
			if g.now().Sub(stamp.LastTradeAt) < cooldown {
				return GateResult{OK: false, Reason: ReasonCooldown}, nil
			}
		}
	}

	return GateResult{OK: true}, nil
}

// NoteTrade records now as the symbol's last-trade timestamp. Callers must
// invoke this only after a trade was actually submitted, not merely
// gated-through.
func (g *Gate) NoteTrade(ctx context.Context, symbol string) error {
	return g.store.SetTradeStamp(ctx, symbol, g.now().UTC())
}

// RecordPnL accumulates realized PnL into the daily total. When the
// cumulative total reaches the configured loss cap the sticky cap flag is
// set and an alert goes out; the flag stays set until the next daily reset
// regardless of later positive deltas.
func (g *Gate) RecordPnL(ctx context.Context, delta decimal.Decimal) (*model.RiskState, error) {
	state, err := g.store.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := g.ensureDailyReset(ctx, state); err != nil {
		return nil, err
	}

	cfg, err := g.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	capNeg := decimal.NewFromFloat(cfg.DailyLossCap).Neg()

	capJustHit := false
	updated, err := g.store.UpdateState(ctx, func(s *model.RiskState) error {
		s.DailyPnL = s.DailyPnL.Add(delta)
		if s.DailyPnL.LessThanOrEqual(capNeg) && !s.DailyLossCapHit {
			s.DailyLossCapHit = true
			capJustHit = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component": "RiskGate",
		"delta":     delta.String(),
		"daily_pnl": updated.DailyPnL.String(),
		"cap_hit":   updated.DailyLossCapHit,
	}).Debug("Recorded PnL")

	if capJustHit {
		logger.WithFields(map[string]interface{}{
			"component":      "RiskGate",
			"daily_pnl":      updated.DailyPnL.String(),
			"daily_loss_cap": cfg.DailyLossCap,
		}).Warn("Daily loss cap hit, trading paused until next reset")

		g.notifier.Send(
			"Daily loss cap hit",
			fmt.Sprintf("Daily loss cap of %.2f reached. Current PnL: %s", cfg.DailyLossCap, updated.DailyPnL.String()),
		)
	}

	return updated, nil
}
