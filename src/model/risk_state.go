package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskStateID is the primary key of the single risk-state row.
const RiskStateID = 1

// RiskState holds the daily risk accounting for the gate. A single row is
// lazily created with zero defaults on first read and persists indefinitely.
// DailyPnL and DailyLossCapHit reset exactly once per UTC calendar day, on
// the first access after midnight.
type RiskState struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	DailyPnL        decimal.Decimal `gorm:"type:numeric" json:"daily_pnl"`
	LastReset       time.Time       `json:"last_reset"`
	DailyLossCapHit bool            `gorm:"default:false" json:"daily_loss_cap_hit"`

	// Version is an optimistic concurrency token, bumped on every write.
	Version   int       `gorm:"default:0" json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RiskState) TableName() string {
	return "risk_states"
}

// TradeStamp records the last trade attempt per symbol for cooldown checks.
type TradeStamp struct {
	Symbol      string    `gorm:"primaryKey;size:32" json:"symbol"`
	LastTradeAt time.Time `json:"last_trade_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TradeStamp) TableName() string {
	return "trade_stamps"
}
