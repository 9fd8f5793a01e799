package model

import "time"

// Sizing strategies for the trade cycle.
const (
	StrategyFixed   = "fixed"
	StrategyPercent = "percent"
)

// BotConfigID is the primary key of the single bot-config row.
const BotConfigID = 1

// BotConfig is the persisted trading configuration. It is read-mostly and
// externally mutated through the admin API; every component re-reads the
// current row on each evaluation so updates take effect on the next cycle
// without a restart.
type BotConfig struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	Strategy string  `gorm:"size:16;default:fixed" json:"strategy"`
	Amount   float64 `json:"amount"`
	Percent  float64 `json:"percent"`
	Symbol   string  `gorm:"size:32" json:"symbol"`

	DailyLossCap      float64 `json:"daily_loss_cap"`
	PerTradeMaxShares float64 `json:"per_trade_max_shares"`
	CooldownSeconds   int     `json:"cooldown_seconds"`
	StopLossPct       float64 `json:"stop_loss_pct"`
	TakeProfitPct     float64 `json:"take_profit_pct"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (BotConfig) TableName() string {
	return "bot_configs"
}

// DefaultBotConfig seeds the config row on first read.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		ID:                BotConfigID,
		Strategy:          StrategyFixed,
		Amount:            1,
		Percent:           1,
		Symbol:            "AAPL",
		DailyLossCap:      1000,
		PerTradeMaxShares: 100,
		CooldownSeconds:   300,
		StopLossPct:       2,
		TakeProfitPct:     4,
	}
}
