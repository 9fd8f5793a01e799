package model

import "time"

// Order status constants cover both locally assigned states and states
// mirrored back from the brokerage.
const (
	OrderStatusQueued   = "queued"
	OrderStatusAccepted = "accepted"
	OrderStatusFailed   = "failed"
	OrderStatusRejected = "rejected"
	OrderStatusCanceled = "canceled"
	OrderStatusFilled   = "filled"
)

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

const (
	OrderTypeMarket = "market"

	TimeInForceDay = "day"
)

// Order represents a brokerage order tracked by this system. A record is
// created either as a mirror of a broker-accepted order or as a queued order
// when the initial submission did not succeed. Records are merge-updated and
// never deleted; failed/canceled and broker-final statuses are terminal.
type Order struct {
	ID          string  `gorm:"primaryKey;size:64" json:"id"`
	ExternalID  string  `gorm:"index;size:64" json:"external_id,omitempty"`
	Symbol      string  `gorm:"index;size:32" json:"symbol"`
	Side        string  `gorm:"size:8" json:"side"`
	Qty         float64 `json:"qty"`
	OrderType   string  `gorm:"size:16;default:market" json:"order_type"`
	TimeInForce string  `gorm:"size:8;default:day" json:"time_in_force"`
	Status      string  `gorm:"index;size:32;not null" json:"status"`

	// Bracket parameters carried from the submission request so the queue
	// processor can rebuild the exit legs on a later attempt.
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`

	// Retry bookkeeping. Status==failed implies FailedAt set and
	// RetryCount at or above the configured ceiling; a broker rejection
	// that never enters the queue goes to rejected instead.
	RetryCount    int        `gorm:"default:0" json:"retry_count"`
	LastError     *string    `gorm:"size:1024" json:"last_error,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	QueuedAt      *time.Time `json:"queued_at,omitempty"`

	// Provenance of the last write.
	PersistedBy string     `gorm:"size:64" json:"persisted_by,omitempty"`
	PersistedAt *time.Time `json:"persisted_at,omitempty"`

	FilledAvgPrice *float64 `json:"filled_avg_price,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// IsTerminal reports whether no further automatic processing applies.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFailed, OrderStatusRejected, OrderStatusCanceled, OrderStatusFilled:
		return true
	}
	return false
}
