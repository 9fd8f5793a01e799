package connectors

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BrokerClient is the brokerage capability consumed by the execution
// pipeline. Any call may fail with a transport error or a client rejection;
// transient failures are retried inline by the implementation, client
// rejections (4xx other than 429) are surfaced as *APIError and never
// retried.
type BrokerClient interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*BrokerOrder, error)
	GetOrder(ctx context.Context, id string) (*BrokerOrder, error)
	CancelOrder(ctx context.Context, id string) error
	GetOrders(ctx context.Context, status string, limit int) ([]BrokerOrder, error)
	GetLatestTrade(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetAccount(ctx context.Context) (*BrokerAccount, error)
	GetClock(ctx context.Context) (*BrokerClock, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
}

// CreateOrderRequest describes an order submission. When TakeProfitLimit or
// StopLossStop is set the order is submitted as a bracket (OCO-style) order.
type CreateOrderRequest struct {
	Symbol        string
	Qty           float64
	Side          string
	Type          string
	TimeInForce   string
	ClientOrderID string

	TakeProfitLimit *decimal.Decimal
	StopLossStop    *decimal.Decimal
}

// BrokerOrder is the broker's view of an order.
type BrokerOrder struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Qty            string     `json:"qty"`
	Side           string     `json:"side"`
	Type           string     `json:"type"`
	TimeInForce    string     `json:"time_in_force"`
	Status         string     `json:"status"`
	FilledAvgPrice *string    `json:"filled_avg_price"`
	CreatedAt      time.Time  `json:"created_at"`
	SubmittedAt    *time.Time `json:"submitted_at"`
}

type BrokerAccount struct {
	Cash decimal.Decimal
}

type BrokerClock struct {
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// BrokerPosition is an open position. Qty is signed by the raw API but Side
// carries the direction ("long"/"short") explicitly.
type BrokerPosition struct {
	Symbol        string
	Qty           decimal.Decimal
	Side          string
	AvgEntryPrice decimal.Decimal
}
