// REST API client for the Alpaca trading and market data APIs.
// Resty only + internal retry for transient failures.
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	// Default retry configuration for transient failures. Deterministic
	// client rejections are never retried here.
	defaultRetryAttempts   = 4
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 4 * time.Second

	defaultRequestTimeout = 15 * time.Second
)

// AlpacaClient talks to the Alpaca v2 trading API and the market data API.
type AlpacaClient struct {
	trading *resty.Client
	data    *resty.Client
}

var _ BrokerClient = (*AlpacaClient)(nil)

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

// NewAlpacaClient builds a client from explicit settings.
func NewAlpacaClient(apiKey, apiSecret, baseURL, dataURL string) *AlpacaClient {
	if baseURL == "" {
		baseURL = "https://paper-api.alpaca.markets"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	if dataURL == "" {
		dataURL = "https://data.alpaca.markets"
	}

	newHTTP := func(url string) *resty.Client {
		return resty.New().
			SetBaseURL(url).
			SetTimeout(defaultRequestTimeout).
			SetRetryCount(defaultRetryAttempts - 1).
			SetRetryWaitTime(defaultRetryBaseDelay).
			SetRetryMaxWaitTime(defaultRetryMaxBackoff).
			AddRetryCondition(isRetryableResp).
			SetHeader("APCA-API-KEY-ID", apiKey).
			SetHeader("APCA-API-SECRET-KEY", apiSecret)
	}

	return &AlpacaClient{
		trading: newHTTP(baseURL),
		data:    newHTTP(dataURL),
	}
}

// NewAlpacaClientFromEnv builds a client from the package env config.
func NewAlpacaClientFromEnv() *AlpacaClient {
	cfg := GetConfig()
	return NewAlpacaClient(cfg.AlpacaAPIKey, cfg.AlpacaAPISecret, cfg.AlpacaBaseURL, cfg.AlpacaDataURL)
}

func (c *AlpacaClient) doRequest(
	ctx context.Context,
	client *resty.Client,
	method, path string,
	query map[string]string,
	body interface{},
	out interface{},
) error {

	req := client.R().SetContext(ctx)
	if query != nil {
		req = req.SetQueryParams(query)
	}
	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}

	code := resp.StatusCode()
	raw := resp.Body()

	if code >= 400 && code < 500 && code != 429 {
		return &APIError{StatusCode: code, Body: string(raw)}
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("HTTP %d: %s", code, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// ---------------------------------------------------
// Trading methods
// ---------------------------------------------------

type bracketLeg struct {
	LimitPrice string `json:"limit_price,omitempty"`
	StopPrice  string `json:"stop_price,omitempty"`
}

type createOrderBody struct {
	Symbol        string      `json:"symbol"`
	Qty           string      `json:"qty"`
	Side          string      `json:"side"`
	Type          string      `json:"type"`
	TimeInForce   string      `json:"time_in_force"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	OrderClass    string      `json:"order_class,omitempty"`
	TakeProfit    *bracketLeg `json:"take_profit,omitempty"`
	StopLoss      *bracketLeg `json:"stop_loss,omitempty"`
}

// CreateOrder submits an order. Bracket legs, when present, turn the
// submission into an order_class=bracket (one-cancels-other) order.
func (c *AlpacaClient) CreateOrder(ctx context.Context, r CreateOrderRequest) (*BrokerOrder, error) {
	if r.Type == "" {
		r.Type = "market"
	}
	if r.TimeInForce == "" {
		r.TimeInForce = "day"
	}

	body := createOrderBody{
		Symbol:        r.Symbol,
		Qty:           strconv.FormatFloat(r.Qty, 'f', -1, 64),
		Side:          r.Side,
		Type:          r.Type,
		TimeInForce:   r.TimeInForce,
		ClientOrderID: r.ClientOrderID,
	}

	if r.TakeProfitLimit != nil || r.StopLossStop != nil {
		body.OrderClass = "bracket"
		if r.TakeProfitLimit != nil {
			body.TakeProfit = &bracketLeg{LimitPrice: r.TakeProfitLimit.StringFixed(2)}
		}
		if r.StopLossStop != nil {
			body.StopLoss = &bracketLeg{StopPrice: r.StopLossStop.StringFixed(2)}
		}
	}

	logger.WithFields(map[string]interface{}{
		"connector": "alpaca",
		"op":        "CreateOrder",
		"symbol":    r.Symbol,
		"side":      r.Side,
		"qty":       r.Qty,
		"bracket":   body.OrderClass != "",
	}).Debug("Submitting order")

	var order BrokerOrder
	if err := c.doRequest(ctx, c.trading, "POST", "/v2/orders", nil, body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *AlpacaClient) GetOrder(ctx context.Context, id string) (*BrokerOrder, error) {
	var order BrokerOrder
	if err := c.doRequest(ctx, c.trading, "GET", "/v2/orders/"+id, nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *AlpacaClient) CancelOrder(ctx context.Context, id string) error {
	return c.doRequest(ctx, c.trading, "DELETE", "/v2/orders/"+id, nil, nil, nil)
}

func (c *AlpacaClient) GetOrders(ctx context.Context, status string, limit int) ([]BrokerOrder, error) {
	query := map[string]string{}
	if status != "" {
		query["status"] = status
	}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}

	var orders []BrokerOrder
	if err := c.doRequest(ctx, c.trading, "GET", "/v2/orders", query, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ---------------------------------------------------
// Account, clock and positions
// ---------------------------------------------------

type accountResp struct {
	Cash string `json:"cash"`
}

func (c *AlpacaClient) GetAccount(ctx context.Context) (*BrokerAccount, error) {
	var parsed accountResp
	if err := c.doRequest(ctx, c.trading, "GET", "/v2/account", nil, nil, &parsed); err != nil {
		return nil, err
	}

	cash, err := decimal.NewFromString(parsed.Cash)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account cash %q: %w", parsed.Cash, err)
	}
	return &BrokerAccount{Cash: cash}, nil
}

type clockResp struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

func (c *AlpacaClient) GetClock(ctx context.Context) (*BrokerClock, error) {
	var parsed clockResp
	if err := c.doRequest(ctx, c.trading, "GET", "/v2/clock", nil, nil, &parsed); err != nil {
		return nil, err
	}
	return &BrokerClock{IsOpen: parsed.IsOpen, NextOpen: parsed.NextOpen, NextClose: parsed.NextClose}, nil
}

type positionResp struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	AvgEntryPrice string `json:"avg_entry_price"`
}

func (c *AlpacaClient) GetPositions(ctx context.Context) ([]BrokerPosition, error) {
	var parsed []positionResp
	if err := c.doRequest(ctx, c.trading, "GET", "/v2/positions", nil, nil, &parsed); err != nil {
		return nil, err
	}

	positions := make([]BrokerPosition, 0, len(parsed))
	for _, p := range parsed {
		qty, err := decimal.NewFromString(p.Qty)
		if err != nil {
			logger.WithError(err).WithField("symbol", p.Symbol).
				Warn("Skipping position with unparsable qty")
			continue
		}
		entry, err := decimal.NewFromString(p.AvgEntryPrice)
		if err != nil {
			logger.WithError(err).WithField("symbol", p.Symbol).
				Warn("Skipping position with unparsable entry price")
			continue
		}
		positions = append(positions, BrokerPosition{
			Symbol:        p.Symbol,
			Qty:           qty,
			Side:          p.Side,
			AvgEntryPrice: entry,
		})
	}
	return positions, nil
}

// ---------------------------------------------------
// Market data
// ---------------------------------------------------

type latestTradeResp struct {
	Trade struct {
		Price float64 `json:"p"`
	} `json:"trade"`
}

// GetLatestTrade returns the price of the latest trade for the symbol.
func (c *AlpacaClient) GetLatestTrade(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var parsed latestTradeResp
	err := c.doRequest(ctx, c.data, "GET", "/v2/stocks/"+symbol+"/trades/latest", nil, nil, &parsed)
	if err != nil {
		return decimal.Zero, err
	}
	if parsed.Trade.Price <= 0 {
		return decimal.Zero, fmt.Errorf("no trade price available for %s", symbol)
	}
	return decimal.NewFromFloat(parsed.Trade.Price), nil
}
