package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(trading, data *httptest.Server) *AlpacaClient {
	dataURL := ""
	if data != nil {
		dataURL = data.URL
	}
	return NewAlpacaClient("key", "secret", trading.URL, dataURL)
}

func TestCreateOrderBracketBody(t *testing.T) {
	var received createOrderBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(BrokerOrder{ID: "broker-1", Status: "accepted"})
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	stop := decimal.NewFromFloat(98)
	limit := decimal.NewFromFloat(104)

	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Symbol:          "AAPL",
		Qty:             2,
		Side:            "buy",
		ClientOrderID:   "ord-1-r0-oco",
		StopLossStop:    &stop,
		TakeProfitLimit: &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, "broker-1", order.ID)

	assert.Equal(t, "AAPL", received.Symbol)
	assert.Equal(t, "2", received.Qty)
	assert.Equal(t, "market", received.Type)
	assert.Equal(t, "day", received.TimeInForce)
	assert.Equal(t, "ord-1-r0-oco", received.ClientOrderID)
	assert.Equal(t, "bracket", received.OrderClass)
	require.NotNil(t, received.StopLoss)
	assert.Equal(t, "98.00", received.StopLoss.StopPrice)
	require.NotNil(t, received.TakeProfit)
	assert.Equal(t, "104.00", received.TakeProfit.LimitPrice)
}

func TestCreateOrderClientRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"insufficient buying power"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Symbol: "AAPL", Qty: 1, Side: "buy",
	})
	require.Error(t, err)
	assert.True(t, IsClientRejection(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestCreateOrderRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(BrokerOrder{ID: "broker-1", Status: "accepted"})
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	order, err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Symbol: "AAPL", Qty: 1, Side: "buy",
	})
	require.NoError(t, err)
	assert.Equal(t, "broker-1", order.ID)
	assert.Equal(t, 3, attempts)
}

func TestGetAccountParsesCash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/account", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cash":"10250.75"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	account, err := client.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10250.75", account.Cash.String())
}

func TestGetPositionsSkipsUnparsableRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"symbol":"AAPL","qty":"10","side":"long","avg_entry_price":"150.10"},
			{"symbol":"BAD","qty":"not-a-number","side":"long","avg_entry_price":"1"}
		]`))
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, "150.1", positions[0].AvgEntryPrice.String())
}

func TestGetLatestTrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/AAPL/trades/latest", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"trade":{"p":187.42}}`))
	}))
	defer srv.Close()

	trading := httptest.NewServer(http.NotFoundHandler())
	defer trading.Close()

	client := newTestClient(trading, srv)
	price, err := client.GetLatestTrade(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "187.42", price.String())
}

func TestGetLatestTradeRejectsZeroPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"trade":{"p":0}}`))
	}))
	defer srv.Close()

	trading := httptest.NewServer(http.NotFoundHandler())
	defer trading.Close()

	client := newTestClient(trading, srv)
	_, err := client.GetLatestTrade(context.Background(), "AAPL")
	assert.Error(t, err)
}
