package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/src/connectors"
	"stockbot/src/model"
)

type stubBroker struct {
	positions []connectors.BrokerPosition
	prices    map[string]decimal.Decimal
	priceErr  error
	created   []connectors.CreateOrderRequest
	createErr error
}

func (b *stubBroker) CreateOrder(_ context.Context, req connectors.CreateOrderRequest) (*connectors.BrokerOrder, error) {
	b.created = append(b.created, req)
	if b.createErr != nil {
		return nil, b.createErr
	}
	return &connectors.BrokerOrder{ID: "broker-exit-1", Symbol: req.Symbol, Status: "accepted"}, nil
}

func (b *stubBroker) GetOrder(context.Context, string) (*connectors.BrokerOrder, error) {
	return nil, errors.New("not implemented")
}

func (b *stubBroker) CancelOrder(context.Context, string) error { return nil }

func (b *stubBroker) GetOrders(context.Context, string, int) ([]connectors.BrokerOrder, error) {
	return nil, nil
}

func (b *stubBroker) GetLatestTrade(_ context.Context, symbol string) (decimal.Decimal, error) {
	if b.priceErr != nil {
		return decimal.Zero, b.priceErr
	}
	return b.prices[symbol], nil
}

func (b *stubBroker) GetAccount(context.Context) (*connectors.BrokerAccount, error) {
	return &connectors.BrokerAccount{Cash: decimal.NewFromInt(10000)}, nil
}

func (b *stubBroker) GetClock(context.Context) (*connectors.BrokerClock, error) {
	return &connectors.BrokerClock{IsOpen: true}, nil
}

func (b *stubBroker) GetPositions(context.Context) ([]connectors.BrokerPosition, error) {
	return b.positions, nil
}

type recordedAudit struct {
	orderID string
	event   string
	meta    map[string]interface{}
}

type stubAuditStore struct {
	entries []recordedAudit
}

func (s *stubAuditStore) AddAuditLog(_ context.Context, orderID, event string, meta map[string]interface{}) (*model.AuditLog, error) {
	s.entries = append(s.entries, recordedAudit{orderID: orderID, event: event, meta: meta})
	return &model.AuditLog{OrderID: orderID, Event: event}, nil
}

type stubPnLRecorder struct {
	deltas []decimal.Decimal
}

func (s *stubPnLRecorder) RecordPnL(_ context.Context, delta decimal.Decimal) (*model.RiskState, error) {
	s.deltas = append(s.deltas, delta)
	return &model.RiskState{}, nil
}

type stubConfigStore struct {
	cfg *model.BotConfig
}

func (s *stubConfigStore) Get(context.Context) (*model.BotConfig, error) {
	return s.cfg, nil
}

func longPosition(symbol string, qty, entry int64) connectors.BrokerPosition {
	return connectors.BrokerPosition{
		Symbol:        symbol,
		Qty:           decimal.NewFromInt(qty),
		Side:          "long",
		AvgEntryPrice: decimal.NewFromInt(entry),
	}
}

func newTestMonitor(broker *stubBroker, cfg *model.BotConfig) (*Monitor, *stubAuditStore, *stubPnLRecorder) {
	audits := &stubAuditStore{}
	pnl := &stubPnLRecorder{}
	if cfg == nil {
		def := model.DefaultBotConfig()
		cfg = &def
	}
	m := NewMonitor(broker, audits, pnl, &stubConfigStore{cfg: cfg}, notifyNop{})
	return m, audits, pnl
}

type notifyNop struct{}

func (notifyNop) Send(string, string) {}

func TestRunMonitorHoldsWithinThresholds(t *testing.T) {
	broker := &stubBroker{
		positions: []connectors.BrokerPosition{longPosition("AAPL", 10, 100)},
		prices:    map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(101)},
	}
	m, audits, pnl := newTestMonitor(broker, nil)

	result, err := m.RunMonitor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Positions)
	assert.Equal(t, 0, result.Exited)
	assert.Empty(t, broker.created)
	assert.Empty(t, audits.entries)
	assert.Empty(t, pnl.deltas)
}

func TestRunMonitorStopLossExit(t *testing.T) {
	// Default stop loss is 2%; price at 97 is a 3% drawdown.
	broker := &stubBroker{
		positions: []connectors.BrokerPosition{longPosition("AAPL", 10, 100)},
		prices:    map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(97)},
	}
	m, audits, pnl := newTestMonitor(broker, nil)

	result, err := m.RunMonitor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Exited)

	require.Len(t, broker.created, 1)
	exit := broker.created[0]
	assert.Equal(t, model.OrderSideSell, exit.Side)
	assert.Equal(t, float64(10), exit.Qty)
	assert.Equal(t, model.OrderTypeMarket, exit.Type)

	require.Len(t, audits.entries, 1)
	entry := audits.entries[0]
	assert.Equal(t, model.AuditEventPositionExit, entry.event)
	assert.Equal(t, "AAPL", entry.meta["symbol"])
	assert.Equal(t, "stop_loss", entry.meta["reason"])

	require.Len(t, pnl.deltas, 1)
	assert.Equal(t, "-30", pnl.deltas[0].String())
}

func TestRunMonitorTakeProfitExit(t *testing.T) {
	// Default take profit is 4%; price at 105 is a 5% gain.
	broker := &stubBroker{
		positions: []connectors.BrokerPosition{longPosition("AAPL", 5, 100)},
		prices:    map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(105)},
	}
	m, audits, pnl := newTestMonitor(broker, nil)

	result, err := m.RunMonitor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Exited)

	require.Len(t, audits.entries, 1)
	assert.Equal(t, "take_profit", audits.entries[0].meta["reason"])

	require.Len(t, pnl.deltas, 1)
	assert.Equal(t, "25", pnl.deltas[0].String())
}

func TestRunMonitorShortPosition(t *testing.T) {
	// The thresholds form a price band around the entry regardless of
	// side: entry 100 with a 2% stop exits at 97.9 for a short too, even
	// though the move is a gain for the position. Only the PnL sign is
	// side-aware.
	broker := &stubBroker{
		positions: []connectors.BrokerPosition{{
			Symbol:        "TSLA",
			Qty:           decimal.NewFromInt(-3),
			Side:          "short",
			AvgEntryPrice: decimal.NewFromInt(100),
		}},
		prices: map[string]decimal.Decimal{"TSLA": decimal.NewFromFloat(97.9)},
	}
	m, audits, pnl := newTestMonitor(broker, nil)

	result, err := m.RunMonitor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Exited)

	require.Len(t, broker.created, 1)
	exit := broker.created[0]
	assert.Equal(t, model.OrderSideBuy, exit.Side, "a short exits with a buy")
	assert.Equal(t, float64(3), exit.Qty)

	require.Len(t, audits.entries, 1)
	assert.Equal(t, "stop_loss", audits.entries[0].meta["reason"])

	require.Len(t, pnl.deltas, 1)
	assert.Equal(t, "6.3", pnl.deltas[0].String())
}

func TestRunMonitorContinuesPastFailures(t *testing.T) {
	broker := &stubBroker{
		positions: []connectors.BrokerPosition{
			longPosition("AAPL", 10, 100),
			longPosition("MSFT", 10, 200),
		},
		prices:   map[string]decimal.Decimal{},
		priceErr: errors.New("data api down"),
	}
	m, _, _ := newTestMonitor(broker, nil)

	result, err := m.RunMonitor(context.Background())
	require.NoError(t, err, "per-position failures must not fail the sweep")
	assert.Equal(t, 2, result.Positions)
	assert.Equal(t, 0, result.Exited)
}
