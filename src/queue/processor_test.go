package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbot/src/connectors"
	"stockbot/src/model"
	"stockbot/src/repository"
)

type stubBroker struct {
	createErr    error
	created      []connectors.CreateOrderRequest
	latestPrice  decimal.Decimal
	latestErr    error
	bracketFails bool
}

func (b *stubBroker) CreateOrder(_ context.Context, req connectors.CreateOrderRequest) (*connectors.BrokerOrder, error) {
	b.created = append(b.created, req)
	if b.createErr != nil {
		return nil, b.createErr
	}
	if b.bracketFails && (req.TakeProfitLimit != nil || req.StopLossStop != nil) {
		return nil, errors.New("bracket rejected")
	}
	return &connectors.BrokerOrder{
		ID:            "broker-" + req.ClientOrderID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Status:        "accepted",
	}, nil
}

func (b *stubBroker) GetOrder(context.Context, string) (*connectors.BrokerOrder, error) {
	return nil, errors.New("not implemented")
}

func (b *stubBroker) CancelOrder(context.Context, string) error { return nil }

func (b *stubBroker) GetOrders(context.Context, string, int) ([]connectors.BrokerOrder, error) {
	return nil, nil
}

func (b *stubBroker) GetLatestTrade(context.Context, string) (decimal.Decimal, error) {
	return b.latestPrice, b.latestErr
}

func (b *stubBroker) GetAccount(context.Context) (*connectors.BrokerAccount, error) {
	return &connectors.BrokerAccount{Cash: decimal.NewFromInt(10000)}, nil
}

func (b *stubBroker) GetClock(context.Context) (*connectors.BrokerClock, error) {
	return &connectors.BrokerClock{IsOpen: true}, nil
}

func (b *stubBroker) GetPositions(context.Context) ([]connectors.BrokerPosition, error) {
	return nil, nil
}

type auditEntry struct {
	orderID string
	event   string
	meta    map[string]interface{}
}

type stubOrderStore struct {
	orders map[string]*model.Order
	audits []auditEntry
	merges []map[string]interface{}
}

func newStubOrderStore(orders ...*model.Order) *stubOrderStore {
	s := &stubOrderStore{orders: map[string]*model.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *stubOrderStore) List(_ context.Context, options repository.OrderListOptions) ([]model.Order, int64, error) {
	var out []model.Order
	for _, o := range s.orders {
		if options.Status == "" || o.Status == options.Status {
			out = append(out, *o)
		}
		if options.Limit > 0 && len(out) >= options.Limit {
			break
		}
	}
	return out, int64(len(out)), nil
}

func (s *stubOrderStore) FindByID(_ context.Context, id string) (*model.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *o
	return &copied, nil
}

func (s *stubOrderStore) MergeUpdate(_ context.Context, id string, fields map[string]interface{}) (*model.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	s.merges = append(s.merges, fields)
	if v, ok := fields["status"].(string); ok {
		o.Status = v
	}
	if v, ok := fields["external_id"].(string); ok {
		o.ExternalID = v
	}
	if v, ok := fields["retry_count"].(int); ok {
		o.RetryCount = v
	}
	if v, ok := fields["last_error"].(string); ok {
		o.LastError = &v
	}
	if v, ok := fields["last_attempt_at"].(time.Time); ok {
		o.LastAttemptAt = &v
	}
	if v, ok := fields["failed_at"].(time.Time); ok {
		o.FailedAt = &v
	}
	copied := *o
	return &copied, nil
}

func (s *stubOrderStore) AddAuditLog(_ context.Context, orderID, event string, meta map[string]interface{}) (*model.AuditLog, error) {
	s.audits = append(s.audits, auditEntry{orderID: orderID, event: event, meta: meta})
	return &model.AuditLog{OrderID: orderID, Event: event}, nil
}

func noJitter(time.Duration) time.Duration { return 0 }

func queuedOrder(id string) *model.Order {
	return &model.Order{
		ID:     id,
		Symbol: "AAPL",
		Side:   model.OrderSideBuy,
		Qty:    1,
		Status: model.OrderStatusQueued,
	}
}

func TestBackoffSchedule(t *testing.T) {
	p := NewProcessor(&stubBroker{}, newStubOrderStore(), nil).
		WithBackoffBase(time.Second)

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, c := range cases {
		if got := p.Backoff(c.retryCount); got != c.want {
			t.Fatalf("Backoff(%d) = %v, want %v", c.retryCount, got, c.want)
		}
	}
}

func TestDueForAttempt(t *testing.T) {
	base := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	p := NewProcessor(&stubBroker{}, newStubOrderStore(), nil).
		WithBackoffBase(time.Second).
		WithJitter(noJitter)

	order := queuedOrder("ord-1")
	assert.True(t, p.dueForAttempt(order), "never-attempted order must be due")

	lastAttempt := base
	order.LastAttemptAt = &lastAttempt
	order.RetryCount = 3 // next delay: 4s

	p.WithNow(func() time.Time { return base.Add(3 * time.Second) })
	assert.False(t, p.dueForAttempt(order))

	p.WithNow(func() time.Time { return base.Add(4 * time.Second) })
	assert.True(t, p.dueForAttempt(order))
}

func TestProcessQueuedOrdersSuccess(t *testing.T) {
	broker := &stubBroker{}
	store := newStubOrderStore(queuedOrder("ord-1"))
	p := NewProcessor(broker, store, nil).WithJitter(noJitter)

	result, err := p.ProcessQueuedOrders(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	order := store.orders["ord-1"]
	assert.Equal(t, model.OrderStatusAccepted, order.Status)
	assert.Equal(t, "broker-ord-1-r0", order.ExternalID)

	require.Len(t, store.audits, 1)
	assert.Equal(t, model.AuditEventExecuted, store.audits[0].event)
	assert.Equal(t, "broker-ord-1-r0", store.audits[0].meta["new_id"])
}

func TestProcessQueuedOrdersRetryBookkeeping(t *testing.T) {
	broker := &stubBroker{createErr: errors.New("connection refused")}
	store := newStubOrderStore(queuedOrder("ord-1"))
	p := NewProcessor(broker, store, nil).WithJitter(noJitter)

	result, err := p.ProcessQueuedOrders(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)

	order := store.orders["ord-1"]
	assert.Equal(t, model.OrderStatusQueued, order.Status, "below the ceiling the order stays queued")
	assert.Equal(t, 1, order.RetryCount)
	require.NotNil(t, order.LastError)
	assert.Equal(t, "connection refused", *order.LastError)
	require.NotNil(t, order.LastAttemptAt)
	assert.Empty(t, store.audits)
}

func TestProcessQueuedOrdersRetryCeiling(t *testing.T) {
	broker := &stubBroker{createErr: errors.New("connection refused")}
	order := queuedOrder("ord-1")
	order.RetryCount = 4
	last := time.Now().Add(-time.Minute)
	order.LastAttemptAt = &last
	store := newStubOrderStore(order)
	p := NewProcessor(broker, store, nil).WithJitter(noJitter)

	_, err := p.ProcessQueuedOrders(context.Background(), 10, 5)
	require.NoError(t, err)

	stored := store.orders["ord-1"]
	assert.Equal(t, model.OrderStatusFailed, stored.Status)
	assert.Equal(t, 5, stored.RetryCount)
	require.NotNil(t, stored.FailedAt)

	require.Len(t, store.audits, 1)
	assert.Equal(t, model.AuditEventFailed, store.audits[0].event)
	assert.Equal(t, "connection refused", store.audits[0].meta["error"])
}

func TestProcessQueuedOrderByIDSkipsTerminal(t *testing.T) {
	order := queuedOrder("ord-1")
	order.Status = model.OrderStatusFailed
	store := newStubOrderStore(order)
	broker := &stubBroker{}
	p := NewProcessor(broker, store, nil).WithJitter(noJitter)

	result, err := p.ProcessQueuedOrderByID(context.Background(), "ord-1", 5)
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, broker.created, "terminal order must never reach the broker")
	assert.Equal(t, model.OrderStatusFailed, store.orders["ord-1"].Status)
}

func TestProcessQueuedOrderByIDNotFound(t *testing.T) {
	p := NewProcessor(&stubBroker{}, newStubOrderStore(), nil).WithJitter(noJitter)

	result, err := p.ProcessQueuedOrderByID(context.Background(), "ord-missing", 5)
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func TestBracketFallbackToPlainOrder(t *testing.T) {
	broker := &stubBroker{latestPrice: decimal.NewFromInt(100), bracketFails: true}
	order := queuedOrder("ord-1")
	order.StopLossPct = 2
	order.TakeProfitPct = 4
	store := newStubOrderStore(order)
	p := NewProcessor(broker, store, nil).WithJitter(noJitter)

	result, err := p.ProcessQueuedOrders(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	require.Len(t, broker.created, 2)
	bracket := broker.created[0]
	require.NotNil(t, bracket.StopLossStop)
	require.NotNil(t, bracket.TakeProfitLimit)
	assert.Equal(t, "98", bracket.StopLossStop.String())
	assert.Equal(t, "104", bracket.TakeProfitLimit.String())

	plain := broker.created[1]
	assert.Nil(t, plain.StopLossStop)
	assert.Nil(t, plain.TakeProfitLimit)
	assert.Equal(t, model.OrderStatusAccepted, store.orders["ord-1"].Status)
}

func TestBracketPriceUnavailableFallsBackToPlain(t *testing.T) {
	broker := &stubBroker{latestErr: errors.New("data api down")}
	order := queuedOrder("ord-1")
	order.StopLossPct = 2
	store := newStubOrderStore(order)
	p := NewProcessor(broker, store, nil).WithJitter(noJitter)

	result, err := p.ProcessQueuedOrders(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	require.Len(t, broker.created, 1)
	assert.Nil(t, broker.created[0].StopLossStop)
}
