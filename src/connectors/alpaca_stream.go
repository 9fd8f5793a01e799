package connectors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	streamDialTimeout      = 10 * time.Second
	streamReconnectBase    = time.Second
	streamReconnectCeiling = 30 * time.Second
)

// TradeUpdate is a broker-side order event delivered over the stream.
type TradeUpdate struct {
	Event string      `json:"event"`
	Order BrokerOrder `json:"order"`
}

// TradeUpdateHandler receives every trade update. Handler errors are logged,
// not propagated; the stream keeps consuming.
type TradeUpdateHandler func(ctx context.Context, update TradeUpdate) error

// TradeUpdateStream consumes the brokerage trade_updates websocket stream so
// broker-side status transitions land in the local store without polling.
type TradeUpdateStream struct {
	url       string
	apiKey    string
	apiSecret string
	handler   TradeUpdateHandler
}

func NewTradeUpdateStream(url, apiKey, apiSecret string, handler TradeUpdateHandler) *TradeUpdateStream {
	return &TradeUpdateStream{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		handler:   handler,
	}
}

type streamFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type streamRequest struct {
	Action string                 `json:"action"`
	Key    string                 `json:"key,omitempty"`
	Secret string                 `json:"secret,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Run consumes the stream until ctx is done, reconnecting with capped
// backoff. Stream failures only log; trading never depends on the stream.
func (s *TradeUpdateStream) Run(ctx context.Context) {
	backoff := streamReconnectBase

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.consume(ctx); err != nil {
			logger.WithError(err).
				WithField("connector", "alpaca-stream").
				Warn("Trade update stream disconnected, will reconnect")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > streamReconnectCeiling {
			backoff = streamReconnectCeiling
		}
	}
}

func (s *TradeUpdateStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: streamDialTimeout}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(streamRequest{
		Action: "auth",
		Key:    s.apiKey,
		Secret: s.apiSecret,
	}); err != nil {
		return err
	}

	if err := conn.WriteJSON(streamRequest{
		Action: "listen",
		Data:   map[string]interface{}{"streams": []string{"trade_updates"}},
	}); err != nil {
		return err
	}

	logger.WithField("connector", "alpaca-stream").Info("Trade update stream connected")

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var frame streamFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logger.WithError(err).Warn("Skipping unparsable stream frame")
			continue
		}
		if frame.Stream != "trade_updates" {
			continue
		}

		var update TradeUpdate
		if err := json.Unmarshal(frame.Data, &update); err != nil {
			logger.WithError(err).Warn("Skipping unparsable trade update")
			continue
		}

		if s.handler == nil {
			continue
		}
		if err := s.handler(ctx, update); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"event":    update.Event,
				"order_id": update.Order.ID,
			}).Error("Trade update handler failed")
		}
	}
}
