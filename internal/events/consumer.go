package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one decoded order-placed event.
type Handler interface {
	HandleOrderPlaced(ctx context.Context, ev OrderPlaced) error
}

type HandlerFunc func(ctx context.Context, ev OrderPlaced) error

func (f HandlerFunc) HandleOrderPlaced(ctx context.Context, ev OrderPlaced) error {
	return f(ctx, ev)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// DefaultReadBackoff is the pause after a failed read before the next one.
const DefaultReadBackoff = time.Second

type Consumer struct {
	handler Handler
	reader  messageReader
	log     *zap.Logger
	backoff time.Duration
}

func NewConsumer(handler Handler, log *zap.Logger, topic, groupID string, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{handler: handler, reader: reader, log: log, backoff: DefaultReadBackoff}
}

// Run reads until ctx is cancelled. Handler errors are logged and the
// message is not retried. A failed read is followed by a pause of
// c.backoff before the next attempt.
func (c *Consumer) Run(ctx context.Context) {
	backoff := c.backoff
	if backoff <= 0 {
		backoff = DefaultReadBackoff
	}
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.processMessage(ctx); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing kafka reader", zap.Error(err))
	}
}

// processMessage returns an error only when the read itself failed.
func (c *Consumer) processMessage(ctx context.Context) error {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		c.log.Error("error reading message", zap.Error(err))
		return err
	}

	ev, err := decode(m)
	if err != nil {
		c.log.Warn("skipping message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	if err := c.handler.HandleOrderPlaced(ctx, ev); err != nil {
		c.log.Error("order-placed handler failed",
			zap.String("order_id", ev.OrderID), zap.Error(err))
		return nil
	}
	c.log.Debug("order-placed handled", zap.String("order_id", ev.OrderID))
	return nil
}

func decode(m kafka.Message) (OrderPlaced, error) {
	for _, h := range m.Headers {
		if h.Key == headerEventType && string(h.Value) != EventOrderPlaced {
			return OrderPlaced{}, fmt.Errorf("unexpected event type %q", h.Value)
		}
	}
	var ev OrderPlaced
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return OrderPlaced{}, fmt.Errorf("parse order-placed: %w", err)
	}
	if ev.OrderID == "" || ev.UserID == "" {
		return OrderPlaced{}, errors.New("order-placed without order or user id")
	}
	return ev, nil
}
