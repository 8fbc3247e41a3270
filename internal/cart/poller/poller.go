// Package poller clears carts once their checkout has completed, driven by Kafka events.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "checkout-outbox"
	GroupID      = "cart-service-consumer"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type CartClearer interface {
	ClearCart(ctx context.Context, userID string) (bool, error)
}

type Poller struct {
	carts  CartClearer
	reader MessageReader
	log    *slog.Logger
}

func NewPoller(carts CartClearer, log *slog.Logger, topic string, brokers ...string) *Poller {
	if topic == "" {
		topic = DefaultTopic
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(carts, reader, log)
}

func NewPollerWithReader(carts CartClearer, reader MessageReader, log *slog.Logger) *Poller {
	return &Poller{carts: carts, reader: reader, log: log}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !p.handleNext(ctx) {
			return
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", slog.Any("error", err))
	}
}

type checkoutEvent struct {
	UserID string `json:"user_id"`
}

// handleNext processes one message and reports whether the loop should continue.
func (p *Poller) handleNext(ctx context.Context) bool {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			return false
		}
		p.log.Error("error reading message", slog.Any("error", err))
		return true
	}

	var event checkoutEvent
	if errUnmarshal := json.Unmarshal(m.Value, &event); errUnmarshal != nil {
		p.log.Warn("error parsing message", slog.Any("error", errUnmarshal), slog.Int64("offset", m.Offset))
		return true
	}
	if event.UserID == "" {
		p.log.Warn("missing or invalid user_id", slog.Int64("offset", m.Offset))
		return true
	}

	existed, errClear := p.carts.ClearCart(ctx, event.UserID)
	if errClear != nil {
		p.log.Error("failed to clear cart", slog.String("user_id", event.UserID), slog.Any("error", errClear))
		return true
	}
	p.log.Info("cart cleared after checkout", slog.String("user_id", event.UserID), slog.Bool("existed", existed))
	return true
}
