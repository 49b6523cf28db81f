package events

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/invenhost/inventree-shopify/internal/config"
	"github.com/invenhost/inventree-shopify/internal/metrics"
)

// StockChangeHandler is satisfied by *service.Pusher
type StockChangeHandler interface {
	OnStockChanged(ctx context.Context, stockItemID uuid.UUID)
}

// MessageReader is the part of *kafka.Reader the consumer uses
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type StockConsumer struct {
	reader  MessageReader
	handler StockChangeHandler
	metrics *metrics.Metrics
	log     *zap.Logger

	// newBackoff paces reads after a failed one
	newBackoff func() backoff.BackOff
}

func NewStockConsumer(cfg config.KafkaConfig, handler StockChangeHandler, m *metrics.Metrics, log *zap.Logger) *StockConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.StockTopic,
		MinBytes:          10e3,
		MaxBytes:          10e6,
		CommitInterval:    time.Second,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	})
	return newStockConsumer(r, handler, m, log)
}

func newStockConsumer(r MessageReader, handler StockChangeHandler, m *metrics.Metrics, log *zap.Logger) *StockConsumer {
	return &StockConsumer{
		reader:  r,
		handler: handler,
		metrics: m,
		log:     log,
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run reads until ctx is cancelled. Undecodable messages are logged and
// skipped. Read failures back off before the next read.
func (c *StockConsumer) Run(ctx context.Context) error {
	c.log.Info("Stock event consumer started")
	bo := c.newBackoff()
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			c.log.Error("Failed to read stock event", zap.Duration("retry_in", wait), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		id, ok, err := DecodeStockEvent(m.Value)
		if err != nil {
			c.log.Warn("Dropping malformed stock event", zap.ByteString("value", m.Value), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		c.metrics.StockEvents.WithLabelValues("kafka").Inc()
		c.handler.OnStockChanged(ctx, id)
	}
}

func (c *StockConsumer) Close() error { return c.reader.Close() }
