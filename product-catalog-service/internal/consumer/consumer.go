// Package consumer applies order events to catalog stock.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/jacobmousa/OrderCatalog/pkg/contracts"
	"github.com/jacobmousa/OrderCatalog/pkg/correlation"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/entity"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type StockReserver interface {
	ReserveProductStock(ctx context.Context, id uuid.UUID, qty int) error
}

type Consumer struct {
	reader     MessageReader
	stock      StockReserver
	logger     zerolog.Logger
	processed  *prometheus.CounterVec
	retryDelay time.Duration
}

// NewConsumer builds a consumer. reg may be nil to skip metrics.
func NewConsumer(reader MessageReader, stock StockReserver, logger zerolog.Logger, reg prometheus.Registerer) *Consumer {
	c := &Consumer{
		reader:     reader,
		stock:      stock,
		logger:     logger.With().Str("component", "order-consumer").Logger(),
		retryDelay: time.Second,
	}
	c.processed = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "ordercatalog",
		Subsystem: "product_catalog",
		Name:      "order_events_total",
		Help:      "Order events consumed, by type and outcome.",
	}, []string{"type", "outcome"})
	return c
}

// Run consumes until ctx is cancelled. Each message is committed after it is
// handled, so stock is reserved at least once per confirmed order.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Msg("order consumer started")
	defer c.logger.Info().Msg("order consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("error reading message")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}

		c.processMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("error committing message")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// processMessage handles one message. Nothing here is retried: a malformed
// event or a failed reservation is logged and the message is still committed.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) {
	ctx, logger := c.messageContext(ctx, msg)

	eventType, ok := contracts.EventTypeFromKey(string(msg.Key))
	if !ok {
		logger.Warn().Str("key", string(msg.Key)).Msg("skipping message with unrecognised key")
		c.processed.WithLabelValues("unknown", "skipped").Inc()
		return
	}
	if eventType != contracts.OrderConfirmed {
		c.processed.WithLabelValues(eventType, "ignored").Inc()
		return
	}

	var event contracts.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Error().Err(err).Msg("error unmarshalling order event")
		c.processed.WithLabelValues(eventType, "malformed").Inc()
		return
	}

	outcome := "reserved"
	for _, item := range event.Items {
		err := c.stock.ReserveProductStock(ctx, item.ProductID, item.Qty)
		switch {
		case err == nil:
		case errors.Is(err, entity.ErrInsufficientStock), errors.Is(err, entity.ErrProductNotFound):
			if outcome != "failed" {
				outcome = "partial"
			}
			logger.Warn().Err(err).
				Int64("order_id", event.OrderID).
				Str("product_id", item.ProductID.String()).
				Int("qty", item.Qty).
				Msg("stock not reserved")
		default:
			outcome = "failed"
			logger.Error().Err(err).
				Int64("order_id", event.OrderID).
				Str("product_id", item.ProductID.String()).
				Msg("error reserving stock")
		}
	}

	logger.Info().Int64("order_id", event.OrderID).Int("items", len(event.Items)).Str("outcome", outcome).Msg("order confirmed event handled")
	c.processed.WithLabelValues(eventType, outcome).Inc()
}

// messageContext continues the publisher's correlation token when the message
// carries one.
func (c *Consumer) messageContext(ctx context.Context, msg kafka.Message) (context.Context, *zerolog.Logger) {
	id := ""
	for _, h := range msg.Headers {
		if strings.EqualFold(h.Key, contracts.CorrelationHeader) {
			id = strings.TrimSpace(string(h.Value))
			break
		}
	}
	if id == "" {
		id = correlation.NewID()
	}

	logger := c.logger.With().Str(correlation.LogField, id).Logger()
	ctx = correlation.NewContext(ctx, id)
	return logger.WithContext(ctx), &logger
}
