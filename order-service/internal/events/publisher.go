package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/jacobmousa/OrderCatalog/order-service/internal/entity"
	"github.com/jacobmousa/OrderCatalog/pkg/contracts"
	"github.com/jacobmousa/OrderCatalog/pkg/correlation"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish writes one order event. The correlation token from ctx travels as a
// message header.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, order *entity.Order) error {
	event := NewOrderEvent(eventType, order)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: value,
	}
	if id, ok := correlation.FromContext(ctx); ok {
		msg.Headers = append(msg.Headers, kafka.Header{Key: contracts.CorrelationHeader, Value: []byte(id)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", eventType, err)
	}

	zerolog.Ctx(ctx).Debug().Str("key", event.Key()).Msg("order event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, *entity.Order) error { return nil }

func (NopPublisher) Close() error { return nil }

// NewOrderEvent snapshots order into the wire contract.
func NewOrderEvent(eventType string, order *entity.Order) contracts.OrderEvent {
	items := make([]contracts.OrderEventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, contracts.OrderEventItem{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
		})
	}

	return contracts.OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Items:       items,
		OccurredUTC: order.UpdatedUTC,
	}
}
