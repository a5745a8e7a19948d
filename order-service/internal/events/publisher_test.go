package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jacobmousa/OrderCatalog/order-service/internal/entity"
	"github.com/jacobmousa/OrderCatalog/pkg/contracts"
	"github.com/jacobmousa/OrderCatalog/pkg/correlation"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func confirmedOrder() *entity.Order {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	order := entity.NewDraftOrder("cust-1", now)
	order.ID = 42
	order.Items = append(order.Items, entity.OrderItem{
		ID:        uuid.New(),
		ProductID: uuid.MustParse("6f1c1a9e-3f7a-4b65-9d1e-2f0c4b8a9d11"),
		SKU:       "SKU-1",
		Qty:       5,
		UnitPrice: decimal.RequireFromString("10.50"),
	})
	order.RecalculateTotal()
	order.Status = entity.StatusConfirmed
	return order
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &mockWriter{}
	var sent []kafka.Message
	writer.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil)

	ctx := correlation.NewContext(context.Background(), "corr-1")
	err := NewKafkaPublisher(writer).Publish(ctx, contracts.OrderConfirmed, confirmedOrder())
	require.NoError(t, err)

	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, "order.confirmed.42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, contracts.CorrelationHeader, msg.Headers[0].Key)
	assert.Equal(t, "corr-1", string(msg.Headers[0].Value))

	var event contracts.OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, contracts.OrderConfirmed, event.Type)
	assert.Equal(t, "Confirmed", event.Status)
	assert.True(t, decimal.RequireFromString("52.50").Equal(event.TotalAmount))
	require.Len(t, event.Items, 1)
	assert.Equal(t, 5, event.Items[0].Qty)
}

func TestKafkaPublisher_PublishWithoutCorrelation(t *testing.T) {
	writer := &mockWriter{}
	writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		return len(msgs) == 1 && len(msgs[0].Headers) == 0
	})).Return(nil)

	err := NewKafkaPublisher(writer).Publish(context.Background(), contracts.OrderCreated, confirmedOrder())
	require.NoError(t, err)
	writer.AssertExpectations(t)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	writer := &mockWriter{}
	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := NewKafkaPublisher(writer).Publish(context.Background(), contracts.OrderCancelled, confirmedOrder())
	assert.ErrorContains(t, err, "write cancelled event: broker down")
}

func TestNopPublisher(t *testing.T) {
	var p NopPublisher
	assert.NoError(t, p.Publish(context.Background(), contracts.OrderCreated, confirmedOrder()))
	assert.NoError(t, p.Close())
}
