package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jacobmousa/OrderCatalog/pkg/contracts"
	"github.com/jacobmousa/OrderCatalog/pkg/correlation"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/entity"
)

// fakeReader serves queued messages and then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type mockStock struct {
	mock.Mock
}

func (m *mockStock) ReserveProductStock(ctx context.Context, id uuid.UUID, qty int) error {
	return m.Called(ctx, id, qty).Error(0)
}

func eventMessage(t *testing.T, eventType string, items ...contracts.OrderEventItem) kafka.Message {
	t.Helper()
	event := contracts.OrderEvent{Type: eventType, OrderID: 42, Status: "Confirmed", Items: items}
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{
		Key:     []byte(event.Key()),
		Value:   value,
		Headers: []kafka.Header{{Key: contracts.CorrelationHeader, Value: []byte("corr-42")}},
	}
}

func TestConsumer_ProcessMessage(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	testCases := map[string]struct {
		msg             func(t *testing.T) kafka.Message
		setup           func(m *mockStock)
		expectedLabel   []string
		expectedReserve int
	}{
		"should reserve every confirmed item": {
			msg: func(t *testing.T) kafka.Message {
				return eventMessage(t, contracts.OrderConfirmed,
					contracts.OrderEventItem{ProductID: a, Qty: 2},
					contracts.OrderEventItem{ProductID: b, Qty: 1})
			},
			setup: func(m *mockStock) {
				m.On("ReserveProductStock", mock.Anything, a, 2).Return(nil)
				m.On("ReserveProductStock", mock.Anything, b, 1).Return(nil)
			},
			expectedLabel:   []string{contracts.OrderConfirmed, "reserved"},
			expectedReserve: 2,
		},
		"should keep going past insufficient stock": {
			msg: func(t *testing.T) kafka.Message {
				return eventMessage(t, contracts.OrderConfirmed,
					contracts.OrderEventItem{ProductID: a, Qty: 50},
					contracts.OrderEventItem{ProductID: b, Qty: 1})
			},
			setup: func(m *mockStock) {
				m.On("ReserveProductStock", mock.Anything, a, 50).Return(entity.ErrInsufficientStock)
				m.On("ReserveProductStock", mock.Anything, b, 1).Return(nil)
			},
			expectedLabel:   []string{contracts.OrderConfirmed, "partial"},
			expectedReserve: 2,
		},
		"should record store failures": {
			msg: func(t *testing.T) kafka.Message {
				return eventMessage(t, contracts.OrderConfirmed, contracts.OrderEventItem{ProductID: a, Qty: 1})
			},
			setup: func(m *mockStock) {
				m.On("ReserveProductStock", mock.Anything, a, 1).Return(errors.New("db down"))
			},
			expectedLabel:   []string{contracts.OrderConfirmed, "failed"},
			expectedReserve: 1,
		},
		"should ignore other order events": {
			msg: func(t *testing.T) kafka.Message {
				return eventMessage(t, contracts.OrderItemAdded, contracts.OrderEventItem{ProductID: a, Qty: 1})
			},
			expectedLabel: []string{contracts.OrderItemAdded, "ignored"},
		},
		"should skip unknown keys": {
			msg: func(t *testing.T) kafka.Message {
				return kafka.Message{Key: []byte("user.created.1"), Value: []byte(`{}`)}
			},
			expectedLabel: []string{"unknown", "skipped"},
		},
		"should skip malformed payloads": {
			msg: func(t *testing.T) kafka.Message {
				return kafka.Message{Key: []byte("order.confirmed.1"), Value: []byte(`{"items":`)}
			},
			expectedLabel: []string{contracts.OrderConfirmed, "malformed"},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			stock := &mockStock{}
			if tc.setup != nil {
				tc.setup(stock)
			}
			c := NewConsumer(&fakeReader{}, stock, zerolog.Nop(), prometheus.NewRegistry())

			c.processMessage(context.Background(), tc.msg(t))

			stock.AssertExpectations(t)
			stock.AssertNumberOfCalls(t, "ReserveProductStock", tc.expectedReserve)
			assert.Equal(t, 1.0, testutil.ToFloat64(c.processed.WithLabelValues(tc.expectedLabel...)))
		})
	}
}

func TestConsumer_PropagatesCorrelation(t *testing.T) {
	id := uuid.New()
	stock := &mockStock{}
	stock.On("ReserveProductStock", mock.MatchedBy(func(ctx context.Context) bool {
		got, ok := correlation.FromContext(ctx)
		return ok && got == "corr-42"
	}), id, 1).Return(nil)

	c := NewConsumer(&fakeReader{}, stock, zerolog.Nop(), nil)
	c.processMessage(context.Background(), eventMessage(t, contracts.OrderConfirmed, contracts.OrderEventItem{ProductID: id, Qty: 1}))

	stock.AssertExpectations(t)
}

func TestConsumer_Run(t *testing.T) {
	id := uuid.New()
	reader := &fakeReader{
		queue: []kafka.Message{
			eventMessage(t, contracts.OrderCreated),
			eventMessage(t, contracts.OrderConfirmed, contracts.OrderEventItem{ProductID: id, Qty: 3}),
		},
		fetchErrs: []error{errors.New("broker unavailable")},
	}
	stock := &mockStock{}
	stock.On("ReserveProductStock", mock.Anything, id, 3).Return(nil)

	c := NewConsumer(reader, stock, zerolog.Nop(), nil)
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.committedCount() == 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	stock.AssertExpectations(t)

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}
