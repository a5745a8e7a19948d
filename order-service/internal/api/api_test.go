package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jacobmousa/OrderCatalog/order-service/internal/entity"
	"github.com/jacobmousa/OrderCatalog/order-service/internal/service"
	"github.com/jacobmousa/OrderCatalog/pkg/correlation"
	"github.com/jacobmousa/OrderCatalog/pkg/httpx"
)

type mockOrderService struct {
	mock.Mock
}

func (m *mockOrderService) result(args mock.Arguments) (*entity.Order, error) {
	if o, ok := args.Get(0).(*entity.Order); ok {
		return o, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderService) CreateDraft(ctx context.Context, customerID, idempotencyKey string) (*entity.Order, error) {
	return m.result(m.Called(ctx, customerID, idempotencyKey))
}

func (m *mockOrderService) AddItem(ctx context.Context, orderID int64, req service.AddItemRequest) (*entity.Order, error) {
	return m.result(m.Called(ctx, orderID, req))
}

func (m *mockOrderService) Confirm(ctx context.Context, orderID int64) (*entity.Order, error) {
	return m.result(m.Called(ctx, orderID))
}

func (m *mockOrderService) Cancel(ctx context.Context, orderID int64) (*entity.Order, error) {
	return m.result(m.Called(ctx, orderID))
}

func (m *mockOrderService) GetOrder(ctx context.Context, orderID int64) (*entity.Order, error) {
	return m.result(m.Called(ctx, orderID))
}

func (m *mockOrderService) ListOrders(ctx context.Context, filter entity.OrderFilter) (*entity.OrderPage, error) {
	args := m.Called(ctx, filter)
	if p, ok := args.Get(0).(*entity.OrderPage); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

var productID = uuid.MustParse("6f1c1a9e-3f7a-4b65-9d1e-2f0c4b8a9d11")

func sampleOrder() *entity.Order {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	order := entity.NewDraftOrder("cust-1", now)
	order.ID = 7
	order.Items = append(order.Items, entity.OrderItem{
		ID:        uuid.New(),
		ProductID: productID,
		SKU:       "SKU-1",
		Qty:       2,
		UnitPrice: decimal.RequireFromString("10.5"),
	})
	order.RecalculateTotal()
	return order
}

func newTestServer(svc OrderService) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = httpx.ErrorHandler
	e.Use(correlation.Middleware(zerolog.Nop()))
	RegisterRoutes(e, NewOrderHandler(svc))
	return e
}

func do(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrder(t *testing.T) {
	svc := &mockOrderService{}
	svc.On("CreateDraft", mock.Anything, "cust-1", "key-1").Return(sampleOrder(), nil)

	rec := do(newTestServer(svc), http.MethodPost, "/api/orders", `{"customerId":"cust-1"}`, map[string]string{
		IdempotencyKeyHeader:   "key-1",
		correlation.HeaderName: "corr-1",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/api/orders/7", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, "corr-1", rec.Header().Get(correlation.HeaderName))
	assert.JSONEq(t, `{
		"id": 7,
		"customerId": "cust-1",
		"status": "Draft",
		"totalAmount": 21.00,
		"createdUtc": "2024-05-01T12:00:00Z",
		"updatedUtc": "2024-05-01T12:00:00Z",
		"items": [{
			"productId": "6f1c1a9e-3f7a-4b65-9d1e-2f0c4b8a9d11",
			"sku": "SKU-1",
			"qty": 2,
			"unitPrice": 10.50,
			"lineTotal": 21.00
		}]
	}`, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"totalAmount":21.00`)
}

func TestCreateOrder_EmptyBody(t *testing.T) {
	svc := &mockOrderService{}
	svc.On("CreateDraft", mock.Anything, "", "").Return(sampleOrder(), nil)

	rec := do(newTestServer(svc), http.MethodPost, "/api/orders", "", nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(correlation.HeaderName))
	svc.AssertExpectations(t)
}

func TestAddItem(t *testing.T) {
	testCases := map[string]struct {
		path           string
		body           string
		setup          func(m *mockOrderService)
		expectedStatus int
		expectedErrors map[string][]string
	}{
		"should add by sku": {
			path: "/api/orders/7/items",
			body: `{"sku":"SKU-1","qty":2}`,
			setup: func(m *mockOrderService) {
				m.On("AddItem", mock.Anything, int64(7), service.AddItemRequest{SKU: "SKU-1", Qty: 2}).Return(sampleOrder(), nil)
			},
			expectedStatus: http.StatusOK,
		},
		"should add by product id": {
			path: "/api/orders/7/items",
			body: `{"productId":"6f1c1a9e-3f7a-4b65-9d1e-2f0c4b8a9d11","qty":1}`,
			setup: func(m *mockOrderService) {
				m.On("AddItem", mock.Anything, int64(7), mock.MatchedBy(func(r service.AddItemRequest) bool {
					return r.ProductID != nil && *r.ProductID == productID && r.Qty == 1
				})).Return(sampleOrder(), nil)
			},
			expectedStatus: http.StatusOK,
		},
		"should reject malformed product id": {
			path: "/api/orders/7/items",
			body: `{"productId":"not-a-uuid","qty":1}`,
			setup: func(m *mockOrderService) {
				m.On("GetOrder", mock.Anything, int64(7)).Return(sampleOrder(), nil)
			},
			expectedStatus: http.StatusBadRequest,
			expectedErrors: map[string][]string{"productId": {"The productId field is not a valid identifier."}},
		},
		"should map validation errors": {
			path: "/api/orders/7/items",
			body: `{"sku":"NOPE","qty":1}`,
			setup: func(m *mockOrderService) {
				m.On("AddItem", mock.Anything, int64(7), mock.Anything).
					Return(nil, entity.NewValidationError("product", "Product not found in catalog"))
			},
			expectedStatus: http.StatusBadRequest,
			expectedErrors: map[string][]string{"product": {"Product not found in catalog"}},
		},
		"should report missing order before malformed product id": {
			path: "/api/orders/99/items",
			body: `{"productId":"not-a-uuid","qty":1}`,
			setup: func(m *mockOrderService) {
				m.On("GetOrder", mock.Anything, int64(99)).Return(nil, entity.ErrOrderNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		"should map missing order": {
			path: "/api/orders/99/items",
			body: `{"sku":"SKU-1","qty":1}`,
			setup: func(m *mockOrderService) {
				m.On("AddItem", mock.Anything, int64(99), mock.Anything).Return(nil, entity.ErrOrderNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		"should treat non numeric id as missing": {
			path:           "/api/orders/abc/items",
			body:           `{"sku":"SKU-1","qty":1}`,
			expectedStatus: http.StatusNotFound,
		},
		"should map concurrent update": {
			path: "/api/orders/7/items",
			body: `{"sku":"SKU-1","qty":1}`,
			setup: func(m *mockOrderService) {
				m.On("AddItem", mock.Anything, int64(7), mock.Anything).Return(nil, entity.ErrConcurrentUpdate)
			},
			expectedStatus: http.StatusConflict,
		},
		"should reject malformed json": {
			path:           "/api/orders/7/items",
			body:           `{"qty":"two"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			svc := &mockOrderService{}
			if tc.setup != nil {
				tc.setup(svc)
			}

			rec := do(newTestServer(svc), http.MethodPost, tc.path, tc.body, nil)

			assert.Equal(t, tc.expectedStatus, rec.Code)
			if tc.expectedErrors != nil {
				var problem httpx.Problem
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
				assert.Equal(t, tc.expectedErrors, problem.Errors)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	testCases := map[string]struct {
		path           string
		method         string
		err            error
		expectedStatus int
	}{
		"should confirm": {
			path:           "/api/orders/7/confirm",
			method:         "Confirm",
			expectedStatus: http.StatusOK,
		},
		"should report empty confirm": {
			path:           "/api/orders/7/confirm",
			method:         "Confirm",
			err:            entity.NewValidationError("items", "Cannot confirm order without items."),
			expectedStatus: http.StatusBadRequest,
		},
		"should cancel": {
			path:           "/api/orders/7/cancel",
			method:         "Cancel",
			expectedStatus: http.StatusOK,
		},
		"should report confirmed cancel": {
			path:           "/api/orders/7/cancel",
			method:         "Cancel",
			err:            entity.NewValidationError("status", "Confirmed orders cannot be cancelled."),
			expectedStatus: http.StatusBadRequest,
		},
		"should hide storage failures": {
			path:           "/api/orders/7/cancel",
			method:         "Cancel",
			err:            errors.New("deadlock"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			svc := &mockOrderService{}
			if tc.err != nil {
				svc.On(tc.method, mock.Anything, int64(7)).Return(nil, tc.err)
			} else {
				svc.On(tc.method, mock.Anything, int64(7)).Return(sampleOrder(), nil)
			}

			rec := do(newTestServer(svc), http.MethodPost, tc.path, "", map[string]string{correlation.HeaderName: "corr-9"})

			assert.Equal(t, tc.expectedStatus, rec.Code)
			if tc.expectedStatus == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "deadlock")
				assert.Contains(t, rec.Body.String(), `"correlationId":"corr-9"`)
			}
		})
	}
}

func TestGetOrder(t *testing.T) {
	svc := &mockOrderService{}
	svc.On("GetOrder", mock.Anything, int64(7)).Return(sampleOrder(), nil)
	svc.On("GetOrder", mock.Anything, int64(8)).Return(nil, entity.ErrOrderNotFound)
	e := newTestServer(svc)

	rec := do(e, http.MethodGet, "/api/orders/7", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lineTotal":21.00`)

	rec = do(e, http.MethodGet, "/api/orders/8", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrders(t *testing.T) {
	testCases := map[string]struct {
		query          string
		expectedFilter entity.OrderFilter
	}{
		"should pass filters": {
			query:          "?status=confirmed&customerId=bob&page=2&pageSize=5",
			expectedFilter: entity.OrderFilter{Status: entity.StatusConfirmed, CustomerID: "bob", Page: 2, PageSize: 5},
		},
		"should ignore unknown status and bad paging": {
			query:          "?status=shipped&page=x",
			expectedFilter: entity.OrderFilter{},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			svc := &mockOrderService{}
			svc.On("ListOrders", mock.Anything, tc.expectedFilter).Return(&entity.OrderPage{
				Items:    []*entity.Order{sampleOrder()},
				Total:    1,
				Page:     1,
				PageSize: 20,
			}, nil)

			rec := do(newTestServer(svc), http.MethodGet, "/api/orders"+tc.query, "", nil)

			require.Equal(t, http.StatusOK, rec.Code)
			var body struct {
				Items    []map[string]interface{} `json:"items"`
				Total    int                      `json:"total"`
				PageSize int                      `json:"pageSize"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Len(t, body.Items, 1)
			assert.Equal(t, 1, body.Total)
			assert.Equal(t, 20, body.PageSize)
			svc.AssertExpectations(t)
		})
	}
}
