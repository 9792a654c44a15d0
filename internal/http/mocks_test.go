package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/meiduo/internal/cart"
	"github.com/fjod/meiduo/internal/checkout"
	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var testCookieSecret = []byte("0123456789abcdef0123456789abcdef")

type productsMock struct {
	products map[int64]*domain.Product
	err      error
}

func (m productsMock) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (m productsMock) GetProducts(_ context.Context, ids []int64) (map[int64]*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := map[int64]*domain.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type checkoutMock struct {
	settlement *domain.Settlement
	order      *domain.Order
	err        error
	lastSubmit checkout.SubmitRequest
}

func (m *checkoutMock) Settle(context.Context, int64) (*domain.Settlement, error) {
	return m.settlement, m.err
}

func (m *checkoutMock) Submit(_ context.Context, req checkout.SubmitRequest) (*domain.Order, error) {
	m.lastSubmit = req
	return m.order, m.err
}

type ordersMock struct {
	orders map[string]*domain.Order
}

func (m ordersMock) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (m ordersMock) ListOrdersByUser(_ context.Context, userID int64) ([]*domain.OrderHeader, error) {
	var out []*domain.OrderHeader
	for _, o := range m.orders {
		if o.UserID == userID {
			h := o.OrderHeader
			out = append(out, &h)
		}
	}
	return out, nil
}

func (m ordersMock) MarkCartCleared(context.Context, string) error { return nil }

type testServer struct {
	handler  http.Handler
	store    *cart.RedisStore
	checkout *checkoutMock
}

func newTestServer(t *testing.T, orders map[string]*domain.Order) *testServer {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := cart.NewRedisStore(client)
	carts := cart.NewService(store, cart.NewCookieCodec(testCookieSecret, time.Hour))
	products := productsMock{products: map[int64]*domain.Product{
		10: {ID: 10, Name: "phone", Price: decimal.RequireFromString("100.00"), Stock: 5},
		11: {ID: 11, Name: "case", Price: decimal.RequireFromString("5.00"), Stock: 50},
	}}
	co := &checkoutMock{}

	h := NewRouter(
		RouterConfig{Logger: zerolog.Nop(), RequestTimeout: 5 * time.Second, MaxBodyBytes: 1 << 20},
		NewCartHandler(carts, products, time.Hour),
		NewCheckoutHandler(co),
		NewOrdersHandler(ordersMock{orders: orders}),
	)
	return &testServer{handler: h, store: store, checkout: co}
}
