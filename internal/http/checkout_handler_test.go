package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/fjod/meiduo/internal/checkout"
	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/inventory"
	"github.com/shopspring/decimal"
)

func TestSubmit_Success(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.checkout.order = &domain.Order{OrderHeader: domain.OrderHeader{
		ID:          "20261016120000000000005",
		UserID:      5,
		TotalCount:  2,
		TotalAmount: decimal.RequireFromString("200.00"),
		Freight:     decimal.RequireFromString("10.00"),
		PayMethod:   domain.PayMethodAlipay,
		Status:      domain.OrderStatusUnpaid,
		CreatedAt:   time.Now(),
	}}

	rec := doRequest(srv.handler, http.MethodPost, "/api/v1/orders", SubmitOrderRequestDTO{AddressID: 3, PayMethod: 2}, 5, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status code %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if srv.checkout.lastSubmit.UserID != 5 || srv.checkout.lastSubmit.PayMethod != domain.PayMethodAlipay {
		t.Errorf("Unexpected submit request: %+v", srv.checkout.lastSubmit)
	}

	var order domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if order.ID != "20261016120000000000005" {
		t.Errorf("Expected order id to round-trip, got %q", order.ID)
	}
}

func TestSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "insufficient stock",
			err:    &checkout.StockError{ProductID: 10, ProductName: "phone", Err: inventory.ErrInsufficientStock},
			status: http.StatusBadRequest,
			code:   "insufficient_stock",
		},
		{
			name:   "product gone",
			err:    &checkout.StockError{ProductID: 10, Err: inventory.ErrProductNotFound},
			status: http.StatusBadRequest,
			code:   "product_unavailable",
		},
		{"empty selection", checkout.ErrEmptySelection, http.StatusBadRequest, "empty_selection"},
		{"bad pay method", checkout.ErrInvalidPayMethod, http.StatusBadRequest, "invalid_pay_method"},
		{"storage", fmt.Errorf("submit order x: %w", errors.New("connection reset")), http.StatusInternalServerError, "system_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			srv.checkout.err = tt.err

			rec := doRequest(srv.handler, http.MethodPost, "/api/v1/orders", SubmitOrderRequestDTO{AddressID: 1, PayMethod: 1}, 5, nil)
			if rec.Code != tt.status {
				t.Fatalf("Expected status code %d, got %d", tt.status, rec.Code)
			}
			var resp ErrorResponse
			_ = json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Code != tt.code {
				t.Errorf("Expected code %q, got %q", tt.code, resp.Code)
			}
		})
	}
}

func TestSubmit_InsufficientStockNamesProduct(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.checkout.err = &checkout.StockError{ProductID: 10, ProductName: "phone", Err: inventory.ErrInsufficientStock}

	rec := doRequest(srv.handler, http.MethodPost, "/api/v1/orders", SubmitOrderRequestDTO{AddressID: 1, PayMethod: 1}, 5, nil)

	var resp ErrorResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Error != "phone is out of stock" {
		t.Errorf("Expected product name in message, got %q", resp.Error)
	}
}

func TestSubmit_InvalidAddress(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(srv.handler, http.MethodPost, "/api/v1/orders", SubmitOrderRequestDTO{PayMethod: 1}, 5, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestSubmit_RequiresUser(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(srv.handler, http.MethodPost, "/api/v1/orders", SubmitOrderRequestDTO{AddressID: 1, PayMethod: 1}, 0, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status code %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestSettlement(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.checkout.settlement = &domain.Settlement{
		Freight: decimal.RequireFromString("10.00"),
		Lines: []domain.SettlementLine{
			{ProductID: 10, Name: "phone", Price: decimal.RequireFromString("100.00"), Quantity: 2},
		},
	}

	rec := doRequest(srv.handler, http.MethodGet, "/api/v1/orders/settlement", nil, 5, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, rec.Code)
	}
	var got domain.Settlement
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got.Lines) != 1 || !got.Freight.Equal(decimal.RequireFromString("10")) {
		t.Errorf("Unexpected settlement: %+v", got)
	}
}

func TestSettlement_Failure(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.checkout.err = errors.New("redis down")

	rec := doRequest(srv.handler, http.MethodGet, "/api/v1/orders/settlement", nil, 5, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status code %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}
