package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/inventory"
	"github.com/fjod/meiduo/internal/repository"
	"github.com/fjod/meiduo/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type SubmitRequest struct {
	UserID    int64
	AddressID int64
	PayMethod domain.PayMethod
}

// Submit turns the user's selected cart lines into a committed order. Stock
// for every line is taken through the ledger inside one transaction; any
// rejection or failure rolls the whole order back. The purchased lines are
// removed from the cart only after commit.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Submit")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", req.UserID))

	order, err := s.submit(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int("order.lines", len(order.Lines)))

	s.clearCart(ctx, order)
	return order, nil
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (*domain.Order, error) {
	if !req.PayMethod.Valid() {
		return nil, ErrInvalidPayMethod
	}

	lines, err := s.carts.Selected(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("read selected cart lines: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptySelection
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	createdAt := s.now().In(s.loc)
	order := &domain.Order{OrderHeader: domain.OrderHeader{
		ID:          domain.NewOrderID(createdAt, req.UserID),
		UserID:      req.UserID,
		AddressID:   req.AddressID,
		PayMethod:   req.PayMethod,
		TotalAmount: decimal.Zero,
		Freight:     s.freight,
		Status:      domain.InitialStatus(req.PayMethod),
		CreatedAt:   createdAt,
	}}

	err = s.store.WithinTx(ctx, func(tx repository.Tx) error {
		order.Lines = order.Lines[:0]
		order.TotalCount, order.TotalAmount = 0, decimal.Zero

		if err := tx.CreateOrder(ctx, &order.OrderHeader); err != nil {
			return err
		}

		for _, l := range lines {
			p, err := s.ledger.Purchase(ctx, tx, l.ProductID, l.Quantity)
			if err != nil {
				return stockError(l.ProductID, p, err)
			}

			line := domain.OrderLine{OrderID: order.ID, ProductID: p.ID, Quantity: l.Quantity, Price: p.Price}
			if err := tx.AddOrderLine(ctx, line); err != nil {
				return err
			}
			order.Lines = append(order.Lines, line)
			order.TotalCount += l.Quantity
			order.TotalAmount = order.TotalAmount.Add(p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}

		if err := tx.UpdateOrderTotals(ctx, order.ID, order.TotalCount, order.TotalAmount); err != nil {
			return err
		}

		event, err := orderCreatedEvent(order)
		if err != nil {
			return err
		}
		return tx.AddOutboxEvent(ctx, event)
	})
	if err != nil {
		if IsRejected(err) {
			return nil, err
		}
		return nil, fmt.Errorf("submit order %s: %w", order.ID, err)
	}
	return order, nil
}

func stockError(productID int64, p *domain.Product, err error) error {
	if !errors.Is(err, inventory.ErrInsufficientStock) && !errors.Is(err, inventory.ErrProductNotFound) {
		return err
	}
	se := &StockError{ProductID: productID, Err: err}
	if p != nil {
		se.ProductName = p.Name
	}
	return se
}

func orderCreatedEvent(order *domain.Order) (*repository.OutboxEvent, error) {
	ids := make([]int64, len(order.Lines))
	for i, l := range order.Lines {
		ids[i] = l.ProductID
	}
	payload, err := json.Marshal(domain.OrderCreatedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		ProductIDs:  ids,
		TotalCount:  order.TotalCount,
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order created event: %w", err)
	}
	return &repository.OutboxEvent{
		ID:          uuid.NewString(),
		AggregateID: order.ID,
		EventType:   domain.EventOrderCreated,
		Payload:     payload,
		CreatedAt:   order.CreatedAt,
	}, nil
}

// clearCart removes the purchased lines from the cart. The order is already
// committed, so failures are only logged; the cart reconciler retries them
// from the outbox event.
func (s *Service) clearCart(ctx context.Context, order *domain.Order) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	log := logger.WithTrace(ctx, s.log).With().Str("order_id", order.ID).Int64("user_id", order.UserID).Logger()

	ids := make([]int64, len(order.Lines))
	for i, l := range order.Lines {
		ids[i] = l.ProductID
	}
	if err := s.carts.Remove(ctx, order.UserID, ids...); err != nil {
		log.Warn().Err(err).Msg("cart cleanup after order commit failed, leaving it to the reconciler")
		return
	}
	order.CartCleared = true
	if err := s.store.MarkCartCleared(ctx, order.ID); err != nil {
		log.Warn().Err(err).Msg("failed to record cart cleanup")
	}
}
