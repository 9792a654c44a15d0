package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/publisher"
	"github.com/fjod/meiduo/internal/repository"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the reconciler uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CartCleaner interface {
	Remove(ctx context.Context, userID int64, productIDs ...int64) error
}

type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	MarkCartCleared(ctx context.Context, orderID string) error
}

// CartReconciler removes purchased lines from carts for orders whose inline
// cleanup did not complete.
type CartReconciler struct {
	reader     MessageReader
	carts      CartCleaner
	orders     OrderStore
	log        zerolog.Logger
	attempts   int
	retryDelay time.Duration
}

func NewCartReconciler(carts CartCleaner, orders OrderStore, log zerolog.Logger, brokers ...string) *CartReconciler {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    publisher.Topic,
		GroupID:  "cart-reconciler",
		MaxBytes: 10e6, // 10MB
	})
	return NewCartReconcilerWithReader(reader, carts, orders, log)
}

func NewCartReconcilerWithReader(reader MessageReader, carts CartCleaner, orders OrderStore, log zerolog.Logger) *CartReconciler {
	return &CartReconciler{
		reader:     reader,
		carts:      carts,
		orders:     orders,
		log:        log.With().Str("component", "cart-reconciler").Logger(),
		attempts:   3,
		retryDelay: time.Second,
	}
}

func (r *CartReconciler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error().Err(err).Msg("error reading message")
			r.wait(ctx)
			continue
		}

		r.handleWithRetry(ctx, m)

		if err := r.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			r.log.Error().Err(err).Int64("offset", m.Offset).Msg("failed to commit message")
		}
	}
}

func (r *CartReconciler) Close() error {
	return r.reader.Close()
}

func (r *CartReconciler) handleWithRetry(ctx context.Context, m kafka.Message) {
	for attempt := 1; ; attempt++ {
		err := r.handle(ctx, m)
		if err == nil {
			return
		}
		if attempt >= r.attempts || ctx.Err() != nil {
			r.log.Error().Err(err).Str("key", string(m.Key)).Msg("giving up on cart reconciliation")
			return
		}
		r.wait(ctx)
	}
}

func (r *CartReconciler) handle(ctx context.Context, m kafka.Message) error {
	if eventType(m) != domain.EventOrderCreated {
		return nil
	}

	var ev domain.OrderCreatedEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		r.log.Warn().Err(err).Msg("skipping malformed order event")
		return nil
	}

	order, err := r.orders.GetOrder(ctx, ev.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		r.log.Warn().Str("order_id", ev.OrderID).Msg("order event for unknown order")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderID, err)
	}
	if order.CartCleared {
		return nil
	}

	if err := r.carts.Remove(ctx, ev.UserID, ev.ProductIDs...); err != nil {
		return fmt.Errorf("remove cart lines for order %s: %w", ev.OrderID, err)
	}
	if err := r.orders.MarkCartCleared(ctx, ev.OrderID); err != nil {
		return fmt.Errorf("mark order %s cart cleared: %w", ev.OrderID, err)
	}
	r.log.Info().Str("order_id", ev.OrderID).Int64("user_id", ev.UserID).Msg("reconciled cart after order")
	return nil
}

func (r *CartReconciler) wait(ctx context.Context) {
	t := time.NewTimer(r.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
