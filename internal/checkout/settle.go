package checkout

import (
	"context"
	"fmt"

	"github.com/fjod/meiduo/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Settle previews the order the user's current selection would produce,
// priced with live product data. Selected products that no longer exist are
// left out. Nothing is written.
func (s *Service) Settle(ctx context.Context, userID int64) (*domain.Settlement, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Settle")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	lines, err := s.carts.Selected(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read cart")
		return nil, fmt.Errorf("read selected cart lines: %w", err)
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.store.GetProducts(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load products")
		return nil, fmt.Errorf("load products: %w", err)
	}

	settlement := &domain.Settlement{Freight: s.freight, Lines: make([]domain.SettlementLine, 0, len(lines))}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue
		}
		settlement.Lines = append(settlement.Lines, domain.SettlementLine{
			ProductID: p.ID,
			Name:      p.Name,
			ImageURL:  p.ImageURL,
			Price:     p.Price,
			Quantity:  l.Quantity,
		})
	}
	return settlement, nil
}
