package query

import (
	"context"
	"log/slog"
	"strings"

	"github.com/utafrali/EcommerceGo/storefront/internal/domain"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
)

// CreateProduct adds a product and invalidates every listing.
func (s *Service) CreateProduct(ctx context.Context, input domain.CreateProductInput) (*domain.Product, error) {
	product, err := s.api.CreateProduct(ctx, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, Invalidation{Kinds: ListingKinds(), Reason: "create"})
	return product, nil
}

// UpdateProduct changes a product and invalidates every listing plus the
// product itself.
func (s *Service) UpdateProduct(ctx context.Context, id string, input domain.UpdateProductInput) (*domain.Product, error) {
	product, err := s.api.UpdateProduct(ctx, id, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, Invalidation{Kinds: ListingKinds(), ProductID: strings.TrimSpace(id), Reason: "update"})
	return product, nil
}

// DeleteProduct removes a product and invalidates every listing plus the
// product itself.
func (s *Service) DeleteProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.api.DeleteProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, Invalidation{Kinds: ListingKinds(), ProductID: strings.TrimSpace(id), Reason: "delete"})
	return product, nil
}

// invalidate clears the shared store, then the local cache, then tells other
// replicas. Store and publish failures are logged; the mutation already
// succeeded.
func (s *Service) invalidate(ctx context.Context, inv Invalidation) {
	log := logger.WithContext(ctx, s.logger)

	if s.store != nil {
		if _, err := s.store.DeleteKinds(ctx, inv.Kinds...); err != nil {
			log.WarnContext(ctx, "shared cache invalidation failed", slog.String("error", err.Error()))
		}
		if inv.ProductID != "" {
			if err := s.store.Delete(ctx, productKey(inv.ProductID)); err != nil {
				log.WarnContext(ctx, "shared cache invalidation failed", slog.String("error", err.Error()))
			}
		}
	}

	n := s.InvalidateLocal(inv)
	log.InfoContext(ctx, "caches invalidated",
		slog.String("reason", inv.Reason),
		slog.String("product_id", inv.ProductID),
		slog.Int("entries", n),
	)

	if s.publisher != nil {
		if err := s.publisher.PublishInvalidation(ctx, inv); err != nil {
			log.WarnContext(ctx, "publish cache invalidation failed", slog.String("error", err.Error()))
		}
	}
}

// InvalidateLocal drops the entries inv names from this replica's cache and
// returns how many were invalidated.
func (s *Service) InvalidateLocal(inv Invalidation) int {
	n := s.cache.InvalidateKinds(inv.Kinds...)
	if inv.ProductID != "" {
		n += s.cache.Invalidate(productKey(inv.ProductID))
	}
	return n
}
