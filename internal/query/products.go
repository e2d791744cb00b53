package query

import (
	"context"
	"strings"

	"github.com/utafrali/EcommerceGo/storefront/internal/domain"
	"github.com/utafrali/EcommerceGo/storefront/internal/querycache"
	"github.com/utafrali/EcommerceGo/storefront/pkg/pagination"
)

type pageResult = Result[*domain.ProductPage]

func normalizeList(p domain.ListParams) domain.ListParams {
	if p.Limit <= 0 {
		p.Limit = pagination.DefaultPerPage
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.SortBy == "" {
		p.Order = ""
	} else {
		p.Order = domain.NormalizeOrder(p.Order)
	}
	return p
}

// Products returns one page of the unfiltered catalog.
func (s *Service) Products(ctx context.Context, params domain.ListParams) (*pageResult, error) {
	params = normalizeList(params)
	key := querycache.NewKey(KindProducts, params)
	return load(ctx, s, key, s.cfg.Listing, func(ctx context.Context) (*domain.ProductPage, error) {
		return s.api.ListProducts(ctx, params)
	})
}

// Product returns a single product. It is idle when id is blank.
func (s *Service) Product(ctx context.Context, id string) (*Result[*domain.Product], error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return idle[*domain.Product](), nil
	}
	return load(ctx, s, productKey(id), s.cfg.Product, func(ctx context.Context) (*domain.Product, error) {
		return s.api.GetProduct(ctx, id)
	})
}

// Search runs a free-text search. It is idle unless the trimmed query has at
// least three characters; callers debounce input before calling.
func (s *Service) Search(ctx context.Context, query string, limit, skip int) (*pageResult, error) {
	query = strings.TrimSpace(query)
	if !domain.SearchActive(query) {
		return idle[*domain.ProductPage](), nil
	}
	params := normalizeList(domain.ListParams{Limit: limit, Skip: skip})
	key := querycache.NewKey(KindSearch, map[string]any{"q": query, "limit": params.Limit, "skip": params.Skip})
	return load(ctx, s, key, s.cfg.Search, func(ctx context.Context) (*domain.ProductPage, error) {
		return s.api.SearchProducts(ctx, query, params.Limit, params.Skip)
	})
}

// ByCategory returns one page of a category. It is idle when category is
// blank.
func (s *Service) ByCategory(ctx context.Context, category string, params domain.ListParams) (*pageResult, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return idle[*domain.ProductPage](), nil
	}
	params = normalizeList(params)
	key := querycache.NewKey(KindCategory, map[string]any{"category": category, "params": params})
	return load(ctx, s, key, s.cfg.Listing, func(ctx context.Context) (*domain.ProductPage, error) {
		return s.api.ListByCategory(ctx, category, params)
	})
}

// ByPriceRange filters a bulk sample by inclusive price bounds and pages the
// matches locally. Totals count matches within the sample, so the page is
// always Approximate. It is idle when neither bound is set.
func (s *Service) ByPriceRange(ctx context.Context, r domain.PriceRange, limit, skip int) (*pageResult, error) {
	if r.IsZero() {
		return idle[*domain.ProductPage](), nil
	}
	params := normalizeList(domain.ListParams{Limit: limit, Skip: skip})
	key := querycache.NewKey(KindPrice, map[string]any{"range": r, "limit": params.Limit, "skip": params.Skip})
	return load(ctx, s, key, s.cfg.Listing, func(ctx context.Context) (*domain.ProductPage, error) {
		return s.priceRangePage(ctx, r, params)
	})
}

func (s *Service) priceRangePage(ctx context.Context, r domain.PriceRange, params domain.ListParams) (*domain.ProductPage, error) {
	sample, err := s.api.BulkSample(ctx)
	if err != nil {
		return nil, err
	}
	matches := domain.FilterByPrice(sample, r)
	if params.SortBy != "" {
		matches = domain.SortProducts(matches, params.SortBy, params.Order)
	}
	return &domain.ProductPage{
		Products:    pagination.Slice(matches, params.Skip, params.Limit),
		Total:       len(matches),
		Skip:        params.Skip,
		Limit:       params.Limit,
		Approximate: true,
	}, nil
}

// Filtered resolves combined filters with priority search, then category,
// then price range, then the unfiltered listing.
func (s *Service) Filtered(ctx context.Context, f domain.Filters) (*pageResult, error) {
	f.Query = strings.TrimSpace(f.Query)
	f.Category = strings.TrimSpace(f.Category)
	f.ListParams = normalizeList(f.ListParams)

	policy := s.cfg.Listing
	if domain.SearchActive(f.Query) {
		policy = s.cfg.Search
	}
	key := querycache.NewKey(KindFiltered, f)
	return load(ctx, s, key, policy, func(ctx context.Context) (*domain.ProductPage, error) {
		switch {
		case domain.SearchActive(f.Query):
			page, err := s.api.SearchProducts(ctx, f.Query, f.Limit, f.Skip)
			if err != nil {
				return nil, err
			}
			if f.SortBy != "" {
				page.Products = domain.SortProducts(page.Products, f.SortBy, f.Order)
			}
			return page, nil
		case f.Category != "":
			return s.api.ListByCategory(ctx, f.Category, f.ListParams)
		case !f.Price.IsZero():
			return s.priceRangePage(ctx, f.Price, f.ListParams)
		default:
			return s.api.ListProducts(ctx, f.ListParams)
		}
	})
}

// Categories returns every category.
func (s *Service) Categories(ctx context.Context) (*Result[[]domain.Category], error) {
	key := querycache.NewKey(KindCategories, nil)
	return load(ctx, s, key, s.cfg.Categories, func(ctx context.Context) ([]domain.Category, error) {
		return s.api.ListCategories(ctx)
	})
}
